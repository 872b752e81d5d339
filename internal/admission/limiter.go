package admission

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/feral-file/ff-ownership-indexer/internal/adapter"
	"github.com/feral-file/ff-ownership-indexer/internal/domain"
	"github.com/feral-file/ff-ownership-indexer/internal/logger"
	"github.com/feral-file/ff-ownership-indexer/internal/metrics"
	"github.com/feral-file/ff-ownership-indexer/internal/queue"
)

const (
	DEFAULT_IN_FLIGHT_LIMIT = 1000
	DEFAULT_TICK_INTERVAL   = 3 * time.Second
)

// Config holds the admission layer configuration
type Config struct {
	// InFlightLimit is the queue depth admission fills up to
	InFlightLimit int
	// Interval is the period between two admission ticks
	Interval time.Duration
}

// Limiter buffers discovered work and releases it to the queue without letting the
// queue depth exceed the in-flight limit. Items are never dropped, only delayed.
type Limiter[T any] struct {
	cfg     Config
	queue   queue.Queue
	toJob   func(T) domain.Job
	clock   adapter.Clock
	metrics *metrics.Metrics

	mu      sync.Mutex
	pending []T
}

// NewLimiter creates a new admission limiter. toJob maps an item to its job and dedupe key.
func NewLimiter[T any](cfg Config, q queue.Queue, toJob func(T) domain.Job, clock adapter.Clock, m *metrics.Metrics) *Limiter[T] {
	if cfg.InFlightLimit <= 0 {
		cfg.InFlightLimit = DEFAULT_IN_FLIGHT_LIMIT
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DEFAULT_TICK_INTERVAL
	}

	return &Limiter[T]{
		cfg:     cfg,
		queue:   q,
		toJob:   toJob,
		clock:   clock,
		metrics: m,
	}
}

// Add appends an item to the buffer
func (l *Limiter[T]) Add(item T) {
	l.AddBulk([]T{item})
}

// AddBulk appends items to the buffer in order
func (l *Limiter[T]) AddBulk(items []T) {
	if len(items) == 0 {
		return
	}

	l.mu.Lock()
	l.pending = append(l.pending, items...)
	buffered := len(l.pending)
	l.mu.Unlock()

	l.metrics.SetBuffered(buffered)
}

// Len returns the number of buffered items
func (l *Limiter[T]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

// Run ticks until the context is canceled. Ticks never overlap.
func (l *Limiter[T]) Run(ctx context.Context) error {
	logger.InfoCtx(ctx, "Starting admission limiter",
		zap.Int("inFlightLimit", l.cfg.InFlightLimit),
		zap.Duration("interval", l.cfg.Interval),
	)

	ticker := l.clock.NewTicker(l.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.InfoCtx(ctx, "Admission limiter stopped", zap.Int("buffered", l.Len()))
			return nil
		case <-ticker.C():
			if _, err := l.Tick(ctx); err != nil {
				logger.ErrorCtx(ctx, err)
			}
		}
	}
}

// Tick admits up to max(0, limit - depth) of the oldest buffered items as one bulk
// enqueue and returns how many were admitted
func (l *Limiter[T]) Tick(ctx context.Context) (int, error) {
	if l.Len() == 0 {
		return 0, nil
	}

	depth, err := l.queue.CurrentDepth(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get queue depth: %w", err)
	}

	room := l.cfg.InFlightLimit - depth
	if room <= 0 {
		l.metrics.ObserveAdmission(depth, 0, l.Len())
		return 0, nil
	}

	l.mu.Lock()
	n := min(room, len(l.pending))
	batch := make([]T, n)
	copy(batch, l.pending[:n])
	l.mu.Unlock()

	jobs := make([]domain.Job, n)
	for i, item := range batch {
		jobs[i] = l.toJob(item)
	}

	admitted, enqueueErr := l.queue.EnqueueBulk(ctx, jobs)

	// Only the admitted prefix leaves the buffer
	l.mu.Lock()
	l.pending = l.pending[admitted:]
	buffered := len(l.pending)
	l.mu.Unlock()

	l.metrics.ObserveAdmission(depth, admitted, buffered)

	if enqueueErr != nil {
		return admitted, fmt.Errorf("failed to admit jobs: %w", enqueueErr)
	}

	logger.DebugCtx(ctx, "Admitted jobs",
		zap.Int("depth", depth),
		zap.Int("admitted", admitted),
		zap.Int("buffered", buffered),
	)
	return admitted, nil
}
