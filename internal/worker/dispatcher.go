package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/feral-file/ff-ownership-indexer/internal/domain"
	"github.com/feral-file/ff-ownership-indexer/internal/logger"
	"github.com/feral-file/ff-ownership-indexer/internal/metrics"
)

// HandlerFunc processes the payload of one job
type HandlerFunc func(ctx context.Context, payload []byte) error

// Dispatcher routes queued jobs to the handler registered for their name.
// It holds no state shared between jobs besides the handler table.
type Dispatcher struct {
	handlers map[domain.JobName]HandlerFunc
	metrics  *metrics.Metrics
}

// NewDispatcher creates a dispatcher without handlers
func NewDispatcher(m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{
		handlers: make(map[domain.JobName]HandlerFunc),
		metrics:  m,
	}
}

// Register sets the handler of a job name. It must not be called once the dispatcher serves jobs.
func (d *Dispatcher) Register(name domain.JobName, handler HandlerFunc) {
	d.handlers[name] = handler
}

// Handles reports whether a handler is registered for the job name
func (d *Dispatcher) Handles(name domain.JobName) bool {
	_, ok := d.handlers[name]
	return ok
}

// ProcessTask implements asynq.Handler
func (d *Dispatcher) ProcessTask(ctx context.Context, task *asynq.Task) error {
	name := domain.JobName(task.Type())
	id, _ := asynq.GetTaskID(ctx)
	ctx = logger.WithJob(ctx, string(name), id)

	handler, ok := d.handlers[name]
	if !ok {
		err := fmt.Errorf("%w: %s: %w", domain.ErrUnknownJob, name, asynq.SkipRetry)
		logger.ErrorCtx(ctx, fmt.Errorf("[FAILED] %s: %w", name, err))
		d.metrics.ObserveJob(string(name), err, 0)
		return err
	}

	start := time.Now()
	err := handler(ctx, task.Payload())
	duration := time.Since(start)
	d.metrics.ObserveJob(string(name), err, duration)

	if err != nil {
		retried, _ := asynq.GetRetryCount(ctx)
		logger.ErrorCtx(ctx, fmt.Errorf("[FAILED] %s: %w", name, err),
			zap.Int("retried", retried),
			zap.Duration("duration", duration),
		)
		return err
	}

	logger.InfoCtx(ctx, "[COMPLETED] "+string(name), zap.Duration("duration", duration))
	return nil
}
