package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/feral-file/ff-ownership-indexer/internal/adapter"
	"github.com/feral-file/ff-ownership-indexer/internal/domain"
	"github.com/feral-file/ff-ownership-indexer/internal/logger"
)

// Queue names, most urgent first
const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// Queues maps queue names to their asynq processing weight
var Queues = map[string]int{
	QueueCritical: 6,
	QueueDefault:  3,
	QueueLow:      1,
}

// QueueFor returns the queue of a job priority. Lower priorities are more urgent.
func QueueFor(priority int) string {
	switch {
	case priority <= 2:
		return QueueCritical
	case priority <= 5:
		return QueueDefault
	default:
		return QueueLow
	}
}

// Config holds the options applied to every enqueued job
type Config struct {
	MaxRetry  int
	Timeout   time.Duration
	Retention time.Duration
}

// Queue is the durable job queue
//
//go:generate mockgen -source=queue.go -destination=../mocks/queue.go -package=mocks -mock_names=Queue=MockQueue
type Queue interface {
	// Enqueue enqueues a job. A job whose dedupe key is outstanding is silently merged.
	Enqueue(ctx context.Context, job domain.Job) error

	// EnqueueBulk enqueues jobs in order and returns how many were handed to the queue,
	// counting merged duplicates. It stops at the first transport error.
	EnqueueBulk(ctx context.Context, jobs []domain.Job) (int, error)

	// CurrentDepth returns the number of jobs waiting or running across all queues
	CurrentDepth(ctx context.Context) (int, error)
}

type asynqQueue struct {
	cfg       Config
	client    adapter.QueueClient
	inspector adapter.QueueInspector
}

// NewQueue creates a new asynq backed queue
func NewQueue(cfg Config, client adapter.QueueClient, inspector adapter.QueueInspector) Queue {
	return &asynqQueue{
		cfg:       cfg,
		client:    client,
		inspector: inspector,
	}
}

// NewTask converts a job into an asynq task and its options
func NewTask(job domain.Job, cfg Config) (*asynq.Task, []asynq.Option, error) {
	var payload []byte
	if job.Payload != nil {
		data, err := json.Marshal(job.Payload)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to marshal payload of %s: %w", job.Name, err)
		}
		payload = data
	}

	opts := []asynq.Option{asynq.Queue(QueueFor(job.Priority))}
	switch {
	case job.RepeatInterval > 0:
		// A periodic task id would stay taken while a failed run is archived,
		// so overlapping runs are guarded by a uniqueness lock for one period instead
		opts = append(opts, asynq.Unique(job.RepeatInterval))
	case job.DedupeKey != "":
		opts = append(opts, asynq.TaskID(job.DedupeKey))
	}
	if cfg.MaxRetry > 0 {
		opts = append(opts, asynq.MaxRetry(cfg.MaxRetry))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, asynq.Timeout(cfg.Timeout))
	}
	if cfg.Retention > 0 && job.KeepCompleted {
		opts = append(opts, asynq.Retention(cfg.Retention))
	}

	return asynq.NewTask(string(job.Name), payload), opts, nil
}

// IsDuplicate reports whether an enqueue error means the job is already outstanding
func IsDuplicate(err error) bool {
	return errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask)
}

func (q *asynqQueue) Enqueue(ctx context.Context, job domain.Job) error {
	task, opts, err := NewTask(job, q.cfg)
	if err != nil {
		return err
	}

	info, err := q.client.EnqueueContext(ctx, task, opts...)
	if IsDuplicate(err) && job.DedupeKey != "" && job.RepeatInterval == 0 {
		var released bool
		released, err = q.releaseKey(ctx, job)
		if err != nil {
			return err
		}
		if !released {
			logger.DebugCtx(ctx, "Job already outstanding", zap.String("job", string(job.Name)), zap.String("key", job.DedupeKey))
			return nil
		}
		info, err = q.client.EnqueueContext(ctx, task, opts...)
	}
	if err != nil {
		if IsDuplicate(err) {
			logger.DebugCtx(ctx, "Job already outstanding", zap.String("job", string(job.Name)), zap.String("key", job.DedupeKey))
			return nil
		}
		return fmt.Errorf("failed to enqueue %s: %w", job.Name, err)
	}

	logger.DebugCtx(ctx, "Enqueued job",
		zap.String("job", string(job.Name)),
		zap.String("id", info.ID),
		zap.String("queue", info.Queue),
	)
	return nil
}

// releaseKey deletes the task holding the job's dedupe key when that task no longer
// stands for outstanding work: it was archived after exhausting its retries, or it
// completed and the job does not keep completed keys. It reports whether the key is free.
func (q *asynqQueue) releaseKey(ctx context.Context, job domain.Job) (bool, error) {
	queueName := QueueFor(job.Priority)
	info, err := q.inspector.GetTaskInfo(queueName, job.DedupeKey)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskNotFound) {
			return true, nil
		}
		return false, fmt.Errorf("failed to get task info of %s: %w", job.DedupeKey, err)
	}

	switch {
	case info.State == asynq.TaskStateArchived:
		logger.WarnCtx(ctx, "Re-enqueueing archived job",
			zap.String("job", string(job.Name)),
			zap.String("key", job.DedupeKey),
			zap.String("lastErr", info.LastErr),
		)
	case info.State == asynq.TaskStateCompleted && !job.KeepCompleted:
	default:
		return false, nil
	}

	if err := q.inspector.DeleteTask(queueName, job.DedupeKey); err != nil && !errors.Is(err, asynq.ErrTaskNotFound) {
		return false, fmt.Errorf("failed to delete task %s: %w", job.DedupeKey, err)
	}
	return true, nil
}

func (q *asynqQueue) EnqueueBulk(ctx context.Context, jobs []domain.Job) (int, error) {
	for i, job := range jobs {
		if err := q.Enqueue(ctx, job); err != nil {
			return i, err
		}
	}
	return len(jobs), nil
}

func (q *asynqQueue) CurrentDepth(ctx context.Context) (int, error) {
	// A queue only exists after its first enqueue
	names, err := q.inspector.Queues()
	if err != nil {
		return 0, fmt.Errorf("failed to list queues: %w", err)
	}

	depth := 0
	for _, name := range names {
		if _, ok := Queues[name]; !ok {
			continue
		}
		info, err := q.inspector.GetQueueInfo(name)
		if err != nil {
			return 0, fmt.Errorf("failed to get queue info of %s: %w", name, err)
		}
		depth += info.Pending + info.Active + info.Scheduled + info.Retry
	}
	return depth, nil
}
