package adapter

import (
	"context"

	"github.com/hibiken/asynq"
)

// QueueClient defines the interface for enqueueing tasks to enable mocking
//
//go:generate mockgen -source=asynq.go -destination=../mocks/asynq.go -package=mocks -mock_names=QueueClient=MockQueueClient
type QueueClient interface {
	// EnqueueContext enqueues a task
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)

	// Close closes the redis connection
	Close() error
}

// QueueInspector defines the interface for reading queue state to enable mocking
//
//go:generate mockgen -source=asynq.go -destination=../mocks/asynq.go -package=mocks -mock_names=QueueInspector=MockQueueInspector
type QueueInspector interface {
	// Queues returns the names of the queues that hold at least one task
	Queues() ([]string, error)

	// GetQueueInfo returns the task counts of a queue
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)

	// GetTaskInfo returns the state of a task by id
	GetTaskInfo(queue, id string) (*asynq.TaskInfo, error)

	// DeleteTask deletes a task that is not active
	DeleteTask(queue, id string) error

	// Close closes the redis connection
	Close() error
}

// NewQueueClient creates an asynq client
func NewQueueClient(opt asynq.RedisClientOpt) QueueClient {
	return asynq.NewClient(opt)
}

// NewQueueInspector creates an asynq inspector
func NewQueueInspector(opt asynq.RedisClientOpt) QueueInspector {
	return asynq.NewInspector(opt)
}

// QueueScheduler defines the interface for registering periodic tasks to enable mocking
//
//go:generate mockgen -source=asynq.go -destination=../mocks/asynq.go -package=mocks -mock_names=QueueScheduler=MockQueueScheduler
type QueueScheduler interface {
	// Register registers a task to be enqueued on the given cron spec
	Register(cronspec string, task *asynq.Task, opts ...asynq.Option) (string, error)

	// Start starts the scheduler in the background
	Start() error

	// Shutdown stops the scheduler
	Shutdown()
}

// NewQueueScheduler creates an asynq scheduler
func NewQueueScheduler(opt asynq.RedisClientOpt, opts *asynq.SchedulerOpts) QueueScheduler {
	return asynq.NewScheduler(opt, opts)
}
