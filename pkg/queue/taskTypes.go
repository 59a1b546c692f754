package queue

import (
	"context"
)

// Queue интерфейс очереди
type Queue interface {
	Publish(ctx context.Context, task *Task) error
	Subscribe(ctx context.Context, handler func(context.Context, *Task) error) error
	Close() error
}

// Inspector exposes queue state to operators.
type Inspector interface {
	GetQueueStats(ctx context.Context) (*QueueStats, error)
	GetDLQStats(ctx context.Context) (*DLQStats, error)
}
