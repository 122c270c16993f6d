package queue

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/yungbote/compoundlab-backend/internal/observability"
)

const DefaultMemorySize = 1024

type memoryQueue struct {
	items   chan uuid.UUID
	done    chan struct{}
	once    sync.Once
	metrics *observability.Metrics
}

func NewMemory(size int, metrics *observability.Metrics) Queue {
	if size <= 0 {
		size = DefaultMemorySize
	}
	return &memoryQueue{
		items:   make(chan uuid.UUID, size),
		done:    make(chan struct{}),
		metrics: metrics,
	}
}

func (q *memoryQueue) Enqueue(ctx context.Context, id uuid.UUID) error {
	select {
	case <-q.done:
		return ErrClosed
	default:
	}
	select {
	case q.items <- id:
		return nil
	default:
		q.metrics.IncQueueDropped()
		return ErrFull
	}
}

func (q *memoryQueue) Dequeue(ctx context.Context) (uuid.UUID, error) {
	select {
	case <-ctx.Done():
		return uuid.Nil, ctx.Err()
	case <-q.done:
		return uuid.Nil, ErrClosed
	case id := <-q.items:
		return id, nil
	}
}

func (q *memoryQueue) Len(ctx context.Context) (int64, error) {
	return int64(len(q.items)), nil
}

// Close wakes blocked consumers. The channel itself stays open so a late
// Enqueue cannot panic.
func (q *memoryQueue) Close() error {
	q.once.Do(func() { close(q.done) })
	return nil
}
