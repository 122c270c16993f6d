// Package queue carries prediction ids from submission to the worker pool.
// Delivery is at-least-once; workers deduplicate with a database claim.
package queue

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	// ErrFull is returned when an enqueue is dropped; the sweeper re-enqueues
	// dropped ids later.
	ErrFull   = errors.New("queue full")
	ErrClosed = errors.New("queue closed")
)

type Queue interface {
	// Enqueue never blocks on a full queue.
	Enqueue(ctx context.Context, id uuid.UUID) error
	// Dequeue blocks until an id is available, ctx ends, or the queue closes.
	Dequeue(ctx context.Context) (uuid.UUID, error)
	Len(ctx context.Context) (int64, error)
	Close() error
}
