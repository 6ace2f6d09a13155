package index

import (
	"context"
	"log/slog"
	"time"

	perrors "github.com/Aman-CERP/propindex/internal/errors"
)

// DefaultQueueCapacity is the number of mutations the queue holds before
// producers block.
const DefaultQueueCapacity = 50

// Queue is a bounded FIFO of mutations with any number of producers and a
// single consumer.
type Queue struct {
	items chan Mutation
}

// NewQueue creates a queue holding up to capacity mutations.
// A non-positive capacity uses DefaultQueueCapacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &Queue{items: make(chan Mutation, capacity)}
}

// Enqueue appends m, blocking while the queue is full. If ctx is done first
// the mutation is not queued and an ErrInterrupted error is returned.
func (q *Queue) Enqueue(ctx context.Context, m Mutation) error {
	if err := ctx.Err(); err != nil {
		return perrors.Interrupted("enqueue cancelled", err)
	}

	select {
	case q.items <- m:
		q.accepted(m)
		return nil
	default:
	}

	slog.Debug("queue_full_backpressure",
		slog.String("action", m.Action().String()),
		slog.Int("capacity", cap(q.items)))

	select {
	case q.items <- m:
		q.accepted(m)
		return nil
	case <-ctx.Done():
		return perrors.Interrupted("enqueue cancelled while queue was full", ctx.Err())
	}
}

func (q *Queue) accepted(m Mutation) {
	MutationsEnqueued.WithLabelValues(m.Action().String()).Inc()
	QueueDepth.Set(float64(len(q.items)))
}

// DequeueWithTimeout removes and returns the head of the queue, waiting up to
// d for one to arrive. It returns false when d elapses with the queue empty.
func (q *Queue) DequeueWithTimeout(ctx context.Context, d time.Duration) (Mutation, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, perrors.Interrupted("dequeue cancelled", err)
	}

	select {
	case m := <-q.items:
		QueueDepth.Set(float64(len(q.items)))
		return m, true, nil
	default:
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case m := <-q.items:
		QueueDepth.Set(float64(len(q.items)))
		return m, true, nil
	case <-timer.C:
		return nil, false, nil
	case <-ctx.Done():
		return nil, false, perrors.Interrupted("dequeue cancelled", ctx.Err())
	}
}

// Len returns the number of queued mutations.
func (q *Queue) Len() int {
	return len(q.items)
}

// Cap returns the queue capacity.
func (q *Queue) Cap() int {
	return cap(q.items)
}
