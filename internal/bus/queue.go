package bus

import (
	"context"
	"errors"
	"sync/atomic"
)

var (
	ErrQueueFull   = errors.New("event queue full")
	ErrQueueClosed = errors.New("event queue closed")
)

// Queue is a bounded, unidirectional channel with a single sender.
// Only the sender may Close it.
type Queue[T any] struct {
	ch     chan T
	closed uint32
}

// NewQueue allocates a queue with the given capacity.
func NewQueue[T any](capacity int) *Queue[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue[T]{ch: make(chan T, capacity)}
}

// Publish enqueues v, blocking while the queue is full. It returns the
// context error if ctx is done first.
func (q *Queue[T]) Publish(ctx context.Context, v T) error {
	if atomic.LoadUint32(&q.closed) != 0 {
		return ErrQueueClosed
	}
	select {
	case q.ch <- v:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryPublish enqueues v without blocking.
func (q *Queue[T]) TryPublish(v T) error {
	if atomic.LoadUint32(&q.closed) != 0 {
		return ErrQueueClosed
	}
	select {
	case q.ch <- v:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops the queue from accepting new values. Buffered values stay
// readable. Close is idempotent.
func (q *Queue[T]) Close() {
	if atomic.CompareAndSwapUint32(&q.closed, 0, 1) {
		close(q.ch)
	}
}

// Closed reports whether Close was called.
func (q *Queue[T]) Closed() bool {
	return atomic.LoadUint32(&q.closed) != 0
}

// SendC exposes the send side for select loops. Callers must check Closed
// first and must never close the returned channel.
func (q *Queue[T]) SendC() chan<- T {
	return q.ch
}

// C exposes the receive side for select loops.
func (q *Queue[T]) C() <-chan T {
	return q.ch
}

// Len returns the number of buffered values.
func (q *Queue[T]) Len() int {
	return len(q.ch)
}

// Cap returns the queue capacity.
func (q *Queue[T]) Cap() int {
	return cap(q.ch)
}

// Run consumes values until the context is done or the queue is closed and drained.
func (q *Queue[T]) Run(ctx context.Context, handler func(T)) {
	for {
		select {
		case <-ctx.Done():
			return
		case v, ok := <-q.ch:
			if !ok {
				return
			}
			handler(v)
		}
	}
}
