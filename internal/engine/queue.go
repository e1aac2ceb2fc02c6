package engine

import "sync"

// fifo is a thread-safe unbounded FIFO queue.
//
// The engine uses one for submitted batches and one per subscriber, so a
// slow subscriber never blocks the writer.
//
// The queue uses a channel for signaling to enable context-aware waiting
// (prevents goroutine hangs on context cancellation).
type fifo[T any] struct {
	mu     sync.Mutex
	items  []T
	closed bool
	signal chan struct{} // Signals item availability (buffered, size 1)
}

func newFIFO[T any]() *fifo[T] {
	return &fifo[T]{
		items:  make([]T, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds v to the back of the queue.
// Returns false if the queue is closed.
func (q *fifo[T]) Enqueue(v T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.items = append(q.items, v)

	// Non-blocking: the buffer of 1 coalesces multiple signals
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue removes the front item without blocking.
func (q *fifo[T]) TryDequeue() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if len(q.items) == 0 {
		return zero, false
	}
	v := q.items[0]

	// Clear the slot so the backing array does not retain the item.
	q.items[0] = zero
	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}
	return v, true
}

// Wait returns a channel that signals when items may be available. It is
// closed by Close.
//
//	select {
//	case <-ctx.Done():
//	    return ctx.Err()
//	case <-q.Wait():
//	    // Try TryDequeue
//	}
func (q *fifo[T]) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *fifo[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Closed reports whether Close has been called.
func (q *fifo[T]) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close stops further enqueues and wakes any waiters. Items already queued
// can still be dequeued.
func (q *fifo[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}

// Drain removes and returns every queued item.
func (q *fifo[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	return out
}
