package publisher

import (
	"context"
	"sync/atomic"
)

// Queue is a bounded FIFO handoff between the dispatcher and the
// reporting worker.
//
// Unlike a ring buffer with overwrite-oldest semantics, a full Queue
// blocks the sender. Pausing notification intake under sustained
// overload was chosen over silently discarding observations; the
// Blocked counter makes such stalls visible.
type Queue[T any] struct {
	ch      chan T
	metrics QueueMetrics
}

// NewQueue creates a Queue with the given capacity.
func NewQueue[T any](capacity int) *Queue[T] {
	if capacity <= 0 {
		panic("publisher: queue capacity must be > 0")
	}
	return &Queue[T]{ch: make(chan T, capacity)}
}

// Send enqueues v, blocking while the queue is full. It returns false
// only when ctx is cancelled before space becomes available.
func (q *Queue[T]) Send(ctx context.Context, v T) bool {
	select {
	case q.ch <- v:
		q.metrics.addSent(1)
		return true
	default:
	}

	// Full; block until space or cancellation.
	q.metrics.addBlocked(1)
	select {
	case q.ch <- v:
		q.metrics.addSent(1)
		return true
	case <-ctx.Done():
		return false
	}
}

// TrySend attempts a non-blocking enqueue. Returns false if full.
func (q *Queue[T]) TrySend(v T) bool {
	select {
	case q.ch <- v:
		q.metrics.addSent(1)
		return true
	default:
		return false
	}
}

// C returns the underlying receive-only channel. Consumers can range
// over it until Close.
func (q *Queue[T]) C() <-chan T {
	return q.ch
}

// Receive blocks until a value is available or the queue is closed.
func (q *Queue[T]) Receive() (v T, ok bool) {
	v, ok = <-q.ch
	if ok {
		q.metrics.addReceived(1)
	}
	return
}

// Len returns the number of buffered elements.
func (q *Queue[T]) Len() int {
	return len(q.ch)
}

// Cap returns the queue capacity.
func (q *Queue[T]) Cap() int {
	return cap(q.ch)
}

// Close closes the queue. Sending after Close panics.
func (q *Queue[T]) Close() {
	close(q.ch)
}

// Metrics returns a snapshot of the queue counters.
func (q *Queue[T]) Metrics() QueueMetrics {
	return QueueMetrics{
		Sent:     atomic.LoadInt64(&q.metrics.Sent),
		Received: atomic.LoadInt64(&q.metrics.Received),
		Blocked:  atomic.LoadInt64(&q.metrics.Blocked),
	}
}

// QueueMetrics provides lock-free counters for queue activity.
type QueueMetrics struct {
	Sent     int64
	Received int64
	// Blocked counts sends that found the queue full and had to wait.
	Blocked int64
}

func (m *QueueMetrics) addSent(n int)     { atomic.AddInt64(&m.Sent, int64(n)) }
func (m *QueueMetrics) addReceived(n int) { atomic.AddInt64(&m.Received, int64(n)) }
func (m *QueueMetrics) addBlocked(n int)  { atomic.AddInt64(&m.Blocked, int64(n)) }
