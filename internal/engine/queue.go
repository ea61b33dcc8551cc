package engine

import (
	"sync"

	"github.com/tojkuv/LifeSignal-sub007/internal/contact"
)

// applyFunc computes the next snapshot from the current one. It returns
// changed=false when the mutation turned out to be a no-op; the engine
// then skips the save and leaves Version alone.
type applyFunc func(cur contact.Snapshot) (next contact.Snapshot, changed bool, err error)

// mutation is one unit of work for the writer loop.
type mutation struct {
	name  string
	apply applyFunc
	// done receives the outcome. Buffered so the loop never blocks on a
	// caller that stopped waiting.
	done chan error
}

// mutationQueue is a thread-safe FIFO queue of mutations.
//
// The queue is unbounded so that command handlers and the stream consumer
// never block on enqueue while the writer is busy saving.
//
// The queue uses a channel for signaling to enable context-aware waiting
// in the Run loop.
type mutationQueue struct {
	mu     sync.Mutex
	items  []mutation
	closed bool
	signal chan struct{} // buffered, size 1
}

func newMutationQueue() *mutationQueue {
	return &mutationQueue{
		items:  make([]mutation, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds a mutation to the back of the queue.
// Returns false if the queue is closed.
func (q *mutationQueue) Enqueue(m mutation) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.items = append(q.items, m)

	// Non-blocking: the buffer of 1 coalesces signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue removes the front mutation without blocking.
func (q *mutationQueue) TryDequeue() (mutation, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return mutation{}, false
	}

	m := q.items[0]
	// Release the closure for GC.
	q.items[0] = mutation{}

	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}

	return m, true
}

// Wait returns a channel that signals when mutations may be available.
// It is closed once the queue is closed.
func (q *mutationQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *mutationQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close stops accepting mutations and wakes the waiter. Mutations already
// queued are still handed out by TryDequeue.
func (q *mutationQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	// Drop a pending wake-up so receivers observe the close at once.
	select {
	case <-q.signal:
	default:
	}
	close(q.signal)
}
