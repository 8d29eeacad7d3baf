// Package dispatch bridges the scheduler's synchronous fire callbacks and
// the asynchronous delivery path. The queue is the only handoff point
// between the engine goroutine and the delivery worker.
package dispatch

import (
	"context"
	"sync"
)

// Kind names the entity table an Item refers to; it doubles as the
// trigger callback ref.
type Kind string

const (
	KindPing Kind = "ping"
	KindRaid Kind = "raid"
)

// Item identifies one entity due for delivery.
type Item struct {
	Kind Kind
	ID   uint
}

// Queue is an unbounded multi-producer FIFO drained by a single consumer.
// Put never blocks, which is what lets the engine call it from its clock
// loop. The queue itself never duplicates: each item reaches exactly one
// Get. Duplication upstream (a trigger firing twice) is tolerated by the
// worker's existence checks instead.
type Queue struct {
	mu     sync.Mutex
	items  []Item
	closed bool

	// signal wakes the consumer; capacity 1 is enough because Get
	// re-checks the buffer before sleeping.
	signal chan struct{}
}

func NewQueue() *Queue {
	return &Queue{signal: make(chan struct{}, 1)}
}

// Put appends an item. Safe from any goroutine; a put after Close is
// silently dropped.
func (q *Queue) Put(it Item) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, it)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Get blocks until an item is available, the context is canceled, or the
// queue is closed and drained. ok is false only for the latter two.
func (q *Queue) Get(ctx context.Context) (Item, bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			it := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return it, true
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return Item{}, false
		}

		select {
		case <-ctx.Done():
			return Item{}, false
		case <-q.signal:
		}
	}
}

// Close stops the queue. Buffered items are still handed out before Get
// starts reporting ok=false.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Len reports the number of buffered items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
