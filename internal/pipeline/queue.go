package pipeline

import (
	"sync"

	"github.com/rcomino/gabriel-messenger/internal/publication"
)

// Item is one (destination channel, publication) pair waiting in a sender queue.
type Item struct {
	Channel     string
	Publication *publication.Publication
}

// Queue is an unbounded FIFO between any number of producers and one consumer.
//
// Put never blocks and never fails: a slow sender accumulates depth instead of
// applying backpressure to receivers.
type Queue struct {
	mu    sync.Mutex
	items []Item
	ready chan struct{}
}

func NewQueue() *Queue {
	return &Queue{ready: make(chan struct{}, 1)}
}

func (q *Queue) Put(it Item) {
	q.mu.Lock()
	q.items = append(q.items, it)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// TryGet removes and returns the oldest item without blocking.
func (q *Queue) TryGet() (Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return Item{}, false
	}
	it := q.items[0]
	q.items[0] = Item{}
	q.items = q.items[1:]
	if len(q.items) == 0 {
		// Drop the backing array once drained so a burst doesn't pin memory.
		q.items = nil
	}
	return it, true
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Ready is signalled (coalesced) after Put. It lets a consumer wake before its
// next tick; a consumer must still confirm with TryGet.
func (q *Queue) Ready() <-chan struct{} { return q.ready }
