package delta

import "github.com/schaermu/tranquil/internal/entry"

// Item is a queued source entry together with the reason it was queued.
type Item struct {
	Entry       entry.Entry
	Disposition entry.Disposition
}

// Queue is a FIFO of items to copy. It is drained destructively: popped
// items are never revisited.
type Queue struct {
	items []Item
	head  int
}

// NewQueue returns an empty queue with room for capacity items.
func NewQueue(capacity int) *Queue {
	return &Queue{items: make([]Item, 0, capacity)}
}

// Push appends an item to the back of the queue.
func (q *Queue) Push(it Item) {
	q.items = append(q.items, it)
}

// Pop removes and returns the item at the front of the queue.
func (q *Queue) Pop() (Item, bool) {
	if q.head >= len(q.items) {
		return Item{}, false
	}
	it := q.items[q.head]
	q.items[q.head] = Item{}
	q.head++
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	}
	return it, true
}

// Peek returns the front item without removing it.
func (q *Queue) Peek() (Item, bool) {
	if q.head >= len(q.items) {
		return Item{}, false
	}
	return q.items[q.head], true
}

// Len returns the number of items still queued.
func (q *Queue) Len() int {
	return len(q.items) - q.head
}

// Items returns a copy of the queued items in order without draining them.
func (q *Queue) Items() []Item {
	out := make([]Item, q.Len())
	copy(out, q.items[q.head:])
	return out
}
