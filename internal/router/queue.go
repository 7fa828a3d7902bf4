package router

import "sync"

// compactAfter is how many consumed slots a Queue tolerates before it moves
// pending items back to the front of its slice.
const compactAfter = 64

// Queue is an unbounded FIFO shared by one or more consumers. Push never
// blocks, so a slow consumer cannot stall the stream that feeds it.
type Queue[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []T
	head   int
	closed bool

	pushed    int64
	popped    int64
	dropped   int64
	highWater int
}

// QueueStats reports queue usage.
type QueueStats struct {
	Count     int
	Pushed    int64
	Popped    int64
	Dropped   int64 // pushes rejected after Close
	HighWater int   // largest Count observed
}

// NewQueue creates a queue with room for capacity items before it reallocates.
func NewQueue[T any](capacity int) *Queue[T] {
	if capacity < 0 {
		capacity = 0
	}
	q := &Queue[T]{items: make([]T, 0, capacity)}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends item. It reports false, counting a drop, once the queue is closed.
func (q *Queue[T]) Push(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		q.dropped++
		return false
	}
	q.items = append(q.items, item)
	q.pushed++
	if n := len(q.items) - q.head; n > q.highWater {
		q.highWater = n
	}
	q.cond.Signal()
	return true
}

// Pop blocks until an item is available. Items pushed before Close are still
// returned; ok is false once the queue is closed and empty.
func (q *Queue[T]) Pop() (item T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.head == len(q.items) && !q.closed {
		q.cond.Wait()
	}
	if q.head == len(q.items) {
		return item, false
	}
	return q.take(), true
}

// TryPop returns the oldest item without waiting.
func (q *Queue[T]) TryPop() (item T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.head == len(q.items) {
		return item, false
	}
	return q.take(), true
}

// Drain removes and returns up to max pending items in order, or all of them
// when max <= 0.
func (q *Queue[T]) Drain(max int) []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.items) - q.head
	if max > 0 && max < n {
		n = max
	}
	if n == 0 {
		return nil
	}
	out := make([]T, 0, n)
	for len(out) < n {
		out = append(out, q.take())
	}
	return out
}

// Close rejects further pushes and wakes every waiting Pop.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

// Len returns the number of pending items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}

func (q *Queue[T]) Stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return QueueStats{
		Count:     len(q.items) - q.head,
		Pushed:    q.pushed,
		Popped:    q.popped,
		Dropped:   q.dropped,
		HighWater: q.highWater,
	}
}

// take removes the head item. Caller holds mu and the queue is not empty.
func (q *Queue[T]) take() T {
	item := q.items[q.head]
	var zero T
	q.items[q.head] = zero
	q.head++
	q.popped++

	switch {
	case q.head == len(q.items):
		q.items = q.items[:0]
		q.head = 0
	case q.head >= compactAfter && q.head*2 >= len(q.items):
		n := copy(q.items, q.items[q.head:])
		clear(q.items[n:])
		q.items = q.items[:n]
		q.head = 0
	}
	return item
}
