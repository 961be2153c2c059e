// Package queue buffers records between their producer and a storage writer.
package queue

import (
	"sync"

	"github.com/gammazero/deque"
)

// Queue is a FIFO safe for concurrent use. A bounded queue drops its oldest
// records once full so a stalled writer cannot grow it without limit.
type Queue[T any] struct {
	mu      sync.Mutex
	items   deque.Deque[T]
	limit   int
	dropped uint64
}

// New creates an unbounded queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{}
}

// NewBounded creates a queue holding at most limit records.
func NewBounded[T any](limit int) *Queue[T] {
	return &Queue[T]{limit: limit}
}

// Push appends records, dropping the oldest beyond the limit.
func (q *Queue[T]) Push(items ...T) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, item := range items {
		q.items.PushBack(item)
	}
	q.trim()
}

// Requeue puts records taken by Drain back at the front, keeping their
// order ahead of anything pushed since.
func (q *Queue[T]) Requeue(items []T) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := len(items) - 1; i >= 0; i-- {
		q.items.PushFront(items[i])
	}
	q.trim()
}

func (q *Queue[T]) trim() {
	if q.limit <= 0 {
		return
	}
	for q.items.Len() > q.limit {
		q.items.PopFront()
		q.dropped++
	}
}

// Pop removes and returns the oldest record. ok is false when empty.
func (q *Queue[T]) Pop() (item T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.items.Len() == 0 {
		return item, false
	}
	return q.items.PopFront(), true
}

// Drain removes and returns every record, oldest first.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := q.items.Len()
	if n == 0 {
		return nil
	}
	out := make([]T, n)
	for i := range out {
		out[i] = q.items.PopFront()
	}
	return out
}

// Len returns the number of queued records.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

// Dropped returns how many records were discarded for exceeding the limit.
func (q *Queue[T]) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
