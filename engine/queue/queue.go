// Package queue is a bounded FIFO that decouples event ingestion from
// processing. When full it drops the oldest low-priority item to make room,
// and rejects the push if every queued item is high priority.
package queue

import (
	"errors"
	"sync"
)

// Priority ranks queued items for eviction only; delivery stays FIFO.
type Priority int

const (
	Low Priority = iota
	High
)

func (p Priority) String() string {
	if p == High {
		return "high"
	}
	return "low"
}

var (
	// ErrFull is returned when the queue is full of high-priority items.
	ErrFull = errors.New("queue full")
	// ErrClosed is returned by Push after Close.
	ErrClosed = errors.New("queue closed")
)

// DefaultCapacity bounds a queue created with a non-positive capacity.
const DefaultCapacity = 256

type item[T any] struct {
	value    T
	priority Priority
}

// Stats counts queue traffic.
type Stats struct {
	Pushed   int
	Dropped  int
	Rejected int
}

// Queue is safe for concurrent use.
type Queue[T any] struct {
	mu       sync.Mutex
	items    []item[T]
	capacity int
	closed   bool
	stats    Stats
	ready    chan struct{}
}

// New creates a queue holding at most capacity items.
func New[T any](capacity int) *Queue[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue[T]{
		items:    make([]item[T], 0, capacity),
		capacity: capacity,
		ready:    make(chan struct{}, 1),
	}
}

// Push appends v. If the queue is full, the oldest low-priority item is
// dropped and returned with dropped=true. If no low-priority item exists the
// push is rejected with ErrFull and the queue is unchanged.
func (q *Queue[T]) Push(v T, p Priority) (evicted T, dropped bool, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return evicted, false, ErrClosed
	}
	if len(q.items) >= q.capacity {
		idx := -1
		for i, it := range q.items {
			if it.priority == Low {
				idx = i
				break
			}
		}
		if idx < 0 {
			q.stats.Rejected++
			return evicted, false, ErrFull
		}
		evicted = q.items[idx].value
		dropped = true
		q.items = append(q.items[:idx], q.items[idx+1:]...)
		q.stats.Dropped++
	}
	q.items = append(q.items, item[T]{value: v, priority: p})
	q.stats.Pushed++
	q.signal()
	return evicted, dropped, nil
}

// Pop removes the oldest item.
func (q *Queue[T]) Pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var zero T
	if len(q.items) == 0 {
		return zero, false
	}
	v := q.items[0].value
	q.items[0] = item[T]{}
	q.items = q.items[1:]
	return v, true
}

// Drain removes and returns every queued item in arrival order.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]T, len(q.items))
	for i, it := range q.items {
		out[i] = it.value
	}
	q.items = make([]item[T], 0, q.capacity)
	return out
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Cap returns the capacity.
func (q *Queue[T]) Cap() int {
	return q.capacity
}

// Stats returns traffic counters.
func (q *Queue[T]) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stats
}

// Ready receives a value after pushes. It is level-triggered at most once
// per batch of pushes, so consumers should drain fully on each receive.
func (q *Queue[T]) Ready() <-chan struct{} {
	return q.ready
}

// Close rejects further pushes. Queued items remain poppable.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}

func (q *Queue[T]) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
