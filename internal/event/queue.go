package event

import (
	"context"
	"errors"
	"sync"
)

var (
	ErrQueueFull   = errors.New("event queue is full")
	ErrQueueClosed = errors.New("event queue is closed")
)

type pending struct {
	event Event
	done  chan Propagation
}

// Queue carries events from any goroutine to the control loop, which drains
// it with DispatchAll.
type Queue struct {
	mu       sync.Mutex
	items    []pending
	capacity int
	closed   bool
	notify   chan struct{}
}

// NewQueue creates a queue holding at most capacity undispatched events.
// capacity <= 0 means unbounded.
func NewQueue(capacity int) *Queue {
	return &Queue{
		capacity: capacity,
		notify:   make(chan struct{}, 1),
	}
}

// Push enqueues e without waiting for it to be dispatched.
func (q *Queue) Push(e Event) error {
	return q.push(pending{event: e})
}

// Submit enqueues e and waits until the control loop has dispatched it.
func (q *Queue) Submit(ctx context.Context, e Event) (Propagation, error) {
	p := pending{event: e, done: make(chan Propagation, 1)}
	if err := q.push(p); err != nil {
		return Propagate, err
	}
	select {
	case res, ok := <-p.done:
		if !ok {
			return Propagate, ErrQueueClosed
		}
		return res, nil
	case <-ctx.Done():
		return Propagate, ctx.Err()
	}
}

func (q *Queue) push(p pending) error {
	q.mu.Lock()
	switch {
	case q.closed:
		q.mu.Unlock()
		return ErrQueueClosed
	case q.capacity > 0 && len(q.items) >= q.capacity:
		q.mu.Unlock()
		return ErrQueueFull
	}
	q.items = append(q.items, p)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

// Notify receives after a push. Wake-ups are coalesced.
func (q *Queue) Notify() <-chan struct{} {
	return q.notify
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// DispatchAll drains the queue through d in push order and returns how many
// events were handled.
func (q *Queue) DispatchAll(ctx context.Context, d *Dispatcher) int {
	q.mu.Lock()
	items := q.items
	q.items = nil
	q.mu.Unlock()

	for _, p := range items {
		res := d.Dispatch(ctx, p.event)
		if p.done != nil {
			p.done <- res
		}
	}
	return len(items)
}

// Close rejects further events and releases waiters of undispatched ones.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	for _, p := range q.items {
		if p.done != nil {
			close(p.done)
		}
	}
	q.items = nil
}
