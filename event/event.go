// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package event provides typed, ordered fan-out of events from a single
// writer to any number of readers.
//
// Publishing never blocks the writer: every subscriber has its own unbounded
// queue that is drained into the channel returned by Subscribe.
package event // import "mellium.im/engine/event"

import (
	"sync"
)

// Queue is an unbounded FIFO queue with a single consumer.
type Queue[T any] struct {
	mu     sync.Mutex
	items  []T
	closed bool
	signal chan struct{}
}

// NewQueue returns an empty queue.
func NewQueue[T any]() *Queue[T] {
	return &Queue[T]{signal: make(chan struct{}, 1)}
}

// Push adds v to the back of the queue.
// It reports false if the queue has been closed.
func (q *Queue[T]) Push(v T) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, v)
	q.mu.Unlock()
	q.wake()
	return true
}

func (q *Queue[T]) wake() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Pop removes and returns the item at the front of the queue, blocking until
// one is available.
// Once the queue is closed and drained ok is false.
func (q *Queue[T]) Pop() (v T, ok bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			v = q.items[0]
			var zero T
			q.items[0] = zero
			q.items = q.items[1:]
			q.mu.Unlock()
			return v, true
		}
		if q.closed {
			q.mu.Unlock()
			return v, false
		}
		q.mu.Unlock()
		<-q.signal
	}
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close stops the queue from accepting new items.
// Items that were already queued can still be popped.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.wake()
}

// Feed broadcasts values of type T to subscribers.
// The zero value is ready to use.
type Feed[T any] struct {
	mu     sync.Mutex
	subs   map[*subscription[T]]struct{}
	closed bool
}

type subscription[T any] struct {
	q    *Queue[T]
	out  chan T
	done chan struct{}
	once sync.Once
}

func (s *subscription[T]) run() {
	defer close(s.out)
	for {
		v, ok := s.q.Pop()
		if !ok {
			return
		}
		select {
		case s.out <- v:
		case <-s.done:
			return
		}
	}
}

func (s *subscription[T]) stop() {
	s.once.Do(func() {
		close(s.done)
		s.q.Close()
	})
}

// Subscribe returns a channel that receives every value published after the
// call, in order, and a function that cancels the subscription.
// The channel is closed after cancel is called or the feed is closed.
func (f *Feed[T]) Subscribe() (<-chan T, func()) {
	s := &subscription[T]{
		q:    NewQueue[T](),
		out:  make(chan T),
		done: make(chan struct{}),
	}
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		close(s.out)
		return s.out, func() {}
	}
	if f.subs == nil {
		f.subs = make(map[*subscription[T]]struct{})
	}
	f.subs[s] = struct{}{}
	f.mu.Unlock()

	go s.run()
	return s.out, func() {
		f.mu.Lock()
		delete(f.subs, s)
		f.mu.Unlock()
		s.stop()
	}
}

// Publish delivers v to every current subscriber.
// It never blocks.
func (f *Feed[T]) Publish(v T) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for s := range f.subs {
		s.q.Push(v)
	}
}

// Close ends every subscription after already published values have been
// delivered.
func (f *Feed[T]) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for s := range f.subs {
		s.q.Close()
	}
	f.subs = nil
}
