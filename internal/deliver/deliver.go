// Package deliver runs queued callbacks one at a time, in order, on a goroutine of their
// own, so a slow subscriber never stalls the producer posting to it.
package deliver

import (
	"context"
	"sync"

	"github.com/aretw0/lifecycle"
)

// Queue is an unbounded ordered delivery queue. The zero value is not usable; call New.
type Queue struct {
	mu     sync.Mutex
	items  []func()
	wake   chan struct{}
	done   chan struct{}
	closed bool
}

// New starts a queue that runs until ctx ends or Close is called. onPanic receives a
// panic raised by a callback; the queue stops afterwards.
func New(ctx context.Context, onPanic func(error)) *Queue {
	q := &Queue{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	lifecycle.Go(ctx, func(ctx context.Context) error {
		q.run(ctx)
		return nil
	}, lifecycle.WithErrorHandler(func(err error) {
		q.Close()
		if onPanic != nil {
			onPanic(err)
		}
	}))
	return q
}

// Post appends fn. It is dropped if the queue is closed.
func (q *Queue) Post(fn func()) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, fn)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Close drops pending callbacks. It does not wait for one in progress.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.items = nil
	close(q.done)
}

// Done is closed once the queue is closed.
func (q *Queue) Done() <-chan struct{} {
	return q.done
}

// Len reports how many callbacks are waiting.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) next() (func(), bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed || len(q.items) == 0 {
		return nil, false
	}
	fn := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return fn, true
}

func (q *Queue) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			q.Close()
			return
		case <-q.done:
			return
		case <-q.wake:
		}
		for {
			fn, ok := q.next()
			if !ok {
				break
			}
			fn()
		}
	}
}
