// SPDX-License-Identifier: AGPL-3.0-only

package queryrunner

import (
	"context"
	"sync"
)

// replayChannel is a multicast channel with a replay buffer of one: new
// subscribers synchronously receive the most recently published value, then
// every subsequent one. Publishing never blocks: a subscriber that has not
// drained its buffer has the stale value replaced by the newer one, which is
// correct under replay-of-1 semantics (only the latest value matters).
type replayChannel[T any] struct {
	mtx     sync.Mutex
	last    T
	hasLast bool
	closed  bool
	subs    map[int]subscription[T]
	nextID  int
}

type subscription[T any] struct {
	ch   chan T
	done chan struct{}
}

func newReplayChannel[T any]() *replayChannel[T] {
	return &replayChannel[T]{subs: map[int]subscription[T]{}}
}

// Subscribe registers a new subscriber. The returned channel is closed when
// ctx is cancelled or the replay channel itself is closed.
func (r *replayChannel[T]) Subscribe(ctx context.Context) <-chan T {
	r.mtx.Lock()

	ch := make(chan T, 1)
	if r.closed {
		if r.hasLast {
			ch <- r.last
		}
		close(ch)
		r.mtx.Unlock()
		return ch
	}

	if r.hasLast {
		ch <- r.last
	}
	id := r.nextID
	r.nextID++
	sub := subscription[T]{ch: ch, done: make(chan struct{})}
	r.subs[id] = sub
	r.mtx.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			r.unsubscribe(id)
		case <-sub.done:
		}
	}()
	return ch
}

func (r *replayChannel[T]) unsubscribe(id int) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	if sub, ok := r.subs[id]; ok {
		delete(r.subs, id)
		close(sub.ch)
		close(sub.done)
	}
}

// Publish stores v as the replay value and delivers it to every subscriber,
// coalescing with any undelivered previous value.
func (r *replayChannel[T]) Publish(v T) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	if r.closed {
		return
	}
	r.last = v
	r.hasLast = true
	for _, sub := range r.subs {
		select {
		case sub.ch <- v:
		default:
			// Drop the undelivered stale value, then retry. The subscriber
			// may consume in between; either way it ends up observing v.
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- v:
			default:
			}
		}
	}
}

// Last returns the replay value, if any.
func (r *replayChannel[T]) Last() (T, bool) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	return r.last, r.hasLast
}

// Close completes the channel: all subscriber channels are closed and no
// further values are ever delivered.
func (r *replayChannel[T]) Close() {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	for id, sub := range r.subs {
		delete(r.subs, id)
		close(sub.ch)
		close(sub.done)
	}
}
