// Package rxqueue buffers decoded events between the feeder and callers
// waiting for a response.
//
// The queue is a mutex-guarded slice plus a one-slot availability channel.
// Push appends under the lock and then leaves a token in the channel; a
// waiter that found the queue empty blocks on the token, its timer and the
// close channel. A token left between the waiter's check and its block is
// still there when it blocks, so a push is never missed.
package rxqueue

import (
	"context"
	"fmt"
	"sync"
	"time"

	logs "github.com/danmuck/hcilink/internal/logging"
	"github.com/danmuck/hcilink/internal/observability"
	"github.com/danmuck/hcilink/internal/protocol"
	"github.com/danmuck/hcilink/internal/protocol/frame"
)

// Infinite makes WaitAndPop block until an event arrives or the queue closes.
const Infinite time.Duration = -1

// Queue is an unbounded FIFO of events. Every pushed event is returned by
// exactly one pop.
type Queue struct {
	mu     sync.Mutex
	items  []frame.Event
	closed bool

	ready chan struct{}
	done  chan struct{}
}

func New() *Queue {
	return &Queue{
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// Push appends evt at the tail.
func (q *Queue) Push(evt frame.Event) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return fmt.Errorf("%w: push event=0x%02x", protocol.ErrQueueClosed, evt.Code)
	}
	q.items = append(q.items, evt)
	depth := len(q.items)
	q.signalLocked()
	q.mu.Unlock()

	observability.SetQueueDepth(depth)
	return nil
}

// WaitAndPop removes the head event. A zero timeout polls once, Infinite
// waits without bound. The bool is false on timeout, or when the queue is
// closed and drained.
func (q *Queue) WaitAndPop(timeout time.Duration) (frame.Event, bool) {
	evt, result := q.wait(nil, timeout)
	return evt, result == observability.WaitDelivered
}

// WaitAndPopContext waits like WaitAndPop(Infinite) but also returns when ctx
// is done. It returns ctx.Err() on cancellation and ErrQueueClosed once the
// queue is closed and drained.
func (q *Queue) WaitAndPopContext(ctx context.Context) (frame.Event, error) {
	evt, result := q.wait(ctx.Done(), Infinite)
	switch result {
	case observability.WaitDelivered:
		return evt, nil
	case observability.WaitCanceled:
		return frame.Event{}, ctx.Err()
	default:
		return frame.Event{}, protocol.ErrQueueClosed
	}
}

func (q *Queue) wait(cancel <-chan struct{}, timeout time.Duration) (frame.Event, string) {
	start := time.Now()
	evt, result := q.waitLoop(cancel, timeout)
	observability.RecordQueueWait(result, time.Since(start))
	return evt, result
}

func (q *Queue) waitLoop(cancel <-chan struct{}, timeout time.Duration) (frame.Event, string) {
	if evt, ok, closed := q.pop(); ok {
		return evt, observability.WaitDelivered
	} else if closed {
		return frame.Event{}, observability.WaitClosed
	}
	if timeout == 0 {
		return frame.Event{}, observability.WaitTimeout
	}

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	for {
		select {
		case <-q.ready:
		case <-q.done:
		case <-cancel:
			return frame.Event{}, observability.WaitCanceled
		case <-expired:
			// a push that beat the deadline may not have been selected yet
			if evt, ok, _ := q.pop(); ok {
				return evt, observability.WaitDelivered
			}
			return frame.Event{}, observability.WaitTimeout
		}
		evt, ok, closed := q.pop()
		if ok {
			return evt, observability.WaitDelivered
		}
		if closed {
			return frame.Event{}, observability.WaitClosed
		}
		// stale token: another consumer took the event
	}
}

// pop removes the head under the lock. When events remain the token is
// re-armed so the next waiter does not sleep on a non-empty queue.
func (q *Queue) pop() (frame.Event, bool, bool) {
	q.mu.Lock()
	if len(q.items) == 0 {
		closed := q.closed
		q.mu.Unlock()
		return frame.Event{}, false, closed
	}
	evt := q.items[0]
	q.items[0] = frame.Event{}
	q.items = q.items[1:]
	depth := len(q.items)
	if depth == 0 {
		q.items = nil
	} else {
		q.signalLocked()
	}
	q.mu.Unlock()

	observability.SetQueueDepth(depth)
	return evt, true, false
}

func (q *Queue) signalLocked() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close rejects further pushes and wakes every waiter. Events already queued
// can still be popped.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
	logs.Debugf("rxqueue.Queue.Close pending=%d", len(q.items))
}
