// Package periodic runs a function on a fixed period until stopped.
package periodic

import (
	"context"
	"sync"
	"time"
)

// Task is a running periodic function. The zero value is not usable; create
// one with Start.
type Task struct {
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// Start calls fn once after initialDelay and then every period until Stop is
// called or ctx is done. A period of zero or less runs fn only once.
//
// Runs never overlap: if fn outlives the period, missed ticks are dropped.
func Start(ctx context.Context, initialDelay, period time.Duration, fn func(context.Context)) *Task {
	t := &Task{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go t.loop(ctx, initialDelay, period, fn)
	return t
}

func (t *Task) loop(ctx context.Context, initialDelay, period time.Duration, fn func(context.Context)) {
	defer close(t.done)

	timer := time.NewTimer(initialDelay)
	defer timer.Stop()

	select {
	case <-t.stop:
		return
	case <-ctx.Done():
		return
	case <-timer.C:
	}
	fn(ctx)

	if period <= 0 {
		return
	}

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-t.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if t.stopped() {
				return
			}
			fn(ctx)
		}
	}
}

func (t *Task) stopped() bool {
	select {
	case <-t.stop:
		return true
	default:
		return false
	}
}

// Stop prevents any further runs and waits for an in-flight run to return.
// The context passed to fn is not cancelled. Stop must not be called from
// inside fn.
func (t *Task) Stop() {
	t.stopOnce.Do(func() { close(t.stop) })
	<-t.done
}

// Done is closed once the task has exited.
func (t *Task) Done() <-chan struct{} {
	return t.done
}
