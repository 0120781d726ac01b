// README: Periodic task with an adaptive interval and cancel-on-unsubscribe.
package poll

import (
	"context"
	"sync"
	"time"
)

// Task runs fn once immediately and then again after each interval() until
// stopped. The interval is re-read after every run.
type Task struct {
	cancel context.CancelFunc
	wake   chan struct{}
	done   chan struct{}
	once   sync.Once
}

func StartTask(parent context.Context, interval func() time.Duration, fn func(ctx context.Context)) *Task {
	ctx, cancel := context.WithCancel(parent)
	t := &Task{
		cancel: cancel,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go t.loop(ctx, interval, fn)
	return t
}

func (t *Task) loop(ctx context.Context, interval func() time.Duration, fn func(ctx context.Context)) {
	defer close(t.done)

	fn(ctx)
	timer := time.NewTimer(interval())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.wake:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		case <-timer.C:
		}
		if ctx.Err() != nil {
			return
		}
		fn(ctx)
		timer.Reset(interval())
	}
}

// Wake runs the task now instead of waiting out the current interval.
func (t *Task) Wake() {
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

// Stop cancels the task and waits for an in-flight run to return. Safe to
// call more than once.
func (t *Task) Stop() {
	t.once.Do(t.cancel)
	<-t.done
}

func (t *Task) Done() <-chan struct{} {
	return t.done
}
