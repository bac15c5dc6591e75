package daemon

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrMonitorStopped is returned when work is posted to a stopped monitor.
var ErrMonitorStopped = errors.New("monitor stopped")

// LoopClock is a wall clock whose timer callbacks are delivered onto the
// monitor loop instead of running on their own goroutines. Callbacks that
// fire after the loop is gone are dropped.
type LoopClock struct {
	tasks    chan func()
	done     chan struct{}
	stopOnce sync.Once
}

// NewLoopClock creates a clock; the monitor that owns it drains its queue.
func NewLoopClock() *LoopClock {
	return &LoopClock{
		tasks: make(chan func(), 64),
		done:  make(chan struct{}),
	}
}

// Now returns the wall-clock time.
func (c *LoopClock) Now() time.Time {
	return time.Now()
}

// AfterFunc posts f onto the loop after d.
func (c *LoopClock) AfterFunc(d time.Duration, f func()) {
	time.AfterFunc(d, func() {
		_ = c.post(context.Background(), f)
	})
}

func (c *LoopClock) post(ctx context.Context, f func()) error {
	select {
	case <-c.done:
		return ErrMonitorStopped
	default:
	}

	select {
	case c.tasks <- f:
		return nil
	case <-c.done:
		return ErrMonitorStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *LoopClock) stop() {
	c.stopOnce.Do(func() { close(c.done) })
}
