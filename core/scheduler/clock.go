package scheduler

import (
	"context"
	"sync"
	"time"
)

// Clock abstracts time for the scheduler.
type Clock interface {
	Now() time.Time
	// WaitUntil blocks until t or until ctx is done.
	WaitUntil(ctx context.Context, t time.Time) error
}

// WallClock is the real-time clock.
type WallClock struct{}

func (WallClock) Now() time.Time { return time.Now() }

func (WallClock) WaitUntil(ctx context.Context, t time.Time) error {
	d := time.Until(t)
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SimClock is a simulated clock that jumps to the requested time.
type SimClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewSimClock returns a simulated clock starting at start.
func NewSimClock(start time.Time) *SimClock { return &SimClock{now: start} }

func (c *SimClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// WaitUntil advances the clock to t without blocking. The clock never goes
// backwards.
func (c *SimClock) WaitUntil(ctx context.Context, t time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	if t.After(c.now) {
		c.now = t
	}
	c.mu.Unlock()
	return nil
}

// Advance moves the clock forward by d.
func (c *SimClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
