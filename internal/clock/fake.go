package clock

import (
	"sync"
	"time"
)

// Fake returns a FakeClock initialized to the given time. Time stands still
// until Advance is called.
//
// FakeClock is safe for concurrent use by multiple goroutines.
func Fake(initial time.Time) *FakeClock {
	return &FakeClock{current: initial}
}

// FakeClock is a deterministic Clock for testing. AfterFunc callbacks are
// invoked synchronously during Advance in deadline order. Do not call
// Advance from within a callback.
type FakeClock struct {
	mu      sync.Mutex
	current time.Time
	waiters []*fakeWaiter
}

// fakeWaiter is a pending AfterFunc call.
type fakeWaiter struct {
	deadline time.Time
	callback func()
	stopped  bool
	fired    bool
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// AfterFunc schedules f to be called once the clock advances past d. If
// d <= 0, f is called synchronously before AfterFunc returns.
func (c *FakeClock) AfterFunc(d time.Duration, f func()) *Timer {
	if d <= 0 {
		f()
		return &Timer{stopFunc: func() bool { return false }}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	waiter := &fakeWaiter{
		deadline: c.current.Add(d),
		callback: f,
	}
	c.waiters = append(c.waiters, waiter)

	return &Timer{
		stopFunc: func() bool {
			c.mu.Lock()
			defer c.mu.Unlock()
			if waiter.stopped || waiter.fired {
				return false
			}
			waiter.stopped = true
			return true
		},
	}
}

// Advance moves the clock forward by d and fires every callback whose
// deadline falls within the new time, in deadline order. Before each
// callback runs, the clock reads that callback's deadline, so work it
// schedules is anchored to the firing time; such work fires in the same call
// when its deadline is still within the window.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.current.Add(d)
	c.mu.Unlock()

	for {
		w := c.nextExpired(target)
		if w == nil {
			break
		}
		w.callback()
	}

	c.mu.Lock()
	if c.current.Before(target) {
		c.current = target
	}
	c.mu.Unlock()
}

// nextExpired removes the earliest waiter due by target, moves the clock to
// its deadline and returns it, or returns nil when none is due. Waiters with
// equal deadlines come out in scheduling order.
func (c *FakeClock) nextExpired(target time.Time) *fakeWaiter {
	c.mu.Lock()
	defer c.mu.Unlock()

	live := c.waiters[:0]
	for _, w := range c.waiters {
		if !w.stopped {
			live = append(live, w)
		}
	}
	c.waiters = live

	next := -1
	for i, w := range c.waiters {
		if w.deadline.After(target) {
			continue
		}
		if next < 0 || w.deadline.Before(c.waiters[next].deadline) {
			next = i
		}
	}
	if next < 0 {
		return nil
	}
	w := c.waiters[next]
	c.waiters = append(c.waiters[:next], c.waiters[next+1:]...)
	w.fired = true
	if c.current.Before(w.deadline) {
		c.current = w.deadline
	}
	return w
}

// PendingCount returns the number of scheduled callbacks that have neither
// fired nor been stopped.
func (c *FakeClock) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	count := 0
	for _, w := range c.waiters {
		if !w.stopped {
			count++
		}
	}
	return count
}
