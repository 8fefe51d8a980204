// Package clock abstracts the time operations used by debounced work so
// that tests can drive timers deterministically. Production code injects
// Real(); tests inject Fake() and call Advance.
package clock

import "time"

// Clock is the subset of the time package the backlog code depends on.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// AfterFunc waits for duration d, then calls f. The returned Timer can
	// cancel the pending call with Stop. If d <= 0, f is called immediately
	// in a new goroutine (real) or synchronously (fake).
	AfterFunc(d time.Duration, f func()) *Timer
}

// Timer is a handle to a scheduled call. Re-scheduling work means stopping
// the previous handle and scheduling a new one.
type Timer struct {
	stopFunc func() bool
}

// Stop prevents the Timer from firing. Returns true if the call stops the
// timer, false if the timer has already fired or been stopped.
func (t *Timer) Stop() bool {
	if t == nil || t.stopFunc == nil {
		return false
	}
	return t.stopFunc()
}
