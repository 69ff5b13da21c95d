// Package clock abstracts the time operations the SDK schedules work with,
// so tests can drive timers deterministically.
package clock

import "time"

// Clock is injected wherever code would otherwise call time.Now or
// time.AfterFunc.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// AfterFunc calls f once d has elapsed. The returned Timer cancels
	// the pending call.
	AfterFunc(d time.Duration, f func()) *Timer
}

// Timer is a pending AfterFunc call.
type Timer struct {
	stopFunc func() bool
}

// Stop prevents the Timer from firing. It reports whether the call
// stopped the timer, false if it already fired or was stopped.
func (t *Timer) Stop() bool {
	if t == nil || t.stopFunc == nil {
		return false
	}
	return t.stopFunc()
}

// UnixMilli returns the current time of c in milliseconds.
func UnixMilli(c Clock) int64 {
	return c.Now().UnixMilli()
}
