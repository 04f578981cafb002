// Package ratelimit implements per-identity fixed-window request governance.
// Each caller identity gets at most a configured number of requests per
// window; excess requests are denied, which is a normal outcome and not
// a fault.
package ratelimit

import (
	"time"
)

// Window tracks one identity's request count within the current
// fixed window. The window starts at the identity's first request after
// the previous window elapsed; it is not wall-clock aligned.
type Window struct {
	// Start is when the current window began.
	Start time.Time

	// Count is the number of requests admitted or denied in this window.
	Count int
}

// Elapsed returns true once the window of the given length has passed.
func (w *Window) Elapsed(length time.Duration, now time.Time) bool {
	return !now.Before(w.Start.Add(length))
}

// ResetAt returns when the current window ends.
func (w *Window) ResetAt(length time.Duration) time.Time {
	return w.Start.Add(length)
}

// Decision is the outcome of an admission check.
type Decision struct {
	// Allowed reports whether the request may proceed.
	Allowed bool

	// Remaining is the number of requests left in the current window.
	Remaining int

	// RetryAfter is how long a denied caller should wait before the
	// window resets. Zero when allowed.
	RetryAfter time.Duration
}
