package gateway

import (
	"fmt"
	"time"
)

// RateLimitError reports denial by the rate governor. It is a normal,
// expected outcome for callers over their ceiling, distinct from
// upstream failures.
type RateLimitError struct {
	// RetryAfter is how long the caller should wait before the window
	// resets.
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %s", e.RetryAfter.Round(time.Second))
}

// ValidationError reports a malformed inbound request, rejected before
// any cache or rate-limit work happens.
type ValidationError struct {
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return "invalid request: " + e.Reason
}
