package upstream

import (
	"errors"
	"fmt"
)

// Common errors returned by the retry controller.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")
)

// ErrorClass represents a classification of upstream failures.
type ErrorClass string

const (
	// ErrorClassTransient covers temporary overload and provider-side
	// rate limiting (HTTP 429, 5xx). Eligible for retry.
	ErrorClassTransient ErrorClass = "transient"

	// ErrorClassPermanent covers malformed requests, authentication
	// failures and other rejections that retrying cannot fix.
	ErrorClassPermanent ErrorClass = "permanent"

	// ErrorClassNetwork covers connection and timeout failures before a
	// provider response was received. Treated like transient for retry.
	ErrorClassNetwork ErrorClass = "network"
)

// Error represents an upstream provider failure with its classification.
type Error struct {
	StatusCode int
	Class      ErrorClass
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("upstream %s error (status %d): %s: %v",
			e.Class, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("upstream %s error (status %d): %s",
		e.Class, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// Classify returns the error class for an upstream failure.
// Errors without an explicit classification are treated as network
// failures: the provider never rejected the request, so retrying is safe.
func Classify(err error) ErrorClass {
	var ue *Error
	if errors.As(err, &ue) {
		return ue.Class
	}
	return ErrorClassNetwork
}

// IsTransient reports whether the failure is eligible for retry.
func IsTransient(err error) bool {
	switch Classify(err) {
	case ErrorClassTransient, ErrorClassNetwork:
		return true
	default:
		return false
	}
}

// classifyStatus maps an HTTP status code to an error class.
func classifyStatus(status int) ErrorClass {
	switch {
	case status == 429:
		return ErrorClassTransient
	case status >= 500:
		return ErrorClassTransient
	case status >= 400:
		return ErrorClassPermanent
	default:
		return ErrorClassPermanent
	}
}
