// Package upstream defines the language-model provider contract and the
// resilience wrappers around it: retry with exponential backoff and a
// circuit breaker.
package upstream

import (
	"context"
)

// Request describes a single completion request.
type Request struct {
	// Message is the user message to send.
	Message string

	// Context is an optional context string prepended as the system
	// instruction. Empty means no system instruction.
	Context string

	// Temperature controls randomness.
	Temperature float64

	// MaxTokens limits the response length. Zero lets the provider
	// use its own default.
	MaxTokens int
}

// Response holds the result of a completion call.
type Response struct {
	// Text is the completion returned by the model.
	Text string

	// Model is the model that served the request.
	Model string

	// PromptTokens and CompletionTokens report token usage.
	PromptTokens     int
	CompletionTokens int
}

// Provider abstracts a language-model API behind a single synchronous
// completion method.
type Provider interface {
	// Complete sends a message to the provider and returns the response.
	// Implementations must respect context cancellation and deadlines,
	// and return *Error with a classification for provider failures.
	Complete(ctx context.Context, req Request) (*Response, error)

	// Name identifies the provider for logging and metrics.
	Name() string
}
