// Package cache provides completion response caching with TTL expiry,
// backed by an in-memory map or Redis.
package cache

import (
	"time"
)

// Entry represents a cached completion response.
type Entry struct {
	// Text is the completion returned by the upstream provider.
	Text string `json:"text"`

	// Model is the model that produced the completion.
	Model string `json:"model"`

	// PromptTokens and CompletionTokens record upstream token usage.
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`

	// CreatedAt is when the response was cached.
	CreatedAt time.Time `json:"created_at"`

	// Expires is when the entry becomes stale.
	Expires time.Time `json:"expires"`
}

// NewEntry creates an entry expiring ttl from now.
func NewEntry(text, model string, ttl time.Duration) *Entry {
	now := time.Now()
	return &Entry{
		Text:      text,
		Model:     model,
		CreatedAt: now,
		Expires:   now.Add(ttl),
	}
}

// IsExpired returns true if the entry has expired.
func (e *Entry) IsExpired() bool {
	return time.Now().After(e.Expires)
}

// TTL returns the time until expiration.
// Returns 0 if already expired.
func (e *Entry) TTL() time.Duration {
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}
