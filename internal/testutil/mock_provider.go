// Package testutil provides testing utilities for the gateway.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// MockCompletion defines one scripted response from the mock provider.
type MockCompletion struct {
	StatusCode int
	Text       string
	Delay      time.Duration
}

// MockProvider is a configurable OpenAI-compatible mock server for
// testing. By default every request succeeds; a scripted sequence of
// responses can be queued with Script, after which the server falls
// back to the default again.
type MockProvider struct {
	server *httptest.Server

	mu           sync.Mutex
	script       []MockCompletion
	requestCount int
	lastMessage  string
}

// NewMockProvider creates a mock completion server.
func NewMockProvider() *MockProvider {
	mock := &MockProvider{}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)

		mock.mu.Lock()
		mock.requestCount++
		if len(req.Messages) > 0 {
			mock.lastMessage = req.Messages[len(req.Messages)-1].Content
		}
		var resp MockCompletion
		if len(mock.script) > 0 {
			resp = mock.script[0]
			mock.script = mock.script[1:]
		} else {
			resp = MockCompletion{StatusCode: http.StatusOK, Text: "mock completion"}
		}
		mock.mu.Unlock()

		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}

		w.Header().Set("Content-Type", "application/json")
		if resp.StatusCode != http.StatusOK {
			w.WriteHeader(resp.StatusCode)
			fmt.Fprintf(w, `{"error": {"message": "scripted failure", "type": "mock"}}`)
			return
		}

		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{
			"model": "mock-model",
			"choices": [{"message": {"role": "assistant", "content": %q}}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 5}
		}`, resp.Text)
	}))

	return mock
}

// URL returns the mock server URL, usable as a provider base URL.
func (m *MockProvider) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockProvider) Close() {
	m.server.Close()
}

// Script queues responses served before falling back to the default.
func (m *MockProvider) Script(responses ...MockCompletion) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, responses...)
}

// Reset clears the script and counters.
func (m *MockProvider) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = nil
	m.requestCount = 0
	m.lastMessage = ""
}

// RequestCount returns the number of completion requests received.
func (m *MockProvider) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requestCount
}

// LastMessage returns the most recent user message received.
func (m *MockProvider) LastMessage() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastMessage
}

// TransientFailure scripts an HTTP 503 response.
func TransientFailure() MockCompletion {
	return MockCompletion{StatusCode: http.StatusServiceUnavailable}
}

// RateLimitFailure scripts an HTTP 429 response.
func RateLimitFailure() MockCompletion {
	return MockCompletion{StatusCode: http.StatusTooManyRequests}
}

// PermanentFailure scripts an HTTP 401 response.
func PermanentFailure() MockCompletion {
	return MockCompletion{StatusCode: http.StatusUnauthorized}
}

// Success scripts a 200 response with the given text.
func Success(text string) MockCompletion {
	return MockCompletion{StatusCode: http.StatusOK, Text: text}
}
