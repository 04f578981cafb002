package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/promptgate/promptgate/internal/testutil"
	"github.com/promptgate/promptgate/pkg/cache"
	"github.com/promptgate/promptgate/pkg/gateway"
	"github.com/promptgate/promptgate/pkg/memory"
	"github.com/promptgate/promptgate/pkg/ratelimit"
	"github.com/promptgate/promptgate/pkg/upstream"
)

// newTestGateway wires a gateway against in-memory backends and a mock
// completion server, mirroring the production wiring in buildGateway.
func newTestGateway(t *testing.T, mock *testutil.MockProvider, ceiling int) *gateway.Gateway {
	t.Helper()

	provider, err := upstream.NewOpenAI(upstream.OpenAIConfig{
		BaseURL: mock.URL(),
		APIKey:  "test-key",
		Model:   "gpt-4o-mini",
	})
	if err != nil {
		t.Fatalf("NewOpenAI failed: %v", err)
	}

	retrier := upstream.NewRetrier(upstream.RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        10 * time.Millisecond,
		BackoffMultiplier: 2.0,
		AttemptTimeout:    time.Second,
	}, zerolog.Nop())

	store := cache.NewMemoryStore()
	governor := ratelimit.NewMemoryGovernor(ceiling, time.Minute, zerolog.Nop())
	monitor := memory.NewMonitor(0, time.Minute, zerolog.Nop())
	monitor.Register("cache", store.PurgeExpired)
	monitor.Register("ratelimit", governor.PruneStale)

	gw, err := gateway.New(governor, store, provider, retrier, monitor, gateway.Config{
		CacheTTL: time.Minute,
		Model:    "gpt-4o-mini",
		Limits:   gateway.Limits{MaxMessageChars: 8192, MaxContextChars: 16384},
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("gateway.New failed: %v", err)
	}
	return gw
}

func TestHealthEndpoint(t *testing.T) {
	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	healthHandler(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Health status = %d, want %d", w.Code, http.StatusOK)
	}
	if w.Body.String() != "OK" {
		t.Errorf("Health body = %q, want %q", w.Body.String(), "OK")
	}
}

func TestChatEndpoint_Success(t *testing.T) {
	mock := testutil.NewMockProvider()
	defer mock.Close()
	mock.Script(testutil.Success("the answer"))

	handler := chatHandler(newTestGateway(t, mock, 100), zerolog.Nop())

	req := httptest.NewRequest("POST", "/v1/chat",
		strings.NewReader(`{"message": "what is the answer?"}`))
	req.Header.Set("X-API-Key", "caller-1")
	w := httptest.NewRecorder()
	handler(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d (body %s)", w.Code, http.StatusOK, w.Body.String())
	}
	if got := w.Header().Get("X-Cache"); got != "MISS" {
		t.Errorf("X-Cache = %q, want MISS", got)
	}

	var resp chatResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if resp.Text != "the answer" {
		t.Errorf("Text = %q, want %q", resp.Text, "the answer")
	}
	if resp.Cached {
		t.Error("Cached = true on first request")
	}
}

func TestChatEndpoint_CacheHit(t *testing.T) {
	mock := testutil.NewMockProvider()
	defer mock.Close()

	handler := chatHandler(newTestGateway(t, mock, 100), zerolog.Nop())

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest("POST", "/v1/chat",
			strings.NewReader(`{"message": "repeat me"}`))
		req.Header.Set("X-API-Key", "caller-1")
		w := httptest.NewRecorder()
		handler(w, req)
		return w
	}

	first := send()
	if first.Code != http.StatusOK {
		t.Fatalf("First status = %d, want %d", first.Code, http.StatusOK)
	}
	second := send()
	if second.Code != http.StatusOK {
		t.Fatalf("Second status = %d, want %d", second.Code, http.StatusOK)
	}
	if got := second.Header().Get("X-Cache"); got != "HIT" {
		t.Errorf("Second X-Cache = %q, want HIT", got)
	}
	if mock.RequestCount() != 1 {
		t.Errorf("Upstream requests = %d, want 1", mock.RequestCount())
	}
}

func TestChatEndpoint_ValidationError(t *testing.T) {
	mock := testutil.NewMockProvider()
	defer mock.Close()

	handler := chatHandler(newTestGateway(t, mock, 100), zerolog.Nop())

	req := httptest.NewRequest("POST", "/v1/chat", strings.NewReader(`{"message": "   "}`))
	req.Header.Set("X-API-Key", "caller-1")
	w := httptest.NewRecorder()
	handler(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if mock.RequestCount() != 0 {
		t.Errorf("Upstream requests = %d, want 0", mock.RequestCount())
	}
}

func TestChatEndpoint_RateLimited(t *testing.T) {
	mock := testutil.NewMockProvider()
	defer mock.Close()

	handler := chatHandler(newTestGateway(t, mock, 2), zerolog.Nop())

	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		// Distinct messages so the cache never absorbs a request before
		// the governor sees it.
		body := strings.NewReader(`{"message": "question ` + string(rune('a'+i)) + `"}`)
		req := httptest.NewRequest("POST", "/v1/chat", body)
		req.Header.Set("X-API-Key", "caller-1")
		last = httptest.NewRecorder()
		handler(last, req)
	}

	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("Third status = %d, want %d", last.Code, http.StatusTooManyRequests)
	}
	if last.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header missing on 429")
	}
}

func TestChatEndpoint_UpstreamFailure(t *testing.T) {
	mock := testutil.NewMockProvider()
	defer mock.Close()
	mock.Script(
		testutil.PermanentFailure(),
	)

	handler := chatHandler(newTestGateway(t, mock, 100), zerolog.Nop())

	req := httptest.NewRequest("POST", "/v1/chat", strings.NewReader(`{"message": "doomed"}`))
	req.Header.Set("X-API-Key", "caller-1")
	w := httptest.NewRecorder()
	handler(w, req)

	if w.Code != http.StatusBadGateway {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusBadGateway)
	}

	var resp errorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if strings.Contains(resp.Error, "401") || strings.Contains(resp.Error, "unauthorized") {
		t.Errorf("Error body leaks upstream detail: %q", resp.Error)
	}
}

func TestChatEndpoint_InvalidJSON(t *testing.T) {
	mock := testutil.NewMockProvider()
	defer mock.Close()

	handler := chatHandler(newTestGateway(t, mock, 100), zerolog.Nop())

	req := httptest.NewRequest("POST", "/v1/chat", strings.NewReader(`{not json`))
	w := httptest.NewRecorder()
	handler(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestChatEndpoint_MethodNotAllowed(t *testing.T) {
	mock := testutil.NewMockProvider()
	defer mock.Close()

	handler := chatHandler(newTestGateway(t, mock, 100), zerolog.Nop())

	req := httptest.NewRequest("GET", "/v1/chat", nil)
	w := httptest.NewRecorder()
	handler(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusMethodNotAllowed)
	}
}

func TestCallerIdentity(t *testing.T) {
	tests := []struct {
		name       string
		apiKey     string
		remoteAddr string
		want       string
	}{
		{"api key wins", "key-123", "10.0.0.1:4242", "key-123"},
		{"falls back to host", "", "10.0.0.1:4242", "10.0.0.1"},
		{"unparseable addr used as-is", "", "weird-addr", "weird-addr"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/v1/chat", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.apiKey != "" {
				req.Header.Set("X-API-Key", tt.apiKey)
			}
			if got := callerIdentity(req); got != tt.want {
				t.Errorf("callerIdentity() = %q, want %q", got, tt.want)
			}
		})
	}
}
