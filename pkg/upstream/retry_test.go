package upstream

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testRetryConfig(maxAttempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:       maxAttempts,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        10 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

func TestDefaultRetryConfig(t *testing.T) {
	config := DefaultRetryConfig()

	if config.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", config.MaxAttempts)
	}
	if config.InitialBackoff != 1*time.Second {
		t.Errorf("InitialBackoff = %v, want 1s", config.InitialBackoff)
	}
	if config.MaxBackoff != 30*time.Second {
		t.Errorf("MaxBackoff = %v, want 30s", config.MaxBackoff)
	}
	if config.BackoffMultiplier != 2.0 {
		t.Errorf("BackoffMultiplier = %v, want 2.0", config.BackoffMultiplier)
	}
}

func TestRetrier_Success(t *testing.T) {
	r := NewRetrier(testRetryConfig(3), zerolog.Nop())

	callCount := 0
	resp, err := r.Do(context.Background(), func(ctx context.Context) (*Response, error) {
		callCount++
		return &Response{Text: "ok"}, nil
	})

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if resp == nil || resp.Text != "ok" {
		t.Errorf("Response = %+v, want Text=ok", resp)
	}
	if callCount != 1 {
		t.Errorf("Expected 1 call, got %d", callCount)
	}
}

func TestRetrier_TransientThenSuccess(t *testing.T) {
	// Upstream fails transiently 3 times, succeeds on the 4th attempt
	// within MaxAttempts=5.
	r := NewRetrier(testRetryConfig(5), zerolog.Nop())

	callCount := 0
	resp, err := r.Do(context.Background(), func(ctx context.Context) (*Response, error) {
		callCount++
		if callCount <= 3 {
			return nil, &Error{StatusCode: 429, Class: ErrorClassTransient, Message: "rate limited"}
		}
		return &Response{Text: "finally"}, nil
	})

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if resp == nil || resp.Text != "finally" {
		t.Errorf("Response = %+v, want Text=finally", resp)
	}
	if callCount != 4 {
		t.Errorf("Expected exactly 4 calls, got %d", callCount)
	}
}

func TestRetrier_Exhaustion(t *testing.T) {
	r := NewRetrier(testRetryConfig(3), zerolog.Nop())

	callCount := 0
	transient := &Error{StatusCode: 503, Class: ErrorClassTransient, Message: "overloaded"}
	_, err := r.Do(context.Background(), func(ctx context.Context) (*Response, error) {
		callCount++
		return nil, transient
	})

	if !errors.Is(err, ErrRetryExhausted) {
		t.Errorf("Expected ErrRetryExhausted, got %v", err)
	}
	if callCount != 3 {
		t.Errorf("Expected exactly MaxAttempts=3 calls, got %d", callCount)
	}
}

func TestRetrier_PermanentNoRetry(t *testing.T) {
	r := NewRetrier(testRetryConfig(5), zerolog.Nop())

	callCount := 0
	permanent := &Error{StatusCode: 401, Class: ErrorClassPermanent, Message: "bad key"}
	_, err := r.Do(context.Background(), func(ctx context.Context) (*Response, error) {
		callCount++
		return nil, permanent
	})

	var ue *Error
	if !errors.As(err, &ue) || ue.Class != ErrorClassPermanent {
		t.Errorf("Expected permanent error propagated unchanged, got %v", err)
	}
	if errors.Is(err, ErrRetryExhausted) {
		t.Error("Permanent failure must not be reported as exhaustion")
	}
	if callCount != 1 {
		t.Errorf("Expected exactly 1 call for permanent failure, got %d", callCount)
	}
}

func TestRetrier_ContextCancellation(t *testing.T) {
	cfg := testRetryConfig(5)
	cfg.InitialBackoff = time.Second // Long enough that cancellation wins
	r := NewRetrier(cfg, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())

	callCount := 0
	done := make(chan error, 1)
	go func() {
		_, err := r.Do(ctx, func(ctx context.Context) (*Response, error) {
			callCount++
			return nil, &Error{Class: ErrorClassTransient, Message: "busy"}
		})
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, ErrContextCancelled) {
			t.Errorf("Expected ErrContextCancelled, got %v", err)
		}
		if callCount != 1 {
			t.Errorf("Expected 1 call before cancellation, got %d", callCount)
		}
	case <-time.After(time.Second):
		t.Fatal("Retrier did not abandon attempts after cancellation")
	}
}

func TestRetrier_AttemptTimeout(t *testing.T) {
	cfg := testRetryConfig(2)
	cfg.AttemptTimeout = 20 * time.Millisecond
	r := NewRetrier(cfg, zerolog.Nop())

	callCount := 0
	_, err := r.Do(context.Background(), func(ctx context.Context) (*Response, error) {
		callCount++
		select {
		case <-ctx.Done():
			return nil, &Error{Class: ErrorClassNetwork, Message: "timeout", Err: ctx.Err()}
		case <-time.After(time.Second):
			return &Response{Text: "too late"}, nil
		}
	})

	if !errors.Is(err, ErrRetryExhausted) {
		t.Errorf("Expected ErrRetryExhausted after timed-out attempts, got %v", err)
	}
	if callCount != 2 {
		t.Errorf("Expected 2 attempts, got %d", callCount)
	}
}

func TestRetrier_ExhaustionPreservesErrorChain(t *testing.T) {
	r := NewRetrier(testRetryConfig(2), zerolog.Nop())

	transient := &Error{StatusCode: 503, Class: ErrorClassTransient, Message: "overloaded"}
	_, err := r.Do(context.Background(), func(ctx context.Context) (*Response, error) {
		return nil, transient
	})

	if !errors.Is(err, ErrRetryExhausted) {
		t.Fatalf("Expected ErrRetryExhausted, got %v", err)
	}
	// The last upstream error stays reachable through the chain.
	var ue *Error
	if !errors.As(err, &ue) {
		t.Fatalf("Expected *Error in chain after exhaustion, got %v", err)
	}
	if ue.StatusCode != 503 {
		t.Errorf("StatusCode = %d, want 503", ue.StatusCode)
	}
}

func TestRetrier_ExhaustionPreservesDeadlineCause(t *testing.T) {
	cfg := testRetryConfig(2)
	cfg.AttemptTimeout = 10 * time.Millisecond
	r := NewRetrier(cfg, zerolog.Nop())

	_, err := r.Do(context.Background(), func(ctx context.Context) (*Response, error) {
		<-ctx.Done()
		return nil, &Error{Class: ErrorClassNetwork, Message: "timeout", Err: ctx.Err()}
	})

	if !errors.Is(err, ErrRetryExhausted) {
		t.Fatalf("Expected ErrRetryExhausted, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Deadline cause lost from chain: %v", err)
	}
}

func TestRetrier_CancellationPreservesCause(t *testing.T) {
	cfg := testRetryConfig(5)
	cfg.InitialBackoff = time.Second
	r := NewRetrier(cfg, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := r.Do(ctx, func(ctx context.Context) (*Response, error) {
			return nil, &Error{Class: ErrorClassTransient, Message: "busy"}
		})
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, ErrContextCancelled) {
			t.Errorf("Expected ErrContextCancelled, got %v", err)
		}
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Cancellation cause lost from chain: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Retrier did not abandon attempts after cancellation")
	}
}

func TestRetrier_BackoffSchedule(t *testing.T) {
	cfg := RetryConfig{
		MaxAttempts:       4,
		InitialBackoff:    20 * time.Millisecond,
		MaxBackoff:        time.Second,
		BackoffMultiplier: 2.0,
	}
	r := NewRetrier(cfg, zerolog.Nop())

	var callTimes []time.Time
	_, err := r.Do(context.Background(), func(ctx context.Context) (*Response, error) {
		callTimes = append(callTimes, time.Now())
		return nil, &Error{Class: ErrorClassTransient, Message: "busy"}
	})

	if !errors.Is(err, ErrRetryExhausted) {
		t.Fatalf("Expected ErrRetryExhausted, got %v", err)
	}
	if len(callTimes) != 4 {
		t.Fatalf("Expected 4 attempts, got %d", len(callTimes))
	}

	// Delays grow exponentially: ~20ms, ~40ms, ~80ms with ±20% jitter.
	for i, want := range []time.Duration{20, 40, 80} {
		gap := callTimes[i+1].Sub(callTimes[i])
		lo := time.Duration(float64(want)*0.8) * time.Millisecond
		hi := time.Duration(float64(want)*1.2+20) * time.Millisecond
		if gap < lo || gap > hi {
			t.Errorf("Gap %d = %v, want between %v and %v", i+1, gap, lo, hi)
		}
	}
}
