package retry

import (
	"context"
	"testing"
	"time"

	"github.com/cloudorch/orchestrator/pkg/orcherr"
)

func TestRetryerSuccessOnFirstAttempt(t *testing.T) {
	retryer := New(DefaultConfig())

	attempts := 0
	err := retryer.Do(context.Background(), func(context.Context) error {
		attempts++
		return nil
	})

	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
}

func TestRetryerRetriesTransientError(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxAttempts = 3
	cfg.InitialDelay = time.Millisecond
	cfg.Jitter = false
	retryer := New(cfg)

	attempts := 0
	err := retryer.Do(context.Background(), func(context.Context) error {
		attempts++
		if attempts < 3 {
			return orcherr.Transient("adapter", "connection reset")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetryerDoesNotRetryNonRetryableCodes(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InitialDelay = time.Millisecond
	retryer := New(cfg)

	attempts := 0
	err := retryer.Do(context.Background(), func(context.Context) error {
		attempts++
		return orcherr.NotFound("adapter", "object missing")
	})

	if err == nil {
		t.Fatal("expected an error")
	}
	if attempts != 1 {
		t.Fatalf("NOT_FOUND must not be retried, got %d attempts", attempts)
	}
}

func TestRetryerExhaustsMaxAttempts(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxAttempts = 2
	cfg.InitialDelay = time.Millisecond
	cfg.Jitter = false
	retryer := New(cfg)

	attempts := 0
	err := retryer.Do(context.Background(), func(context.Context) error {
		attempts++
		return orcherr.Transient("adapter", "still failing")
	})

	if err == nil {
		t.Fatal("expected an error after exhausting attempts")
	}
	if attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts)
	}
}

func TestRetryerRespectsContextCancellation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InitialDelay = 50 * time.Millisecond
	cfg.Jitter = false
	retryer := New(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	err := retryer.Do(ctx, func(context.Context) error {
		attempts++
		if attempts == 1 {
			cancel()
		}
		return orcherr.Transient("adapter", "retry me")
	})

	if err == nil {
		t.Fatal("expected context cancellation error")
	}
}

func TestWithMaxAttemptsOverridesCap(t *testing.T) {
	retryer := New(DefaultConfig()).WithMaxAttempts(5)

	attempts := 0
	err := retryer.Do(context.Background(), func(context.Context) error {
		attempts++
		if attempts < 5 {
			return orcherr.Transient("adapter", "flaky")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if attempts != 5 {
		t.Fatalf("expected 5 attempts, got %d", attempts)
	}
}
