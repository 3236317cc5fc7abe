package providers

import (
	"context"
	"errors"
	"testing"

	"github.com/shannon-run/llm-gateway/internal/gwerrors"
)

func TestRetrySucceedsFirstAttempt(t *testing.T) {
	b := NewBase("test")
	calls := 0
	got, err := Retry(context.Background(), &b, func(attempt int) (string, error) {
		calls++
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ok" || calls != 1 {
		t.Errorf("got %q after %d calls, want \"ok\" after 1 call", got, calls)
	}
}

func TestRetryStopsOnNonRetryableError(t *testing.T) {
	b := NewBase("test")
	calls := 0
	authErr := gwerrors.New("test", "model", errors.New("invalid api key")).WithKind(gwerrors.KindProviderAuth)

	_, err := Retry(context.Background(), &b, func(attempt int) (string, error) {
		calls++
		return "", authErr
	})
	if err == nil {
		t.Fatal("expected an error")
	}
	if calls != 1 {
		t.Errorf("non-retryable error should stop after 1 attempt, got %d", calls)
	}
}

func TestRetryRetriesTransientError(t *testing.T) {
	b := NewBase("test")
	b.policy.InitialMs = 1 // keep the test fast
	b.policy.MaxMs = 2
	calls := 0

	_, err := Retry(context.Background(), &b, func(attempt int) (string, error) {
		calls++
		if attempt < 3 {
			return "", gwerrors.New("test", "model", errors.New("rate limit exceeded")).WithKind(gwerrors.KindRateLimit)
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}
}

func TestRetryRespectsContextCancellation(t *testing.T) {
	b := NewBase("test")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Retry(ctx, &b, func(attempt int) (string, error) {
		t.Fatal("op should not be called with an already-cancelled context")
		return "", nil
	})
	if err == nil {
		t.Fatal("expected context cancellation error")
	}
}
