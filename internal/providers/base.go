package providers

import (
	"context"

	"github.com/shannon-run/llm-gateway/internal/backoff"
	"github.com/shannon-run/llm-gateway/internal/gwerrors"
)

// Base holds shared retry configuration for LLM providers. Every vendor
// adapter embeds Base and calls RetryComplete instead of hand-rolling its
// own backoff loop, per the single-retry-combinator design note.
type Base struct {
	name   string
	policy backoff.BackoffPolicy
	maxAttempts int
}

// NewBase builds a Base with the spec's default retry envelope: up to 3
// attempts, 0.5-8s exponential backoff with factor 2 (spec §4.1).
func NewBase(name string) Base {
	return Base{
		name: name,
		policy: backoff.BackoffPolicy{
			InitialMs: 500,
			MaxMs:     8000,
			Factor:    2,
			Jitter:    0.1,
		},
		maxAttempts: 3,
	}
}

func (b *Base) Name() string { return b.name }

// Retry is the single retry combinator every vendor adapter's Complete/
// StreamComplete calls through. It retries op using the shared backoff
// policy but, per spec §4.1, never retries a non-transient failure (auth,
// invalid parameters): gwerrors.IsRetryable gates each iteration.
func Retry[T any](ctx context.Context, b *Base, op func(attempt int) (T, error)) (T, error) {
	var zero T
	var lastErr error
	for attempt := 1; attempt <= b.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		value, err := op(attempt)
		if err == nil {
			return value, nil
		}
		lastErr = err
		if !gwerrors.IsRetryable(err) {
			return zero, err
		}
		if attempt < b.maxAttempts {
			if sleepErr := backoff.SleepWithBackoff(ctx, b.policy, attempt); sleepErr != nil {
				return zero, sleepErr
			}
		}
	}
	return zero, lastErr
}
