package orchestrator

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/hugo-lorenzo-mato/codepulse/internal/core"
)

// RetryPolicy retries an operation with exponential backoff. Only errors
// the domain marks retryable are retried; validation and state errors
// fail immediately.
type RetryPolicy struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	// Jitter adds up to this fraction of the backoff to each wait so
	// concurrent agents retrying together spread out.
	Jitter float64
}

// DefaultRetryPolicy returns the policy used for agent calls when the
// agent config carries no retry budget.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:     2,
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
		Multiplier:     2.0,
		Jitter:         0.2,
	}
}

// Do runs fn up to 1+MaxRetries times. Context cancellation aborts the
// wait between attempts immediately.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	backoff := p.InitialBackoff
	if backoff <= 0 {
		backoff = time.Second
	}

	var err error
	for attempt := 0; ; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if attempt >= p.MaxRetries || !core.IsRetryable(err) {
			return err
		}
		wait := backoff
		if p.Jitter > 0 {
			wait += time.Duration(rand.Float64() * p.Jitter * float64(backoff))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		backoff = time.Duration(float64(backoff) * p.Multiplier)
		if p.MaxBackoff > 0 && backoff > p.MaxBackoff {
			backoff = p.MaxBackoff
		}
	}
}
