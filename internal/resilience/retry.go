package resilience

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/arteai/publish-engine/environments"
	"github.com/arteai/publish-engine/internal/domain"
	"github.com/arteai/publish-engine/pkg/logger"
)

// RetryPolicy runs an operation with bounded exponential backoff.
// Classification comes from the tagged domain.PublishError: Transient
// and RateLimited failures are retried, Permanent and CircuitOpen
// failures return immediately.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64

	// Classify optionally overrides domain.Retryable, used by the
	// storage policy to treat DB contention as retryable.
	Classify func(err error) bool
}

// NewRetryPolicy builds a policy from configuration.
func NewRetryPolicy(cfg environments.RetryConfig) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  cfg.MaxAttempts,
		InitialDelay: cfg.InitialDelay,
		MaxDelay:     cfg.MaxDelay,
		Multiplier:   cfg.Multiplier,
	}
}

// Do runs op until it succeeds, fails terminally, or attempts run out.
// The last error is returned unwrapped so the caller can inspect its
// classification.
func (p RetryPolicy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}

		if !p.retryable(lastErr) || attempt == maxAttempts {
			return lastErr
		}

		delay := p.delayFor(attempt, domain.RetryAfterOf(lastErr))
		logger.Warnf("Attempt %d/%d failed, retrying in %v: %v", attempt, maxAttempts, delay, lastErr)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return lastErr
}

func (p RetryPolicy) retryable(err error) bool {
	if p.Classify != nil {
		return p.Classify(err)
	}
	return domain.Retryable(err)
}

// delayFor computes the sleep before attempt+1. The backoff base is
// capped at MaxDelay before jitter; a provider-supplied retryAfter
// wins when it is larger than the computed delay.
func (p RetryPolicy) delayFor(attempt int, retryAfter time.Duration) time.Duration {
	base := p.backoff(attempt)
	delay := base + time.Duration(rand.Float64()*0.3*float64(base))
	if retryAfter > delay {
		delay = retryAfter
	}
	return delay
}

func (p RetryPolicy) backoff(attempt int) time.Duration {
	multiplier := p.Multiplier
	if multiplier <= 0 {
		multiplier = 2
	}

	base := float64(p.InitialDelay) * math.Pow(multiplier, float64(attempt-1))
	if p.MaxDelay > 0 && base > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(base)
}
