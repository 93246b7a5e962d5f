package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/arteai/publish-engine/environments"
	"github.com/arteai/publish-engine/internal/domain"
)

func testBreaker(threshold int, resetTimeout time.Duration) *Breaker {
	return NewBreaker("facebook", environments.BreakerConfig{
		Threshold:    threshold,
		ResetTimeout: resetTimeout,
	})
}

func TestBreaker_OpensAfterThresholdFailures(t *testing.T) {
	b := testBreaker(3, time.Minute)
	boom := errors.New("boom")

	for i := 0; i < 3; i++ {
		if err := b.Execute(func() error { return boom }); !errors.Is(err, boom) {
			t.Fatalf("expected operation error, got %v", err)
		}
	}

	if snap := b.Snapshot(); snap.State != BreakerOpen {
		t.Fatalf("expected open state after threshold, got %s", snap.State)
	}
}

func TestBreaker_OpenRejectsWithoutInvoking(t *testing.T) {
	b := testBreaker(1, time.Minute)

	if err := b.Execute(func() error { return errors.New("boom") }); err == nil {
		t.Fatalf("expected operation error")
	}

	invoked := false
	err := b.Execute(func() error {
		invoked = true
		return nil
	})

	if invoked {
		t.Fatalf("expected open breaker to reject without invoking fn")
	}
	if domain.KindOf(err) != domain.ErrCircuitOpen {
		t.Fatalf("expected circuit open error, got %v", err)
	}
	if retryAfter := domain.RetryAfterOf(err); retryAfter <= 0 || retryAfter > time.Minute {
		t.Errorf("expected retry-after within the reset window, got %v", retryAfter)
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := testBreaker(3, time.Minute)
	boom := errors.New("boom")

	_ = b.Execute(func() error { return boom })
	_ = b.Execute(func() error { return boom })
	_ = b.Execute(func() error { return nil })

	if snap := b.Snapshot(); snap.State != BreakerClosed || snap.FailureCount != 0 {
		t.Fatalf("expected closed breaker with zero failures, got %+v", snap)
	}
}

func TestBreaker_HalfOpenTrialClosesOnSuccess(t *testing.T) {
	b := testBreaker(1, time.Minute)
	current := time.Now()
	b.now = func() time.Time { return current }

	_ = b.Execute(func() error { return errors.New("boom") })
	if snap := b.Snapshot(); snap.State != BreakerOpen {
		t.Fatalf("expected open state, got %s", snap.State)
	}

	// Advance past the reset timeout so the next call is a trial.
	current = current.Add(2 * time.Minute)

	invoked := false
	if err := b.Execute(func() error { invoked = true; return nil }); err != nil {
		t.Fatalf("trial call returned error: %v", err)
	}
	if !invoked {
		t.Fatalf("expected trial call to be invoked")
	}
	if snap := b.Snapshot(); snap.State != BreakerClosed {
		t.Fatalf("expected closed state after successful trial, got %s", snap.State)
	}
}

func TestBreaker_HalfOpenTrialReopensOnFailure(t *testing.T) {
	b := testBreaker(1, time.Minute)
	current := time.Now()
	b.now = func() time.Time { return current }

	_ = b.Execute(func() error { return errors.New("boom") })
	current = current.Add(2 * time.Minute)

	if err := b.Execute(func() error { return errors.New("still down") }); err == nil {
		t.Fatalf("expected trial failure to surface")
	}
	if snap := b.Snapshot(); snap.State != BreakerOpen {
		t.Fatalf("expected reopened breaker, got %s", snap.State)
	}

	// Still inside the new reset window: calls are rejected again.
	if err := b.Execute(func() error { return nil }); domain.KindOf(err) != domain.ErrCircuitOpen {
		t.Fatalf("expected rejection after reopening, got %v", err)
	}
}

func TestBreakerRegistry_SharesPerPlatformInstance(t *testing.T) {
	r := NewBreakerRegistry(environments.BreakerConfig{Threshold: 5, ResetTimeout: time.Minute})

	if r.Get("facebook") != r.Get("facebook") {
		t.Fatalf("expected the same breaker for the same platform")
	}
	if r.Get("facebook") == r.Get("instagram") {
		t.Fatalf("expected distinct breakers per platform")
	}

	if snaps := r.Snapshots(); len(snaps) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(snaps))
	}
}
