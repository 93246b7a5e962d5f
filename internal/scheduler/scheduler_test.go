package scheduler

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/arteai/publish-engine/internal/domain"
)

//
// Test fakes – only for this file.
//

type fakeClaimer struct {
	due          []domain.PublishTarget
	failClaimFor map[int64]bool

	claimCalls   []int64
	releaseCalls []int64
}

func (f *fakeClaimer) GetDueTargets(ctx context.Context, now time.Time, limit int) ([]domain.PublishTarget, error) {
	if len(f.due) <= limit {
		return f.due, nil
	}
	return f.due[:limit], nil
}

func (f *fakeClaimer) ClaimTarget(ctx context.Context, id int64) (bool, error) {
	f.claimCalls = append(f.claimCalls, id)
	if f.failClaimFor[id] {
		return false, nil
	}
	return true, nil
}

func (f *fakeClaimer) ReleaseTarget(ctx context.Context, id int64) (bool, error) {
	f.releaseCalls = append(f.releaseCalls, id)
	return true, nil
}

type fakeExpirer struct {
	expired int64
	err     error
	calls   int
}

func (f *fakeExpirer) ExpireLapsedApprovals(ctx context.Context, now time.Time) (int64, error) {
	f.calls++
	return f.expired, f.err
}

type fakeDispatcher struct {
	capacity  int
	submitted []int64
}

func (f *fakeDispatcher) Submit(targetID int64) bool {
	if len(f.submitted) >= f.capacity {
		return false
	}
	f.submitted = append(f.submitted, targetID)
	return true
}

func dueTargets(ids ...int64) []domain.PublishTarget {
	targets := make([]domain.PublishTarget, 0, len(ids))
	for _, id := range ids {
		targets = append(targets, domain.PublishTarget{ID: id, Status: domain.StatusPending})
	}
	return targets
}

func TestScheduler_DispatchesClaimedTargets(t *testing.T) {
	claimer := &fakeClaimer{due: dueTargets(1, 2, 3)}
	expirer := &fakeExpirer{}
	dispatcher := &fakeDispatcher{capacity: 10}

	s := &Scheduler{
		targets:   claimer,
		approvals: expirer,
		executor:  dispatcher,
		interval:  time.Minute,
		batchSize: 50,
	}

	s.processDueTargets(context.Background())

	if len(dispatcher.submitted) != 3 {
		t.Fatalf("expected 3 submissions, got %d", len(dispatcher.submitted))
	}
	if expirer.calls != 1 {
		t.Errorf("expected approvals to be expired once per tick, got %d", expirer.calls)
	}

	status := s.GetStatus()
	if status.TargetsDispatched != 3 {
		t.Errorf("expected TargetsDispatched=3, got %d", status.TargetsDispatched)
	}
	if status.RunsCount != 1 {
		t.Errorf("expected RunsCount=1, got %d", status.RunsCount)
	}
}

func TestScheduler_LostClaimIsSkipped(t *testing.T) {
	claimer := &fakeClaimer{
		due:          dueTargets(1, 2),
		failClaimFor: map[int64]bool{1: true},
	}
	dispatcher := &fakeDispatcher{capacity: 10}

	s := &Scheduler{
		targets:   claimer,
		approvals: &fakeExpirer{},
		executor:  dispatcher,
		interval:  time.Minute,
		batchSize: 50,
	}

	s.processDueTargets(context.Background())

	if len(dispatcher.submitted) != 1 || dispatcher.submitted[0] != 2 {
		t.Fatalf("expected only target 2 to be dispatched, got %v", dispatcher.submitted)
	}
	if len(claimer.releaseCalls) != 0 {
		t.Errorf("expected no release for a lost claim")
	}
}

func TestScheduler_FullQueueReleasesClaim(t *testing.T) {
	claimer := &fakeClaimer{due: dueTargets(1, 2, 3)}
	dispatcher := &fakeDispatcher{capacity: 1}

	s := &Scheduler{
		targets:   claimer,
		approvals: &fakeExpirer{},
		executor:  dispatcher,
		interval:  time.Minute,
		batchSize: 50,
	}

	s.processDueTargets(context.Background())

	if len(dispatcher.submitted) != 1 {
		t.Fatalf("expected 1 submission before the queue filled, got %d", len(dispatcher.submitted))
	}
	// The tick stops at the first rejection; target 2 goes back to pending.
	if len(claimer.releaseCalls) != 1 || claimer.releaseCalls[0] != 2 {
		t.Fatalf("expected target 2 to be released, got %v", claimer.releaseCalls)
	}
	if len(claimer.claimCalls) != 2 {
		t.Errorf("expected claiming to stop after the queue filled, got %v", claimer.claimCalls)
	}
}

func TestScheduler_ExpirerErrorDoesNotBlockDispatch(t *testing.T) {
	claimer := &fakeClaimer{due: dueTargets(1)}
	dispatcher := &fakeDispatcher{capacity: 10}

	s := &Scheduler{
		targets:   claimer,
		approvals: &fakeExpirer{err: fmt.Errorf("db unavailable")},
		executor:  dispatcher,
		interval:  time.Minute,
		batchSize: 50,
	}

	s.processDueTargets(context.Background())

	if len(dispatcher.submitted) != 1 {
		t.Fatalf("expected dispatch despite expirer error, got %v", dispatcher.submitted)
	}
}

func TestScheduler_StartAndStopToggleRunning(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := &Scheduler{
		targets:   &fakeClaimer{},
		approvals: &fakeExpirer{},
		executor:  &fakeDispatcher{capacity: 10},
		interval:  10 * time.Millisecond,
		batchSize: 50,
	}

	if s.IsRunning() {
		t.Fatalf("expected scheduler to be not running initially")
	}

	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	if !s.IsRunning() {
		t.Fatalf("expected scheduler to be running after Start")
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop returned error: %v", err)
	}

	if s.IsRunning() {
		t.Fatalf("expected scheduler to be not running after Stop")
	}
}
