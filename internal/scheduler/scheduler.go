package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/arteai/publish-engine/environments"
	"github.com/arteai/publish-engine/internal/domain"
	"github.com/arteai/publish-engine/pkg/logger"
)

// targetClaimer is the slice of the post repository the scheduler
// needs. It matches PostRepository and lets us unit test the scheduler
// with a small fake implementation.
type targetClaimer interface {
	GetDueTargets(ctx context.Context, now time.Time, limit int) ([]domain.PublishTarget, error)
	ClaimTarget(ctx context.Context, id int64) (bool, error)
	ReleaseTarget(ctx context.Context, id int64) (bool, error)
}

// approvalExpirer lapses approval requests whose deadline passed.
type approvalExpirer interface {
	ExpireLapsedApprovals(ctx context.Context, now time.Time) (int64, error)
}

// dispatcher hands claimed targets to the executor pool.
type dispatcher interface {
	Submit(targetID int64) bool
}

type Scheduler struct {
	targets   targetClaimer
	approvals approvalExpirer
	executor  dispatcher
	interval  time.Duration
	batchSize int

	// Internal state
	running  bool
	stopChan chan struct{}
	doneChan chan struct{}
	mu       sync.RWMutex

	// Statistics
	lastRunAt         time.Time
	targetsDispatched int64
	runsCount         int64
}

func NewScheduler(targets targetClaimer, approvals approvalExpirer, executor dispatcher, cfg environments.SchedulerConfig) *Scheduler {
	return &Scheduler{
		targets:   targets,
		approvals: approvals,
		executor:  executor,
		interval:  cfg.Interval,
		batchSize: cfg.BatchSize,
		running:   false,
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()

	if s.running {
		s.mu.Unlock()
		logger.Warnf("Scheduler is already running")
		return nil
	}

	s.running = true
	s.stopChan = make(chan struct{})
	s.doneChan = make(chan struct{})
	s.mu.Unlock()

	logger.Infof("Starting scheduler with interval: %v", s.interval)

	go s.run(ctx)

	return nil
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.doneChan)

	s.processDueTargets(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	logger.Infof("Scheduler running. Next execution in %v", s.interval)

	for {
		select {
		case <-ticker.C:
			s.processDueTargets(ctx)
			logger.Debugf("Next execution in %v", s.interval)

		case <-s.stopChan:
			logger.Warnf("Scheduler received stop signal")
			return

		case <-ctx.Done():
			logger.Warnf("Scheduler context cancelled")
			return
		}
	}
}

func (s *Scheduler) processDueTargets(ctx context.Context) {
	s.mu.Lock()
	s.lastRunAt = time.Now()
	s.runsCount++
	runNumber := s.runsCount
	now := s.lastRunAt
	s.mu.Unlock()

	logger.Infof("[Run #%d] Starting publish tick at %s", runNumber, now.Format(time.RFC3339))

	if expired, err := s.approvals.ExpireLapsedApprovals(ctx, now); err != nil {
		logger.Errorf("[Run #%d] Error expiring approvals: %v", runNumber, err)
	} else if expired > 0 {
		logger.Warnf("[Run #%d] Expired %d approval requests", runNumber, expired)
	}

	due, err := s.targets.GetDueTargets(ctx, now, s.batchSize)
	if err != nil {
		logger.Errorf("[Run #%d] Error loading due targets: %v", runNumber, err)
		return
	}

	if len(due) == 0 {
		logger.Debugf("[Run #%d] No targets due", runNumber)
		return
	}

	dispatched := 0
	for _, target := range due {
		claimed, err := s.targets.ClaimTarget(ctx, target.ID)
		if err != nil {
			logger.Errorf("[Run #%d] Error claiming target %d: %v", runNumber, target.ID, err)
			continue
		}
		if !claimed {
			// Another tick or a cancellation got there first.
			continue
		}

		if !s.executor.Submit(target.ID) {
			logger.Warnf("[Run #%d] Executor queue full, releasing target %d", runNumber, target.ID)
			if _, err := s.targets.ReleaseTarget(ctx, target.ID); err != nil {
				logger.Errorf("[Run #%d] Error releasing target %d: %v", runNumber, target.ID, err)
			}
			break
		}

		dispatched++
	}

	s.mu.Lock()
	s.targetsDispatched += int64(dispatched)
	s.mu.Unlock()

	logger.Infof("[Run #%d] Dispatched %d of %d due targets", runNumber, dispatched, len(due))
}

func (s *Scheduler) Stop() error {
	s.mu.Lock()

	if !s.running {
		s.mu.Unlock()
		logger.Warnf("Scheduler is not running")
		return nil
	}

	s.running = false
	stopChan := s.stopChan
	doneChan := s.doneChan
	s.mu.Unlock()

	// Send stop signal
	close(stopChan)

	// Wait for goroutine to finish
	<-doneChan

	logger.Infof("Scheduler stopped")
	return nil
}

func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *Scheduler) GetStatus() SchedulerStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := SchedulerStatus{
		Running:           s.running,
		LastRunAt:         s.lastRunAt,
		TargetsDispatched: s.targetsDispatched,
		RunsCount:         s.runsCount,
		Interval:          s.interval,
		BatchSize:         s.batchSize,
	}

	if s.running && !s.lastRunAt.IsZero() {
		status.NextRunAt = s.lastRunAt.Add(s.interval)
	}

	return status
}

type SchedulerStatus struct {
	Running           bool          `json:"running"`
	LastRunAt         time.Time     `json:"lastRunAt,omitempty"`
	NextRunAt         time.Time     `json:"nextRunAt,omitempty"`
	TargetsDispatched int64         `json:"targetsDispatched"`
	RunsCount         int64         `json:"runsCount"`
	Interval          time.Duration `json:"interval"`
	BatchSize         int           `json:"batchSize"`
}
