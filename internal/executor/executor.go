package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/arteai/publish-engine/environments"
	"github.com/arteai/publish-engine/internal/adapters"
	"github.com/arteai/publish-engine/internal/domain"
	"github.com/arteai/publish-engine/internal/monitor"
	"github.com/arteai/publish-engine/internal/resilience"
	"github.com/arteai/publish-engine/pkg/logger"
)

// targetStore is the slice of the post repository the executor needs.
// Kept small so tests can drive the executor with a fake store.
type targetStore interface {
	GetTarget(ctx context.Context, id int64) (*domain.PublishTarget, error)
	GetPost(ctx context.Context, id int64) (*domain.Post, error)
	MarkPublishing(ctx context.Context, id int64) (bool, error)
	MarkPublished(ctx context.Context, id int64, platformPostID string, publishedAt time.Time) (bool, error)
	RescheduleTarget(ctx context.Context, id int64, nextAttemptAt time.Time, lastError string) (bool, error)
	MarkFailed(ctx context.Context, id int64, lastError string) (bool, error)
}

// PublicationCache mirrors the redis client methods the executor uses.
type PublicationCache interface {
	CachePublishedTarget(ctx context.Context, targetID int64, platform, platformPostID string, publishedAt time.Time) error
}

// Executor drains claimed publish targets through a fixed worker pool.
// Each target passes through the platform circuit breaker and the
// in-process retry policy before its outcome is persisted.
type Executor struct {
	store    targetStore
	registry *adapters.Registry
	breakers *resilience.BreakerRegistry
	retry    resilience.RetryPolicy
	monitor  *monitor.Monitor
	cache    PublicationCache

	maxScheduleRetries int
	rescheduleDelay    time.Duration
	publishTimeout     time.Duration

	queue    chan int64
	workers  int
	wg       sync.WaitGroup
	mu       sync.Mutex
	running  bool
	stopOnce sync.Once
}

func NewExecutor(
	store targetStore,
	registry *adapters.Registry,
	breakers *resilience.BreakerRegistry,
	mon *monitor.Monitor,
	cache PublicationCache,
	cfg environments.ExecutorConfig,
	retryCfg environments.RetryConfig,
) *Executor {
	return &Executor{
		store:              store,
		registry:           registry,
		breakers:           breakers,
		retry:              resilience.NewRetryPolicy(retryCfg),
		monitor:            mon,
		cache:              cache,
		maxScheduleRetries: cfg.MaxScheduleRetries,
		rescheduleDelay:    cfg.RescheduleDelay,
		publishTimeout:     cfg.PublishTimeout,
		queue:              make(chan int64, cfg.QueueSize),
		workers:            cfg.Workers,
	}
}

func (e *Executor) Start(ctx context.Context) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		logger.Warnf("Executor is already running")
		return
	}
	e.running = true
	e.mu.Unlock()

	logger.Infof("Starting executor with %d workers (queue size %d)", e.workers, cap(e.queue))

	for i := 0; i < e.workers; i++ {
		e.wg.Add(1)
		go e.worker(ctx)
	}
}

// Stop closes the queue and waits for in-flight targets to finish.
func (e *Executor) Stop() {
	e.stopOnce.Do(func() {
		// Closing under the mutex keeps Submit from sending on a
		// closed channel.
		e.mu.Lock()
		e.running = false
		close(e.queue)
		e.mu.Unlock()

		e.wg.Wait()

		logger.Infof("Executor stopped")
	})
}

// Submit enqueues a claimed target without blocking. A false return
// means the queue is full and the caller should release the claim.
func (e *Executor) Submit(targetID int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return false
	}

	select {
	case e.queue <- targetID:
		return true
	default:
		return false
	}
}

func (e *Executor) worker(ctx context.Context) {
	defer e.wg.Done()

	for targetID := range e.queue {
		if ctx.Err() != nil {
			return
		}
		e.process(ctx, targetID)
	}
}

func (e *Executor) process(ctx context.Context, targetID int64) {
	start := time.Now()

	target, err := e.store.GetTarget(ctx, targetID)
	if err != nil {
		logger.Errorf("Failed to load target %d: %v", targetID, err)
		return
	}
	if target == nil {
		logger.Warnf("Target %d disappeared before execution", targetID)
		return
	}

	// The claim put the target in queued. Losing this CAS means the
	// post was cancelled between claim and execution.
	claimed, err := e.store.MarkPublishing(ctx, target.ID)
	if err != nil {
		logger.Errorf("Failed to mark target %d publishing: %v", target.ID, err)
		return
	}
	if !claimed {
		logger.Debugf("Target %d left queued state, skipping", target.ID)
		return
	}

	post, err := e.store.GetPost(ctx, target.PostID)
	if err != nil || post == nil {
		e.finishFailure(ctx, target, start, domain.Permanent(target.Platform, "post no longer exists", err))
		return
	}

	adapter, ok := e.registry.Get(target.Platform)
	if !ok {
		e.finishFailure(ctx, target, start, domain.Permanent(target.Platform, fmt.Sprintf("no adapter for platform %s", target.Platform), nil))
		return
	}

	req := adapters.PublishRequest{
		TargetID: target.ID,
		PostID:   post.ID,
		Title:    post.Title,
		Caption:  post.Caption,
		MediaURL: post.MediaURL,
	}

	var platformPostID string
	breaker := e.breakers.Get(target.Platform)

	// One breaker permit covers the whole in-process retry sequence, so
	// fast rejections while open never burn retry attempts.
	err = breaker.Execute(func() error {
		return e.retry.Do(ctx, func(ctx context.Context) error {
			publishCtx, cancel := context.WithTimeout(ctx, e.publishTimeout)
			defer cancel()

			id, err := adapter.Publish(publishCtx, req)
			if err != nil {
				return err
			}
			platformPostID = id
			return nil
		})
	})

	if err != nil {
		e.finishFailure(ctx, target, start, err)
		return
	}

	publishedAt := time.Now()
	stored, err := e.store.MarkPublished(ctx, target.ID, platformPostID, publishedAt)
	if err != nil {
		logger.Errorf("Failed to persist publication of target %d: %v", target.ID, err)
		return
	}
	if !stored {
		// Cancelled mid-flight. The platform post exists but the user
		// asked us to stop; record nothing.
		logger.Warnf("Target %d was cancelled during publish, discarding result %s", target.ID, platformPostID)
		return
	}

	if e.cache != nil {
		if cacheErr := e.cache.CachePublishedTarget(ctx, target.ID, target.Platform, platformPostID, publishedAt); cacheErr != nil {
			logger.Warnf("Failed to cache publication of target %d: %v", target.ID, cacheErr)
		}
	}

	logger.Infof("Published target %d (%s) as %s", target.ID, target.Platform, platformPostID)

	e.monitor.Record(monitor.Entry{
		TargetID:       target.ID,
		PostID:         target.PostID,
		Platform:       target.Platform,
		Outcome:        monitor.OutcomeSuccess,
		AttemptCount:   target.AttemptCount + 1,
		PlatformPostID: platformPostID,
		Duration:       time.Since(start).Milliseconds(),
		ExecutedAt:     publishedAt,
	})
}

// finishFailure decides between rescheduling for a later pass and
// marking the target permanently failed.
func (e *Executor) finishFailure(ctx context.Context, target *domain.PublishTarget, start time.Time, pubErr error) {
	kind := domain.KindOf(pubErr)
	attempts := target.AttemptCount + 1

	permanent := kind == domain.ErrPermanent
	exhausted := attempts >= e.maxScheduleRetries

	if permanent || exhausted {
		stored, err := e.store.MarkFailed(ctx, target.ID, pubErr.Error())
		if err != nil {
			logger.Errorf("Failed to mark target %d failed: %v", target.ID, err)
			return
		}
		if !stored {
			logger.Debugf("Target %d left publishing before failure was recorded", target.ID)
			return
		}

		logger.Errorf("Target %d (%s) failed permanently after %d attempts: %v",
			target.ID, target.Platform, attempts, pubErr)

		e.monitor.Record(monitor.Entry{
			TargetID:     target.ID,
			PostID:       target.PostID,
			Platform:     target.Platform,
			Outcome:      monitor.OutcomeFailed,
			AttemptCount: attempts,
			Error:        pubErr.Error(),
			Duration:     time.Since(start).Milliseconds(),
		})
		return
	}

	nextAttemptAt := time.Now().Add(e.rescheduleDelay)
	stored, err := e.store.RescheduleTarget(ctx, target.ID, nextAttemptAt, pubErr.Error())
	if err != nil {
		logger.Errorf("Failed to reschedule target %d: %v", target.ID, err)
		return
	}
	if !stored {
		logger.Debugf("Target %d left publishing before reschedule was recorded", target.ID)
		return
	}

	logger.Warnf("Target %d (%s) attempt %d/%d failed (%s), rescheduled for %s",
		target.ID, target.Platform, attempts, e.maxScheduleRetries, kind, nextAttemptAt.Format(time.RFC3339))

	e.monitor.Record(monitor.Entry{
		TargetID:     target.ID,
		PostID:       target.PostID,
		Platform:     target.Platform,
		Outcome:      monitor.OutcomeRescheduled,
		AttemptCount: attempts,
		Error:        pubErr.Error(),
		Duration:     time.Since(start).Milliseconds(),
	})
}
