package resilience

import (
	"sync"
	"time"

	"github.com/arteai/publish-engine/environments"
	"github.com/arteai/publish-engine/internal/domain"
	"github.com/arteai/publish-engine/pkg/logger"
)

type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

// Breaker tracks consecutive failures for one platform. After
// threshold failures it rejects calls for resetTimeout, then lets a
// single trial call through; the trial decides whether to close again.
// State is in-memory only and resets to closed on boot.
type Breaker struct {
	platform     string
	threshold    int
	resetTimeout time.Duration

	mu       sync.Mutex
	state    BreakerState
	failures int
	openedAt time.Time
	probing  bool

	now func() time.Time
}

func NewBreaker(platform string, cfg environments.BreakerConfig) *Breaker {
	threshold := cfg.Threshold
	if threshold <= 0 {
		threshold = 5
	}
	resetTimeout := cfg.ResetTimeout
	if resetTimeout <= 0 {
		resetTimeout = 30 * time.Second
	}

	return &Breaker{
		platform:     platform,
		threshold:    threshold,
		resetTimeout: resetTimeout,
		state:        BreakerClosed,
		now:          time.Now,
	}
}

// Execute runs fn if the breaker permits it. While open it returns a
// CircuitOpen error without invoking fn; the wrapped retry policy is
// never entered, so rejections cost no retry attempts.
func (b *Breaker) Execute(fn func() error) error {
	if err := b.allow(); err != nil {
		return err
	}

	err := fn()
	b.record(err == nil)
	return err
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		return nil
	case BreakerOpen:
		elapsed := b.now().Sub(b.openedAt)
		if elapsed < b.resetTimeout {
			return domain.CircuitOpen(b.platform, b.resetTimeout-elapsed)
		}
		logger.Infof("Circuit breaker for %s half-open, allowing trial call", b.platform)
		b.state = BreakerHalfOpen
		b.probing = true
		return nil
	case BreakerHalfOpen:
		if b.probing {
			// One trial call at a time.
			return domain.CircuitOpen(b.platform, b.resetTimeout)
		}
		b.probing = true
		return nil
	}
	return nil
}

func (b *Breaker) record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if success {
		if b.state != BreakerClosed {
			logger.Infof("Circuit breaker for %s recovered, closing", b.platform)
		}
		b.state = BreakerClosed
		b.failures = 0
		b.probing = false
		return
	}

	if b.state == BreakerHalfOpen {
		logger.Warnf("Circuit breaker for %s trial call failed, reopening", b.platform)
		b.state = BreakerOpen
		b.openedAt = b.now()
		b.probing = false
		return
	}

	b.failures++
	if b.failures >= b.threshold {
		logger.Warnf("Circuit breaker for %s opening after %d consecutive failures", b.platform, b.failures)
		b.state = BreakerOpen
		b.openedAt = b.now()
	}
}

// Snapshot is the observable breaker state for the monitor API.
type Snapshot struct {
	Platform     string       `json:"platform"`
	State        BreakerState `json:"state"`
	FailureCount int          `json:"failureCount"`
	OpenedAt     *time.Time   `json:"openedAt,omitempty"`
}

func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	snap := Snapshot{
		Platform:     b.platform,
		State:        b.state,
		FailureCount: b.failures,
	}
	if b.state != BreakerClosed && !b.openedAt.IsZero() {
		openedAt := b.openedAt
		snap.OpenedAt = &openedAt
	}
	return snap
}

// BreakerRegistry hands out one shared breaker per platform. All
// executor workers publishing to the same platform observe the same
// instance.
type BreakerRegistry struct {
	cfg environments.BreakerConfig

	mu       sync.Mutex
	breakers map[string]*Breaker
}

func NewBreakerRegistry(cfg environments.BreakerConfig) *BreakerRegistry {
	return &BreakerRegistry{
		cfg:      cfg,
		breakers: make(map[string]*Breaker),
	}
}

func (r *BreakerRegistry) Get(platform string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.breakers[platform]
	if !ok {
		b = NewBreaker(platform, r.cfg)
		r.breakers[platform] = b
	}
	return b
}

func (r *BreakerRegistry) Snapshots() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snaps := make([]Snapshot, 0, len(r.breakers))
	for _, b := range r.breakers {
		snaps = append(snaps, b.Snapshot())
	}
	return snaps
}
