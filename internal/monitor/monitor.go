package monitor

import (
	"sync"
	"time"
)

// maxEntries bounds the in-memory history. Older entries are evicted
// first.
const maxEntries = 1000

// Outcome is the terminal result of one execution attempt.
type Outcome string

const (
	OutcomeSuccess     Outcome = "success"
	OutcomeFailed      Outcome = "failed"
	OutcomeRescheduled Outcome = "rescheduled"
)

// Entry records one executor pass over a publish target.
type Entry struct {
	TargetID       int64     `json:"targetId"`
	PostID         int64     `json:"postId"`
	Platform       string    `json:"platform"`
	Outcome        Outcome   `json:"outcome"`
	AttemptCount   int       `json:"attemptCount"`
	PlatformPostID string    `json:"platformPostId,omitempty"`
	Error          string    `json:"error,omitempty"`
	Duration       int64     `json:"durationMs"`
	ExecutedAt     time.Time `json:"executedAt"`
}

// Stats aggregates every execution seen since boot, not just the
// entries still held in the ring.
type Stats struct {
	Total       int64   `json:"total"`
	Successful  int64   `json:"successful"`
	Failed      int64   `json:"failed"`
	Rescheduled int64   `json:"rescheduled"`
	SuccessRate float64 `json:"successRate"`
}

// Monitor keeps a bounded in-memory execution history plus lifetime
// counters. Safe for concurrent use by executor workers.
type Monitor struct {
	mu      sync.RWMutex
	entries []Entry
	head    int
	full    bool

	total       int64
	successful  int64
	failed      int64
	rescheduled int64
}

func NewMonitor() *Monitor {
	return &Monitor{
		entries: make([]Entry, maxEntries),
	}
}

func (m *Monitor) Record(entry Entry) {
	if entry.ExecutedAt.IsZero() {
		entry.ExecutedAt = time.Now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[m.head] = entry
	m.head = (m.head + 1) % maxEntries
	if m.head == 0 {
		m.full = true
	}

	m.total++
	switch entry.Outcome {
	case OutcomeSuccess:
		m.successful++
	case OutcomeFailed:
		m.failed++
	case OutcomeRescheduled:
		m.rescheduled++
	}
}

// Recent returns up to limit entries, newest first. limit <= 0 returns
// the full history.
func (m *Monitor) Recent(limit int) []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	size := m.head
	if m.full {
		size = maxEntries
	}
	if limit <= 0 || limit > size {
		limit = size
	}

	out := make([]Entry, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (m.head - i + maxEntries) % maxEntries
		out = append(out, m.entries[idx])
	}

	return out
}

func (m *Monitor) GetStats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := Stats{
		Total:       m.total,
		Successful:  m.successful,
		Failed:      m.failed,
		Rescheduled: m.rescheduled,
	}

	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Successful) / float64(stats.Total) * 100
	}

	return stats
}
