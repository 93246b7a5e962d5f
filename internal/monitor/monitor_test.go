package monitor

import (
	"fmt"
	"testing"
)

func TestMonitor_RecentReturnsNewestFirst(t *testing.T) {
	m := NewMonitor()

	for i := 1; i <= 5; i++ {
		m.Record(Entry{TargetID: int64(i), Platform: "facebook", Outcome: OutcomeSuccess})
	}

	recent := m.Recent(3)
	if len(recent) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(recent))
	}
	for i, want := range []int64{5, 4, 3} {
		if recent[i].TargetID != want {
			t.Errorf("recent[%d].TargetID = %d, want %d", i, recent[i].TargetID, want)
		}
	}
}

func TestMonitor_RingEvictsOldestEntries(t *testing.T) {
	m := NewMonitor()

	for i := 1; i <= maxEntries+10; i++ {
		m.Record(Entry{TargetID: int64(i), Outcome: OutcomeSuccess})
	}

	all := m.Recent(0)
	if len(all) != maxEntries {
		t.Fatalf("expected history capped at %d, got %d", maxEntries, len(all))
	}
	if all[0].TargetID != int64(maxEntries+10) {
		t.Errorf("expected newest entry %d first, got %d", maxEntries+10, all[0].TargetID)
	}
	if all[len(all)-1].TargetID != 11 {
		t.Errorf("expected oldest surviving entry 11, got %d", all[len(all)-1].TargetID)
	}
}

func TestMonitor_StatsCountAllOutcomes(t *testing.T) {
	m := NewMonitor()

	outcomes := []Outcome{
		OutcomeSuccess, OutcomeSuccess, OutcomeSuccess,
		OutcomeFailed,
		OutcomeRescheduled,
	}
	for i, o := range outcomes {
		m.Record(Entry{TargetID: int64(i), Outcome: o, Error: fmt.Sprintf("e%d", i)})
	}

	stats := m.GetStats()
	if stats.Total != 5 {
		t.Errorf("Total = %d, want 5", stats.Total)
	}
	if stats.Successful != 3 {
		t.Errorf("Successful = %d, want 3", stats.Successful)
	}
	if stats.Failed != 1 {
		t.Errorf("Failed = %d, want 1", stats.Failed)
	}
	if stats.Rescheduled != 1 {
		t.Errorf("Rescheduled = %d, want 1", stats.Rescheduled)
	}
	if stats.SuccessRate != 60 {
		t.Errorf("SuccessRate = %v, want 60", stats.SuccessRate)
	}
}

func TestMonitor_StatsSurviveRingEviction(t *testing.T) {
	m := NewMonitor()

	for i := 0; i < maxEntries+200; i++ {
		m.Record(Entry{TargetID: int64(i), Outcome: OutcomeFailed})
	}

	stats := m.GetStats()
	if stats.Total != int64(maxEntries+200) {
		t.Errorf("Total = %d, want %d", stats.Total, maxEntries+200)
	}
	if stats.SuccessRate != 0 {
		t.Errorf("SuccessRate = %v, want 0", stats.SuccessRate)
	}
}
