package supervisor

import (
	"testing"
	"time"
)

func TestCrashHistoryWindow(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	at := func(sec int) time.Time { return base.Add(time.Duration(sec) * time.Second) }

	// Crashes at t = 0, 5, 10, 14 all fall inside a 30s window: the first
	// three stay at or below a ceiling of 3, the fourth exceeds it.
	h := newCrashHistory(30 * time.Second)

	counts := []struct {
		sec  int
		want int
	}{
		{0, 1},
		{5, 2},
		{10, 3},
		{14, 4},
	}
	for _, c := range counts {
		if got := h.record(at(c.sec)); got != c.want {
			t.Errorf("record(t=%d) = %d, want %d", c.sec, got, c.want)
		}
	}
}

func TestCrashHistoryPruning(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	h := newCrashHistory(30 * time.Second)

	if got := h.record(base); got != 1 {
		t.Fatalf("first crash count = %d, want 1", got)
	}
	// Next crash 40s later: the first one is outside the window by then.
	if got := h.record(base.Add(40 * time.Second)); got != 1 {
		t.Errorf("crash after window count = %d, want 1", got)
	}
}

func TestCrashHistoryBoundary(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	h := newCrashHistory(30 * time.Second)

	h.record(base)
	// Exactly window-width later: the old entry sits on the cutoff and is
	// pruned (strictly-after comparison).
	if got := h.record(base.Add(30 * time.Second)); got != 1 {
		t.Errorf("crash at exact window edge count = %d, want 1", got)
	}
}

func TestCrashHistoryReset(t *testing.T) {
	h := newCrashHistory(time.Minute)
	now := time.Now()
	h.record(now)
	h.record(now)
	h.reset()
	if h.count() != 0 {
		t.Errorf("count after reset = %d, want 0", h.count())
	}
}
