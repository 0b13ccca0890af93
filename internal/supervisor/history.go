package supervisor

import "time"

// crashHistory is the ordered sequence of crash timestamps, pruned to a
// sliding window on every crash. Never persisted.
type crashHistory struct {
	window time.Duration
	times  []time.Time
}

func newCrashHistory(window time.Duration) *crashHistory {
	return &crashHistory{window: window}
}

// record appends a crash at t, prunes entries older than the window, and
// returns the number of crashes remaining inside it (including this one).
func (h *crashHistory) record(t time.Time) int {
	h.times = append(h.times, t)
	cutoff := t.Add(-h.window)
	keep := h.times[:0]
	for _, ts := range h.times {
		if ts.After(cutoff) {
			keep = append(keep, ts)
		}
	}
	h.times = keep
	return len(h.times)
}

// count returns the crashes currently retained.
func (h *crashHistory) count() int {
	return len(h.times)
}

// reset clears the history, e.g. on an explicit operator start.
func (h *crashHistory) reset() {
	h.times = h.times[:0]
}
