package logging

import (
	"math"
	"sync"

	"golang.org/x/time/rate"
)

// Limited decimates repetitive log output. The first occurrence is always
// logged; afterwards only every Nth occurrence plus at most one per interval
// gets through. Transient conditions that repeat every frame tick (backing
// file not yet created, stale header) would otherwise flood the log during
// normal startup races.
type Limited struct {
	mu      sync.Mutex
	every   int
	perSec  float64
	limiter *rate.Limiter
	count   uint64
	dropped uint64
}

// NewLimited creates a decimator that passes the first call, then every
// nth call, capped at maxPerSecond overall.
func NewLimited(nth int, maxPerSecond float64) *Limited {
	if nth < 1 {
		nth = 1
	}
	return &Limited{
		every:   nth,
		perSec:  maxPerSecond,
		limiter: newCapLimiter(maxPerSecond),
	}
}

// newCapLimiter sizes the burst to the per-second cap so a burst of
// decimation survivors inside one second is not dropped by an empty bucket.
func newCapLimiter(maxPerSecond float64) *rate.Limiter {
	burst := int(math.Ceil(maxPerSecond))
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(maxPerSecond), burst)
}

// Allow reports whether this occurrence should be logged.
func (d *Limited) Allow() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.count++
	if d.count != 1 && (d.count-1)%uint64(d.every) != 0 {
		d.dropped++
		return false
	}
	if !d.limiter.Allow() {
		d.dropped++
		return false
	}
	return true
}

// Reset clears occurrence counters, e.g. after the condition recovered so the
// next failure logs immediately again.
func (d *Limited) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.count = 0
	d.dropped = 0
	// Fresh limiter so the first occurrence after recovery always logs.
	d.limiter = newCapLimiter(d.perSec)
}

// Dropped returns how many occurrences were suppressed since the last reset.
func (d *Limited) Dropped() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dropped
}
