// Package sampler turns monotonic counters into per-second rates.
package sampler

import "time"

// Rate tracks one counter stream. The zero value is ready to use; its first
// sample only establishes a baseline.
//
// A Rate is owned by a single collector goroutine and is not safe for
// concurrent use.
type Rate struct {
	previous    uint64
	previousAt  time.Time
	initialized bool
}

// Sample records current and returns the rate over elapsed seconds. It returns
// 0 and rebaselines when there is no baseline yet, the counter went backwards,
// or elapsed is not positive.
func (r *Rate) Sample(current uint64, elapsed float64) float64 {
	previous, ok := r.previous, r.initialized
	r.previous = current
	r.initialized = true

	if !ok || current < previous || elapsed <= 0 {
		return 0
	}

	return float64(current-previous) / elapsed
}

// SampleAt is Sample with elapsed measured from the previous SampleAt call.
func (r *Rate) SampleAt(current uint64, at time.Time) float64 {
	var elapsed float64
	if !r.previousAt.IsZero() {
		elapsed = at.Sub(r.previousAt).Seconds()
	}
	r.previousAt = at

	return r.Sample(current, elapsed)
}

// Reset drops the baseline so the next sample starts fresh.
func (r *Rate) Reset() {
	*r = Rate{}
}

// Baseline returns the stored counter value and whether one exists.
func (r *Rate) Baseline() (uint64, bool) {
	return r.previous, r.initialized
}
