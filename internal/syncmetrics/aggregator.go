// Package syncmetrics derives display metrics (sync rate, ETA) from two
// consecutive reads of an account's sync counters. All functions are
// pure; the poller owns the samples and calls in here every tick.
package syncmetrics

import (
	"math"
	"time"
)

// Sample is the counters read at one poll tick.
type Sample struct {
	SyncedEmailCount int
	TotalEmailCount  int
}

// Metrics holds the derived values. Nil means "unavailable": no prior
// sample, zero elapsed time, or an unknown total. Unavailable is
// distinct from a true zero rate.
type Metrics struct {
	EmailsPerMinute        *float64
	EstimatedTimeRemaining *int // minutes, rounded
}

// Compute derives the rate and ETA between prev and curr. prev may be
// nil on the first tick of a sync. The result is never negative and
// never NaN or Inf.
func Compute(prev *Sample, curr Sample, elapsed time.Duration) Metrics {
	var m Metrics

	if prev == nil || elapsed <= 0 {
		return m
	}

	delta := curr.SyncedEmailCount - prev.SyncedEmailCount
	if delta < 0 {
		// Counters reset mid-observation (provider restarted the sync);
		// treat as no progress rather than a negative rate.
		delta = 0
	}

	rate := float64(delta) / elapsed.Minutes()
	m.EmailsPerMinute = &rate

	// ETA needs a positive rate and a known total.
	if rate <= 0 || curr.TotalEmailCount <= 0 {
		return m
	}

	remaining := curr.TotalEmailCount - curr.SyncedEmailCount
	if remaining < 0 {
		remaining = 0
	}

	eta := int(math.Round(float64(remaining) / rate))
	m.EstimatedTimeRemaining = &eta
	return m
}
