// Package cycletime provides allocation-free cycle-time diagnostics
// for the real-time loop of a hardware module driver.
//
// A Histogram buckets durations relative to a configured cycle period.
// Metrics aggregates the five histograms every driver records. Helper
// wraps Metrics with the ReadStatus/ApplyCommand call-order state
// machine and optional throttled warnings. Export converts snapshots
// into structured records for the telemetry pipeline; that conversion
// formats strings and must never run on the real-time thread.
package cycletime

import (
	"sync/atomic"
	"time"

	"pkt.systems/hwmcore/internal/rterror"
)

// DefaultBuckets is the bucket count per cycle duration used when a
// caller does not choose one. The full histogram spans twice the cycle
// duration, so the total bucket count is 2*DefaultBuckets.
const DefaultBuckets = 10

// Histogram measures the distribution of a recurring duration relative
// to a strictly positive cycle duration, in constant time and without
// allocating. Durations in [0, cycle) land in the less-than buckets,
// durations in [cycle, 2*cycle) in the greater-equal buckets, and
// anything >= 2*cycle only increments the overrun counter. The largest
// duration seen is tracked separately.
//
// Counters are updated with atomic operations so a non-real-time
// exporter can snapshot a histogram while the owning real-time thread
// keeps adding to it. Cross-counter consistency of such a snapshot is
// approximate, which is acceptable for diagnostics.
type Histogram struct {
	cycleDuration time.Duration

	// Bucket slices are sized once at construction and never resized.
	ltCounts []uint32
	geCounts []uint32

	numLT    uint32
	numGE    uint32
	overruns uint32
	// max is the largest duration in nanoseconds.
	max int64
}

// NewHistogram constructs an empty histogram with numBuckets buckets
// per cycle duration. Fails on a non-positive cycle duration or bucket
// count.
func NewHistogram(cycleDuration time.Duration, numBuckets int) (*Histogram, error) {
	if cycleDuration <= 0 {
		return nil, rterror.InvalidArgument("cycletime: cycle duration must be positive")
	}
	if numBuckets <= 0 {
		return nil, rterror.InvalidArgument("cycletime: bucket count must be positive")
	}
	return &Histogram{
		cycleDuration: cycleDuration,
		ltCounts:      make([]uint32, numBuckets),
		geCounts:      make([]uint32, numBuckets),
	}, nil
}

// Add records one duration. It fails with an invalid-argument error on
// a non-positive duration or on a histogram that was not constructed
// through NewHistogram (zero cycle duration).
func (h *Histogram) Add(d time.Duration) error {
	if d <= 0 {
		return errAddNonPositive
	}
	if h.cycleDuration <= 0 {
		return errAddUnconfigured
	}

	for {
		cur := atomic.LoadInt64(&h.max)
		if int64(d) <= cur || atomic.CompareAndSwapInt64(&h.max, cur, int64(d)) {
			break
		}
	}

	// fraction is in [0, inf) relative to the cycle duration.
	n := int64(len(h.ltCounts))
	fraction := int64(d) * n / int64(h.cycleDuration)
	switch {
	case fraction < n:
		atomic.AddUint32(&h.numLT, 1)
		atomic.AddUint32(&h.ltCounts[fraction], 1)
	case fraction < 2*n:
		atomic.AddUint32(&h.numGE, 1)
		atomic.AddUint32(&h.geCounts[fraction-n], 1)
	default:
		atomic.AddUint32(&h.overruns, 1)
	}
	return nil
}

// Preallocated so Add stays allocation-free on the error paths too.
var (
	errAddNonPositive  = rterror.InvalidArgument("cycletime: duration must be positive")
	errAddUnconfigured = rterror.InvalidArgument("cycletime: cycle duration not configured; use NewHistogram")
)

// Reset zeroes counts, overruns and max. The configured cycle duration
// is kept; call it to start a new measurement window.
func (h *Histogram) Reset() {
	for i := range h.ltCounts {
		atomic.StoreUint32(&h.ltCounts[i], 0)
	}
	for i := range h.geCounts {
		atomic.StoreUint32(&h.geCounts[i], 0)
	}
	atomic.StoreUint32(&h.numLT, 0)
	atomic.StoreUint32(&h.numGE, 0)
	atomic.StoreUint32(&h.overruns, 0)
	atomic.StoreInt64(&h.max, 0)
}

// CycleDuration returns the cycle period the histogram was created with.
func (h *Histogram) CycleDuration() time.Duration { return h.cycleDuration }

// Max returns the largest duration added. It is not stored in a bucket
// when it exceeded twice the cycle duration.
func (h *Histogram) Max() time.Duration {
	return time.Duration(atomic.LoadInt64(&h.max))
}

// NumOverruns returns the count of durations of at least twice the
// cycle duration; those are counted but not bucketed.
func (h *Histogram) NumOverruns() uint32 {
	return atomic.LoadUint32(&h.overruns)
}

// NumEntriesLessThanCycle returns the count of durations shorter than
// the cycle duration.
func (h *Histogram) NumEntriesLessThanCycle() uint32 {
	return atomic.LoadUint32(&h.numLT)
}

// NumEntriesGreaterEqualCycle returns the count of durations of at
// least the cycle duration, including overruns.
func (h *Histogram) NumEntriesGreaterEqualCycle() uint32 {
	return atomic.LoadUint32(&h.numGE) + h.NumOverruns()
}

// NumEntries returns the total number of recorded durations, including
// overruns.
func (h *Histogram) NumEntries() uint64 {
	return uint64(h.NumEntriesLessThanCycle()) + uint64(h.NumEntriesGreaterEqualCycle())
}

// BucketsLTCycle returns the buckets for durations below the cycle
// duration. The slice is a live view; reading it races benignly with
// concurrent Adds.
func (h *Histogram) BucketsLTCycle() []uint32 { return h.ltCounts }

// BucketsGECycle returns the buckets for durations in
// [cycle, 2*cycle).
func (h *Histogram) BucketsGECycle() []uint32 { return h.geCounts }

// HistogramSnapshot is an immutable copy of a histogram for export.
type HistogramSnapshot struct {
	CycleDuration               time.Duration
	Max                         time.Duration
	NumOverruns                 uint32
	NumEntriesLessThanCycle     uint32
	NumEntriesGreaterEqualCycle uint32
	BucketsLTCycle              []uint32
	BucketsGECycle              []uint32
}

// NumEntries returns the total entry count of the snapshot.
func (s HistogramSnapshot) NumEntries() uint64 {
	return uint64(s.NumEntriesLessThanCycle) + uint64(s.NumEntriesGreaterEqualCycle)
}

// Snapshot copies the histogram for a non-real-time consumer. It
// allocates and must not be called from the real-time thread.
func (h *Histogram) Snapshot() HistogramSnapshot {
	snap := HistogramSnapshot{
		CycleDuration:               h.cycleDuration,
		Max:                         h.Max(),
		NumOverruns:                 h.NumOverruns(),
		NumEntriesLessThanCycle:     h.NumEntriesLessThanCycle(),
		NumEntriesGreaterEqualCycle: h.NumEntriesGreaterEqualCycle(),
		BucketsLTCycle:              make([]uint32, len(h.ltCounts)),
		BucketsGECycle:              make([]uint32, len(h.geCounts)),
	}
	for i := range h.ltCounts {
		snap.BucketsLTCycle[i] = atomic.LoadUint32(&h.ltCounts[i])
	}
	for i := range h.geCounts {
		snap.BucketsGECycle[i] = atomic.LoadUint32(&h.geCounts[i])
	}
	return snap
}
