package cycletime

import "time"

// Metrics aggregates the five histograms every hardware module driver
// records. All five share one configured cycle duration.
type Metrics struct {
	// ApplyCommand start to ApplyCommand end.
	ApplyCommandDuration *Histogram
	// ReadStatus start to ReadStatus end.
	ReadStatusDuration *Histogram
	// ReadStatus start to ReadStatus start. The gap between
	// ApplyCommand calls is not measured because ApplyCommand only runs
	// while the module is enabled.
	DurationBetweenReadStatusCalls *Histogram
	// ReadStatus end to ApplyCommand start: the control process'
	// share of the cycle.
	ProcessDuration *Histogram
	// ApplyCommand end to ReadStatus start: the hardware's share of the
	// cycle.
	ExecutionDuration *Histogram
}

// NewMetrics constructs the five histograms for cycleDuration with
// numBuckets buckets per cycle duration each.
func NewMetrics(cycleDuration time.Duration, numBuckets int) (*Metrics, error) {
	m := &Metrics{}
	for _, h := range []**Histogram{
		&m.ApplyCommandDuration,
		&m.ReadStatusDuration,
		&m.DurationBetweenReadStatusCalls,
		&m.ProcessDuration,
		&m.ExecutionDuration,
	} {
		histogram, err := NewHistogram(cycleDuration, numBuckets)
		if err != nil {
			return nil, err
		}
		*h = histogram
	}
	return m, nil
}

// Reset starts a new measurement window on all five histograms.
func (m *Metrics) Reset() {
	m.ApplyCommandDuration.Reset()
	m.ReadStatusDuration.Reset()
	m.DurationBetweenReadStatusCalls.Reset()
	m.ProcessDuration.Reset()
	m.ExecutionDuration.Reset()
}

// MetricsSnapshot is an immutable copy of all five histograms, in the
// canonical export order.
type MetricsSnapshot struct {
	ApplyCommandDuration           HistogramSnapshot
	ReadStatusDuration             HistogramSnapshot
	DurationBetweenReadStatusCalls HistogramSnapshot
	ProcessDuration                HistogramSnapshot
	ExecutionDuration              HistogramSnapshot
}

// Snapshot copies all five histograms. Not for the real-time thread.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		ApplyCommandDuration:           m.ApplyCommandDuration.Snapshot(),
		ReadStatusDuration:             m.ReadStatusDuration.Snapshot(),
		DurationBetweenReadStatusCalls: m.DurationBetweenReadStatusCalls.Snapshot(),
		ProcessDuration:                m.ProcessDuration.Snapshot(),
		ExecutionDuration:              m.ExecutionDuration.Snapshot(),
	}
}
