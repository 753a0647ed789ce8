package cycletime

import (
	"math"
	"time"

	"github.com/joeycumines/go-catrate"

	"pkt.systems/hwmcore/internal/clock"
	"pkt.systems/hwmcore/internal/rterror"
	"pkt.systems/hwmcore/internal/svcfields"
	"pkt.systems/pslog"
)

// Warning thresholds. The gap between ReadStatus calls is expected to
// stay within [underrun, overrun] times the cycle duration, where the
// underrun factor is the complement of the overrun factor around 1.0.
// A single ReadStatus or ApplyCommand call is expected to stay below
// the single-op factor times the cycle duration.
const (
	DefaultOverrunWarningFactor  = 1.15
	DefaultSingleOpWarningFactor = 0.5
)

// defaultWarningRates throttles diagnostics to one per violation window
// per metric.
var defaultWarningRates = map[time.Duration]int{10 * time.Second: 1}

// HelperOptions configures a Helper.
type HelperOptions struct {
	// NumBuckets is the bucket count per cycle duration of every
	// histogram. Defaults to DefaultBuckets.
	NumBuckets int
	// LogCycleTimeWarnings enables throttled warnings when the cycle
	// time is breached or a single operation took too long. With it
	// false no timing diagnostic is ever emitted.
	LogCycleTimeWarnings bool
	// OverrunWarningFactor must be in (1, 2); the underrun factor is
	// its complement 2-factor. Defaults to
	// DefaultOverrunWarningFactor.
	OverrunWarningFactor float64
	// SingleOpWarningFactor must be in (0, 1]. Defaults to
	// DefaultSingleOpWarningFactor.
	SingleOpWarningFactor float64
	// WarningRates overrides the throttle applied to warnings, keyed by
	// window duration. Defaults to one warning per metric per 10s.
	WarningRates map[time.Duration]int

	Logger pslog.Logger
	Clock  clock.Clock
}

// Helper measures cycle time metrics for a driver's cyclic
// ReadStatus/ApplyCommand loop. The four transition calls must follow
// the strict cyclic order ReadStatusStart, ReadStatusEnd,
// ApplyCommandStart, ApplyCommandEnd; an End without its matching Start
// is reported as a failed-precondition error, never a crash, so the
// control loop decides how to proceed.
//
// A Helper is for exclusive use by one real-time thread. All its
// transition operations are constant-time and allocation-free.
type Helper struct {
	logWarnings    bool
	overrunFactor  float64
	underrunFactor float64
	singleOpFactor float64

	logger      pslog.Logger
	clk         clock.Clock
	warnLimiter *catrate.Limiter

	metrics *Metrics

	readStatusStart   time.Time
	readStatusEnd     time.Time
	applyCommandStart time.Time
	applyCommandEnd   time.Time
}

// NewHelper creates a Helper for the given cycle duration, which must
// be strictly positive.
func NewHelper(cycleDuration time.Duration, opts HelperOptions) (*Helper, error) {
	numBuckets := opts.NumBuckets
	if numBuckets == 0 {
		numBuckets = DefaultBuckets
	}
	overrun := opts.OverrunWarningFactor
	if overrun == 0 {
		overrun = DefaultOverrunWarningFactor
	}
	if overrun <= 1 || overrun >= 2 {
		return nil, rterror.InvalidArgument("cycletime: overrun warning factor must be in (1, 2)")
	}
	singleOp := opts.SingleOpWarningFactor
	if singleOp == 0 {
		singleOp = DefaultSingleOpWarningFactor
	}
	if singleOp <= 0 || singleOp > 1 {
		return nil, rterror.InvalidArgument("cycletime: single-op warning factor must be in (0, 1]")
	}
	rates := opts.WarningRates
	if rates == nil {
		rates = defaultWarningRates
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = pslog.NoopLogger()
	}

	metrics, err := NewMetrics(cycleDuration, numBuckets)
	if err != nil {
		return nil, err
	}
	return &Helper{
		logWarnings:    opts.LogCycleTimeWarnings,
		overrunFactor:  overrun,
		underrunFactor: 2 - overrun,
		singleOpFactor: singleOp,
		logger:         svcfields.WithSubsystem(logger, "hwmcore.cycletime"),
		clk:            clk,
		warnLimiter:    catrate.NewLimiter(rates),
		metrics:        metrics,
	}, nil
}

// Metrics returns the underlying metrics for reading. Snapshot the
// result before exporting from a non-real-time thread.
func (h *Helper) Metrics() *Metrics { return h.metrics }

// Reset returns the helper to its initial state: all histograms and all
// four timestamps are cleared.
func (h *Helper) Reset() {
	h.metrics.Reset()
	h.readStatusStart = time.Time{}
	h.readStatusEnd = time.Time{}
	h.applyCommandStart = time.Time{}
	h.applyCommandEnd = time.Time{}
}

// ResetReadStatusStart clears only the ReadStatus start timestamp so
// that the first cycle after re-enabling a module does not record a
// bogus inter-call gap. Call it from the module's activation path when
// a full Reset is not wanted.
func (h *Helper) ResetReadStatusStart() {
	h.readStatusStart = time.Time{}
}

// ReadStatusStart opens a cycle: it records the gap since the previous
// ReadStatusStart and the execution duration since the previous
// ApplyCommandEnd, when those exist. When the accumulated entry count
// would overflow, the whole metric set is reset in place and the reset
// is logged; wrapping counters would corrupt exported statistics, so an
// overflow starts a fresh measurement window instead.
func (h *Helper) ReadStatusStart() error {
	now := h.clk.Now()
	cycleDuration := h.metrics.ReadStatusDuration.CycleDuration()

	if h.metrics.ReadStatusDuration.NumEntries() >= math.MaxUint32 {
		h.metrics.Reset()
		h.logger.Info("hwmcore.cycletime.metrics_reset", "reason", "entry count overflow")
	}

	if !h.readStatusStart.IsZero() {
		gap := now.Sub(h.readStatusStart)
		if err := h.metrics.DurationBetweenReadStatusCalls.Add(gap); err != nil {
			return err
		}
		if h.logWarnings && gap >= scale(cycleDuration, h.overrunFactor) {
			h.warn("hwmcore.cycletime.read_status_gap_long",
				"duration", gap, "expected", cycleDuration)
		}
		if h.logWarnings && gap <= scale(cycleDuration, h.underrunFactor) {
			h.warn("hwmcore.cycletime.read_status_gap_short",
				"duration", gap, "expected", cycleDuration)
		}
	}
	if !h.applyCommandEnd.IsZero() {
		if err := h.metrics.ExecutionDuration.Add(now.Sub(h.applyCommandEnd)); err != nil {
			return err
		}
	}
	h.readStatusStart = now
	return nil
}

// ReadStatusEnd closes the ReadStatus phase. It fails with a
// failed-precondition error when ReadStatusStart was not called first.
func (h *Helper) ReadStatusEnd() error {
	if h.readStatusStart.IsZero() {
		return errReadStatusEndWithoutStart
	}
	h.readStatusEnd = h.clk.Now()
	duration := h.readStatusEnd.Sub(h.readStatusStart)
	if err := h.metrics.ReadStatusDuration.Add(duration); err != nil {
		return err
	}
	cycleDuration := h.metrics.ReadStatusDuration.CycleDuration()
	if maxOp := scale(cycleDuration, h.singleOpFactor); h.logWarnings && duration >= maxOp {
		h.warn("hwmcore.cycletime.read_status_long", "duration", duration, "max", maxOp)
	}
	return nil
}

// ApplyCommandStart opens the ApplyCommand phase and records the
// process duration since ReadStatusEnd when available.
func (h *Helper) ApplyCommandStart() error {
	now := h.clk.Now()
	if !h.readStatusEnd.IsZero() {
		if err := h.metrics.ProcessDuration.Add(now.Sub(h.readStatusEnd)); err != nil {
			return err
		}
	}
	h.applyCommandStart = now
	return nil
}

// ApplyCommandEnd closes the cycle. It fails with a failed-precondition
// error when ApplyCommandStart was not called first.
func (h *Helper) ApplyCommandEnd() error {
	if h.applyCommandStart.IsZero() {
		return errApplyCommandEndWithoutStart
	}
	h.applyCommandEnd = h.clk.Now()
	duration := h.applyCommandEnd.Sub(h.applyCommandStart)
	if err := h.metrics.ApplyCommandDuration.Add(duration); err != nil {
		return err
	}
	cycleDuration := h.metrics.ApplyCommandDuration.CycleDuration()
	if maxOp := scale(cycleDuration, h.singleOpFactor); h.logWarnings && duration >= maxOp {
		h.warn("hwmcore.cycletime.apply_command_long", "duration", duration, "max", maxOp)
	}
	return nil
}

var (
	errReadStatusEndWithoutStart   = rterror.FailedPrecondition("cycletime: ReadStatusStart was not called before ReadStatusEnd")
	errApplyCommandEndWithoutStart = rterror.FailedPrecondition("cycletime: ApplyCommandStart was not called before ApplyCommandEnd")
)

// warn emits one throttled warning per event category per rate window.
// Warnings never affect control flow.
func (h *Helper) warn(event string, kv ...any) {
	if _, ok := h.warnLimiter.Allow(event); !ok {
		return
	}
	h.logger.Warn(event, kv...)
}

func scale(d time.Duration, factor float64) time.Duration {
	return time.Duration(float64(d) * factor)
}
