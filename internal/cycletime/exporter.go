package cycletime

import (
	"context"
	"sync"
	"time"

	"pkt.systems/hwmcore/internal/clock"
	"pkt.systems/hwmcore/internal/rterror"
	"pkt.systems/hwmcore/internal/svcfields"
	"pkt.systems/pslog"
)

// Sink receives finished export records. Implementations connect the
// diagnostics engine to the telemetry pipeline; they run on the
// exporter's own non-real-time goroutine and may block briefly.
type Sink interface {
	Publish(ctx context.Context, records []*PerformanceMetrics) error
}

// LogSink publishes every record as one structured log entry. It is the
// default sink when no telemetry pipeline is attached.
type LogSink struct {
	Logger pslog.Logger
}

// Publish logs each record's scalar fields and bucket payload.
func (s LogSink) Publish(ctx context.Context, records []*PerformanceMetrics) error {
	logger := s.Logger
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	for _, record := range records {
		logger.Info("hwmcore.cycletime.export",
			"metric_name", record.MetricName,
			"fields", record.Fields.AsMap(),
		)
	}
	return nil
}

// ExporterOptions configures an Exporter.
type ExporterOptions struct {
	Logger pslog.Logger
	Clock  clock.Clock
}

// Exporter periodically snapshots a helper's metrics and hands the
// converted records to a sink. It runs entirely off the real-time
// thread; the only interaction with the measurement path is the atomic
// counter reads taken by Snapshot.
type Exporter struct {
	helper   *Helper
	interval time.Duration
	sink     Sink
	logger   pslog.Logger
	clk      clock.Clock

	stopOnce sync.Once
	stop     chan struct{}
}

// NewExporter creates an exporter publishing helper's metrics every
// interval.
func NewExporter(helper *Helper, interval time.Duration, sink Sink, opts ExporterOptions) (*Exporter, error) {
	if helper == nil {
		return nil, rterror.InvalidArgument("cycletime: helper must not be nil")
	}
	if interval <= 0 {
		return nil, rterror.InvalidArgument("cycletime: export interval must be positive")
	}
	if sink == nil {
		return nil, rterror.InvalidArgument("cycletime: sink must not be nil")
	}
	logger := opts.Logger
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real{}
	}
	return &Exporter{
		helper:   helper,
		interval: interval,
		sink:     sink,
		logger:   svcfields.WithSubsystem(logger, "hwmcore.cycletime.exporter"),
		clk:      clk,
		stop:     make(chan struct{}),
	}, nil
}

// Run publishes until ctx is cancelled or Close is called. It blocks;
// run it on a normal-priority goroutine.
func (e *Exporter) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stop:
			return
		case <-e.clk.After(e.interval):
		}
		e.exportOnce(ctx)
	}
}

// Close stops a running Run loop. Idempotent.
func (e *Exporter) Close() {
	e.stopOnce.Do(func() { close(e.stop) })
}

func (e *Exporter) exportOnce(ctx context.Context) {
	records := SnapshotMetricsToPerformanceMetrics(e.helper.Metrics().Snapshot())
	if err := e.sink.Publish(ctx, records); err != nil {
		e.logger.Warn("hwmcore.cycletime.export_failed", "error", err)
	}
}
