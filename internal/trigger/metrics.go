package trigger

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"pkt.systems/pslog"
)

type serverMetrics struct {
	served metric.Int64Counter
	state  metric.Int64ObservableGauge
}

func newServerMetrics(logger pslog.Logger, server *Server) *serverMetrics {
	meter := otel.Meter("pkt.systems/hwmcore/trigger")
	m := &serverMetrics{}
	var err error

	m.served, err = meter.Int64Counter(
		"hwmcore.trigger.served",
		metric.WithDescription("Trigger callbacks executed by the server"),
	)
	logMetricInitError(logger, "hwmcore.trigger.served", err)

	m.state, err = meter.Int64ObservableGauge(
		"hwmcore.trigger.started",
		metric.WithDescription("Whether the trigger server loop is active"),
	)
	logMetricInitError(logger, "hwmcore.trigger.started", err)

	if m.state != nil {
		if _, err := meter.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
			if server == nil {
				return nil
			}
			var started int64
			if server.IsStarted() {
				started = 1
			}
			o.ObserveInt64(m.state, started)
			return nil
		}, m.state); err != nil && logger != nil {
			logger.Warn("telemetry.metric.callback_failed", "name", "hwmcore.trigger.started", "error", err)
		}
	}

	return m
}

func (m *serverMetrics) recordServed(ctx context.Context) {
	if m == nil || m.served == nil {
		return
	}
	m.served.Add(ctx, 1)
}

func logMetricInitError(logger pslog.Logger, name string, err error) {
	if err == nil || logger == nil {
		return
	}
	logger.Warn("telemetry.metric.init_failed", "name", name, "error", err)
}
