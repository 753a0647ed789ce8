package hwmcore

import (
	"time"

	"pkt.systems/hwmcore/internal/cycletime"
	"pkt.systems/hwmcore/internal/rterror"
	"pkt.systems/hwmcore/internal/rtthread"
)

const (
	// DefaultMetricsExportInterval controls how often finished metric
	// snapshots are handed to the telemetry sink.
	DefaultMetricsExportInterval = 10 * time.Second
	// DefaultNumBucketsPerCycleDuration is the histogram resolution per
	// cycle duration.
	DefaultNumBucketsPerCycleDuration = cycletime.DefaultBuckets
	// DefaultTriggerThreadName labels the thread hosting the trigger
	// server loop.
	DefaultTriggerThreadName = "hwm-trigger"
)

// Config is the resolved configuration of one hardware module runtime.
type Config struct {
	// ModuleName identifies the module in logs and diagnostics.
	ModuleName string

	// ServerMemoryName names the module's trigger channel in the shared
	// namespace. A triggering process needs only this name to locate
	// the channel. Empty disables the trigger server.
	ServerMemoryName string

	// CycleDuration is the expected period of the module's control
	// loop. Zero leaves cycle-time metrics disabled unless the module
	// opts in during Init via EnableCycleTimeMetrics.
	CycleDuration time.Duration

	// NumBucketsPerCycleDuration sets the histogram resolution.
	NumBucketsPerCycleDuration int

	// LogCycleTimeWarnings enables throttled warnings on breached
	// timing budgets.
	LogCycleTimeWarnings bool

	// MetricsExportInterval controls the export cadence.
	MetricsExportInterval time.Duration

	// TriggerThread configures the thread hosting the trigger server
	// loop started by StartTriggerServer.
	TriggerThread rtthread.Options
}

// withDefaults returns a copy of c with unset fields filled in.
func (c Config) withDefaults() Config {
	if c.NumBucketsPerCycleDuration == 0 {
		c.NumBucketsPerCycleDuration = DefaultNumBucketsPerCycleDuration
	}
	if c.MetricsExportInterval == 0 {
		c.MetricsExportInterval = DefaultMetricsExportInterval
	}
	if c.TriggerThread.Name == "" {
		c.TriggerThread.Name = DefaultTriggerThreadName
	}
	return c
}

// Validate reports the first configuration error, after defaults.
func (c Config) Validate() error {
	if c.ModuleName == "" {
		return rterror.InvalidArgument("hwmcore: module name must not be empty")
	}
	if c.CycleDuration < 0 {
		return rterror.InvalidArgument("hwmcore: cycle duration must not be negative")
	}
	if c.NumBucketsPerCycleDuration < 0 {
		return rterror.InvalidArgument("hwmcore: bucket count must not be negative")
	}
	if c.MetricsExportInterval < 0 {
		return rterror.InvalidArgument("hwmcore: metrics export interval must not be negative")
	}
	if c.TriggerThread.Realtime && (c.TriggerThread.Priority < 1 || c.TriggerThread.Priority > 99) {
		return rterror.InvalidArgument("hwmcore: trigger thread realtime priority must be in 1..99")
	}
	return nil
}
