package hwmcore

import (
	"testing"
	"time"

	"google.golang.org/grpc/codes"

	"pkt.systems/hwmcore/internal/rterror"
	"pkt.systems/hwmcore/internal/rtthread"
)

func TestConfigWithDefaults(t *testing.T) {
	cfg := Config{ModuleName: "motor"}.withDefaults()
	if cfg.NumBucketsPerCycleDuration != DefaultNumBucketsPerCycleDuration {
		t.Fatalf("NumBucketsPerCycleDuration=%d", cfg.NumBucketsPerCycleDuration)
	}
	if cfg.MetricsExportInterval != DefaultMetricsExportInterval {
		t.Fatalf("MetricsExportInterval=%v", cfg.MetricsExportInterval)
	}
	if cfg.TriggerThread.Name != DefaultTriggerThreadName {
		t.Fatalf("TriggerThread.Name=%q", cfg.TriggerThread.Name)
	}

	// Explicit values survive.
	cfg = Config{
		ModuleName:                 "motor",
		NumBucketsPerCycleDuration: 25,
		MetricsExportInterval:      time.Minute,
		TriggerThread:              rtthread.Options{Name: "my-thread"},
	}.withDefaults()
	if cfg.NumBucketsPerCycleDuration != 25 || cfg.MetricsExportInterval != time.Minute || cfg.TriggerThread.Name != "my-thread" {
		t.Fatalf("defaults clobbered explicit values: %+v", cfg)
	}
}

func TestConfigValidate(t *testing.T) {
	valid := Config{ModuleName: "motor"}.withDefaults()
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "empty module name", mutate: func(c *Config) { c.ModuleName = "" }},
		{name: "negative cycle duration", mutate: func(c *Config) { c.CycleDuration = -time.Millisecond }},
		{name: "negative bucket count", mutate: func(c *Config) { c.NumBucketsPerCycleDuration = -1 }},
		{name: "negative export interval", mutate: func(c *Config) { c.MetricsExportInterval = -time.Second }},
		{name: "realtime priority out of range", mutate: func(c *Config) {
			c.TriggerThread.Realtime = true
			c.TriggerThread.Priority = 0
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid
			tc.mutate(&cfg)
			if err := cfg.Validate(); rterror.Code(err) != codes.InvalidArgument {
				t.Fatalf("expected invalid argument, got %v", err)
			}
		})
	}
}
