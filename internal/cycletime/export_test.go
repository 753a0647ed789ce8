package cycletime

import (
	"testing"
	"time"
)

func TestSnapshotToPerformanceMetricsFields(t *testing.T) {
	h := mustHistogram(t, 10*time.Millisecond, 10)
	mustAdd(t, h, 2500*time.Microsecond) // lt bucket 2
	mustAdd(t, h, 10*time.Millisecond)   // ge bucket 0
	mustAdd(t, h, 25*time.Millisecond)   // overrun

	record := SnapshotToPerformanceMetrics("read_status_duration", h.Snapshot())
	if record.MetricName != "read_status_duration" {
		t.Fatalf("MetricName=%q", record.MetricName)
	}
	fields := record.Fields.AsMap()

	scalars := map[string]float64{
		"num_entries":                    3,
		"num_entries_ge_cycle_duration":  2,
		"num_overruns":                   1,
		"max_us":                         25000,
		"cycle_duration_us":              10000,
		"bucket_size_us":                 1000,
		"num_buckets_per_cycle_duration": 10,
	}
	for key, want := range scalars {
		got, ok := fields[key].(float64)
		if !ok {
			t.Fatalf("field %q missing or not a number: %v", key, fields[key])
		}
		if got != want {
			t.Fatalf("field %q=%v want %v", key, got, want)
		}
	}

	bucket, ok := fields["bucket_lt_cycle 2"].(map[string]any)
	if !ok {
		t.Fatalf("bucket_lt_cycle 2 missing: %v", fields["bucket_lt_cycle 2"])
	}
	if got := bucket["count"].(float64); got != 1 {
		t.Fatalf("bucket_lt_cycle 2 count=%v want 1", got)
	}
	if got := bucket["interval"].(string); got != "[2ms 3ms)" {
		t.Fatalf("bucket_lt_cycle 2 interval=%q", got)
	}

	bucket, ok = fields["bucket_ge_cycle 0"].(map[string]any)
	if !ok {
		t.Fatalf("bucket_ge_cycle 0 missing: %v", fields["bucket_ge_cycle 0"])
	}
	if got := bucket["count"].(float64); got != 1 {
		t.Fatalf("bucket_ge_cycle 0 count=%v want 1", got)
	}
	if got := bucket["interval"].(string); got != "[10ms 11ms)" {
		t.Fatalf("bucket_ge_cycle 0 interval=%q", got)
	}
}

func TestBucketKeysAreZeroPadded(t *testing.T) {
	h := mustHistogram(t, 12*time.Millisecond, 12)
	record := SnapshotToPerformanceMetrics("apply_command_duration", h.Snapshot())
	fields := record.Fields.AsMap()

	// With 12 buckets the widest index is two digits, so single-digit
	// indices carry a leading zero and alphabetical ordering matches
	// bucket order.
	if _, ok := fields["bucket_lt_cycle 02"]; !ok {
		t.Fatalf("expected zero-padded key bucket_lt_cycle 02, have %v", keysOf(fields))
	}
	if _, ok := fields["bucket_lt_cycle 2"]; ok {
		t.Fatalf("unpadded key bucket_lt_cycle 2 must not exist")
	}
	if _, ok := fields["bucket_ge_cycle 11"]; !ok {
		t.Fatalf("expected key bucket_ge_cycle 11, have %v", keysOf(fields))
	}
}

func keysOf(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

func TestSnapshotMetricsToPerformanceMetricsOrder(t *testing.T) {
	m, err := NewMetrics(10*time.Millisecond, 4)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	records := SnapshotMetricsToPerformanceMetrics(m.Snapshot())

	want := []string{
		"apply_command_duration",
		"read_status_duration",
		"duration_between_read_status_calls",
		"process_duration",
		"execution_duration",
	}
	if len(records) != len(want) {
		t.Fatalf("got %d records want %d", len(records), len(want))
	}
	for i, name := range want {
		if records[i].MetricName != name {
			t.Fatalf("record %d name=%q want %q", i, records[i].MetricName, name)
		}
	}
}
