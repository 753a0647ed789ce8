package cycletime

import (
	"fmt"
	"strconv"
	"time"

	"google.golang.org/protobuf/types/known/structpb"
)

// PerformanceMetrics is the structured export record for one histogram,
// ready for the telemetry pipeline. Durations are exported as int64
// microseconds in fields suffixed `_us`; the individual buckets are
// exported as fields keyed `bucket_lt_cycle <index>` and
// `bucket_ge_cycle <index>` (index zero-padded so alphabetical sorting
// preserves bucket order), each holding `{count, interval}`.
type PerformanceMetrics struct {
	MetricName string
	Fields     *structpb.Struct
}

// SnapshotToPerformanceMetrics converts one histogram snapshot into its
// export record. It formats strings and builds structured data; calling
// it from the real-time path is not allowed.
func SnapshotToPerformanceMetrics(metricName string, snap HistogramSnapshot) *PerformanceMetrics {
	fields := map[string]*structpb.Value{
		"num_entries":                   structpb.NewNumberValue(float64(snap.NumEntries())),
		"num_entries_ge_cycle_duration": structpb.NewNumberValue(float64(snap.NumEntriesGreaterEqualCycle)),
		"num_overruns":                  structpb.NewNumberValue(float64(snap.NumOverruns)),
		"max_us":                        structpb.NewNumberValue(float64(snap.Max.Microseconds())),
		"cycle_duration_us":             structpb.NewNumberValue(float64(snap.CycleDuration.Microseconds())),
		"num_buckets_per_cycle_duration": structpb.NewNumberValue(
			float64(len(snap.BucketsLTCycle))),
	}

	numBuckets := len(snap.BucketsLTCycle)
	bucketSize := snap.CycleDuration / time.Duration(numBuckets)
	fields["bucket_size_us"] = structpb.NewNumberValue(float64(bucketSize.Microseconds()))

	pad := len(strconv.Itoa(numBuckets - 1))
	for i, count := range snap.BucketsLTCycle {
		key := fmt.Sprintf("bucket_lt_cycle %0*d", pad, i)
		fields[key] = bucketValue(count, bucketSize*time.Duration(i), bucketSize*time.Duration(i+1))
	}
	for i, count := range snap.BucketsGECycle {
		key := fmt.Sprintf("bucket_ge_cycle %0*d", pad, i)
		start := bucketSize * time.Duration(i+numBuckets)
		fields[key] = bucketValue(count, start, start+bucketSize)
	}

	return &PerformanceMetrics{
		MetricName: metricName,
		Fields:     &structpb.Struct{Fields: fields},
	}
}

// bucketValue renders one bucket as {count, interval}.
func bucketValue(count uint32, start, end time.Duration) *structpb.Value {
	return structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
		"count":    structpb.NewNumberValue(float64(count)),
		"interval": structpb.NewStringValue(fmt.Sprintf("[%v %v)", start, end)),
	}})
}

// SnapshotMetricsToPerformanceMetrics converts a full metrics snapshot
// into the five export records, in their canonical order.
func SnapshotMetricsToPerformanceMetrics(snap MetricsSnapshot) []*PerformanceMetrics {
	return []*PerformanceMetrics{
		SnapshotToPerformanceMetrics("apply_command_duration", snap.ApplyCommandDuration),
		SnapshotToPerformanceMetrics("read_status_duration", snap.ReadStatusDuration),
		SnapshotToPerformanceMetrics("duration_between_read_status_calls", snap.DurationBetweenReadStatusCalls),
		SnapshotToPerformanceMetrics("process_duration", snap.ProcessDuration),
		SnapshotToPerformanceMetrics("execution_duration", snap.ExecutionDuration),
	}
}
