// Package hwmcore is the runtime core shared by hardware module
// drivers in a real-time control system.
//
// A hardware module drives one physical or simulated device through a
// cyclic ReadStatus/ApplyCommand loop. This package supplies the parts
// of that runtime every driver needs and none should reimplement:
//
//   - the cross-process remote trigger protocol (internal/trigger) that
//     lets a supervisory process ask a module to run a recovery or
//     re-homing action, built on binary futexes in shared memory;
//   - the real-time-safe cycle-time diagnostics engine
//     (internal/cycletime) that histograms loop timings without
//     allocating, and exports them periodically off the hot path;
//   - the InitContext façade handed to a module's initialization
//     routine, composing interface registration, gRPC service
//     registration and diagnostics opt-in.
//
// The hardware interface registry, gRPC service hosting, telemetry
// export and thread scheduling policy are external collaborators: the
// runtime consumes them through narrow interfaces and never owns them.
package hwmcore
