// Package clock abstracts time sources so that cycle-time measurements
// and export intervals can be driven deterministically in tests.
package clock

import "time"

// Clock is the time source consumed by the runtime. The real-time
// measurement path only calls Now; After and Sleep serve the
// non-real-time export loop.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
	Sleep(d time.Duration)
}

// Real implements Clock using the standard library.
type Real struct{}

// Now returns the current UTC time.
func (Real) Now() time.Time {
	return time.Now().UTC()
}

// After mirrors time.After while satisfying the Clock interface.
func (Real) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

// Sleep blocks for at least the supplied duration.
func (Real) Sleep(d time.Duration) {
	time.Sleep(d)
}
