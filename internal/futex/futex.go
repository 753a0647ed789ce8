// Package futex implements a binary semaphore on a 32-bit word in
// shared memory, signalable across process boundaries.
//
// The word holds 0 (unposted) or 1 (posted). Post sets the word and
// wakes one waiter; Wait consumes the word, blocking in the kernel via
// FUTEX_WAIT while it is 0. The futex operations deliberately omit
// FUTEX_PRIVATE_FLAG so that processes mapping the same segment can
// signal each other. All operations are lock-free and allocation-free.
package futex

import (
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"pkt.systems/hwmcore/internal/rterror"
	"pkt.systems/hwmcore/internal/shmem"
)

// Futex operation codes from <linux/futex.h>; x/sys/unix does not
// export them. FUTEX_PRIVATE_FLAG is deliberately omitted (see package
// comment).
const (
	futexWait = 0
	futexWake = 1
)

const (
	// SegmentType tags shared-memory segments holding one futex word.
	SegmentType uint32 = 1
	// PayloadSize is the payload size of a futex segment.
	PayloadSize = 4
)

// Futex is a view of a binary semaphore word. The view does not own the
// memory behind it; its lifetime is bounded by whoever allocated the
// segment.
type Futex struct {
	word *uint32
	// seg pins the mapped segment for the lifetime of the view.
	seg *shmem.Segment
}

// New wraps an arbitrary word as a binary futex. Intended for
// process-local use (tests, in-process channels).
func New(word *uint32) *Futex {
	return &Futex{word: word}
}

// FromSegment views the futex stored in a shared-memory segment. The
// segment must have been created with SegmentType and PayloadSize.
func FromSegment(seg *shmem.Segment) (*Futex, error) {
	if seg == nil {
		return nil, rterror.InvalidArgument("futex: segment must not be nil")
	}
	payload := seg.Payload()
	if len(payload) < PayloadSize {
		return nil, rterror.InvalidArgument("futex: segment payload too small")
	}
	return &Futex{word: (*uint32)(unsafe.Pointer(&payload[0])), seg: seg}, nil
}

// Post sets the semaphore and wakes one waiter. Posting an
// already-posted futex is a no-op; the semaphore is binary.
func (f *Futex) Post() error {
	if old := atomic.SwapUint32(f.word, 1); old != 0 {
		return nil
	}
	_, _, errno := unix.Syscall6(unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(f.word)), uintptr(futexWake), 1, 0, 0, 0)
	if errno != 0 {
		return rterror.Internal("futex: wake failed: " + errno.Error())
	}
	return nil
}

// TryWait consumes the semaphore without blocking. Reports whether it
// was posted.
func (f *Futex) TryWait() bool {
	return atomic.CompareAndSwapUint32(f.word, 1, 0)
}

// Wait blocks until the semaphore is posted and consumes it.
func (f *Futex) Wait() error {
	for {
		if f.TryWait() {
			return nil
		}
		if err := f.kernelWait(nil); err != nil {
			return err
		}
	}
}

// WaitFor blocks for at most d. It reports whether the semaphore was
// consumed; expiry is not an error. A non-positive d degenerates to
// TryWait.
func (f *Futex) WaitFor(d time.Duration) (bool, error) {
	if f.TryWait() {
		return true, nil
	}
	deadline := time.Now().Add(d)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return f.TryWait(), nil
		}
		ts := unix.NsecToTimespec(remaining.Nanoseconds())
		if err := f.kernelWait(&ts); err != nil {
			return false, err
		}
		if f.TryWait() {
			return true, nil
		}
	}
}

// kernelWait parks the caller while the word is 0. Returns once the
// word changes, the wait times out, or a wake arrives; EINTR and EAGAIN
// are absorbed since the caller re-checks the word.
func (f *Futex) kernelWait(ts *unix.Timespec) error {
	_, _, errno := unix.Syscall6(unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(f.word)), uintptr(futexWait), 0,
		uintptr(unsafe.Pointer(ts)), 0, 0)
	switch errno {
	case 0, unix.EAGAIN, unix.EINTR, unix.ETIMEDOUT:
		return nil
	default:
		return rterror.Internal("futex: wait failed: " + errno.Error())
	}
}
