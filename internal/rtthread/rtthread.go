// Package rtthread runs a function on a dedicated OS thread with an
// explicit scheduling class. The runtime uses it to host loops that
// must not share a thread with the Go scheduler's default workload,
// such as the remote trigger server.
package rtthread

import (
	"runtime"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	"pkt.systems/hwmcore/internal/rterror"
)

// Options selects the label and scheduling class of a spawned thread.
type Options struct {
	// Name labels the thread (truncated to the kernel's 15-byte limit).
	Name string
	// Realtime selects SCHED_FIFO scheduling at Priority. When false the
	// thread keeps the default scheduling class and Priority is ignored.
	Realtime bool
	// Priority is the SCHED_FIFO priority, 1..99.
	Priority int
}

// Thread is a handle to a spawned thread. Join blocks until the
// function has returned; joining twice or joining a never-started
// thread is harmless.
type Thread struct {
	done     chan struct{}
	joinOnce sync.Once
}

// Start runs fn on a dedicated OS thread configured per opts. If the
// scheduling class cannot be applied the spawn fails before fn runs and
// the error is returned here.
func Start(opts Options, fn func()) (*Thread, error) {
	if fn == nil {
		return nil, rterror.InvalidArgument("rtthread: fn must not be nil")
	}
	if opts.Realtime && (opts.Priority < 1 || opts.Priority > 99) {
		return nil, rterror.InvalidArgument("rtthread: realtime priority must be in 1..99")
	}

	t := &Thread{done: make(chan struct{})}
	setup := make(chan error, 1)
	go func() {
		defer close(t.done)
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		if err := configureThread(opts); err != nil {
			setup <- err
			return
		}
		setup <- nil
		fn()
	}()
	if err := <-setup; err != nil {
		return nil, err
	}
	return t, nil
}

// Join blocks until the thread's function has returned. Idempotent.
func (t *Thread) Join() {
	if t == nil {
		return
	}
	t.joinOnce.Do(func() {
		<-t.done
	})
}

// configureThread applies name and scheduling class to the calling
// thread. Must run on the locked target thread.
func configureThread(opts Options) error {
	if opts.Name != "" {
		name := opts.Name
		if len(name) > 15 {
			name = name[:15]
		}
		buf := make([]byte, len(name)+1)
		copy(buf, name)
		if err := unix.Prctl(unix.PR_SET_NAME, uintptr(unsafe.Pointer(&buf[0])), 0, 0, 0); err != nil {
			return rterror.Internal("rtthread: set thread name: " + err.Error())
		}
	}
	if opts.Realtime {
		attr := unix.SchedAttr{
			Size:     unix.SizeofSchedAttr,
			Policy:   unix.SCHED_FIFO,
			Priority: uint32(opts.Priority),
		}
		if err := unix.SchedSetAttr(0, &attr, 0); err != nil {
			return rterror.Internal("rtthread: set SCHED_FIFO priority: " + err.Error())
		}
	}
	return nil
}
