package trigger

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"pkt.systems/hwmcore/internal/futex"
	"pkt.systems/hwmcore/internal/rterror"
	"pkt.systems/hwmcore/internal/rtthread"
	"pkt.systems/hwmcore/internal/shmem"
	"pkt.systems/hwmcore/internal/svcfields"
	"pkt.systems/pslog"
)

// stopPollInterval bounds how long the server loop sleeps in the kernel
// before re-checking its stop flag. RequestStop is cooperative and
// non-blocking; the loop exits within one interval plus any in-flight
// callback.
const stopPollInterval = 50 * time.Millisecond

// Server states. The transitions are guarded by compare-and-swap so a
// racing double start resolves to exactly one running loop.
const (
	stateNotStarted int32 = iota
	stateRunning
	stateStopRequested
)

// ServerOptions configures a Server.
type ServerOptions struct {
	Logger pslog.Logger
}

// Server owns one trigger channel and runs a callback once per trigger.
//
// The callback runs on whichever thread hosts the loop: the caller's
// for Start, a dedicated thread for StartAsync. It must not assume a
// particular thread identity and must tolerate being invoked while the
// rest of the module is shutting down. The loop accepts a new trigger
// as soon as the previous callback has completed; Query is single-shot
// by construction.
//
// A Server must not be copied after creation.
type Server struct {
	noCopy noCopy

	name     string
	callback func()
	logger   pslog.Logger
	metrics  *serverMetrics

	state atomic.Int32

	// Server side of the channel: requests are consumed, responses
	// posted. Segment memory is owned by the shared-memory manager the
	// server was created on.
	requestFutex  *futex.Futex
	responseFutex *futex.Futex

	// threadMu guards creation and join of the async thread only. The
	// wait/callback/signal loop itself takes no locks.
	threadMu    sync.Mutex
	asyncThread *rtthread.Thread
}

// NewServer creates a server named serverMemoryName on mgr, allocating
// the channel's request and response futex segments. When the server is
// signalled it executes callback and posts a response back to the
// client when done. Fails if the segments cannot be created.
func NewServer(mgr *shmem.Manager, serverMemoryName string, callback func(), opts ServerOptions) (*Server, error) {
	if mgr == nil {
		return nil, rterror.InvalidArgument("trigger: shared memory manager must not be nil")
	}
	if serverMemoryName == "" {
		return nil, rterror.InvalidArgument("trigger: server memory name must not be empty")
	}
	if callback == nil {
		return nil, rterror.InvalidArgument("trigger: callback must not be nil")
	}
	logger := opts.Logger
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	logger = svcfields.WithSubsystem(logger, "hwmcore.trigger.server")

	requestSeg, err := mgr.Allocate(RequestSegmentName(serverMemoryName), futex.SegmentType, futex.PayloadSize)
	if err != nil {
		return nil, err
	}
	responseSeg, err := mgr.Allocate(ResponseSegmentName(serverMemoryName), futex.SegmentType, futex.PayloadSize)
	if err != nil {
		return nil, err
	}
	requestFutex, err := futex.FromSegment(requestSeg)
	if err != nil {
		return nil, err
	}
	responseFutex, err := futex.FromSegment(responseSeg)
	if err != nil {
		return nil, err
	}

	s := &Server{
		name:          serverMemoryName,
		callback:      callback,
		logger:        logger.With("server_memory_name", serverMemoryName),
		requestFutex:  requestFutex,
		responseFutex: responseFutex,
	}
	s.metrics = newServerMetrics(logger, s)
	return s, nil
}

// Start runs the server loop on the calling goroutine and blocks until
// RequestStop is called from elsewhere. Calling Start on an already
// started server returns immediately.
func (s *Server) Start() {
	if !s.state.CompareAndSwap(stateNotStarted, stateRunning) {
		return
	}
	s.run()
}

// StartAsync runs the server loop on a dedicated thread configured per
// opts and returns immediately. It fails when the thread cannot be
// created or scheduled. Calling StartAsync on an already started server
// has no effect and returns nil; see IsReadyToStart for the restart
// precondition.
func (s *Server) StartAsync(opts rtthread.Options) error {
	s.threadMu.Lock()
	defer s.threadMu.Unlock()

	if !s.state.CompareAndSwap(stateNotStarted, stateRunning) {
		return nil
	}
	// A previous async loop may have exited without the caller joining
	// it. The loop is gone (state was NotStarted), so the join is
	// immediate and keeps the one-thread invariant.
	if s.asyncThread != nil {
		s.asyncThread.Join()
		s.asyncThread = nil
	}
	thread, err := rtthread.Start(opts, s.run)
	if err != nil {
		s.state.Store(stateNotStarted)
		return err
	}
	s.asyncThread = thread
	return nil
}

// IsStarted reports whether the server loop is active: true from a
// successful Start or StartAsync until the loop has actually exited.
func (s *Server) IsStarted() bool {
	return s.state.Load() != stateNotStarted
}

// RequestStop asks the loop to exit after completing any callback
// currently in flight. It is idempotent and does not block. Use it to
// enter lame-duck mode on shutdown; a request that is stuck in the
// callback must be unblocked by the module's own shutdown path.
func (s *Server) RequestStop() {
	s.state.CompareAndSwap(stateRunning, stateStopRequested)
}

// JoinAsyncThread joins a thread started via StartAsync. It is a no-op
// when no such thread exists or it was already joined. It can block
// while a callback invocation is stuck; callers are responsible for
// callbacks terminating promptly once stop is requested.
func (s *Server) JoinAsyncThread() {
	s.threadMu.Lock()
	thread := s.asyncThread
	s.asyncThread = nil
	s.threadMu.Unlock()
	if thread != nil {
		thread.Join()
	}
}

// IsReadyToStart reports whether a fresh Start or StartAsync is safe:
// the loop has exited and any asynchronous thread has been joined.
func (s *Server) IsReadyToStart() bool {
	s.threadMu.Lock()
	joined := s.asyncThread == nil
	s.threadMu.Unlock()
	return joined && s.state.Load() == stateNotStarted
}

// Query polls the channel once: if a request is pending and the server
// loop is not running, it executes the callback, posts the response,
// and returns true. Used for cooperative, non-threaded cyclic polling.
func (s *Server) Query() bool {
	if s.state.Load() != stateNotStarted {
		return false
	}
	if !s.requestFutex.TryWait() {
		return false
	}
	s.callback()
	if err := s.responseFutex.Post(); err != nil {
		s.logger.Warn("hwmcore.trigger.response_post_failed", "error", err)
	}
	s.metrics.recordServed(context.Background())
	return true
}

// Close stops the server and joins any asynchronous thread. The channel
// segments stay alive until the shared-memory manager that allocated
// them is closed.
func (s *Server) Close() error {
	s.RequestStop()
	s.JoinAsyncThread()
	return nil
}

// run is the wait/callback/signal loop. It waits in bounded slices so a
// requested stop is observed within stopPollInterval even when no
// trigger arrives.
func (s *Server) run() {
	s.logger.Debug("hwmcore.trigger.loop_started")
	for s.state.Load() == stateRunning {
		triggered, err := s.requestFutex.WaitFor(stopPollInterval)
		if err != nil {
			s.logger.Error("hwmcore.trigger.request_wait_failed", "error", err)
			break
		}
		if !triggered {
			continue
		}
		// A consumed request is always answered, even when a stop
		// arrived while the callback was running.
		s.callback()
		if err := s.responseFutex.Post(); err != nil {
			s.logger.Warn("hwmcore.trigger.response_post_failed", "error", err)
		}
		s.metrics.recordServed(context.Background())
	}
	s.state.Store(stateNotStarted)
	s.logger.Debug("hwmcore.trigger.loop_exited")
}

// noCopy makes `go vet -copylocks` flag value copies of Server.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}
