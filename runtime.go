package hwmcore

import (
	"context"
	"sync"

	"google.golang.org/grpc"

	"pkt.systems/hwmcore/internal/clock"
	"pkt.systems/hwmcore/internal/cycletime"
	"pkt.systems/hwmcore/internal/rterror"
	"pkt.systems/hwmcore/internal/shmem"
	"pkt.systems/hwmcore/internal/svcfields"
	"pkt.systems/hwmcore/internal/trigger"
	"pkt.systems/pslog"
)

// RuntimeOptions configures collaborators the runtime consumes but does
// not own.
type RuntimeOptions struct {
	Logger pslog.Logger
	Clock  clock.Clock
	// MetricsSink receives finished diagnostics records. Defaults to a
	// log sink.
	MetricsSink cycletime.Sink
}

// Runtime wires one hardware module into the control system: it runs
// the module's Init routine against an InitContext, owns the module's
// shared-memory allocations, hosts its remote trigger server, and
// drives the cycle-time metrics exporter.
type Runtime struct {
	cfg       Config
	logger    pslog.Logger
	clk       clock.Clock
	sink      cycletime.Sink
	registry  InterfaceRegistry
	registrar grpc.ServiceRegistrar

	shm *shmem.Manager

	mu            sync.Mutex
	initialized   bool
	helper        *cycletime.Helper
	exporter      *cycletime.Exporter
	exporterStop  context.CancelFunc
	exporterDone  chan struct{}
	triggerServer *trigger.Server
	closed        bool
}

// NewRuntime validates cfg and prepares a runtime for one module. The
// registry and registrar are external collaborators handed through to
// the module's InitContext.
func NewRuntime(cfg Config, registry InterfaceRegistry, registrar grpc.ServiceRegistrar, opts RuntimeOptions) (*Runtime, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if registrar == nil {
		return nil, rterror.InvalidArgument("hwmcore: service registrar must not be nil")
	}
	logger := opts.Logger
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	logger = svcfields.WithSubsystem(logger, "hwmcore.runtime").With("module", cfg.ModuleName)
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real{}
	}
	sink := opts.MetricsSink
	if sink == nil {
		sink = cycletime.LogSink{Logger: logger}
	}
	return &Runtime{
		cfg:       cfg,
		logger:    logger,
		clk:       clk,
		sink:      sink,
		registry:  registry,
		registrar: registrar,
		shm:       shmem.NewManager(shmem.ManagerOptions{Logger: logger}),
	}, nil
}

// Init runs the module's initialization routine exactly once. When the
// module opted into cycle-time metrics (through the context or through
// a non-zero Config.CycleDuration), the metrics helper and its exporter
// are set up after initFn returns. Services registered by initFn stay
// registered even when initFn fails.
func (r *Runtime) Init(initFn func(*InitContext) error) error {
	if initFn == nil {
		return rterror.InvalidArgument("hwmcore: init function must not be nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return rterror.FailedPrecondition("hwmcore: runtime is closed")
	}
	if r.initialized {
		return rterror.FailedPrecondition("hwmcore: module already initialized")
	}
	r.initialized = true

	ctx := newInitContext(r.registry, r.registrar, r.cfg)
	if r.cfg.CycleDuration > 0 {
		ctx.EnableCycleTimeMetrics(r.cfg.CycleDuration, r.cfg.LogCycleTimeWarnings)
	}
	initErr := initFn(ctx)

	if cycleDuration := ctx.CycleDurationForCycleTimeMetrics(); cycleDuration > 0 {
		helper, err := cycletime.NewHelper(cycleDuration, cycletime.HelperOptions{
			NumBuckets:           r.cfg.NumBucketsPerCycleDuration,
			LogCycleTimeWarnings: ctx.CycleTimeWarningsEnabled(),
			Logger:               r.logger,
			Clock:                r.clk,
		})
		if err != nil {
			return err
		}
		exporter, err := cycletime.NewExporter(helper, r.cfg.MetricsExportInterval, r.sink, cycletime.ExporterOptions{
			Logger: r.logger,
			Clock:  r.clk,
		})
		if err != nil {
			return err
		}
		r.helper = helper
		r.exporter = exporter
		exporterCtx, cancel := context.WithCancel(context.Background())
		r.exporterStop = cancel
		r.exporterDone = make(chan struct{})
		go func() {
			defer close(r.exporterDone)
			exporter.Run(exporterCtx)
		}()
		r.logger.Info("hwmcore.runtime.metrics_enabled",
			"cycle_duration", cycleDuration,
			"warnings", ctx.CycleTimeWarningsEnabled(),
			"export_interval", r.cfg.MetricsExportInterval,
		)
	}
	return initErr
}

// MetricsHelper returns the module's cycle-time metrics helper, or nil
// when metrics were not enabled. The driver's real-time loop wraps its
// ReadStatus and ApplyCommand bodies in the helper's scopes.
func (r *Runtime) MetricsHelper() *cycletime.Helper {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.helper
}

// StartTriggerServer creates the module's trigger server under the
// configured server memory name and starts its loop on the configured
// thread. callback runs once per trigger; it must stay callable for the
// lifetime of the runtime and terminate promptly once stop is
// requested.
func (r *Runtime) StartTriggerServer(callback func()) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return rterror.FailedPrecondition("hwmcore: runtime is closed")
	}
	if r.cfg.ServerMemoryName == "" {
		return rterror.FailedPrecondition("hwmcore: no server memory name configured")
	}
	if r.triggerServer != nil {
		return rterror.FailedPrecondition("hwmcore: trigger server already started")
	}
	server, err := trigger.NewServer(r.shm, r.cfg.ServerMemoryName, callback, trigger.ServerOptions{Logger: r.logger})
	if err != nil {
		return err
	}
	if err := server.StartAsync(r.cfg.TriggerThread); err != nil {
		server.Close()
		return err
	}
	r.triggerServer = server
	r.logger.Info("hwmcore.runtime.trigger_server_started", "server_memory_name", r.cfg.ServerMemoryName)
	return nil
}

// TriggerServer returns the running trigger server, or nil.
func (r *Runtime) TriggerServer() *trigger.Server {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.triggerServer
}

// Close tears the runtime down: the trigger server is stopped and
// joined, the exporter is stopped, and every shared-memory segment the
// runtime allocated is released. Close never leaves a dangling thread.
// Idempotent.
func (r *Runtime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	if r.triggerServer != nil {
		r.triggerServer.Close()
		r.triggerServer = nil
	}
	if r.exporter != nil {
		r.exporterStop()
		r.exporter.Close()
		<-r.exporterDone
		r.exporter = nil
	}
	return r.shm.Close()
}
