package hwmcore

import (
	"time"

	"google.golang.org/grpc"
)

// InterfaceRegistry is the hardware interface registry the runtime
// hands to modules during initialization. Its implementation lives
// outside this module; drivers consume it opaquely to register their
// typed shared-memory interface segments.
type InterfaceRegistry interface {
	// AdvertiseInterface registers a named interface segment of the
	// given payload size and returns its writable payload view.
	AdvertiseInterface(name string, payloadSize int) ([]byte, error)
	// AdvertisedInterfaces lists the names registered so far.
	AdvertisedInterfaces() []string
}

// InitContext provides the configuration and registration surfaces a
// hardware module needs during its Init routine: the interface
// registry, the module configuration, a gRPC service registration
// slot, and the cycle-time diagnostics opt-in.
//
// The context wraps references whose validity is scoped to the
// initialization call. It must not be copied or retained; everything a
// module needs afterwards has to be captured from it before Init
// returns.
type InitContext struct {
	noCopy noCopy

	registry  InterfaceRegistry
	registrar grpc.ServiceRegistrar
	config    Config

	cycleDurationForMetrics time.Duration
	logCycleTimeWarnings    bool
}

func newInitContext(registry InterfaceRegistry, registrar grpc.ServiceRegistrar, config Config) *InitContext {
	return &InitContext{registry: registry, registrar: registrar, config: config}
}

// InterfaceRegistry returns the registry this module registers its
// interfaces with.
func (c *InitContext) InterfaceRegistry() InterfaceRegistry { return c.registry }

// ModuleConfig returns the resolved configuration for this module.
func (c *InitContext) ModuleConfig() Config { return c.config }

// RegisterGrpcService registers a service with the runtime's service
// host. The host makes it reachable from external components some time
// after Init returns, and keeps serving it even when Init fails.
//
// impl must stay valid until the module's shutdown routine completes;
// the runtime does not take ownership.
func (c *InitContext) RegisterGrpcService(desc *grpc.ServiceDesc, impl any) {
	c.registrar.RegisterService(desc, impl)
}

// EnableCycleTimeMetrics opts this module into cycle-time diagnostics.
// Call it during Init once the cycle duration is known; the runtime
// picks the values up after initialization completes. When
// logCycleTimeWarnings is true, breached timing budgets produce
// throttled warnings.
func (c *InitContext) EnableCycleTimeMetrics(cycleDuration time.Duration, logCycleTimeWarnings bool) {
	c.cycleDurationForMetrics = cycleDuration
	c.logCycleTimeWarnings = logCycleTimeWarnings
}

// CycleDurationForCycleTimeMetrics returns the opted-in cycle duration,
// or zero when metrics were not enabled.
func (c *InitContext) CycleDurationForCycleTimeMetrics() time.Duration {
	return c.cycleDurationForMetrics
}

// CycleTimeWarningsEnabled reports whether timing warnings should be
// logged.
func (c *InitContext) CycleTimeWarningsEnabled() bool { return c.logCycleTimeWarnings }

// noCopy makes `go vet -copylocks` flag value copies of the types that
// embed it.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}
