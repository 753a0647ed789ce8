package hwmcore

import (
	"testing"
	"time"

	"google.golang.org/grpc"
)

type registeredService struct {
	desc *grpc.ServiceDesc
	impl any
}

type fakeRegistrar struct {
	services []registeredService
}

func (r *fakeRegistrar) RegisterService(desc *grpc.ServiceDesc, impl any) {
	r.services = append(r.services, registeredService{desc: desc, impl: impl})
}

type fakeRegistry struct {
	interfaces map[string][]byte
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{interfaces: make(map[string][]byte)}
}

func (r *fakeRegistry) AdvertiseInterface(name string, payloadSize int) ([]byte, error) {
	payload := make([]byte, payloadSize)
	r.interfaces[name] = payload
	return payload, nil
}

func (r *fakeRegistry) AdvertisedInterfaces() []string {
	names := make([]string, 0, len(r.interfaces))
	for name := range r.interfaces {
		names = append(names, name)
	}
	return names
}

func TestInitContextExposesCollaborators(t *testing.T) {
	registry := newFakeRegistry()
	registrar := &fakeRegistrar{}
	cfg := Config{ModuleName: "motor", CycleDuration: 4 * time.Millisecond}

	ctx := newInitContext(registry, registrar, cfg)
	if ctx.InterfaceRegistry() != InterfaceRegistry(registry) {
		t.Fatalf("InterfaceRegistry not passed through")
	}
	if got := ctx.ModuleConfig().ModuleName; got != "motor" {
		t.Fatalf("ModuleConfig.ModuleName=%q", got)
	}
}

func TestInitContextRegistersGrpcService(t *testing.T) {
	registrar := &fakeRegistrar{}
	ctx := newInitContext(newFakeRegistry(), registrar, Config{ModuleName: "motor"})

	desc := &grpc.ServiceDesc{ServiceName: "icon.MotorService"}
	impl := struct{}{}
	ctx.RegisterGrpcService(desc, impl)

	if len(registrar.services) != 1 {
		t.Fatalf("registered %d services want 1", len(registrar.services))
	}
	if registrar.services[0].desc != desc {
		t.Fatalf("unexpected service desc %v", registrar.services[0].desc)
	}
}

func TestEnableCycleTimeMetrics(t *testing.T) {
	ctx := newInitContext(newFakeRegistry(), &fakeRegistrar{}, Config{ModuleName: "motor"})

	if got := ctx.CycleDurationForCycleTimeMetrics(); got != 0 {
		t.Fatalf("cycle duration=%v before opt-in", got)
	}
	if ctx.CycleTimeWarningsEnabled() {
		t.Fatalf("warnings enabled before opt-in")
	}

	ctx.EnableCycleTimeMetrics(4*time.Millisecond, true)
	if got := ctx.CycleDurationForCycleTimeMetrics(); got != 4*time.Millisecond {
		t.Fatalf("cycle duration=%v after opt-in", got)
	}
	if !ctx.CycleTimeWarningsEnabled() {
		t.Fatalf("warnings disabled after opt-in")
	}
}
