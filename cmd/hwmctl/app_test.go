package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"pkt.systems/hwmcore/internal/rtthread"
	"pkt.systems/hwmcore/internal/shmem"
	"pkt.systems/hwmcore/internal/trigger"
	"pkt.systems/pslog"
)

func TestRootCommandHasTriggerSubcommand(t *testing.T) {
	root := newRootCommand(pslog.NewStructured(io.Discard))
	sub, _, err := root.Find([]string{"trigger"})
	if err != nil {
		t.Fatalf("Find trigger: %v", err)
	}
	if sub.Name() != "trigger" {
		t.Fatalf("resolved %q want trigger", sub.Name())
	}
}

func TestTriggerCommandFlagDefaults(t *testing.T) {
	root := newRootCommand(pslog.NewStructured(io.Discard))
	sub, _, err := root.Find([]string{"trigger"})
	if err != nil {
		t.Fatalf("Find trigger: %v", err)
	}
	timeout, err := sub.Flags().GetDuration("timeout")
	if err != nil {
		t.Fatalf("timeout flag: %v", err)
	}
	if timeout != 10*time.Second {
		t.Fatalf("timeout default=%v want 10s", timeout)
	}
	count, err := sub.Flags().GetInt("count")
	if err != nil {
		t.Fatalf("count flag: %v", err)
	}
	if count != 1 {
		t.Fatalf("count default=%d want 1", count)
	}
}

func TestTriggerCommandReadsCountFromEnv(t *testing.T) {
	if _, err := os.Stat("/dev/shm"); err != nil {
		t.Skipf("shared memory filesystem unavailable: %v", err)
	}
	name := fmt.Sprintf("hwmctl-test-%d-%d", os.Getpid(), time.Now().UnixNano())
	mgr := shmem.NewManager(shmem.ManagerOptions{})
	t.Cleanup(func() { mgr.Close() })

	var counter atomic.Int64
	srv, err := trigger.NewServer(mgr, name, func() { counter.Add(1) }, trigger.ServerOptions{})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	t.Cleanup(func() { srv.Close() })
	if err := srv.StartAsync(rtthread.Options{Name: "hwmctl-test"}); err != nil {
		t.Fatalf("StartAsync: %v", err)
	}

	t.Setenv("HWMCTL_COUNT", "3")
	root := newRootCommand(pslog.NewStructured(io.Discard))
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"trigger", name})
	if err := root.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("ExecuteContext: %v", err)
	}
	if got := counter.Load(); got != 3 {
		t.Fatalf("callback ran %d times want 3 (HWMCTL_COUNT)", got)
	}
}

func TestTriggerCommandRequiresServerMemoryName(t *testing.T) {
	root := newRootCommand(pslog.NewStructured(io.Discard))
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"trigger"})
	err := root.ExecuteContext(context.Background())
	if err == nil {
		t.Fatalf("expected argument error")
	}
	if !strings.Contains(err.Error(), "arg") {
		t.Fatalf("unexpected error: %v", err)
	}
}
