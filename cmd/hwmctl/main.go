// Command hwmctl is the operator tool for hardware module runtimes. It
// speaks the shared-memory trigger protocol from outside the real-time
// process, so a running module can be asked to execute its registered
// action (typically a recovery or re-homing routine) without any
// network surface.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(submain(ctx))
}
