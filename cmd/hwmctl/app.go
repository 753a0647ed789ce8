package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"pkt.systems/hwmcore/internal/svcfields"
	"pkt.systems/hwmcore/internal/trigger"
	"pkt.systems/pslog"
)

func submain(ctx context.Context) int {
	baseLogger := pslog.LoggerFromEnv(
		pslog.WithEnvPrefix("HWMCTL_LOG_"),
		pslog.WithEnvOptions(pslog.Options{Mode: pslog.ModeStructured, MinLevel: pslog.InfoLevel}),
		pslog.WithEnvWriter(os.Stderr),
	).With("app", "hwmctl")
	cmd := newRootCommand(baseLogger)
	if err := cmd.ExecuteContext(ctx); err != nil {
		if err != context.Canceled {
			fmt.Fprintf(os.Stderr, "%s\n", err)
		}
		return 1
	}
	return 0
}

func newRootCommand(baseLogger pslog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "hwmctl",
		Short:         "hwmctl triggers and inspects hardware module runtimes over shared memory",
		SilenceErrors: true,
	}
	cmd.AddCommand(newTriggerCommand(baseLogger))

	viper.SetEnvPrefix("HWMCTL")
	viper.AutomaticEnv()
	return cmd
}

func newTriggerCommand(baseLogger pslog.Logger) *cobra.Command {
	var (
		timeout time.Duration
		count   int
	)
	cmd := &cobra.Command{
		Use:   "trigger <server-memory-name>",
		Short: "Trigger a module's registered action and wait for completion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			logger := svcfields.WithSubsystem(baseLogger, "cli.trigger")
			name := args[0]
			// Resolve through viper so HWMCTL_TIMEOUT / HWMCTL_COUNT
			// override the flag defaults.
			timeout := viper.GetDuration("timeout")
			count := viper.GetInt("count")

			client, err := trigger.NewClient(name, trigger.ClientOptions{Logger: baseLogger})
			if err != nil {
				return fmt.Errorf("attach to trigger channel %q: %w", name, err)
			}
			defer client.Close()

			roundTrip := func(ctx context.Context, n int) error {
				if timeout > 0 {
					var cancel context.CancelFunc
					ctx, cancel = context.WithTimeout(ctx, timeout)
					defer cancel()
				}
				started := time.Now()
				if err := client.Trigger(ctx); err != nil {
					return fmt.Errorf("trigger round trip %d: %w", n, err)
				}
				logger.Info("hwmctl.trigger.completed",
					"server_memory_name", name,
					"round_trip", n,
					"latency", time.Since(started),
				)
				return nil
			}
			for i := 0; i < count; i++ {
				if err := roundTrip(cmd.Context(), i+1); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "per-round-trip timeout (0 waits forever)")
	cmd.Flags().IntVar(&count, "count", 1, "number of trigger round trips")
	for _, name := range []string{"timeout", "count"} {
		if err := viper.BindPFlag(name, cmd.Flags().Lookup(name)); err != nil {
			svcfields.WithSubsystem(baseLogger, "cli.trigger").Warn("flag binding failed", "flag", name, "error", err)
		}
	}
	return cmd
}
