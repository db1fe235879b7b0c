package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ericfisherdev/keyflash/internal/config"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "keyflash",
		Short: "Fetch keyboard firmware from CI builds and flash it",
		Long: `Keyflash tracks keyboard configuration repositories, resolves the firmware
produced by their most recent successful GitHub Actions runs, and flashes it
onto keyboards detected in bootloader mode.

Run without a subcommand to serve the local HTTP API.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, true, serve)
		},
	}

	root.AddCommand(
		newServeCmd(),
		newSettingsCmd(),
		newReposCmd(),
		newWorkflowsCmd(),
		newFirmwareCmd(),
		newDevicesCmd(),
	)

	return root
}

// execute runs the root command until it finishes or the process is
// interrupted.
func execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return newRootCmd().ExecuteContext(ctx)
}

// withApp loads configuration, wires the application and runs fn with it.
// When mutates is set the session is saved after fn succeeds.
func withApp(cmd *cobra.Command, mutates bool, fn func(ctx context.Context, cmd *cobra.Command, a *app) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg, cmd.ErrOrStderr())

	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	if err := fn(ctx, cmd, a); err != nil {
		return err
	}
	if mutates {
		return a.persist(ctx)
	}
	return nil
}
