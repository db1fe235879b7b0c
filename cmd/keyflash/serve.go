package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	httphandler "github.com/ericfisherdev/keyflash/internal/adapter/driving/http"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the local HTTP and websocket API",
		Long: `Serve the JSON API and the device and flash progress streams on
KEYFLASH_LISTEN_ADDR until interrupted. Settings are saved after every change
and again on shutdown.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, true, serve)
		},
	}
}

func serve(ctx context.Context, _ *cobra.Command, a *app) error {
	handler := httphandler.NewServeMux(httphandler.NewHandler(a.services(), a.logger), a.logger)

	srv := &http.Server{
		Addr:              a.cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server starting", "addr", a.cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	a.logger.Info("keyflash started",
		"listen_addr", a.cfg.ListenAddr,
		"mock_api", a.cfg.UseMockAPI,
		"run_count", a.cfg.RunCount,
		"volumes_dir", a.cfg.VolumesDir,
	)

	select {
	case <-ctx.Done():
		a.logger.Info("shutting down")
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", "error", err)
	}

	a.logger.Info("shutdown complete")
	return nil
}
