package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/ericfisherdev/keyflash/internal/adapter/driven/flasher"
	githubadapter "github.com/ericfisherdev/keyflash/internal/adapter/driven/github"
	"github.com/ericfisherdev/keyflash/internal/adapter/driven/settingsfile"
	sqliteadapter "github.com/ericfisherdev/keyflash/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/keyflash/internal/adapter/driven/usb"
	httphandler "github.com/ericfisherdev/keyflash/internal/adapter/driving/http"
	"github.com/ericfisherdev/keyflash/internal/application"
	"github.com/ericfisherdev/keyflash/internal/config"
	"github.com/ericfisherdev/keyflash/internal/domain/port/driven"
)

// app is the wired application shared by every command.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	db     *sqliteadapter.DB

	provider  *application.ArtifactSourceProvider
	session   *application.Session
	selection *application.RepositorySelection
	prefs     *application.Preferences
	resolver  *application.Resolver
	devices   *application.DeviceMonitor
	flash     *application.FlashService
}

// newLogger builds the process logger at the configured level, writing text
// records to w.
func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: cfg.LogLevel}))
}

// newApp opens storage, restores the saved session, and wires adapters into
// the application services.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	// 1. Settings file (migrated on load; defaults on any failure).
	store := settingsfile.NewStore(cfg.DataDir, logger)

	// 2. Database with firmware catalog and flash history.
	// Opening storage runs to completion even when shutdown is already
	// requested, so serve can still save on its way out.
	db, err := sqliteadapter.NewDB(context.WithoutCancel(ctx), cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if _, err := sqliteadapter.RunMigrations(db, logger); err != nil {
		_ = db.Close()
		return nil, err
	}
	a.db = db
	logger.Debug("database opened", "path", db.Path())

	// 3. Artifact source behind a provider so the token can be swapped.
	a.provider, err = newArtifactSourceProvider(cfg, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	// 4. Services.
	a.selection = application.NewRepositorySelection(a.provider, logger)
	a.prefs = application.NewPreferences()
	a.session = application.NewSession(store, a.selection, a.prefs, logger)
	a.session.Restore(ctx)

	a.resolver, err = application.NewResolver(
		a.provider,
		a.selection,
		sqliteadapter.NewFirmwareRepo(db),
		cfg.RunCount,
		logger,
	)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	enumerator, watcher := newDeviceDetection(cfg, logger)
	a.devices = application.NewDeviceMonitor(enumerator, watcher, logger)

	a.flash = application.NewFlashService(
		flasher.NewSimulator(cfg.FlashStep),
		sqliteadapter.NewFlashRepo(db),
		logger,
	)

	return a, nil
}

// newArtifactSourceProvider selects the canned mock or the GitHub client.
// Only the GitHub client can be rebuilt with a new token.
func newArtifactSourceProvider(cfg *config.Config, logger *slog.Logger) (*application.ArtifactSourceProvider, error) {
	if cfg.UseMockAPI {
		logger.Info("using mock artifact source")
		return application.NewArtifactSourceProvider(githubadapter.NewMockClient(), nil), nil
	}

	factory := func(token string) (driven.ArtifactSource, error) {
		return githubadapter.NewClient(token, cfg.GitHubAPIURL, logger)
	}
	source, err := factory(cfg.GitHubToken)
	if err != nil {
		return nil, fmt.Errorf("creating github client: %w", err)
	}
	logger.Debug("github client created", "api_url", cfg.GitHubAPIURL, "anonymous", cfg.GitHubToken == "")
	return application.NewArtifactSourceProvider(source, factory), nil
}

// newDeviceDetection scans mounted UF2 volumes when a volumes directory is
// configured and falls back to the fixed mock device set otherwise.
func newDeviceDetection(cfg *config.Config, logger *slog.Logger) (driven.DeviceEnumerator, driven.DeviceWatcher) {
	if cfg.UseVolumeDetection() {
		logger.Info("detecting UF2 bootloader volumes", "root", cfg.VolumesDir)
		return usb.NewVolumeEnumerator(cfg.VolumesDir, logger), usb.NewVolumeWatcher(cfg.VolumesDir, logger)
	}
	return usb.NewMockEnumerator(), &usb.NoopWatcher{}
}

// services returns the dependencies of the HTTP API. The token endpoint is
// only offered when the source can actually be rebuilt.
func (a *app) services() httphandler.Services {
	svc := httphandler.Services{
		Session:   a.session,
		Selection: a.selection,
		Prefs:     a.prefs,
		Resolver:  a.resolver,
		Devices:   a.devices,
		Flash:     a.flash,
	}
	if !a.cfg.UseMockAPI {
		svc.Tokens = a.provider
	}
	return svc
}

// persist saves the session through the settings store.
func (a *app) persist(ctx context.Context) error {
	return a.session.Persist(context.WithoutCancel(ctx))
}

// Close releases the database.
func (a *app) Close() error {
	if err := a.db.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	return nil
}
