package main

import (
	"fmt"
	"log/slog"

	"github.com/Trina-Dasgupta/portfolio-admin/internal/backend"
	"github.com/Trina-Dasgupta/portfolio-admin/internal/config"
	"github.com/Trina-Dasgupta/portfolio-admin/internal/dashboard"
	"github.com/Trina-Dasgupta/portfolio-admin/internal/storage"
	"github.com/Trina-Dasgupta/portfolio-admin/internal/upload"
)

type app struct {
	cfg   config.Config
	store *storage.Store
	svc   *dashboard.Service
}

const saveRounds = 10

// openApp wires config, storage, the backend client and the dashboard
// service. Tests replace it.
var openApp = func() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	setupLogging(cfg.Log.Level)
	if err := cfg.RequireBackend(); err != nil {
		return nil, err
	}

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}
	client := backend.New(cfg.Backend.URL, cfg.Backend.Token, cfg.BackendTimeout())
	return newApp(cfg, store, client), nil
}

func newApp(cfg config.Config, store *storage.Store, client *backend.Client) *app {
	// A save is a few rounds of backend requests, each bounded by the timeout.
	store.SetStaleSave(saveRounds * cfg.BackendTimeout())
	coord := upload.NewCoordinator(client, store, cfg.Assets.PublicURL, cfg.Upload.Concurrency)
	svc := dashboard.New(store, client, coord, dashboard.Options{
		MaxUploadBytes: int64(cfg.Upload.MaxBytes),
		Logger:         slog.Default(),
	})
	return &app{cfg: cfg, store: store, svc: svc}
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		slog.Warn("closing storage", "error", err)
	}
}

// withApp opens the app for the duration of fn.
func withApp(fn func(a *app) error) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}
