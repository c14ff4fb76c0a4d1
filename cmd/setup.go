package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/quarrydev/quarry/db"
	"github.com/quarrydev/quarry/internal/backend"
	"github.com/quarrydev/quarry/internal/config"
	"github.com/quarrydev/quarry/internal/ingest"
)

// loadConfig loads and validates the configuration file.
func loadConfig(path string, logger *slog.Logger) (*config.Config, error) {
	cfg, err := config.Load(path, logger)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// connectBackend migrates the schema, builds the configured backend, and
// waits for the store to answer. The caller owns Close.
func connectBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (backend.Backend, error) {
	if err := db.Migrate(cfg.PostgresURL(), logger); err != nil {
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	settings := map[string]any{}
	maps.Copy(settings, cfg.BackendSettings)
	settings["conn_string"] = cfg.PostgresConnString()

	be, err := backend.NewRegistry(logger).Build(cfg.Backend, settings, logger)
	if err != nil {
		return nil, fmt.Errorf("building backend: %w", err)
	}
	if err := be.Connect(ctx); err != nil {
		be.Close()
		return nil, fmt.Errorf("connecting backend: %w", err)
	}
	return be, nil
}

// newPipeline wires an ingestion pipeline from the configuration.
func newPipeline(be backend.Backend, cfg *config.Config, logger *slog.Logger) *ingest.Pipeline {
	delay := time.Duration(cfg.RequestDelay * float64(time.Second))
	return ingest.New(be, delay, cfg.Plugin, logger)
}
