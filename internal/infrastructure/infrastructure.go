// Package infrastructure assembles the shared systems every domain module
// depends on: lifecycle coordination, logging, metrics, the database, and
// blob storage.
package infrastructure

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/JaimeStill/geoassign/internal/config"
	"github.com/JaimeStill/geoassign/internal/metrics"
	"github.com/JaimeStill/geoassign/pkg/database"
	"github.com/JaimeStill/geoassign/pkg/lifecycle"
	"github.com/JaimeStill/geoassign/pkg/storage"
)

// Infrastructure holds the core systems required by all domain modules.
type Infrastructure struct {
	Lifecycle *lifecycle.Coordinator
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
	Database  database.System
	Storage   storage.System
}

// New creates an Infrastructure from the application configuration, logging
// to stderr. Systems are initialized but not started.
func New(cfg *config.Config) (*Infrastructure, error) {
	return NewWithWriter(cfg, os.Stderr)
}

// NewWithWriter is New with the log destination supplied by the caller.
func NewWithWriter(cfg *config.Config, w io.Writer) (*Infrastructure, error) {
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: logLevel(cfg.Env()),
	})).With("version", cfg.Version)

	m, err := metrics.New()
	if err != nil {
		return nil, fmt.Errorf("metrics init failed: %w", err)
	}

	db, err := database.New(&cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("database init failed: %w", err)
	}

	store, err := storage.New(&cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("storage init failed: %w", err)
	}

	return &Infrastructure{
		Lifecycle: lifecycle.New(),
		Logger:    logger,
		Metrics:   m,
		Database:  db,
		Storage:   store,
	}, nil
}

// Start registers the database and storage hooks with the lifecycle
// coordinator.
func (i *Infrastructure) Start() error {
	if err := i.Database.Start(i.Lifecycle); err != nil {
		return fmt.Errorf("database start failed: %w", err)
	}
	if err := i.Storage.Start(i.Lifecycle); err != nil {
		return fmt.Errorf("storage start failed: %w", err)
	}
	return nil
}

func logLevel(env string) slog.Level {
	if env == "local" || env == "dev" {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}
