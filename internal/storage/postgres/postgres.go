// Package postgres implements the storage.Backend interface on PostgreSQL,
// using the queued GORM backend for writes.
package postgres

import (
	"fmt"
	"log/slog"

	"github.com/cornerculling/extension/internal/config"
	"github.com/cornerculling/extension/internal/database"
	gormstorage "github.com/cornerculling/extension/internal/storage/gorm"
	"github.com/cornerculling/extension/pkg/core"
)

// Backend connects to Postgres on Init and delegates to a GORM backend.
type Backend struct {
	cfg    config.DBConfig
	logger *slog.Logger
	inner  *gormstorage.Backend
}

// New creates a new Postgres storage backend.
func New(cfg config.DBConfig, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{cfg: cfg, logger: logger}
}

// Init connects, migrates the schema and starts the DB writer.
func (b *Backend) Init() error {
	db, err := database.OpenPostgres(b.cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	b.logger.Info("Connected to Postgres", "host", b.cfg.Host, "database", b.cfg.Database)

	b.inner = gormstorage.New(gormstorage.Dependencies{DB: db, Logger: b.logger})
	return b.inner.Init()
}

// Close flushes queued rows and closes the connection.
func (b *Backend) Close() error {
	if b.inner == nil {
		return nil
	}
	if err := b.inner.Close(); err != nil {
		return err
	}
	return database.Close(b.inner.DB())
}

func (b *Backend) StartSession(s *core.Session) error {
	if b.inner == nil {
		return fmt.Errorf("postgres backend not initialized")
	}
	return b.inner.StartSession(s)
}

func (b *Backend) RecordMapLoad(m *core.MapLoad) error {
	if b.inner == nil {
		return fmt.Errorf("postgres backend not initialized")
	}
	return b.inner.RecordMapLoad(m)
}

func (b *Backend) RecordPerformance(p *core.PerformanceSample) error {
	if b.inner == nil {
		return fmt.Errorf("postgres backend not initialized")
	}
	return b.inner.RecordPerformance(p)
}
