// Package storage selects the relational backend that persists movie records.
package storage

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/top250-crawler/internal/movie"
	"github.com/JakeFAU/top250-crawler/internal/storage/postgres"
	"github.com/JakeFAU/top250-crawler/internal/storage/sqlite"
)

// Drivers understood by Open.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config picks a driver and its connection settings.
type Config struct {
	Driver   string
	Path     string
	DSN      string
	Table    string
	MaxConns int32
}

// Open returns the movie.Store for cfg.Driver with its schema in place.
func Open(ctx context.Context, cfg Config, clock movie.Clock, logger *zap.Logger) (movie.Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("store")

	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", DriverSQLite:
		s, err := sqlite.Open(ctx, sqlite.Config{Path: cfg.Path, Table: cfg.Table}, clock, logger)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return s, nil
	case DriverPostgres:
		s, err := postgres.Open(ctx, postgres.Config{DSN: cfg.DSN, Table: cfg.Table, MaxConns: cfg.MaxConns}, clock, logger)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
