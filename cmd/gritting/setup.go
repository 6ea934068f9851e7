package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/lox/gritting/internal/gritting"
	"github.com/lox/gritting/internal/modelstore"
	"github.com/lox/gritting/internal/store"
)

// RouteFlags selects where the route table is loaded from.
type RouteFlags struct {
	RoutesCSV      string `help:"Seed the database from this routes CSV when it has no routes." env:"GRITTING_ROUTES_CSV" type:"path"`
	RoutesPostgres string `help:"Load routes from this Postgres DSN instead of SQLite." env:"GRITTING_ROUTES_POSTGRES"`
}

func openStore(path string, logger *slog.Logger) (*store.Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	st, err := store.Open(path, logger)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(); err != nil {
		st.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return st, nil
}

// loadRoutes builds the route table: Postgres when a DSN is given,
// otherwise SQLite, seeded from CSV when the table is empty.
func loadRoutes(ctx context.Context, rf RouteFlags, st *store.Store, logger *slog.Logger) (*gritting.RouteTable, error) {
	if rf.RoutesPostgres != "" {
		routes, err := store.LoadRoutesPostgres(ctx, rf.RoutesPostgres)
		if err != nil {
			return nil, err
		}
		logger.Info("routes loaded", "source", "postgres", "count", len(routes))
		return gritting.NewRouteTable(routes), nil
	}

	n, err := st.CountRoutes()
	if err != nil {
		return nil, fmt.Errorf("count routes: %w", err)
	}
	if n == 0 && rf.RoutesCSV != "" {
		f, err := os.Open(rf.RoutesCSV)
		if err != nil {
			return nil, fmt.Errorf("open routes csv: %w", err)
		}
		defer f.Close()
		imported, err := st.ImportRoutesCSV(f)
		if err != nil {
			return nil, err
		}
		logger.Info("routes seeded", "file", rf.RoutesCSV, "count", imported)
	}

	routes, err := st.GetRoutes()
	if err != nil {
		return nil, fmt.Errorf("get routes: %w", err)
	}
	logger.Info("routes loaded", "source", "sqlite", "count", len(routes))
	return gritting.NewRouteTable(routes), nil
}

// loadModels loads artifacts under prefix. A failure is logged rather than
// returned so the server can start and report itself unhealthy.
func loadModels(prefix string, logger *slog.Logger) *gritting.Models {
	m, err := modelstore.Load(prefix)
	if err != nil {
		logger.Error("models not loaded", "prefix", prefix, "error", err)
		return nil
	}
	if missing := m.Encoding.Missing(); len(missing) > 0 {
		logger.Warn("precipitation encoding incomplete, missing labels use code 0",
			"prefix", prefix, "missing", missing)
	}
	logger.Info("models loaded", "prefix", prefix)
	return m
}
