// Package main runs the recommendation HTTP API together with the River backfill worker.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/filmgrid/hub/internal/config"
	"github.com/filmgrid/hub/internal/observability"
	"github.com/filmgrid/hub/migrations"
	"github.com/filmgrid/hub/pkg/database"
)

const (
	exitSuccess     = 0
	exitFailure     = 1
	shutdownTimeout = 30 * time.Second
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)

		return exitFailure
	}

	// TraceContextHandler adds request_id (and trace_id/span_id when tracing is on) to every record.
	logger := observability.NewLogger(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := migrations.Up(ctx, cfg.DatabaseURL); err != nil {
		logger.Error("Failed to apply migrations", "error", err)

		return exitFailure
	}

	db, err := database.NewPostgresPool(ctx, cfg.DatabaseURL,
		database.WithAfterConnect(pgxvec.RegisterTypes),
		database.WithMaxConns(cfg.DatabaseMaxConns),
	)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)

		return exitFailure
	}
	defer db.Close()

	app, err := NewApp(ctx, cfg, db, logger)
	if err != nil {
		logger.Error("Failed to initialize application", "error", err)

		return exitFailure
	}

	code := exitSuccess

	if err := app.Run(ctx); err != nil {
		logger.Error("Application stopped with error", "error", err)

		code = exitFailure
	}

	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := app.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown failed", "error", err)

		code = exitFailure
	}

	logger.Info("Shutdown complete")

	return code
}
