// backfill-embeddings computes and stores embeddings for every movie that has none, in batches,
// and exits when nothing is left to claim. It runs the same code as the backfill_embeddings River job
// but synchronously, so it can be used before the API is deployed or from a scheduled task.
//
// Usage:
//
//	backfill-embeddings [-batch-size 10]
//
// Configuration comes from the same environment variables as the API; API_KEY is not required.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/filmgrid/hub/internal/config"
	"github.com/filmgrid/hub/internal/observability"
	"github.com/filmgrid/hub/internal/providers"
	"github.com/filmgrid/hub/internal/repository"
	"github.com/filmgrid/hub/internal/service"
	"github.com/filmgrid/hub/migrations"
	"github.com/filmgrid/hub/pkg/database"
)

const (
	exitSuccess = 0
	exitFailure = 1
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.LoadForCLI()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)

		return exitFailure
	}

	batchSize := flag.Int("batch-size", cfg.BackfillBatchSize, "movies claimed and embedded per batch")
	flag.Parse()

	if *batchSize <= 0 || *batchSize > service.MaxBackfillBatchSize {
		slog.Error("invalid -batch-size", "batch_size", *batchSize, "max", service.MaxBackfillBatchSize)

		return exitFailure
	}

	logger := observability.NewLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	// Ctrl-C stops after the current movie; claimed but unprocessed rows are re-claimable after the claim TTL.
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

	embedder, err := providers.NewEmbedder(ctx, cfg)
	if err != nil {
		logger.Error("Failed to create embedding client", "error", err)

		return exitFailure
	}

	backfill := service.NewBackfillService(service.BackfillServiceParams{
		Store:           repository.NewMoviesRepository(db),
		EmbeddingClient: embedder,
		Model:           embedder.EmbeddingModel(),
		BatchDelay:      cfg.BackfillBatchDelay,
		ClaimTTL:        cfg.BackfillClaimTTL,
		Logger:          logger,
	})

	result, err := backfill.Run(ctx, *batchSize)
	if err != nil {
		logger.Error("Backfill failed", "error", err,
			"batches", result.Batches, "processed", result.Processed, "failed", result.Failed)

		return exitFailure
	}

	logger.Info("Backfill complete",
		"batches", result.Batches, "processed", result.Processed, "failed", result.Failed,
		"model", embedder.EmbeddingModel())

	fmt.Printf("Embedded %d movie(s) in %d batch(es); %d failed.\n", result.Processed, result.Batches, result.Failed)

	return exitSuccess
}
