package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"saldo/internal/backend"
	"saldo/internal/config"
	"saldo/internal/localstore"
	applog "saldo/internal/log"
	"saldo/internal/sync"
)

// saldo-sync runs a single reconcile against the remote replica and exits.
// It is meant for cron jobs and for forcing convergence from the shell.
func main() {
	_ = godotenv.Load()

	logger := applog.New(applog.Config{
		Level:     slog.LevelInfo,
		Component: applog.ComponentSync,
	})
	applog.SetDefault(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	store, err := localstore.NewStore(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize local store", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer store.Close()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	factory := backend.NewFactory(logger.WithComponent(applog.ComponentBackend).Logger)
	result, err := factory.CreateBackend(ctx, backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err, "backend", backendCfg.Type)
		os.Exit(1)
	}
	if result.Cleanup != nil {
		defer func() {
			if err := result.Cleanup(); err != nil {
				logger.Error("Backend cleanup error", "error", err)
			}
		}()
	}

	reconciler := sync.NewReconciler(result.Fetcher, result.Writer, cfg.UserID, sync.ReconcilerConfig{
		MaxDocumentBytes: cfg.MaxDocumentBytes,
	})

	local := store.Load(ctx, cfg.UserID)
	merged, outcome, err := reconciler.Reconcile(ctx, local)
	if err != nil {
		logger.Error("Reconcile failed", "error", err, "user_id", cfg.UserID)
		os.Exit(1)
	}

	if err := store.Save(ctx, cfg.UserID, merged); err != nil {
		logger.Error("Failed to persist merged snapshot", "error", err)
		os.Exit(1)
	}

	logger.Info("Reconcile completed",
		"user_id", cfg.UserID,
		"outcome", string(outcome),
		"transactions", len(merged.Transactions))
}
