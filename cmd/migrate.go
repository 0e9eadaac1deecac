package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/docdex/docdex/internal/config"
)

// runMigrate applies pending schema changes to the configured backend.
func runMigrate(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := st.Migrate(ctx); err != nil {
		return fmt.Errorf("migrating %s store: %w", cfg.Backend, err)
	}

	fmt.Printf("Migrations applied (%s backend)\n", cfg.Backend)
	return nil
}

// runStats prints store row counts.
func runStats(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	stats, err := st.Stats(ctx)
	if err != nil {
		return fmt.Errorf("reading stats: %w", err)
	}

	fmt.Printf("Backend:   %s\n", cfg.Backend)
	fmt.Printf("Libraries: %d\n", stats.Libraries)
	fmt.Printf("Versions:  %d\n", stats.Versions)
	fmt.Printf("Documents: %d\n", stats.Documents)
	fmt.Printf("Jobs:      %d\n", stats.Jobs)
	return nil
}
