package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/docdex/docdex/internal/config"
	"github.com/docdex/docdex/internal/embed"
	"github.com/docdex/docdex/internal/store"
	"github.com/docdex/docdex/internal/store/postgres"
	"github.com/docdex/docdex/internal/store/qdrant"
)

// openStore builds the configured storage backend. The returned cleanup
// closes the underlying connection and is safe to defer immediately.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Store, func(), error) {
	switch cfg.Backend {
	case config.BackendPostgres:
		pool, err := postgres.NewPool(ctx, cfg.PostgresConnectionString())
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		st := postgres.New(pool, logger.With("store", "postgres"))
		return st, func() {
			if err := st.Close(); err != nil {
				logger.Warn("closing store", "error", err)
			}
		}, nil

	case config.BackendQdrant:
		st, err := qdrant.New(qdrant.Config{
			Host:       cfg.QdrantHost,
			Port:       cfg.QdrantPort,
			APIKey:     cfg.QdrantAPIKey,
			UseTLS:     cfg.QdrantUseTLS,
			Collection: cfg.QdrantCollection,
			Dimension:  cfg.EmbedderDimension,
		}, logger.With("store", "qdrant"))
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to qdrant: %w", err)
		}
		return st, func() {
			if err := st.Close(); err != nil {
				logger.Warn("closing store", "error", err)
			}
		}, nil

	default:
		return nil, nil, fmt.Errorf("%w: %q", config.ErrInvalidBackend, cfg.Backend)
	}
}

// newEmbedder builds the Gemini-backed embedder from config.
func newEmbedder(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*embed.Embedder, error) {
	if err := cfg.RequireAPIKey(); err != nil {
		return nil, err
	}

	provider, err := embed.NewGemini(ctx, embed.GeminiConfig{
		APIKey:    cfg.GeminiAPIKey,
		Model:     cfg.EmbedderModel,
		Dimension: cfg.EmbedderDimension,
	})
	if err != nil {
		return nil, fmt.Errorf("creating embedding provider: %w", err)
	}

	return embed.New(provider, embed.Config{
		BatchSize:         cfg.EmbedBatchSize,
		MaxRetries:        cfg.EmbedMaxRetries,
		RetryDelay:        cfg.EmbedRetryDelay(),
		RequestsPerSecond: float64(cfg.EmbedRPS),
	}, logger.With("component", "embedder"))
}
