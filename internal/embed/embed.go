// Package embed turns document chunks into dense vectors through an external
// embedding provider. The Embedder adds what raw providers lack: fixed-size
// batching, client-side rate limiting, and retry with exponential backoff.
package embed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/docdex/docdex/internal/chunk"
	"github.com/docdex/docdex/internal/store"
)

// Provider generates embeddings for a batch of texts. Implementations must
// return one vector per input text, in input order.
type Provider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// Defaults for batching and retry.
const (
	DefaultBatchSize  = 100
	DefaultMaxRetries = 3
	DefaultRetryDelay = time.Second
)

// Config controls batching, retry, and rate limiting.
type Config struct {
	// BatchSize is the maximum number of texts per provider call.
	BatchSize int
	// MaxRetries is the number of attempts per batch before giving up.
	MaxRetries int
	// RetryDelay is the base backoff, doubled after each failed attempt.
	RetryDelay time.Duration
	// RequestsPerSecond caps provider calls. Zero means no limit.
	RequestsPerSecond float64
}

// Embedded pairs a chunk with its vector. Input is the chunk's position in
// the EmbedChunks input slice; dropped chunks make the output shorter than
// the input, so callers align by Input rather than by output position.
type Embedded struct {
	chunk.Chunk
	Embedding []float32
	Input     int
}

// Embedder batches chunks through a Provider.
type Embedder struct {
	provider   Provider
	batchSize  int
	maxRetries int
	retryDelay time.Duration
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// New creates an Embedder around the given provider.
func New(provider Provider, cfg Config, logger *slog.Logger) (*Embedder, error) {
	if provider == nil {
		return nil, fmt.Errorf("provider is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = DefaultRetryDelay
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &Embedder{
		provider:   provider,
		batchSize:  batchSize,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
		limiter:    limiter,
		logger:     logger,
	}, nil
}

// Dimension reports the provider's vector dimensionality.
func (e *Embedder) Dimension() int { return e.provider.Dimension() }

// EmbedChunks embeds every chunk, preserving input order. Batches run
// sequentially; if a batch exhausts its retries the whole call aborts so a
// provider outage is not paid for once per remaining batch. A chunk whose
// vector comes back missing is logged and dropped rather than paired with a
// wrong neighbor.
func (e *Embedder) EmbedChunks(ctx context.Context, chunks []chunk.Chunk) ([]Embedded, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	out := make([]Embedded, 0, len(chunks))
	for start := 0; start < len(chunks); start += e.batchSize {
		end := min(start+e.batchSize, len(chunks))
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, ch := range batch {
			texts[i] = ch.Content
		}

		vectors, err := e.embedBatch(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embedding batch at offset %d: %w", start, err)
		}

		if len(vectors) != len(batch) {
			e.logger.Warn("provider returned misaligned batch",
				"want", len(batch), "got", len(vectors), "offset", start)
		}
		for i, ch := range batch {
			if i >= len(vectors) || len(vectors[i]) == 0 {
				e.logger.Warn("dropping chunk without embedding",
					"title", ch.Title, "index", ch.Index)
				continue
			}
			out = append(out, Embedded{Chunk: ch, Embedding: vectors[i], Input: start + i})
		}

		e.logger.Debug("embedded batch",
			"count", len(batch), "dimension", e.provider.Dimension(), "offset", start)
	}
	return out, nil
}

// EmbedQuery embeds a single query string.
func (e *Embedder) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	vectors, err := e.embedBatch(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, fmt.Errorf("provider returned no embedding for query")
	}
	return vectors[0], nil
}

// embedBatch is one provider call with rate limiting and retry. The backoff
// doubles after each failure: delay, 2*delay, 4*delay, and so on.
func (e *Embedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error
	for attempt := 1; attempt <= e.maxRetries; attempt++ {
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("waiting for rate limiter: %w", err)
			}
		}

		vectors, err := e.provider.Embed(ctx, texts)
		if err == nil {
			return vectors, nil
		}
		lastErr = err

		if attempt == e.maxRetries {
			break
		}
		backoff := e.retryDelay << (attempt - 1)
		e.logger.Warn("embedding attempt failed",
			"attempt", attempt, "max_retries", e.maxRetries,
			"backoff", backoff, "error", err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
	return nil, fmt.Errorf("%w: %d attempts exhausted: %v",
		store.ErrRateLimited, e.maxRetries, lastErr)
}
