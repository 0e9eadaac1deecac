package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	mcpSDK "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/docdex/docdex/internal/config"
	"github.com/docdex/docdex/internal/docs"
	"github.com/docdex/docdex/internal/mcp"
	"github.com/docdex/docdex/internal/observability"
)

// runMCP starts the MCP server on stdio transport.
func runMCP(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownTracing := observability.Setup(ctx, observability.Config{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
	}, logger)
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("flushing traces", "error", err)
		}
	}()

	st, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := st.Initialize(ctx); err != nil {
		return fmt.Errorf("initializing store: %w", err)
	}
	if stats, err := st.Stats(ctx); err != nil {
		logger.Warn("reading store stats", "error", err)
	} else {
		logger.Info("store ready",
			"libraries", stats.Libraries, "versions", stats.Versions,
			"documents", stats.Documents, "jobs", stats.Jobs)
	}

	embedder, err := newEmbedder(ctx, cfg, logger)
	if err != nil {
		return err
	}

	service, err := docs.New(st, embedder, docs.Options{
		DefaultTokens: cfg.DefaultTokens,
		MaxTokens:     cfg.MaxTokens,
	}, logger.With("component", "docs"))
	if err != nil {
		return fmt.Errorf("creating docs service: %w", err)
	}

	server, err := mcp.NewServer(mcp.Config{
		Name:    "docdex",
		Version: Version,
	}, service, logger.With("component", "mcp"))
	if err != nil {
		return fmt.Errorf("creating MCP server: %w", err)
	}

	logger.Info("MCP server ready",
		"version", Version, "backend", cfg.Backend, "transport", "stdio")

	if err := server.Run(ctx, &mcpSDK.StdioTransport{}); err != nil {
		return fmt.Errorf("MCP server error: %w", err)
	}

	logger.Info("MCP server shut down gracefully")
	return nil
}
