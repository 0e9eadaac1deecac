// Package cmd provides the docdex CLI commands.
//
// Commands:
//   - mcp: Model Context Protocol server on stdio for editor integration
//   - index: ingest a local documentation tree into the store
//   - migrate: apply pending schema changes
//   - stats: show store row counts
//
// All long-running commands handle SIGINT/SIGTERM via context
// cancellation.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/docdex/docdex/internal/log"
)

// Execute is the main entry point for the docdex CLI.
func Execute() error {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	logger := log.New(log.Config{Level: level})
	slog.SetDefault(logger)

	if len(os.Args) < 2 {
		runHelp()
		return nil
	}

	switch os.Args[1] {
	case "mcp":
		return runMCP(logger)
	case "index":
		return runIndex(logger, os.Args[2:])
	case "migrate":
		return runMigrate(logger)
	case "stats":
		return runStats(logger)
	case "version", "--version", "-v":
		runVersion()
		return nil
	case "help", "--help", "-h":
		runHelp()
		return nil
	default:
		return fmt.Errorf("unknown command: %s", os.Args[1])
	}
}

// runHelp displays the help message.
func runHelp() {
	fmt.Println("docdex - documentation indexing and retrieval for coding agents")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  docdex mcp                            Start MCP server on stdio")
	fmt.Println("  docdex index <libraryId> <version> <dir>")
	fmt.Println("                                        Index a local documentation tree")
	fmt.Println("  docdex migrate                        Apply pending schema changes")
	fmt.Println("  docdex stats                          Show store row counts")
	fmt.Println("  docdex --version                      Show version information")
	fmt.Println("  docdex --help                         Show this help")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  docdex index /facebook/react v18.2.0 ./react-docs")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  GEMINI_API_KEY     Required for index and mcp: embedding API key")
	fmt.Println("  DATABASE_URL       Optional: overrides postgres_* config values")
	fmt.Println("  DOCDEX_BACKEND     Optional: storage backend (postgres or qdrant)")
	fmt.Println("  DEBUG              Optional: enable debug logging")
}
