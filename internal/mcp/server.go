// Package mcp exposes the documentation service over the Model Context
// Protocol. Each tool handler calls the docs service and returns its
// structured result as JSON text content. Domain misses (unknown library,
// unknown version, malformed identifier) come back as tool results flagged
// IsError with the structured payload intact; infrastructure failures are
// logged server-side and surface as an internal-error payload with no
// details attached.
package mcp

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/jsonschema-go/jsonschema"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/docdex/docdex/internal/docs"
)

// DocsService is the slice of the docs layer the tools call.
type DocsService interface {
	Resolve(ctx context.Context, name string) (*docs.ResolveResult, error)
	GetDocs(ctx context.Context, libraryID, topic string, tokens int) (*docs.DocsResult, error)
	ListVersions(ctx context.Context, libraryID string) (*docs.VersionsResult, error)
	Search(ctx context.Context, query string, filters docs.SearchFilters, limit int) (*docs.SearchResults, error)
}

// Config holds server identity.
type Config struct {
	Name    string
	Version string
}

// Server wraps the SDK server and the docs service.
type Server struct {
	mcpServer *sdk.Server
	service   DocsService
	logger    *slog.Logger
}

// NewServer creates the MCP server and registers the four tools.
func NewServer(cfg Config, service DocsService, logger *slog.Logger) (*Server, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("server name is required")
	}
	if cfg.Version == "" {
		return nil, fmt.Errorf("server version is required")
	}
	if service == nil {
		return nil, fmt.Errorf("docs service is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		mcpServer: sdk.NewServer(&sdk.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		}, nil),
		service: service,
		logger:  logger,
	}

	if err := s.registerTools(); err != nil {
		return nil, fmt.Errorf("registering tools: %w", err)
	}
	return s, nil
}

// Run serves the MCP protocol on the given transport. Blocks until the
// context is cancelled or the transport closes.
func (s *Server) Run(ctx context.Context, transport sdk.Transport) error {
	return s.mcpServer.Run(ctx, transport)
}

func (s *Server) registerTools() error {
	if err := s.registerResolveLibraryID(); err != nil {
		return err
	}
	if err := s.registerGetLibraryDocs(); err != nil {
		return err
	}
	if err := s.registerSearchDocumentation(); err != nil {
		return err
	}
	return s.registerGetLibraryVersions()
}

// ResolveLibraryIDInput is the input schema for resolve-library-id.
type ResolveLibraryIDInput struct {
	LibraryName string `json:"libraryName" jsonschema:"The library name to search for, e.g. 'react' or 'next.js'"`
}

func (s *Server) registerResolveLibraryID() error {
	inputSchema, err := jsonschema.For[ResolveLibraryIDInput](nil)
	if err != nil {
		return fmt.Errorf("creating resolve-library-id schema: %w", err)
	}

	tool := &sdk.Tool{
		Name:        "resolve-library-id",
		Description: "Resolve a human-readable library name to its canonical /org/project identifier. Returns ranked candidates with their indexed versions. Call this before get-library-docs when you only know the library's name.",
		InputSchema: inputSchema,
	}

	sdk.AddTool(s.mcpServer, tool, func(ctx context.Context, req *sdk.CallToolRequest, in ResolveLibraryIDInput) (*sdk.CallToolResult, any, error) {
		result, err := s.service.Resolve(ctx, in.LibraryName)
		if err != nil {
			s.logger.Error("resolve-library-id failed", "error", err)
			return internalError(), nil, nil
		}
		return jsonResult(result, result.ErrorCode != ""), nil, nil
	})
	return nil
}

// GetLibraryDocsInput is the input schema for get-library-docs.
type GetLibraryDocsInput struct {
	LibraryID string `json:"libraryId" jsonschema:"Canonical library identifier, /org/project or /org/project/version"`
	Topic     string `json:"topic,omitempty" jsonschema:"Optional topic to focus the documentation on, e.g. 'routing' or 'hooks'"`
	Tokens    int    `json:"tokens,omitempty" jsonschema:"Approximate token budget for the returned documentation"`
}

func (s *Server) registerGetLibraryDocs() error {
	inputSchema, err := jsonschema.For[GetLibraryDocsInput](nil)
	if err != nil {
		return fmt.Errorf("creating get-library-docs schema: %w", err)
	}

	tool := &sdk.Tool{
		Name:        "get-library-docs",
		Description: "Fetch ranked documentation excerpts for a library, optionally focused on a topic and pinned to a version, within an approximate token budget.",
		InputSchema: inputSchema,
	}

	sdk.AddTool(s.mcpServer, tool, func(ctx context.Context, req *sdk.CallToolRequest, in GetLibraryDocsInput) (*sdk.CallToolResult, any, error) {
		result, err := s.service.GetDocs(ctx, in.LibraryID, in.Topic, in.Tokens)
		if err != nil {
			s.logger.Error("get-library-docs failed", "error", err)
			return internalError(), nil, nil
		}
		return jsonResult(result, result.ErrorCode != ""), nil, nil
	})
	return nil
}

// SearchDocumentationInput is the input schema for search-documentation.
type SearchDocumentationInput struct {
	Query      string `json:"query" jsonschema:"Free-form search query"`
	LibraryID  string `json:"libraryId,omitempty" jsonschema:"Restrict results to this /org/project identifier"`
	Version    string `json:"version,omitempty" jsonschema:"Restrict results to this version of the library"`
	SourceType string `json:"sourceType,omitempty" jsonschema:"Restrict results to one source type, e.g. 'markdown'"`
	Limit      int    `json:"limit,omitempty" jsonschema:"Maximum number of results"`
}

func (s *Server) registerSearchDocumentation() error {
	inputSchema, err := jsonschema.For[SearchDocumentationInput](nil)
	if err != nil {
		return fmt.Errorf("creating search-documentation schema: %w", err)
	}

	tool := &sdk.Tool{
		Name:        "search-documentation",
		Description: "Search indexed documentation across libraries with combined semantic and keyword matching. Supports optional library, version, and source type filters.",
		InputSchema: inputSchema,
	}

	sdk.AddTool(s.mcpServer, tool, func(ctx context.Context, req *sdk.CallToolRequest, in SearchDocumentationInput) (*sdk.CallToolResult, any, error) {
		result, err := s.service.Search(ctx, in.Query, docs.SearchFilters{
			LibraryID:  in.LibraryID,
			Version:    in.Version,
			SourceType: in.SourceType,
		}, in.Limit)
		if err != nil {
			s.logger.Error("search-documentation failed", "error", err)
			return internalError(), nil, nil
		}
		return jsonResult(result, result.ErrorCode != ""), nil, nil
	})
	return nil
}

// GetLibraryVersionsInput is the input schema for get-library-versions.
type GetLibraryVersionsInput struct {
	LibraryID string `json:"libraryId" jsonschema:"Canonical library identifier, /org/project"`
}

func (s *Server) registerGetLibraryVersions() error {
	inputSchema, err := jsonschema.For[GetLibraryVersionsInput](nil)
	if err != nil {
		return fmt.Errorf("creating get-library-versions schema: %w", err)
	}

	tool := &sdk.Tool{
		Name:        "get-library-versions",
		Description: "List every indexed version of a library, newest first, with document counts and indexing timestamps.",
		InputSchema: inputSchema,
	}

	sdk.AddTool(s.mcpServer, tool, func(ctx context.Context, req *sdk.CallToolRequest, in GetLibraryVersionsInput) (*sdk.CallToolResult, any, error) {
		result, err := s.service.ListVersions(ctx, in.LibraryID)
		if err != nil {
			s.logger.Error("get-library-versions failed", "error", err)
			return internalError(), nil, nil
		}
		return jsonResult(result, result.ErrorCode != ""), nil, nil
	})
	return nil
}
