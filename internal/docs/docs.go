// Package docs is the retrieval layer behind the tool surface: it resolves
// human library names to identifiers, fetches ranked documentation excerpts
// under a token budget, and lists indexed versions. Domain misses (unknown
// library, unknown version) come back as structured results with error
// codes, not Go errors; the transport above maps only real failures to
// protocol errors.
package docs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/docdex/docdex/internal/store"
)

// Error codes returned in structured results.
const (
	CodeLibraryNotFound   = "library-not-found"
	CodeVersionNotFound   = "version-not-found"
	CodeInvalidIdentifier = "invalid-identifier"
	CodeInternalError     = "internal-error"
)

// Token budget defaults. Excerpt length is approximated at four characters
// per token.
const (
	DefaultTokens    = 5000
	DefaultMaxTokens = 50000
	charsPerToken    = 4
	charsPerResult   = 300
	maxResults       = 50
)

// Storage is the slice of the store the service reads from.
type Storage interface {
	GetLibraryByIdentifier(ctx context.Context, identifier string) (*store.Library, error)
	SearchLibraries(ctx context.Context, name string, limit int) ([]*store.Library, error)
	GetVersionByString(ctx context.Context, libraryID uuid.UUID, versionString string) (*store.Version, error)
	GetLatestVersion(ctx context.Context, libraryID uuid.UUID) (*store.Version, error)
	ListVersions(ctx context.Context, libraryID uuid.UUID) ([]*store.Version, error)
	HybridSearch(ctx context.Context, opts store.SearchOptions) ([]store.SearchResult, error)
}

// QueryEmbedder embeds query text for the vector half of hybrid search.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, query string) ([]float32, error)
}

// Options tunes budgets.
type Options struct {
	// DefaultTokens applies when a request carries no budget.
	DefaultTokens int
	// MaxTokens caps any requested budget.
	MaxTokens int
}

// Service answers documentation queries.
type Service struct {
	storage  Storage
	embedder QueryEmbedder
	opts     Options
	logger   *slog.Logger
}

// New creates a Service.
func New(storage Storage, embedder QueryEmbedder, opts Options, logger *slog.Logger) (*Service, error) {
	if storage == nil || embedder == nil {
		return nil, fmt.Errorf("storage and embedder are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.DefaultTokens <= 0 {
		opts.DefaultTokens = DefaultTokens
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	return &Service{storage: storage, embedder: embedder, opts: opts, logger: logger}, nil
}

// Identifier is a parsed "/org/project" or "/org/project/version" path.
type Identifier struct {
	Org     string
	Project string
	Version string
}

// String returns the canonical "/org/project" form without the version.
func (id Identifier) String() string {
	return store.MakeIdentifier(id.Org, id.Project)
}

// ParseIdentifier splits a library identifier path. The leading slash is
// required; a third segment is an optional version pin.
func ParseIdentifier(raw string) (Identifier, error) {
	if !strings.HasPrefix(raw, "/") {
		return Identifier{}, fmt.Errorf("%w: identifier %q must start with '/'", store.ErrValidation, raw)
	}
	parts := strings.Split(strings.Trim(raw, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return Identifier{}, fmt.Errorf("%w: identifier %q needs at least /org/project", store.ErrValidation, raw)
	}
	if len(parts) > 3 {
		return Identifier{}, fmt.Errorf("%w: identifier %q has too many segments", store.ErrValidation, raw)
	}

	id := Identifier{Org: parts[0], Project: parts[1]}
	if len(parts) == 3 {
		id.Version = parts[2]
	}
	return id, nil
}

// LibraryMatch is one candidate returned by Resolve.
type LibraryMatch struct {
	Identifier    string   `json:"identifier"`
	Name          string   `json:"name"`
	Description   string   `json:"description,omitempty"`
	TrustScore    int      `json:"trustScore"`
	LatestVersion string   `json:"latestVersion,omitempty"`
	Versions      []string `json:"versions,omitempty"`
}

// ResolveResult lists candidate libraries for a name.
type ResolveResult struct {
	Query     string         `json:"query"`
	Matches   []LibraryMatch `json:"matches"`
	ErrorCode string         `json:"errorCode,omitempty"`
	Message   string         `json:"message,omitempty"`
}

// Resolve finds libraries matching a human-readable name, best first. An
// empty match set is a structured miss, not an error.
func (s *Service) Resolve(ctx context.Context, name string) (*ResolveResult, error) {
	result := &ResolveResult{Query: name}
	if strings.TrimSpace(name) == "" {
		result.ErrorCode = CodeInvalidIdentifier
		result.Message = "library name is required"
		return result, nil
	}

	libs, err := s.storage.SearchLibraries(ctx, strings.TrimSpace(name), DefaultSearchLimit)
	if err != nil {
		return nil, fmt.Errorf("resolving %q: %w", name, err)
	}
	if len(libs) == 0 {
		result.ErrorCode = CodeLibraryNotFound
		result.Message = fmt.Sprintf("no library matches %q; try the full /org/project identifier", name)
		return result, nil
	}

	for _, lib := range libs {
		match := LibraryMatch{
			Identifier:  lib.Identifier,
			Name:        lib.Name,
			Description: lib.Description,
			TrustScore:  lib.TrustScore,
		}
		versions, err := s.storage.ListVersions(ctx, lib.ID)
		if err != nil {
			s.logger.Warn("listing versions during resolve",
				"identifier", lib.Identifier, "error", err)
		}
		for _, v := range versions {
			match.Versions = append(match.Versions, v.VersionString)
			if v.IsLatest {
				match.LatestVersion = v.VersionString
			}
		}
		result.Matches = append(result.Matches, match)
	}

	s.logger.Debug("resolved library name", "query", name, "matches", len(result.Matches))
	return result, nil
}

// DocsResult carries formatted documentation excerpts.
type DocsResult struct {
	LibraryID         string   `json:"libraryId"`
	Version           string   `json:"version,omitempty"`
	Topic             string   `json:"topic,omitempty"`
	Content           string   `json:"content,omitempty"`
	ResultCount       int      `json:"resultCount"`
	ApproxTokens      int      `json:"approxTokens"`
	TokenBudget       int      `json:"tokenBudget,omitempty"`
	AvailableVersions []string `json:"availableVersions,omitempty"`
	ErrorCode         string   `json:"errorCode,omitempty"`
	Message           string   `json:"message,omitempty"`
}

// GetDocs fetches ranked excerpts for a library, optionally narrowed by
// topic and pinned to a version, within a token budget.
func (s *Service) GetDocs(ctx context.Context, libraryID, topic string, tokens int) (*DocsResult, error) {
	result := &DocsResult{LibraryID: libraryID, Topic: topic}

	id, err := ParseIdentifier(libraryID)
	if err != nil {
		result.ErrorCode = CodeInvalidIdentifier
		result.Message = err.Error()
		return result, nil
	}

	lib, err := s.storage.GetLibraryByIdentifier(ctx, id.String())
	if errors.Is(err, store.ErrNotFound) {
		result.ErrorCode = CodeLibraryNotFound
		result.Message = fmt.Sprintf("library %s is not indexed", id.String())
		return result, nil
	}
	if err != nil {
		return nil, fmt.Errorf("looking up %s: %w", id.String(), err)
	}

	version, versions, miss, err := s.pickVersion(ctx, lib.ID, id.Version)
	if err != nil {
		return nil, err
	}
	if miss {
		result.ErrorCode = CodeVersionNotFound
		result.AvailableVersions = versions
		switch {
		case id.Version != "":
			result.Message = fmt.Sprintf("version %s of %s is not indexed", id.Version, id.String())
		case len(versions) > 0:
			result.Message = fmt.Sprintf("no version of %s is marked latest", id.String())
		default:
			result.Message = fmt.Sprintf("no indexed versions for %s", id.String())
		}
		return result, nil
	}
	result.Version = version.VersionString

	tokens = s.clampTokens(tokens)
	result.TokenBudget = tokens
	query := strings.TrimSpace(topic)
	if query == "" {
		query = lib.Name
	}

	matches, err := s.search(ctx, query, store.SearchFilter{
		LibraryID: &lib.ID,
		VersionID: &version.ID,
	}, budgetLimit(tokens))
	if err != nil {
		return nil, fmt.Errorf("searching docs for %s: %w", id.String(), err)
	}

	result.Content, result.ResultCount = formatResults(matches, tokens*charsPerToken)
	result.ApproxTokens = approxTokens(result.Content)

	s.logger.Debug("fetched docs",
		"library", id.String(), "version", version.VersionString,
		"topic", topic, "results", result.ResultCount, "approx_tokens", result.ApproxTokens)
	return result, nil
}

// VersionInfo is one indexed version in a VersionsResult.
type VersionInfo struct {
	Version       string    `json:"version"`
	IsLatest      bool      `json:"isLatest"`
	IsDeprecated  bool      `json:"isDeprecated,omitempty"`
	DocumentCount int       `json:"documentCount"`
	IndexedAt     time.Time `json:"indexedAt,omitzero"`
}

// VersionsResult lists a library's indexed versions.
type VersionsResult struct {
	LibraryID string        `json:"libraryId"`
	Versions  []VersionInfo `json:"versions"`
	ErrorCode string        `json:"errorCode,omitempty"`
	Message   string        `json:"message,omitempty"`
}

// ListVersions returns every indexed version of a library, newest first.
func (s *Service) ListVersions(ctx context.Context, libraryID string) (*VersionsResult, error) {
	result := &VersionsResult{LibraryID: libraryID}

	id, err := ParseIdentifier(libraryID)
	if err != nil {
		result.ErrorCode = CodeInvalidIdentifier
		result.Message = err.Error()
		return result, nil
	}

	lib, err := s.storage.GetLibraryByIdentifier(ctx, id.String())
	if errors.Is(err, store.ErrNotFound) {
		result.ErrorCode = CodeLibraryNotFound
		result.Message = fmt.Sprintf("library %s is not indexed", id.String())
		return result, nil
	}
	if err != nil {
		return nil, fmt.Errorf("looking up %s: %w", id.String(), err)
	}

	versions, err := s.storage.ListVersions(ctx, lib.ID)
	if err != nil {
		return nil, fmt.Errorf("listing versions for %s: %w", id.String(), err)
	}
	for _, v := range versions {
		result.Versions = append(result.Versions, VersionInfo{
			Version:       v.VersionString,
			IsLatest:      v.IsLatest,
			IsDeprecated:  v.IsDeprecated,
			DocumentCount: v.DocumentCount,
			IndexedAt:     v.IndexedAt,
		})
	}
	return result, nil
}

// SearchFilters narrows a cross-library search.
type SearchFilters struct {
	LibraryID  string `json:"libraryId,omitempty"`
	Version    string `json:"version,omitempty"`
	SourceType string `json:"sourceType,omitempty"`
}

// SearchHit is one ranked excerpt.
type SearchHit struct {
	Title     string   `json:"title"`
	Excerpt   string   `json:"excerpt"`
	Score     float64  `json:"score"`
	Hierarchy []string `json:"hierarchy,omitempty"`
	SourceURL string   `json:"sourceUrl,omitempty"`
	LibraryID string   `json:"libraryId,omitempty"`
}

// SearchResults is the response to a free-form search.
type SearchResults struct {
	Query     string      `json:"query"`
	Total     int         `json:"total"`
	Results   []SearchHit `json:"results"`
	ErrorCode string      `json:"errorCode,omitempty"`
	Message   string      `json:"message,omitempty"`
}

// Search runs a free-form hybrid query, optionally filtered. Zero matches is
// a valid empty result.
func (s *Service) Search(ctx context.Context, query string, filters SearchFilters, limit int) (*SearchResults, error) {
	result := &SearchResults{Query: query}
	if strings.TrimSpace(query) == "" {
		result.ErrorCode = CodeInvalidIdentifier
		result.Message = "search query is required"
		return result, nil
	}
	if limit <= 0 || limit > maxResults {
		limit = DefaultSearchLimit
	}

	filter, miss, err := s.buildFilter(ctx, filters)
	if err != nil {
		return nil, err
	}
	if miss != nil {
		result.ErrorCode = miss.code
		result.Message = miss.message
		return result, nil
	}

	matches, err := s.search(ctx, query, filter, limit)
	if err != nil {
		return nil, fmt.Errorf("searching %q: %w", query, err)
	}

	for _, m := range matches {
		result.Results = append(result.Results, SearchHit{
			Title:     m.Document.Title,
			Excerpt:   excerpt(m.Document.Content, charsPerResult),
			Score:     m.Score,
			Hierarchy: m.Document.Hierarchy,
			SourceURL: m.Document.SourceURL,
		})
	}
	result.Total = len(result.Results)
	return result, nil
}

// DefaultSearchLimit applies to free-form searches without a limit.
const DefaultSearchLimit = 10

type domainMiss struct {
	code    string
	message string
}

// buildFilter resolves filter identifiers to storage ids. A filter naming an
// unknown library or version is a domain miss.
func (s *Service) buildFilter(ctx context.Context, filters SearchFilters) (store.SearchFilter, *domainMiss, error) {
	filter := store.SearchFilter{SourceType: filters.SourceType}
	if filters.LibraryID == "" {
		return filter, nil, nil
	}

	id, err := ParseIdentifier(filters.LibraryID)
	if err != nil {
		return filter, &domainMiss{CodeInvalidIdentifier, err.Error()}, nil
	}
	lib, err := s.storage.GetLibraryByIdentifier(ctx, id.String())
	if errors.Is(err, store.ErrNotFound) {
		return filter, &domainMiss{CodeLibraryNotFound,
			fmt.Sprintf("library %s is not indexed", id.String())}, nil
	}
	if err != nil {
		return filter, nil, fmt.Errorf("looking up filter library: %w", err)
	}
	filter.LibraryID = &lib.ID

	pin := filters.Version
	if pin == "" {
		pin = id.Version
	}
	if pin != "" {
		v, err := s.storage.GetVersionByString(ctx, lib.ID, pin)
		if errors.Is(err, store.ErrNotFound) {
			return filter, &domainMiss{CodeVersionNotFound,
				fmt.Sprintf("version %s of %s is not indexed", pin, id.String())}, nil
		}
		if err != nil {
			return filter, nil, fmt.Errorf("looking up filter version: %w", err)
		}
		filter.VersionID = &v.ID
	}
	return filter, nil, nil
}

// pickVersion selects the explicit version when pinned, otherwise the one
// flagged latest. miss is true when neither resolves; versions then carries
// what is available.
func (s *Service) pickVersion(ctx context.Context, libraryID uuid.UUID, pin string) (*store.Version, []string, bool, error) {
	if pin != "" {
		v, err := s.storage.GetVersionByString(ctx, libraryID, pin)
		if err == nil {
			return v, nil, false, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, nil, false, fmt.Errorf("looking up version %s: %w", pin, err)
		}
		available, listErr := s.availableVersions(ctx, libraryID)
		if listErr != nil {
			return nil, nil, false, listErr
		}
		return nil, available, true, nil
	}

	v, err := s.storage.GetLatestVersion(ctx, libraryID)
	if err == nil {
		return v, nil, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, nil, false, fmt.Errorf("looking up latest version: %w", err)
	}

	available, err := s.availableVersions(ctx, libraryID)
	if err != nil {
		return nil, nil, false, err
	}
	return nil, available, true, nil
}

func (s *Service) availableVersions(ctx context.Context, libraryID uuid.UUID) ([]string, error) {
	versions, err := s.storage.ListVersions(ctx, libraryID)
	if err != nil {
		return nil, fmt.Errorf("listing versions: %w", err)
	}
	out := make([]string, len(versions))
	for i, v := range versions {
		out[i] = v.VersionString
	}
	return out, nil
}

// search embeds the query and runs hybrid retrieval.
func (s *Service) search(ctx context.Context, query string, filter store.SearchFilter, limit int) ([]store.SearchResult, error) {
	embedding, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	return s.storage.HybridSearch(ctx, store.SearchOptions{
		Query:     query,
		Embedding: embedding,
		Limit:     limit,
		Filter:    filter,
	})
}

func (s *Service) clampTokens(tokens int) int {
	if tokens <= 0 {
		return s.opts.DefaultTokens
	}
	if tokens > s.opts.MaxTokens {
		return s.opts.MaxTokens
	}
	return tokens
}

// budgetLimit derives a result count from a token budget, assuming
// charsPerResult characters of useful excerpt per hit.
func budgetLimit(tokens int) int {
	limit := tokens / charsPerResult
	if limit < 1 {
		limit = 1
	}
	if limit > maxResults {
		limit = maxResults
	}
	return limit
}

func approxTokens(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + charsPerToken - 1) / charsPerToken
}
