// Package store defines the storage contract shared by both docdex backends:
// PostgreSQL with pgvector (internal/store/postgres) and Qdrant
// (internal/store/qdrant). Shared helpers (content hashing, fenced-code
// detection, version normalization) live here so the backends stay
// behaviorally identical.
package store

import (
	"context"

	"github.com/google/uuid"
)

// Default hybrid ranking weights. The blend is configurable per query via
// SearchOptions; these defaults apply when both weights are zero.
const (
	DefaultVectorWeight = 0.7
	DefaultTextWeight   = 0.3
)

// SearchFilter restricts a search to a library, version, or source type.
// Nil/empty fields do not filter.
type SearchFilter struct {
	LibraryID  *uuid.UUID
	VersionID  *uuid.UUID
	SourceType string
}

// SearchOptions configures the three search modes.
type SearchOptions struct {
	// Query is the lexical query text (full-text and hybrid modes).
	Query string

	// Embedding is the query vector (vector and hybrid modes).
	Embedding []float32

	// Limit caps the number of results. Backends apply a sane default when 0.
	Limit int

	// Filter restricts the search scope.
	Filter SearchFilter

	// Threshold drops results whose score falls below it (0 = no threshold).
	Threshold float64

	// VectorWeight and TextWeight control hybrid blending. When both are
	// zero, DefaultVectorWeight/DefaultTextWeight apply.
	VectorWeight float64
	TextWeight   float64
}

// Weights resolves the effective hybrid blend.
func (o SearchOptions) Weights() (vector, text float64) {
	if o.VectorWeight == 0 && o.TextWeight == 0 {
		return DefaultVectorWeight, DefaultTextWeight
	}
	return o.VectorWeight, o.TextWeight
}

// SearchResult is one scored document.
type SearchResult struct {
	Document Document
	Score    float64
}

// Store is the system of record for libraries, versions, documents, and
// indexing jobs, with three query modes over documents.
//
// Every method returns an error wrapping exactly one sentinel from
// errors.go; no call panics across the boundary. Batch operations either
// fully succeed or report failure, never a silent partial drop.
// The Store does not retry; callers decide. Implementations must tolerate
// concurrent writers through the backend's native transaction semantics.
type Store interface {
	// Initialize verifies connectivity and prepares the backend for use.
	Initialize(ctx context.Context) error
	// Close releases the backend connection.
	Close() error
	// HealthCheck probes the backend.
	HealthCheck(ctx context.Context) error
	// Stats reports row counts.
	Stats(ctx context.Context) (*Stats, error)
	// Migrate applies pending schema changes idempotently.
	Migrate(ctx context.Context) error

	CreateLibrary(ctx context.Context, lib *Library) error
	GetLibrary(ctx context.Context, id uuid.UUID) (*Library, error)
	GetLibraryByIdentifier(ctx context.Context, identifier string) (*Library, error)
	// SearchLibraries fuzzy-matches name against library names and
	// identifiers, ordered by trust score descending.
	SearchLibraries(ctx context.Context, name string, limit int) ([]*Library, error)
	UpdateLibrary(ctx context.Context, lib *Library) error
	// DeleteLibrary cascades to the library's versions and their documents.
	DeleteLibrary(ctx context.Context, id uuid.UUID) error

	CreateVersion(ctx context.Context, v *Version) error
	GetVersion(ctx context.Context, id uuid.UUID) (*Version, error)
	GetVersionByString(ctx context.Context, libraryID uuid.UUID, versionString string) (*Version, error)
	// GetLatestVersion returns the version with IsLatest set.
	GetLatestVersion(ctx context.Context, libraryID uuid.UUID) (*Version, error)
	ListVersions(ctx context.Context, libraryID uuid.UUID) ([]*Version, error)
	UpdateVersion(ctx context.Context, v *Version) error
	// DeleteVersion cascades to the version's documents.
	DeleteVersion(ctx context.Context, id uuid.UUID) error

	// DocumentExistsByHash is the O(1) dedup probe run before insert.
	DocumentExistsByHash(ctx context.Context, hash string) (bool, error)
	// GetDocumentByHash returns a stored document carrying the given
	// content hash, embedding included, or ErrNotFound. Ingestion reuses
	// the embedding so unchanged content never pays for another provider
	// call.
	GetDocumentByHash(ctx context.Context, hash string) (*Document, error)
	// IndexDocument upserts by document id, embedding included.
	IndexDocument(ctx context.Context, doc *Document) error
	// IndexDocuments upserts a batch atomically.
	IndexDocuments(ctx context.Context, docs []*Document) error
	GetDocument(ctx context.Context, id uuid.UUID) (*Document, error)
	DeleteDocument(ctx context.Context, id uuid.UUID) error

	// VectorSearch returns nearest neighbors by cosine similarity.
	VectorSearch(ctx context.Context, opts SearchOptions) ([]SearchResult, error)
	// FullTextSearch performs lexical matching over title and content.
	FullTextSearch(ctx context.Context, opts SearchOptions) ([]SearchResult, error)
	// HybridSearch blends vector and lexical signals by weighted sum.
	HybridSearch(ctx context.Context, opts SearchOptions) ([]SearchResult, error)

	CreateJob(ctx context.Context, job *IndexingJob) error
	GetJob(ctx context.Context, id uuid.UUID) (*IndexingJob, error)
	UpdateJob(ctx context.Context, job *IndexingJob) error
	ListJobs(ctx context.Context, libraryID uuid.UUID, limit int) ([]*IndexingJob, error)
}
