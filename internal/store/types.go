package store

import (
	"time"

	"github.com/google/uuid"
)

// Library is a documented project identified by "/org/project".
// The identifier is computed once at creation and never recomputed unless
// org/project change explicitly.
type Library struct {
	ID            uuid.UUID
	Org           string
	Project       string
	Name          string
	Identifier    string
	RepositoryURL string
	HomepageURL   string
	Description   string
	TrustScore    int // 1-10 ranking signal for ambiguous name matches
	Metadata      map[string]string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// MakeIdentifier builds the deterministic "/org/project" identifier.
func MakeIdentifier(org, project string) string {
	return "/" + org + "/" + project
}

// Version is one indexed release of a library.
//
// Invariant: at most one Version per library has IsLatest set. Flipping it
// off the previous holder is the caller's responsibility.
type Version struct {
	ID                uuid.UUID
	LibraryID         uuid.UUID
	VersionString     string // raw, e.g. "v18.2.0" or "latest"
	VersionNormalized string // zero-padded semver for lexicographic ordering
	GitCommitSHA      string
	ReleaseDate       *time.Time
	IsLatest          bool
	IsDeprecated      bool
	DocumentCount     int
	IndexedAt         time.Time // zero until the first successful indexing run
	UpdatedAt         time.Time
}

// IsReadyForIndexing reports whether this version should be picked up by the
// ingestion pipeline: not deprecated and never indexed before.
func (v *Version) IsReadyForIndexing() bool {
	return !v.IsDeprecated && v.IndexedAt.IsZero()
}

// Document is a single retrieval-sized chunk of a source document.
type Document struct {
	ID          uuid.UUID
	LibraryID   uuid.UUID
	VersionID   uuid.UUID
	Title       string
	Content     string
	ContentHash string    // sha256 hex of Content, dedup key
	Embedding   []float32 // empty = not yet embedded
	ChunkIndex  int
	Hierarchy   []string // enclosing header titles, root to leaf
	SourceURL   string
	SourceType  string
	SourcePath  string
	Language    string
	HasCode     bool
	CodeLang    string
	Metadata    map[string]string
	IndexedAt   time.Time
	UpdatedAt   time.Time
}

// JobStatus is the lifecycle state of an IndexingJob.
type JobStatus string

// Job statuses. Transitions: pending -> processing -> {completed|failed};
// cancellation is allowed from any pre-terminal state.
const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
	JobCancelled  JobStatus = "cancelled"
)

// Valid reports whether s is a known job status.
func (s JobStatus) Valid() bool {
	switch s {
	case JobPending, JobProcessing, JobCompleted, JobFailed, JobCancelled:
		return true
	}
	return false
}

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobCompleted, JobFailed, JobCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether moving from s to next is a legal
// state-machine step.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	if s.Terminal() {
		return false
	}
	switch s {
	case JobPending:
		return next == JobProcessing || next == JobCancelled
	case JobProcessing:
		return next == JobCompleted || next == JobFailed || next == JobCancelled
	}
	return false
}

// IndexingJob tracks the progress of one ingestion run.
type IndexingJob struct {
	ID                 uuid.UUID
	LibraryID          uuid.UUID
	VersionID          uuid.UUID
	Status             JobStatus
	TotalDocuments     int
	ProcessedDocuments int
	FailedDocuments    int
	Error              string
	StartedAt          *time.Time
	CompletedAt        *time.Time
	Metadata           map[string]string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Stats summarizes backend row counts for health reporting.
type Stats struct {
	Libraries int64
	Versions  int64
	Documents int64
	Jobs      int64
}
