// Package pipeline drives one ingestion run: raw documents are chunked,
// embedded in batches, and upserted to storage, with job progress recorded
// between batches so a run can be observed and cancelled while in flight.
// Content already indexed under any version keeps its stored embedding
// instead of paying for another provider call.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/docdex/docdex/internal/chunk"
	"github.com/docdex/docdex/internal/embed"
	"github.com/docdex/docdex/internal/store"
)

// DefaultBatchSize is the number of chunks processed per storage batch.
const DefaultBatchSize = 100

// Storage is the slice of the store the pipeline needs.
type Storage interface {
	GetVersion(ctx context.Context, id uuid.UUID) (*store.Version, error)
	UpdateVersion(ctx context.Context, v *store.Version) error
	CreateJob(ctx context.Context, job *store.IndexingJob) error
	GetJob(ctx context.Context, id uuid.UUID) (*store.IndexingJob, error)
	UpdateJob(ctx context.Context, job *store.IndexingJob) error
	GetDocumentByHash(ctx context.Context, hash string) (*store.Document, error)
	IndexDocuments(ctx context.Context, docs []*store.Document) error
}

// Embedder turns chunks into vectors.
type Embedder interface {
	EmbedChunks(ctx context.Context, chunks []chunk.Chunk) ([]embed.Embedded, error)
}

// Request describes one ingestion run.
type Request struct {
	LibraryID  uuid.UUID
	VersionID  uuid.UUID
	SourceType string
	Documents  []chunk.RawDocument
}

// Result summarizes a finished run.
type Result struct {
	JobID     uuid.UUID
	Success   bool
	Cancelled bool
	// Indexed counts chunks written this run; Reused counts the subset
	// stored with an embedding copied from previously indexed identical
	// content instead of a fresh provider call.
	Indexed int
	Reused  int
	Error   string
}

// Config controls batching.
type Config struct {
	BatchSize int
}

// Pipeline runs ingestion jobs.
type Pipeline struct {
	storage   Storage
	chunker   *chunk.Chunker
	embedder  Embedder
	batchSize int
	logger    *slog.Logger
}

// New creates a Pipeline.
func New(storage Storage, chunker *chunk.Chunker, embedder Embedder, cfg Config, logger *slog.Logger) (*Pipeline, error) {
	if storage == nil || chunker == nil || embedder == nil {
		return nil, fmt.Errorf("storage, chunker, and embedder are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Pipeline{
		storage:   storage,
		chunker:   chunker,
		embedder:  embedder,
		batchSize: batchSize,
		logger:    logger,
	}, nil
}

// Run executes one ingestion job to completion. The job record moves
// pending -> processing -> completed or failed; a job cancelled from outside
// stops at the next batch boundary without further embedding calls. Run
// returns an error only for failures before the job exists; afterwards
// failures land in the job record and the Result.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	if req.LibraryID == uuid.Nil || req.VersionID == uuid.Nil {
		return nil, fmt.Errorf("%w: library and version ids are required", store.ErrValidation)
	}
	if len(req.Documents) == 0 {
		return nil, fmt.Errorf("%w: no documents to index", store.ErrValidation)
	}

	chunks := p.chunker.ChunkDocuments(req.Documents)

	job := &store.IndexingJob{
		LibraryID:      req.LibraryID,
		VersionID:      req.VersionID,
		Status:         store.JobPending,
		TotalDocuments: len(chunks),
	}
	if err := p.storage.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("creating indexing job: %w", err)
	}

	now := time.Now().UTC()
	job.Status = store.JobProcessing
	job.StartedAt = &now
	if err := p.storage.UpdateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("starting indexing job: %w", err)
	}

	p.logger.Info("indexing run started",
		"job_id", job.ID, "library_id", req.LibraryID,
		"version_id", req.VersionID, "chunks", len(chunks))

	result := &Result{JobID: job.ID}
	for start := 0; start < len(chunks); start += p.batchSize {
		if cancelled, err := p.jobCancelled(ctx, job.ID); err != nil {
			return p.fail(ctx, job, result, err)
		} else if cancelled {
			p.logger.Info("indexing run cancelled", "job_id", job.ID, "indexed", result.Indexed)
			result.Cancelled = true
			return result, nil
		}

		end := min(start+p.batchSize, len(chunks))
		indexed, reused, err := p.processBatch(ctx, req, chunks[start:end], start)
		if err != nil {
			return p.fail(ctx, job, result, err)
		}
		result.Indexed += indexed
		result.Reused += reused

		job.ProcessedDocuments = end
		if err := p.storage.UpdateJob(ctx, job); err != nil {
			return p.fail(ctx, job, result, err)
		}
	}

	done := time.Now().UTC()
	job.Status = store.JobCompleted
	job.CompletedAt = &done
	if err := p.storage.UpdateJob(ctx, job); err != nil {
		return result, fmt.Errorf("completing indexing job: %w", err)
	}

	if err := p.markVersionIndexed(ctx, req.VersionID, result.Indexed); err != nil {
		p.logger.Warn("updating version after run", "version_id", req.VersionID, "error", err)
	}

	result.Success = true
	p.logger.Info("indexing run completed",
		"job_id", job.ID, "indexed", result.Indexed, "reused", result.Reused)
	return result, nil
}

// processBatch embeds and stores one batch of chunks. A chunk whose content
// hash is already indexed keeps the stored embedding instead of calling the
// provider again, but is still upserted under the requested library and
// version. offset is the batch's position in the run, used for global chunk
// indexes.
func (p *Pipeline) processBatch(ctx context.Context, req Request, batch []chunk.Chunk, offset int) (indexed, reused int, err error) {
	docs := make([]*store.Document, len(batch))
	fresh := make([]chunk.Chunk, 0, len(batch))
	slots := make([]int, 0, len(batch))
	for i, ch := range batch {
		prior, err := p.storage.GetDocumentByHash(ctx, store.HashContent(ch.Content))
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return 0, 0, fmt.Errorf("dedup probe: %w", err)
		}
		if prior != nil && len(prior.Embedding) > 0 {
			docs[i] = p.toDocument(req, embed.Embedded{Chunk: ch, Embedding: prior.Embedding}, offset+i)
			reused++
			continue
		}
		fresh = append(fresh, ch)
		slots = append(slots, i)
	}

	if len(fresh) > 0 {
		embedded, err := p.embedder.EmbedChunks(ctx, fresh)
		if err != nil {
			return 0, 0, fmt.Errorf("embedding batch: %w", err)
		}
		// The embedder may drop chunks, so survivors are matched back to
		// their slot by input position, never by output position.
		for _, emb := range embedded {
			i := slots[emb.Input]
			docs[i] = p.toDocument(req, emb, offset+i)
		}
	}

	out := docs[:0]
	for _, doc := range docs {
		if doc != nil {
			out = append(out, doc)
		}
	}
	if len(out) == 0 {
		return 0, reused, nil
	}
	if err := p.storage.IndexDocuments(ctx, out); err != nil {
		return 0, 0, fmt.Errorf("storing batch: %w", err)
	}
	return len(out), reused, nil
}

func (p *Pipeline) toDocument(req Request, emb embed.Embedded, index int) *store.Document {
	hasCode, codeLang := store.DetectCode(emb.Content)
	return &store.Document{
		ID:          store.DocumentID(req.LibraryID, req.VersionID, index),
		LibraryID:   req.LibraryID,
		VersionID:   req.VersionID,
		Title:       emb.Title,
		Content:     emb.Content,
		ContentHash: store.HashContent(emb.Content),
		Embedding:   emb.Embedding,
		ChunkIndex:  index,
		Hierarchy:   emb.Hierarchy,
		SourceURL:   emb.URL,
		SourceType:  req.SourceType,
		HasCode:     hasCode,
		CodeLang:    codeLang,
		Metadata:    emb.Metadata,
	}
}

func (p *Pipeline) jobCancelled(ctx context.Context, jobID uuid.UUID) (bool, error) {
	current, err := p.storage.GetJob(ctx, jobID)
	if err != nil {
		return false, fmt.Errorf("checking job status: %w", err)
	}
	return current.Status == store.JobCancelled, nil
}

// fail marks the job failed and folds the error into the result. The write
// uses a fresh context so a cancelled ctx still records the failure.
func (p *Pipeline) fail(ctx context.Context, job *store.IndexingJob, result *Result, cause error) (*Result, error) {
	now := time.Now().UTC()
	job.Status = store.JobFailed
	job.Error = cause.Error()
	job.CompletedAt = &now
	job.FailedDocuments = job.TotalDocuments - job.ProcessedDocuments
	if err := p.storage.UpdateJob(context.WithoutCancel(ctx), job); err != nil {
		p.logger.Error("recording job failure", "job_id", job.ID, "error", err)
	}

	result.Error = cause.Error()
	p.logger.Error("indexing run failed", "job_id", job.ID, "error", cause)
	return result, nil
}

func (p *Pipeline) markVersionIndexed(ctx context.Context, versionID uuid.UUID, indexed int) error {
	v, err := p.storage.GetVersion(ctx, versionID)
	if err != nil {
		return err
	}
	// Document ids are stable per chunk position, so a completed run's
	// write count is the version's document count.
	v.DocumentCount = indexed
	if v.IndexedAt.IsZero() {
		v.IndexedAt = time.Now().UTC()
	}
	return p.storage.UpdateVersion(ctx, v)
}
