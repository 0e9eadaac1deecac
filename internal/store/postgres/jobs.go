package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/docdex/docdex/internal/store"
)

const jobColumns = `id, library_id, version_id, status, total_documents,
	processed_documents, failed_documents, error, started_at, completed_at,
	metadata, created_at, updated_at`

// CreateJob inserts a new indexing job in pending state.
func (s *Store) CreateJob(ctx context.Context, job *store.IndexingJob) error {
	if job.LibraryID == uuid.Nil || job.VersionID == uuid.Nil {
		return fmt.Errorf("%w: job requires library and version ids", store.ErrValidation)
	}
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.Status == "" {
		job.Status = store.JobPending
	}
	if !job.Status.Valid() {
		return fmt.Errorf("%w: unknown job status %q", store.ErrValidation, job.Status)
	}
	if job.Metadata == nil {
		job.Metadata = map[string]string{}
	}

	const q = `
		INSERT INTO indexing_jobs (id, library_id, version_id, status,
			total_documents, processed_documents, failed_documents, error,
			started_at, completed_at, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at`

	err := s.db.QueryRow(ctx, q,
		job.ID, job.LibraryID, job.VersionID, job.Status,
		job.TotalDocuments, job.ProcessedDocuments, job.FailedDocuments,
		job.Error, job.StartedAt, job.CompletedAt, job.Metadata,
	).Scan(&job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return wrap("creating job", err)
	}
	return nil
}

// GetJob fetches a job by id.
func (s *Store) GetJob(ctx context.Context, id uuid.UUID) (*store.IndexingJob, error) {
	const q = `SELECT ` + jobColumns + ` FROM indexing_jobs WHERE id = $1`
	return s.scanJob(s.db.QueryRow(ctx, q, id), "getting job")
}

// UpdateJob rewrites a job's progress fields after checking the status
// transition is legal. The update is guarded on the status it was checked
// against, so a concurrent transition (a cancel landing from another
// process) is never overwritten; the write is re-checked against the fresh
// status instead.
func (s *Store) UpdateJob(ctx context.Context, job *store.IndexingJob) error {
	if !job.Status.Valid() {
		return fmt.Errorf("%w: unknown job status %q", store.ErrValidation, job.Status)
	}

	const q = `
		UPDATE indexing_jobs
		SET status = $2, total_documents = $3, processed_documents = $4,
			failed_documents = $5, error = $6, started_at = $7,
			completed_at = $8, metadata = $9, updated_at = now()
		WHERE id = $1 AND status = $10`

	for {
		current, err := s.GetJob(ctx, job.ID)
		if err != nil {
			return err
		}
		if current.Status != job.Status && !current.Status.CanTransitionTo(job.Status) {
			return fmt.Errorf("%w: job %s cannot move from %s to %s",
				store.ErrValidation, job.ID, current.Status, job.Status)
		}

		tag, err := s.db.Exec(ctx, q,
			job.ID, job.Status, job.TotalDocuments, job.ProcessedDocuments,
			job.FailedDocuments, job.Error, job.StartedAt, job.CompletedAt,
			job.Metadata, current.Status)
		if err != nil {
			return wrap("updating job", err)
		}
		if tag.RowsAffected() > 0 {
			return nil
		}
		// Status moved underneath us; re-read and re-check.
	}
}

// ListJobs returns a library's jobs, newest first.
func (s *Store) ListJobs(ctx context.Context, libraryID uuid.UUID, limit int) ([]*store.IndexingJob, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	const q = `SELECT ` + jobColumns + `
		FROM indexing_jobs WHERE library_id = $1
		ORDER BY created_at DESC LIMIT $2`

	rows, err := s.db.Query(ctx, q, libraryID, limit)
	if err != nil {
		return nil, wrap("listing jobs", err)
	}
	defer rows.Close()

	var jobs []*store.IndexingJob
	for rows.Next() {
		job, err := s.scanJob(rows, "listing jobs")
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("listing jobs", err)
	}
	return jobs, nil
}

func (s *Store) scanJob(row pgx.Row, op string) (*store.IndexingJob, error) {
	var job store.IndexingJob
	err := row.Scan(
		&job.ID, &job.LibraryID, &job.VersionID, &job.Status,
		&job.TotalDocuments, &job.ProcessedDocuments, &job.FailedDocuments,
		&job.Error, &job.StartedAt, &job.CompletedAt, &job.Metadata,
		&job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return nil, wrap(op, err)
	}
	return &job, nil
}
