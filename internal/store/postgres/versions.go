package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/docdex/docdex/internal/store"
)

const versionColumns = `id, library_id, version_string, version_normalized,
	git_commit_sha, release_date, is_latest, is_deprecated, document_count,
	indexed_at, updated_at`

// CreateVersion inserts a version, normalizing its version string. When the
// new version is marked latest, the flag moves off the previous holder in
// the same transaction.
func (s *Store) CreateVersion(ctx context.Context, v *store.Version) error {
	if v.LibraryID == uuid.Nil {
		return fmt.Errorf("%w: version requires a library id", store.ErrValidation)
	}
	if v.VersionString == "" {
		return fmt.Errorf("%w: version string is required", store.ErrValidation)
	}
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	if v.VersionNormalized == "" {
		v.VersionNormalized = store.NormalizeVersion(v.VersionString)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return wrap("creating version", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if v.IsLatest {
		if _, err := tx.Exec(ctx,
			`UPDATE versions SET is_latest = FALSE, updated_at = now()
			 WHERE library_id = $1 AND is_latest`, v.LibraryID); err != nil {
			return wrap("clearing previous latest version", err)
		}
	}

	const q = `
		INSERT INTO versions (id, library_id, version_string, version_normalized,
			git_commit_sha, release_date, is_latest, is_deprecated, document_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING updated_at`

	err = tx.QueryRow(ctx, q,
		v.ID, v.LibraryID, v.VersionString, v.VersionNormalized,
		v.GitCommitSHA, v.ReleaseDate, v.IsLatest, v.IsDeprecated,
		v.DocumentCount,
	).Scan(&v.UpdatedAt)
	if err != nil {
		return wrap("creating version", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return wrap("creating version", err)
	}

	s.logger.Debug("created version",
		"library_id", v.LibraryID, "version", v.VersionString, "latest", v.IsLatest)
	return nil
}

// GetVersion fetches a version by id.
func (s *Store) GetVersion(ctx context.Context, id uuid.UUID) (*store.Version, error) {
	const q = `SELECT ` + versionColumns + ` FROM versions WHERE id = $1`
	return s.scanVersion(s.db.QueryRow(ctx, q, id), "getting version")
}

// GetVersionByString fetches a library's version by its raw version string.
func (s *Store) GetVersionByString(ctx context.Context, libraryID uuid.UUID, versionString string) (*store.Version, error) {
	const q = `SELECT ` + versionColumns + `
		FROM versions WHERE library_id = $1 AND version_string = $2`
	return s.scanVersion(s.db.QueryRow(ctx, q, libraryID, versionString), "getting version by string")
}

// GetLatestVersion fetches the version flagged latest.
func (s *Store) GetLatestVersion(ctx context.Context, libraryID uuid.UUID) (*store.Version, error) {
	const q = `SELECT ` + versionColumns + `
		FROM versions WHERE library_id = $1 AND is_latest`
	return s.scanVersion(s.db.QueryRow(ctx, q, libraryID), "getting latest version")
}

// ListVersions returns a library's versions, newest first by normalized
// version order.
func (s *Store) ListVersions(ctx context.Context, libraryID uuid.UUID) ([]*store.Version, error) {
	const q = `SELECT ` + versionColumns + `
		FROM versions WHERE library_id = $1
		ORDER BY version_normalized DESC`

	rows, err := s.db.Query(ctx, q, libraryID)
	if err != nil {
		return nil, wrap("listing versions", err)
	}
	defer rows.Close()

	var versions []*store.Version
	for rows.Next() {
		v, err := s.scanVersion(rows, "listing versions")
		if err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("listing versions", err)
	}
	return versions, nil
}

// UpdateVersion rewrites the mutable fields.
func (s *Store) UpdateVersion(ctx context.Context, v *store.Version) error {
	const q = `
		UPDATE versions
		SET version_string = $2, version_normalized = $3, git_commit_sha = $4,
			release_date = $5, is_latest = $6, is_deprecated = $7,
			document_count = $8, indexed_at = $9, updated_at = now()
		WHERE id = $1`

	var indexedAt any
	if !v.IndexedAt.IsZero() {
		indexedAt = v.IndexedAt
	}

	tag, err := s.db.Exec(ctx, q,
		v.ID, v.VersionString, v.VersionNormalized, v.GitCommitSHA,
		v.ReleaseDate, v.IsLatest, v.IsDeprecated, v.DocumentCount, indexedAt)
	if err != nil {
		return wrap("updating version", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("updating version %s: %w", v.ID, store.ErrNotFound)
	}
	return nil
}

// DeleteVersion removes a version; its documents cascade.
func (s *Store) DeleteVersion(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM versions WHERE id = $1`, id)
	if err != nil {
		return wrap("deleting version", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("deleting version %s: %w", id, store.ErrNotFound)
	}
	return nil
}

func (s *Store) scanVersion(row pgx.Row, op string) (*store.Version, error) {
	var (
		v         store.Version
		indexedAt *time.Time
	)
	err := row.Scan(
		&v.ID, &v.LibraryID, &v.VersionString, &v.VersionNormalized,
		&v.GitCommitSHA, &v.ReleaseDate, &v.IsLatest, &v.IsDeprecated,
		&v.DocumentCount, &indexedAt, &v.UpdatedAt)
	if err != nil {
		return nil, wrap(op, err)
	}
	if indexedAt != nil {
		v.IndexedAt = *indexedAt
	}
	return &v, nil
}
