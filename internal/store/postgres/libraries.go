package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/docdex/docdex/internal/store"
)

const libraryColumns = `id, org, project, name, identifier, repository_url,
	homepage_url, description, trust_score, metadata, created_at, updated_at`

// CreateLibrary inserts a library, computing its identifier when unset.
func (s *Store) CreateLibrary(ctx context.Context, lib *store.Library) error {
	if lib.Org == "" || lib.Project == "" {
		return fmt.Errorf("%w: library org and project are required", store.ErrValidation)
	}
	if lib.ID == uuid.Nil {
		lib.ID = uuid.New()
	}
	if lib.Identifier == "" {
		lib.Identifier = store.MakeIdentifier(lib.Org, lib.Project)
	}
	if lib.Name == "" {
		lib.Name = lib.Project
	}
	if lib.Metadata == nil {
		lib.Metadata = map[string]string{}
	}

	const q = `
		INSERT INTO libraries (id, org, project, name, identifier,
			repository_url, homepage_url, description, trust_score, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`

	err := s.db.QueryRow(ctx, q,
		lib.ID, lib.Org, lib.Project, lib.Name, lib.Identifier,
		lib.RepositoryURL, lib.HomepageURL, lib.Description,
		lib.TrustScore, lib.Metadata,
	).Scan(&lib.CreatedAt, &lib.UpdatedAt)
	if err != nil {
		return wrap("creating library", err)
	}

	s.logger.Debug("created library", "identifier", lib.Identifier, "id", lib.ID)
	return nil
}

// GetLibrary fetches a library by id.
func (s *Store) GetLibrary(ctx context.Context, id uuid.UUID) (*store.Library, error) {
	const q = `SELECT ` + libraryColumns + ` FROM libraries WHERE id = $1`
	return s.scanLibrary(s.db.QueryRow(ctx, q, id), "getting library")
}

// GetLibraryByIdentifier fetches a library by its "/org/project" identifier.
func (s *Store) GetLibraryByIdentifier(ctx context.Context, identifier string) (*store.Library, error) {
	const q = `SELECT ` + libraryColumns + ` FROM libraries WHERE identifier = $1`
	return s.scanLibrary(s.db.QueryRow(ctx, q, identifier), "getting library by identifier")
}

// SearchLibraries matches name against library names and identifiers,
// ordered by trust score descending so ambiguous names resolve to the more
// authoritative project.
func (s *Store) SearchLibraries(ctx context.Context, name string, limit int) ([]*store.Library, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	const q = `
		SELECT ` + libraryColumns + `
		FROM libraries
		WHERE name ILIKE '%' || $1 || '%'
		   OR identifier ILIKE '%' || $1 || '%'
		ORDER BY trust_score DESC, name ASC
		LIMIT $2`

	rows, err := s.db.Query(ctx, q, name, limit)
	if err != nil {
		return nil, wrap("searching libraries", err)
	}
	defer rows.Close()

	var libs []*store.Library
	for rows.Next() {
		lib, err := s.scanLibrary(rows, "searching libraries")
		if err != nil {
			return nil, err
		}
		libs = append(libs, lib)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("searching libraries", err)
	}
	return libs, nil
}

// UpdateLibrary rewrites the mutable fields.
func (s *Store) UpdateLibrary(ctx context.Context, lib *store.Library) error {
	const q = `
		UPDATE libraries
		SET org = $2, project = $3, name = $4, identifier = $5,
			repository_url = $6, homepage_url = $7, description = $8,
			trust_score = $9, metadata = $10, updated_at = now()
		WHERE id = $1`

	tag, err := s.db.Exec(ctx, q,
		lib.ID, lib.Org, lib.Project, lib.Name, lib.Identifier,
		lib.RepositoryURL, lib.HomepageURL, lib.Description,
		lib.TrustScore, lib.Metadata)
	if err != nil {
		return wrap("updating library", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("updating library %s: %w", lib.ID, store.ErrNotFound)
	}
	return nil
}

// DeleteLibrary removes a library; versions and documents cascade.
func (s *Store) DeleteLibrary(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM libraries WHERE id = $1`, id)
	if err != nil {
		return wrap("deleting library", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("deleting library %s: %w", id, store.ErrNotFound)
	}
	s.logger.Debug("deleted library", "id", id)
	return nil
}

func (s *Store) scanLibrary(row pgx.Row, op string) (*store.Library, error) {
	var lib store.Library
	err := row.Scan(
		&lib.ID, &lib.Org, &lib.Project, &lib.Name, &lib.Identifier,
		&lib.RepositoryURL, &lib.HomepageURL, &lib.Description,
		&lib.TrustScore, &lib.Metadata, &lib.CreatedAt, &lib.UpdatedAt)
	if err != nil {
		return nil, wrap(op, err)
	}
	return &lib, nil
}
