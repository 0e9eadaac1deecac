package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/docdex/docdex/internal/store"
)

const documentColumns = `id, library_id, version_id, title, content,
	content_hash, embedding, chunk_index, hierarchy, source_url, source_type,
	source_path, language, has_code, code_lang, metadata, indexed_at,
	updated_at`

const upsertDocument = `
	INSERT INTO documents (id, library_id, version_id, title, content,
		content_hash, embedding, chunk_index, hierarchy, source_url,
		source_type, source_path, language, has_code, code_lang, metadata)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	ON CONFLICT (id) DO UPDATE SET
		title = EXCLUDED.title,
		content = EXCLUDED.content,
		content_hash = EXCLUDED.content_hash,
		embedding = EXCLUDED.embedding,
		hierarchy = EXCLUDED.hierarchy,
		source_url = EXCLUDED.source_url,
		source_type = EXCLUDED.source_type,
		source_path = EXCLUDED.source_path,
		language = EXCLUDED.language,
		has_code = EXCLUDED.has_code,
		code_lang = EXCLUDED.code_lang,
		metadata = EXCLUDED.metadata,
		updated_at = now()`

// DocumentExistsByHash probes for a previously indexed chunk with the same
// content hash.
func (s *Store) DocumentExistsByHash(ctx context.Context, hash string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM documents WHERE content_hash = $1)`, hash,
	).Scan(&exists)
	if err != nil {
		return false, wrap("checking document hash", err)
	}
	return exists, nil
}

// GetDocumentByHash returns a stored document carrying the given content
// hash, embedding included. Ingestion reuses the embedding so unchanged
// content never pays for another provider call.
func (s *Store) GetDocumentByHash(ctx context.Context, hash string) (*store.Document, error) {
	const q = `SELECT ` + documentColumns + ` FROM documents WHERE content_hash = $1 LIMIT 1`
	doc, _, err := scanDocument(s.db.QueryRow(ctx, q, hash), false)
	if err != nil {
		return nil, wrap("getting document by hash", err)
	}
	return doc, nil
}

// IndexDocument upserts one document by id.
func (s *Store) IndexDocument(ctx context.Context, doc *store.Document) error {
	if err := prepareDocument(doc); err != nil {
		return err
	}
	if _, err := s.db.Exec(ctx, upsertDocument, documentArgs(doc)...); err != nil {
		return wrap("indexing document", err)
	}
	return nil
}

// IndexDocuments upserts a batch in one transaction: all rows land or none
// do.
func (s *Store) IndexDocuments(ctx context.Context, docs []*store.Document) error {
	if len(docs) == 0 {
		return nil
	}
	for _, doc := range docs {
		if err := prepareDocument(doc); err != nil {
			return err
		}
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return wrap("indexing documents", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, doc := range docs {
		if _, err := tx.Exec(ctx, upsertDocument, documentArgs(doc)...); err != nil {
			return wrap(fmt.Sprintf("indexing document chunk %d", doc.ChunkIndex), err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return wrap("indexing documents", err)
	}

	s.logger.Debug("indexed document batch", "count", len(docs))
	return nil
}

// GetDocument fetches a document by id.
func (s *Store) GetDocument(ctx context.Context, id uuid.UUID) (*store.Document, error) {
	const q = `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	doc, _, err := scanDocument(s.db.QueryRow(ctx, q, id), false)
	if err != nil {
		return nil, wrap("getting document", err)
	}
	return doc, nil
}

// DeleteDocument removes a document by id.
func (s *Store) DeleteDocument(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return wrap("deleting document", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("deleting document %s: %w", id, store.ErrNotFound)
	}
	return nil
}

func prepareDocument(doc *store.Document) error {
	if doc.LibraryID == uuid.Nil || doc.VersionID == uuid.Nil {
		return fmt.Errorf("%w: document requires library and version ids", store.ErrValidation)
	}
	if doc.Content == "" {
		return fmt.Errorf("%w: document content is required", store.ErrValidation)
	}
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	if doc.ContentHash == "" {
		doc.ContentHash = store.HashContent(doc.Content)
	}
	if doc.Language == "" {
		doc.Language = "en"
	}
	if doc.Hierarchy == nil {
		doc.Hierarchy = []string{}
	}
	if doc.Metadata == nil {
		doc.Metadata = map[string]string{}
	}
	return nil
}

func documentArgs(doc *store.Document) []any {
	var embedding any
	if len(doc.Embedding) > 0 {
		embedding = pgvector.NewVector(doc.Embedding)
	}
	return []any{
		doc.ID, doc.LibraryID, doc.VersionID, doc.Title, doc.Content,
		doc.ContentHash, embedding, doc.ChunkIndex, doc.Hierarchy,
		doc.SourceURL, doc.SourceType, doc.SourcePath, doc.Language,
		doc.HasCode, doc.CodeLang, doc.Metadata,
	}
}

// scanDocument reads one document row, optionally with a trailing score
// column.
func scanDocument(row pgx.Row, withScore bool) (*store.Document, float64, error) {
	var (
		doc       store.Document
		embedding *pgvector.Vector
		score     float64
	)

	targets := []any{
		&doc.ID, &doc.LibraryID, &doc.VersionID, &doc.Title, &doc.Content,
		&doc.ContentHash, &embedding, &doc.ChunkIndex, &doc.Hierarchy,
		&doc.SourceURL, &doc.SourceType, &doc.SourcePath, &doc.Language,
		&doc.HasCode, &doc.CodeLang, &doc.Metadata, &doc.IndexedAt,
		&doc.UpdatedAt,
	}
	if withScore {
		targets = append(targets, &score)
	}

	if err := row.Scan(targets...); err != nil {
		return nil, 0, err
	}
	if embedding != nil {
		doc.Embedding = embedding.Slice()
	}
	return &doc, score, nil
}
