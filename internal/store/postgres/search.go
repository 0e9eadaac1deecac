package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/pgvector/pgvector-go"

	"github.com/docdex/docdex/internal/store"
)

// VectorSearch returns nearest neighbors by cosine similarity. Score is
// 1 - cosine distance, in [0, 1] for normalized embeddings.
func (s *Store) VectorSearch(ctx context.Context, opts store.SearchOptions) ([]store.SearchResult, error) {
	if len(opts.Embedding) == 0 {
		return nil, fmt.Errorf("%w: vector search requires a query embedding", store.ErrValidation)
	}

	qb := newQueryBuilder()
	vec := qb.arg(pgvector.NewVector(opts.Embedding))

	var sb strings.Builder
	fmt.Fprintf(&sb, `
		SELECT %s, 1 - (embedding <=> %s) AS score
		FROM documents
		WHERE embedding IS NOT NULL`, documentColumns, vec)
	qb.appendFilter(&sb, opts.Filter)
	if opts.Threshold > 0 {
		fmt.Fprintf(&sb, " AND 1 - (embedding <=> %s) >= %s", vec, qb.arg(opts.Threshold))
	}
	fmt.Fprintf(&sb, " ORDER BY embedding <=> %s LIMIT %s", vec, qb.arg(effectiveLimit(opts.Limit)))

	results, err := s.queryResults(ctx, sb.String(), qb.args)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrVectorSearch, err)
	}
	return results, nil
}

// FullTextSearch performs lexical matching over title and content using the
// generated tsvector column.
func (s *Store) FullTextSearch(ctx context.Context, opts store.SearchOptions) ([]store.SearchResult, error) {
	if opts.Query == "" {
		return nil, fmt.Errorf("%w: full-text search requires query text", store.ErrValidation)
	}

	qb := newQueryBuilder()
	query := qb.arg(opts.Query)

	var sb strings.Builder
	fmt.Fprintf(&sb, `
		SELECT %s, ts_rank_cd(search_text, plainto_tsquery('english', %s), 1) AS score
		FROM documents
		WHERE search_text @@ plainto_tsquery('english', %s)`, documentColumns, query, query)
	qb.appendFilter(&sb, opts.Filter)
	fmt.Fprintf(&sb, " ORDER BY score DESC LIMIT %s", qb.arg(effectiveLimit(opts.Limit)))

	results, err := s.queryResults(ctx, sb.String(), qb.args)
	if err != nil {
		return nil, wrap("full-text search", err)
	}
	return results, nil
}

// HybridSearch blends cosine similarity and lexical rank by weighted sum in
// a single statement. ts_rank_cd is unbounded, so the lexical term is capped
// at 1.0 to keep both signals on the same scale.
func (s *Store) HybridSearch(ctx context.Context, opts store.SearchOptions) ([]store.SearchResult, error) {
	if len(opts.Embedding) == 0 {
		return nil, fmt.Errorf("%w: hybrid search requires a query embedding", store.ErrValidation)
	}
	if opts.Query == "" {
		return nil, fmt.Errorf("%w: hybrid search requires query text", store.ErrValidation)
	}

	vectorWeight, textWeight := opts.Weights()

	qb := newQueryBuilder()
	wVec := qb.arg(vectorWeight)
	vec := qb.arg(pgvector.NewVector(opts.Embedding))
	wText := qb.arg(textWeight)
	query := qb.arg(opts.Query)

	var sb strings.Builder
	fmt.Fprintf(&sb, `
		SELECT %s,
			%s * (1 - (embedding <=> %s)) +
			%s * LEAST(1.0, COALESCE(ts_rank_cd(search_text, plainto_tsquery('english', %s), 1), 0)) AS score
		FROM documents
		WHERE embedding IS NOT NULL`, documentColumns, wVec, vec, wText, query)
	qb.appendFilter(&sb, opts.Filter)
	sb.WriteString(" ORDER BY score DESC LIMIT ")
	sb.WriteString(qb.arg(effectiveLimit(opts.Limit)))

	results, err := s.queryResults(ctx, sb.String(), qb.args)
	if err != nil {
		return nil, fmt.Errorf("%w: hybrid: %v", store.ErrVectorSearch, err)
	}

	if opts.Threshold > 0 {
		filtered := results[:0]
		for _, r := range results {
			if r.Score >= opts.Threshold {
				filtered = append(filtered, r)
			}
		}
		results = filtered
	}
	return results, nil
}

func (s *Store) queryResults(ctx context.Context, sql string, args []any) ([]store.SearchResult, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []store.SearchResult
	for rows.Next() {
		doc, score, err := scanDocument(rows, true)
		if err != nil {
			return nil, err
		}
		results = append(results, store.SearchResult{Document: *doc, Score: score})
	}
	return results, rows.Err()
}

func effectiveLimit(limit int) int {
	if limit <= 0 {
		return DefaultSearchLimit
	}
	return limit
}

// queryBuilder numbers positional args as the statement grows.
type queryBuilder struct {
	args []any
}

func newQueryBuilder() *queryBuilder { return &queryBuilder{} }

// arg registers a value and returns its placeholder.
func (qb *queryBuilder) arg(v any) string {
	qb.args = append(qb.args, v)
	return fmt.Sprintf("$%d", len(qb.args))
}

// appendFilter adds AND clauses for the set filter fields.
func (qb *queryBuilder) appendFilter(sb *strings.Builder, f store.SearchFilter) {
	if f.LibraryID != nil {
		fmt.Fprintf(sb, " AND library_id = %s", qb.arg(*f.LibraryID))
	}
	if f.VersionID != nil {
		fmt.Fprintf(sb, " AND version_id = %s", qb.arg(*f.VersionID))
	}
	if f.SourceType != "" {
		fmt.Fprintf(sb, " AND source_type = %s", qb.arg(f.SourceType))
	}
}
