package qdrant

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/docdex/docdex/internal/store"
)

// VectorSearch returns nearest neighbors by cosine similarity.
func (s *Store) VectorSearch(ctx context.Context, opts store.SearchOptions) ([]store.SearchResult, error) {
	if len(opts.Embedding) == 0 {
		return nil, fmt.Errorf("%w: vector search requires a query embedding", store.ErrValidation)
	}

	query := &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(opts.Embedding...),
		Filter:         searchFilter(opts.Filter),
		Limit:          qdrant.PtrOf(uint64(effectiveLimit(opts.Limit))),
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if opts.Threshold > 0 {
		query.ScoreThreshold = qdrant.PtrOf(float32(opts.Threshold))
	}

	points, err := s.client.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrVectorSearch, err)
	}

	results := make([]store.SearchResult, 0, len(points))
	for _, point := range points {
		doc := documentFromPayload(scoredUUID(point), point.Payload)
		results = append(results, store.SearchResult{Document: *doc, Score: float64(point.Score)})
	}
	return results, nil
}

// FullTextSearch matches query terms against the text-indexed content field
// and ranks by term frequency. Qdrant has no server-side lexical ranking, so
// the score is computed here.
func (s *Store) FullTextSearch(ctx context.Context, opts store.SearchOptions) ([]store.SearchResult, error) {
	if opts.Query == "" {
		return nil, fmt.Errorf("%w: full-text search requires query text", store.ErrValidation)
	}

	limit := effectiveLimit(opts.Limit)
	matches, err := s.textMatches(ctx, opts, limit*4)
	if err != nil {
		return nil, wrap("full-text search", err)
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// HybridSearch runs the vector query and the lexical scan separately and
// blends their scores by weighted sum.
func (s *Store) HybridSearch(ctx context.Context, opts store.SearchOptions) ([]store.SearchResult, error) {
	if len(opts.Embedding) == 0 {
		return nil, fmt.Errorf("%w: hybrid search requires a query embedding", store.ErrValidation)
	}
	if opts.Query == "" {
		return nil, fmt.Errorf("%w: hybrid search requires query text", store.ErrValidation)
	}

	limit := effectiveLimit(opts.Limit)
	vectorWeight, textWeight := opts.Weights()

	// Overfetch both sides so a document strong in only one signal still
	// makes the blended cut.
	vectorResults, err := s.VectorSearch(ctx, store.SearchOptions{
		Embedding: opts.Embedding,
		Limit:     limit * 2,
		Filter:    opts.Filter,
	})
	if err != nil {
		return nil, err
	}
	textResults, err := s.textMatches(ctx, opts, limit*4)
	if err != nil {
		return nil, fmt.Errorf("%w: hybrid lexical scan: %v", store.ErrVectorSearch, err)
	}

	type blended struct {
		doc   store.Document
		score float64
	}
	combined := make(map[string]*blended, len(vectorResults)+len(textResults))
	for _, r := range vectorResults {
		combined[r.Document.ID.String()] = &blended{doc: r.Document, score: vectorWeight * r.Score}
	}
	for _, r := range textResults {
		key := r.Document.ID.String()
		if b, ok := combined[key]; ok {
			b.score += textWeight * r.Score
		} else {
			combined[key] = &blended{doc: r.Document, score: textWeight * r.Score}
		}
	}

	results := make([]store.SearchResult, 0, len(combined))
	for _, b := range combined {
		if opts.Threshold > 0 && b.score < opts.Threshold {
			continue
		}
		results = append(results, store.SearchResult{Document: b.doc, Score: b.score})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Document.ID.String() < results[j].Document.ID.String()
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// textMatches scrolls documents whose content matches the query text and
// scores them lexically.
func (s *Store) textMatches(ctx context.Context, opts store.SearchOptions, fetch int) ([]store.SearchResult, error) {
	filter := searchFilter(opts.Filter)
	filter.Must = append(filter.Must, qdrant.NewMatchText("content", opts.Query))

	points, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: s.collection,
		Filter:         filter,
		Limit:          qdrant.PtrOf(uint32(fetch)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, err
	}

	terms := queryTerms(opts.Query)
	results := make([]store.SearchResult, 0, len(points))
	for _, point := range points {
		doc := documentFromPayload(pointUUID(point), point.Payload)
		results = append(results, store.SearchResult{
			Document: *doc,
			Score:    lexicalScore(doc.Title, doc.Content, terms),
		})
	}
	return results, nil
}

// lexicalScore rates how well a document matches the query terms, in [0, 1].
// Each term contributes its capped occurrence count, with title hits worth
// double.
func lexicalScore(title, content string, terms []string) float64 {
	if len(terms) == 0 {
		return 0
	}

	lowTitle := strings.ToLower(title)
	lowContent := strings.ToLower(content)

	var total float64
	for _, term := range terms {
		hits := float64(strings.Count(lowContent, term))
		hits += 2 * float64(strings.Count(lowTitle, term))
		if hits > 3 {
			hits = 3
		}
		total += hits / 3
	}
	return total / float64(len(terms))
}

func queryTerms(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	terms := fields[:0]
	for _, f := range fields {
		if len(f) > 1 {
			terms = append(terms, f)
		}
	}
	return terms
}

// searchFilter translates the shared filter into qdrant conditions, always
// pinning kind=document so metadata points stay invisible.
func searchFilter(f store.SearchFilter) *qdrant.Filter {
	filter := kindFilter(kindDocument)
	if f.LibraryID != nil {
		filter.Must = append(filter.Must, qdrant.NewMatch("library_id", f.LibraryID.String()))
	}
	if f.VersionID != nil {
		filter.Must = append(filter.Must, qdrant.NewMatch("version_id", f.VersionID.String()))
	}
	if f.SourceType != "" {
		filter.Must = append(filter.Must, qdrant.NewMatch("source_type", f.SourceType))
	}
	return filter
}

func effectiveLimit(limit int) int {
	if limit <= 0 {
		return DefaultSearchLimit
	}
	return limit
}

func scoredUUID(point *qdrant.ScoredPoint) uuid.UUID {
	id, err := uuid.Parse(point.Id.GetUuid())
	if err != nil {
		return uuid.Nil
	}
	return id
}
