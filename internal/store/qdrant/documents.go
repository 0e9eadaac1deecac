package qdrant

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/docdex/docdex/internal/store"
)

// DocumentExistsByHash probes for an indexed chunk with the same content
// hash.
func (s *Store) DocumentExistsByHash(ctx context.Context, hash string) (bool, error) {
	filter := kindFilter(kindDocument)
	filter.Must = append(filter.Must, qdrant.NewMatch("content_hash", hash))

	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.collection,
		Filter:         filter,
	})
	if err != nil {
		return false, wrap("checking document hash", err)
	}
	return n > 0, nil
}

// GetDocumentByHash returns a stored document carrying the given content
// hash, vector included. Ingestion reuses the vector so unchanged content
// never pays for another provider call.
func (s *Store) GetDocumentByHash(ctx context.Context, hash string) (*store.Document, error) {
	filter := kindFilter(kindDocument)
	filter.Must = append(filter.Must, qdrant.NewMatch("content_hash", hash))

	points, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: s.collection,
		Filter:         filter,
		Limit:          qdrant.PtrOf(uint32(1)),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, wrap("getting document by hash", err)
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("getting document by hash: %w", store.ErrNotFound)
	}

	doc := documentFromPayload(pointUUID(points[0]), points[0].Payload)
	if vec := points[0].GetVectors().GetVector(); vec != nil {
		doc.Embedding = vec.GetData()
	}
	return doc, nil
}

// IndexDocument upserts one document point.
func (s *Store) IndexDocument(ctx context.Context, doc *store.Document) error {
	point, err := s.documentPoint(doc)
	if err != nil {
		return err
	}
	_, err = s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points:         []*qdrant.PointStruct{point},
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return wrap("indexing document", err)
	}
	return nil
}

// IndexDocuments upserts a batch in one request.
func (s *Store) IndexDocuments(ctx context.Context, docs []*store.Document) error {
	if len(docs) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, len(docs))
	for i, doc := range docs {
		point, err := s.documentPoint(doc)
		if err != nil {
			return err
		}
		points[i] = point
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points:         points,
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return wrap("indexing documents", err)
	}

	s.logger.Debug("indexed document batch", "count", len(docs))
	return nil
}

// GetDocument fetches a document by id.
func (s *Store) GetDocument(ctx context.Context, id uuid.UUID) (*store.Document, error) {
	point, err := s.getKind(ctx, id, kindDocument, "getting document")
	if err != nil {
		return nil, err
	}
	return documentFromPayload(id, point.Payload), nil
}

// DeleteDocument removes a document by id.
func (s *Store) DeleteDocument(ctx context.Context, id uuid.UUID) error {
	if _, err := s.getKind(ctx, id, kindDocument, "deleting document"); err != nil {
		return err
	}
	if err := s.deletePoints(ctx, id); err != nil {
		return wrap("deleting document", err)
	}
	return nil
}

// documentPoint validates a document and builds its point. Ids default to
// the deterministic chunk key so re-indexing overwrites in place.
func (s *Store) documentPoint(doc *store.Document) (*qdrant.PointStruct, error) {
	if doc.LibraryID == uuid.Nil || doc.VersionID == uuid.Nil {
		return nil, fmt.Errorf("%w: document requires library and version ids", store.ErrValidation)
	}
	if doc.Content == "" {
		return nil, fmt.Errorf("%w: document content is required", store.ErrValidation)
	}
	if len(doc.Embedding) != s.dimension {
		return nil, fmt.Errorf("%w: embedding has %d dimensions, collection expects %d",
			store.ErrValidation, len(doc.Embedding), s.dimension)
	}
	if doc.ContentHash == "" {
		doc.ContentHash = store.HashContent(doc.Content)
	}
	if doc.ID == uuid.Nil {
		doc.ID = documentPointID(doc.LibraryID, doc.VersionID, doc.ChunkIndex, doc.ContentHash)
	}
	if doc.Language == "" {
		doc.Language = "en"
	}
	if doc.Metadata == nil {
		doc.Metadata = map[string]string{}
	}

	now := time.Now().UTC()
	if doc.IndexedAt.IsZero() {
		doc.IndexedAt = now
	}
	doc.UpdatedAt = now

	return &qdrant.PointStruct{
		Id:      qdrant.NewIDUUID(doc.ID.String()),
		Vectors: qdrant.NewVectors(doc.Embedding...),
		Payload: qdrant.NewValueMap(documentPayload(doc)),
	}, nil
}
