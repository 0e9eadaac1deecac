// Package qdrant implements the storage contract on a Qdrant collection.
//
// Everything lives in one collection: document points carry real embeddings,
// while libraries, versions, and jobs are stored as zero-vector points
// distinguished by a "kind" payload field. Searches always filter on
// kind=document, so metadata points never surface in results.
package qdrant

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/qdrant/go-client/qdrant"

	"github.com/docdex/docdex/internal/store"
)

// Payload kinds for the single-collection layout.
const (
	kindLibrary  = "library"
	kindVersion  = "version"
	kindDocument = "document"
	kindJob      = "job"
)

// DefaultSearchLimit applies when SearchOptions.Limit is zero.
const DefaultSearchLimit = 10

// Config holds Qdrant connection settings.
type Config struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
	// Dimension is the embedding dimensionality the collection is created
	// with.
	Dimension int
}

// Store implements store.Store on Qdrant.
type Store struct {
	client     *qdrant.Client
	collection string
	dimension  int
	logger     *slog.Logger
	// jobMu serializes job status transitions; see UpdateJob.
	jobMu sync.Mutex
}

// New connects to Qdrant and returns a Store. The collection is created on
// Migrate, not here.
func New(cfg Config, logger *slog.Logger) (*Store, error) {
	if cfg.Collection == "" {
		return nil, fmt.Errorf("%w: qdrant collection name is required", store.ErrValidation)
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("%w: qdrant vector dimension is required", store.ErrValidation)
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: creating qdrant client: %v", store.ErrConnection, err)
	}

	return &Store{
		client:     client,
		collection: cfg.Collection,
		dimension:  cfg.Dimension,
		logger:     logger,
	}, nil
}

// Initialize verifies connectivity.
func (s *Store) Initialize(ctx context.Context) error {
	if _, err := s.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("%w: qdrant health check: %v", store.ErrConnection, err)
	}
	s.logger.Debug("qdrant store initialized", "collection", s.collection)
	return nil
}

// Close releases the client connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// HealthCheck probes the server.
func (s *Store) HealthCheck(ctx context.Context) error {
	if _, err := s.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("%w: %v", store.ErrConnection, err)
	}
	return nil
}

// Stats counts points per kind.
func (s *Store) Stats(ctx context.Context) (*store.Stats, error) {
	var st store.Stats
	for kind, dst := range map[string]*int64{
		kindLibrary:  &st.Libraries,
		kindVersion:  &st.Versions,
		kindDocument: &st.Documents,
		kindJob:      &st.Jobs,
	} {
		n, err := s.client.Count(ctx, &qdrant.CountPoints{
			CollectionName: s.collection,
			Filter:         kindFilter(kind),
		})
		if err != nil {
			return nil, fmt.Errorf("counting %s points: %w: %v", kind, store.ErrQuery, err)
		}
		*dst = int64(n)
	}
	return &st, nil
}

// Migrate ensures the collection exists with cosine distance and the payload
// indexes the filters rely on. Safe to run repeatedly.
func (s *Store) Migrate(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("%w: checking collection: %v", store.ErrMigration, err)
	}
	if !exists {
		err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: s.collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(s.dimension),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return fmt.Errorf("%w: creating collection %s: %v", store.ErrMigration, s.collection, err)
		}
		s.logger.Info("created qdrant collection",
			"collection", s.collection, "dimension", s.dimension)
	}

	keywordFields := []string{"kind", "library_id", "version_id", "identifier", "source_type", "content_hash", "name"}
	for _, field := range keywordFields {
		err := s.ensureFieldIndex(ctx, field, qdrant.FieldType_FieldTypeKeyword)
		if err != nil {
			return err
		}
	}
	// Text index backs the lexical search mode.
	if err := s.ensureFieldIndex(ctx, "content", qdrant.FieldType_FieldTypeText); err != nil {
		return err
	}
	return nil
}

func (s *Store) ensureFieldIndex(ctx context.Context, field string, ft qdrant.FieldType) error {
	_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: s.collection,
		FieldName:      field,
		FieldType:      &ft,
	})
	if err != nil {
		return fmt.Errorf("%w: indexing payload field %s: %v", store.ErrMigration, field, err)
	}
	return nil
}

// zeroVector backs metadata points; the collection requires a vector on
// every point.
func (s *Store) zeroVector() []float32 {
	return make([]float32, s.dimension)
}

func kindFilter(kind string) *qdrant.Filter {
	return &qdrant.Filter{
		Must: []*qdrant.Condition{qdrant.NewMatch("kind", kind)},
	}
}

func wrap(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, store.ErrQuery, err)
}
