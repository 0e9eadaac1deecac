package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"

	"github.com/docdex/docdex/internal/log"
	"github.com/docdex/docdex/internal/store"
)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool() error: %v", err)
	}
	t.Cleanup(mock.Close)
	return New(mock, log.NewNop()), mock
}

// anyArgs returns n pgxmock.AnyArg matchers; pgxmock v3 requires the
// expected argument count to match even when values are irrelevant.
func anyArgs(n int) []interface{} {
	args := make([]interface{}, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func expectationsMet(t *testing.T, mock pgxmock.PgxPoolIface) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestDocumentExistsByHash(t *testing.T) {
	s, mock := newMockStore(t)

	hash := store.HashContent("some chunk content")
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(hash).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := s.DocumentExistsByHash(context.Background(), hash)
	if err != nil {
		t.Fatalf("DocumentExistsByHash() error: %v", err)
	}
	if !exists {
		t.Error("DocumentExistsByHash() = false, want true")
	}
	expectationsMet(t, mock)
}

func TestGetLibrary_NotFound(t *testing.T) {
	s, mock := newMockStore(t)

	id := uuid.New()
	mock.ExpectQuery(`SELECT .+ FROM libraries WHERE id`).
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetLibrary(context.Background(), id)
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetLibrary() error = %v, want errors.Is(err, store.ErrNotFound)", err)
	}
	expectationsMet(t, mock)
}

func TestCreateLibrary_ComputesIdentifier(t *testing.T) {
	s, mock := newMockStore(t)

	now := time.Now()
	mock.ExpectQuery(`INSERT INTO libraries`).
		WithArgs(pgxmock.AnyArg(), "facebook", "react", "react", "/facebook/react",
			"", "", "", 0, map[string]string{}).
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	lib := &store.Library{Org: "facebook", Project: "react"}
	if err := s.CreateLibrary(context.Background(), lib); err != nil {
		t.Fatalf("CreateLibrary() error: %v", err)
	}
	if lib.Identifier != "/facebook/react" {
		t.Errorf("identifier = %q, want %q", lib.Identifier, "/facebook/react")
	}
	if lib.ID == uuid.Nil {
		t.Error("CreateLibrary() did not assign an id")
	}
	if !lib.CreatedAt.Equal(now) {
		t.Errorf("created_at = %v, want %v", lib.CreatedAt, now)
	}
	expectationsMet(t, mock)
}

func TestCreateLibrary_Validation(t *testing.T) {
	s, _ := newMockStore(t)

	err := s.CreateLibrary(context.Background(), &store.Library{Org: "facebook"})
	if !errors.Is(err, store.ErrValidation) {
		t.Errorf("CreateLibrary() error = %v, want errors.Is(err, store.ErrValidation)", err)
	}
}

func TestCreateLibrary_Duplicate(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`INSERT INTO libraries`).
		WithArgs(anyArgs(10)...).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "libraries_identifier_key"})

	err := s.CreateLibrary(context.Background(), &store.Library{Org: "facebook", Project: "react"})
	if !errors.Is(err, store.ErrDuplicate) {
		t.Errorf("CreateLibrary() error = %v, want errors.Is(err, store.ErrDuplicate)", err)
	}
	expectationsMet(t, mock)
}

func TestDeleteLibrary_NotFound(t *testing.T) {
	s, mock := newMockStore(t)

	id := uuid.New()
	mock.ExpectExec(`DELETE FROM libraries`).
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	err := s.DeleteLibrary(context.Background(), id)
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("DeleteLibrary() error = %v, want errors.Is(err, store.ErrNotFound)", err)
	}
	expectationsMet(t, mock)
}

func TestVectorSearch_RequiresEmbedding(t *testing.T) {
	s, _ := newMockStore(t)

	_, err := s.VectorSearch(context.Background(), store.SearchOptions{Query: "hooks"})
	if !errors.Is(err, store.ErrValidation) {
		t.Errorf("VectorSearch() error = %v, want errors.Is(err, store.ErrValidation)", err)
	}
}

func TestFullTextSearch_RequiresQuery(t *testing.T) {
	s, _ := newMockStore(t)

	_, err := s.FullTextSearch(context.Background(), store.SearchOptions{})
	if !errors.Is(err, store.ErrValidation) {
		t.Errorf("FullTextSearch() error = %v, want errors.Is(err, store.ErrValidation)", err)
	}
}

func TestUpdateJob_IllegalTransition(t *testing.T) {
	s, mock := newMockStore(t)

	id := uuid.New()
	libID := uuid.New()
	verID := uuid.New()
	now := time.Now()

	mock.ExpectQuery(`SELECT .+ FROM indexing_jobs WHERE id`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "library_id", "version_id", "status", "total_documents",
			"processed_documents", "failed_documents", "error", "started_at",
			"completed_at", "metadata", "created_at", "updated_at",
		}).AddRow(
			id, libID, verID, store.JobCompleted, 10,
			10, 0, "", &now,
			&now, map[string]string{}, now, now,
		))

	err := s.UpdateJob(context.Background(), &store.IndexingJob{
		ID:        id,
		LibraryID: libID,
		VersionID: verID,
		Status:    store.JobProcessing,
	})
	if !errors.Is(err, store.ErrValidation) {
		t.Errorf("UpdateJob() error = %v, want errors.Is(err, store.ErrValidation)", err)
	}
	expectationsMet(t, mock)
}

func TestUpdateJob_ConcurrentCancelNotOverwritten(t *testing.T) {
	s, mock := newMockStore(t)

	id := uuid.New()
	libID := uuid.New()
	verID := uuid.New()
	now := time.Now()

	jobColumns := []string{
		"id", "library_id", "version_id", "status", "total_documents",
		"processed_documents", "failed_documents", "error", "started_at",
		"completed_at", "metadata", "created_at", "updated_at",
	}

	// The progress write reads processing, but a cancel lands before the
	// guarded update, so zero rows match.
	mock.ExpectQuery(`SELECT .+ FROM indexing_jobs WHERE id`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(jobColumns).AddRow(
			id, libID, verID, store.JobProcessing, 10,
			5, 0, "", &now,
			(*time.Time)(nil), map[string]string{}, now, now,
		))
	mock.ExpectExec(`UPDATE indexing_jobs`).
		WithArgs(anyArgs(10)...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(`SELECT .+ FROM indexing_jobs WHERE id`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(jobColumns).AddRow(
			id, libID, verID, store.JobCancelled, 10,
			5, 0, "", &now,
			&now, map[string]string{}, now, now,
		))

	err := s.UpdateJob(context.Background(), &store.IndexingJob{
		ID:                 id,
		LibraryID:          libID,
		VersionID:          verID,
		Status:             store.JobProcessing,
		TotalDocuments:     10,
		ProcessedDocuments: 6,
	})
	if !errors.Is(err, store.ErrValidation) {
		t.Errorf("UpdateJob() error = %v, want errors.Is(err, store.ErrValidation)", err)
	}
	expectationsMet(t, mock)
}

func TestCreateVersion_ClearsPreviousLatest(t *testing.T) {
	s, mock := newMockStore(t)

	libID := uuid.New()
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE versions SET is_latest = FALSE`).
		WithArgs(libID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery(`INSERT INTO versions`).
		WithArgs(anyArgs(9)...).
		WillReturnRows(pgxmock.NewRows([]string{"updated_at"}).AddRow(now))
	mock.ExpectCommit()

	v := &store.Version{LibraryID: libID, VersionString: "v18.2.0", IsLatest: true}
	if err := s.CreateVersion(context.Background(), v); err != nil {
		t.Fatalf("CreateVersion() error: %v", err)
	}
	if v.VersionNormalized != "0018.0002.0000" {
		t.Errorf("normalized = %q, want %q", v.VersionNormalized, "0018.0002.0000")
	}
	expectationsMet(t, mock)
}
