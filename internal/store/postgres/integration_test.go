package postgres_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/docdex/docdex/internal/store"
	"github.com/docdex/docdex/internal/testutil"
)

// setupIntegration skips unless DOCDEX_INTEGRATION is set; the container
// tests need a running Docker daemon.
func setupIntegration(t *testing.T) (*testutil.TestDB, context.Context) {
	t.Helper()
	if os.Getenv("DOCDEX_INTEGRATION") == "" {
		t.Skip("DOCDEX_INTEGRATION not set - skipping container test")
	}
	db, cleanup := testutil.SetupTestDB(t)
	t.Cleanup(cleanup)
	return db, context.Background()
}

// unitVector returns a 768-dim basis vector, matching the schema dimension.
func unitVector(axis int) []float32 {
	v := make([]float32, 768)
	v[axis] = 1
	return v
}

// blendVector returns a 768-dim vector mostly along a with a b component.
func blendVector(a, b int, bWeight float32) []float32 {
	v := make([]float32, 768)
	v[a] = 1
	v[b] = bWeight
	return v
}

func seedLibrary(t *testing.T, ctx context.Context, db *testutil.TestDB) (*store.Library, *store.Version) {
	t.Helper()

	lib := &store.Library{Org: "facebook", Project: "react", Name: "React", TrustScore: 9}
	if err := db.Store.CreateLibrary(ctx, lib); err != nil {
		t.Fatalf("CreateLibrary() error: %v", err)
	}
	v := &store.Version{LibraryID: lib.ID, VersionString: "v18.2.0", IsLatest: true}
	if err := db.Store.CreateVersion(ctx, v); err != nil {
		t.Fatalf("CreateVersion() error: %v", err)
	}
	return lib, v
}

func TestIntegration_MigrateIdempotent(t *testing.T) {
	db, ctx := setupIntegration(t)

	// SetupTestDB already migrated once; a second run must be a no-op.
	if err := db.Store.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate() error: %v", err)
	}
}

func TestIntegration_LibraryRoundTrip(t *testing.T) {
	db, ctx := setupIntegration(t)
	lib, _ := seedLibrary(t, ctx, db)

	got, err := db.Store.GetLibraryByIdentifier(ctx, "/facebook/react")
	if err != nil {
		t.Fatalf("GetLibraryByIdentifier() error: %v", err)
	}
	if got.ID != lib.ID {
		t.Errorf("got library %s, want %s", got.ID, lib.ID)
	}

	matches, err := db.Store.SearchLibraries(ctx, "react", 5)
	if err != nil {
		t.Fatalf("SearchLibraries() error: %v", err)
	}
	if len(matches) != 1 || matches[0].Identifier != "/facebook/react" {
		t.Errorf("SearchLibraries() = %+v, want the seeded library", matches)
	}

	dup := &store.Library{Org: "facebook", Project: "react"}
	if err := db.Store.CreateLibrary(ctx, dup); !errors.Is(err, store.ErrDuplicate) {
		t.Errorf("duplicate CreateLibrary() error = %v, want ErrDuplicate", err)
	}
}

func TestIntegration_VectorSearchOrdering(t *testing.T) {
	db, ctx := setupIntegration(t)
	lib, ver := seedLibrary(t, ctx, db)

	docs := []*store.Document{
		{LibraryID: lib.ID, VersionID: ver.ID, Title: "Hooks", Content: "useState returns a stateful value", Embedding: unitVector(0), ChunkIndex: 0},
		{LibraryID: lib.ID, VersionID: ver.ID, Title: "Close", Content: "useEffect runs after render", Embedding: blendVector(0, 1, 0.5), ChunkIndex: 1},
		{LibraryID: lib.ID, VersionID: ver.ID, Title: "Far", Content: "server components overview", Embedding: unitVector(2), ChunkIndex: 2},
	}
	if err := db.Store.IndexDocuments(ctx, docs); err != nil {
		t.Fatalf("IndexDocuments() error: %v", err)
	}

	results, err := db.Store.VectorSearch(ctx, store.SearchOptions{
		Embedding: unitVector(0),
		Limit:     3,
		Filter:    store.SearchFilter{VersionID: &ver.ID},
	})
	if err != nil {
		t.Fatalf("VectorSearch() error: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("VectorSearch() = %d results, want 3", len(results))
	}
	if results[0].Document.Title != "Hooks" || results[1].Document.Title != "Close" {
		t.Errorf("ordering = [%s, %s, %s], want [Hooks, Close, Far]",
			results[0].Document.Title, results[1].Document.Title, results[2].Document.Title)
	}
	if results[0].Score <= results[1].Score || results[1].Score <= results[2].Score {
		t.Errorf("scores not strictly decreasing: %v, %v, %v",
			results[0].Score, results[1].Score, results[2].Score)
	}
}

func TestIntegration_HybridSearchBlendsSignals(t *testing.T) {
	db, ctx := setupIntegration(t)
	lib, ver := seedLibrary(t, ctx, db)

	// Both documents sit at the same vector distance from the query; only
	// the lexical signal separates them.
	docs := []*store.Document{
		{LibraryID: lib.ID, VersionID: ver.ID, Title: "Hooks", Content: "useState hook manages component state", Embedding: unitVector(0), ChunkIndex: 0},
		{LibraryID: lib.ID, VersionID: ver.ID, Title: "Router", Content: "routing configuration and nested routes", Embedding: unitVector(0), ChunkIndex: 1},
	}
	if err := db.Store.IndexDocuments(ctx, docs); err != nil {
		t.Fatalf("IndexDocuments() error: %v", err)
	}

	results, err := db.Store.HybridSearch(ctx, store.SearchOptions{
		Query:     "useState hook state",
		Embedding: unitVector(0),
		Limit:     2,
		Filter:    store.SearchFilter{VersionID: &ver.ID},
	})
	if err != nil {
		t.Fatalf("HybridSearch() error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("HybridSearch() = %d results, want 2", len(results))
	}
	if results[0].Document.Title != "Hooks" {
		t.Errorf("top result = %s, want Hooks (lexical signal should break the tie)",
			results[0].Document.Title)
	}
}

func TestIntegration_DedupProbe(t *testing.T) {
	db, ctx := setupIntegration(t)
	lib, ver := seedLibrary(t, ctx, db)

	content := "memoization with useMemo"
	doc := &store.Document{
		LibraryID: lib.ID, VersionID: ver.ID,
		Title: "Memo", Content: content, Embedding: unitVector(0),
	}
	if err := db.Store.IndexDocument(ctx, doc); err != nil {
		t.Fatalf("IndexDocument() error: %v", err)
	}

	exists, err := db.Store.DocumentExistsByHash(ctx, store.HashContent(content))
	if err != nil {
		t.Fatalf("DocumentExistsByHash() error: %v", err)
	}
	if !exists {
		t.Error("DocumentExistsByHash() = false after indexing, want true")
	}

	exists, err = db.Store.DocumentExistsByHash(ctx, store.HashContent("never indexed"))
	if err != nil {
		t.Fatalf("DocumentExistsByHash() error: %v", err)
	}
	if exists {
		t.Error("DocumentExistsByHash() = true for unseen content, want false")
	}

	stored, err := db.Store.GetDocumentByHash(ctx, store.HashContent(content))
	if err != nil {
		t.Fatalf("GetDocumentByHash() error: %v", err)
	}
	if stored.ID != doc.ID {
		t.Errorf("GetDocumentByHash() returned %s, want %s", stored.ID, doc.ID)
	}
	if len(stored.Embedding) == 0 {
		t.Error("GetDocumentByHash() returned no embedding")
	}

	if _, err := db.Store.GetDocumentByHash(ctx, store.HashContent("never indexed")); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetDocumentByHash(unseen) error = %v, want errors.Is(err, store.ErrNotFound)", err)
	}
}

func TestIntegration_DeleteLibraryCascades(t *testing.T) {
	db, ctx := setupIntegration(t)
	lib, ver := seedLibrary(t, ctx, db)

	doc := &store.Document{
		LibraryID: lib.ID, VersionID: ver.ID,
		Title: "Doc", Content: "content", Embedding: unitVector(0),
	}
	if err := db.Store.IndexDocument(ctx, doc); err != nil {
		t.Fatalf("IndexDocument() error: %v", err)
	}

	if err := db.Store.DeleteLibrary(ctx, lib.ID); err != nil {
		t.Fatalf("DeleteLibrary() error: %v", err)
	}

	if _, err := db.Store.GetVersion(ctx, ver.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetVersion() after cascade = %v, want ErrNotFound", err)
	}
	if _, err := db.Store.GetDocument(ctx, doc.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetDocument() after cascade = %v, want ErrNotFound", err)
	}

	st, err := db.Store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error: %v", err)
	}
	if st.Libraries != 0 || st.Versions != 0 || st.Documents != 0 {
		t.Errorf("Stats() after cascade = %+v, want all zero", st)
	}
}

func TestIntegration_JobLifecycle(t *testing.T) {
	db, ctx := setupIntegration(t)
	lib, ver := seedLibrary(t, ctx, db)

	job := &store.IndexingJob{LibraryID: lib.ID, VersionID: ver.ID, TotalDocuments: 5}
	if err := db.Store.CreateJob(ctx, job); err != nil {
		t.Fatalf("CreateJob() error: %v", err)
	}
	if job.Status != store.JobPending {
		t.Errorf("new job status = %s, want pending", job.Status)
	}

	job.Status = store.JobProcessing
	if err := db.Store.UpdateJob(ctx, job); err != nil {
		t.Fatalf("UpdateJob(processing) error: %v", err)
	}
	job.Status = store.JobCompleted
	job.ProcessedDocuments = 5
	if err := db.Store.UpdateJob(ctx, job); err != nil {
		t.Fatalf("UpdateJob(completed) error: %v", err)
	}

	job.Status = store.JobProcessing
	if err := db.Store.UpdateJob(ctx, job); !errors.Is(err, store.ErrValidation) {
		t.Errorf("reopening a completed job error = %v, want ErrValidation", err)
	}

	jobs, err := db.Store.ListJobs(ctx, lib.ID, 10)
	if err != nil {
		t.Fatalf("ListJobs() error: %v", err)
	}
	if len(jobs) != 1 {
		t.Errorf("ListJobs() = %d jobs, want 1", len(jobs))
	}
}
