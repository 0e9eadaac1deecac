package qdrant

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/docdex/docdex/internal/log"
	"github.com/docdex/docdex/internal/store"
)

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "missing collection", cfg: Config{Dimension: 768}},
		{name: "missing dimension", cfg: Config{Collection: "docs"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg, log.NewNop()); err == nil {
				t.Errorf("New(%+v) expected error, got nil", tt.cfg)
			}
		})
	}
}

func TestDocumentPointID_Deterministic(t *testing.T) {
	libID := uuid.New()
	verID := uuid.New()
	hash := store.HashContent("chunk content")

	a := documentPointID(libID, verID, 3, hash)
	b := documentPointID(libID, verID, 3, hash)
	if a != b {
		t.Errorf("same inputs produced different ids: %s vs %s", a, b)
	}

	c := documentPointID(libID, verID, 4, hash)
	if a == c {
		t.Error("different chunk index produced the same id")
	}
	d := documentPointID(libID, verID, 3, store.HashContent("other content"))
	if a == d {
		t.Error("different content hash produced the same id")
	}
}

func TestDocumentPayloadRoundTrip(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Microsecond)
	doc := &store.Document{
		ID:          uuid.New(),
		LibraryID:   uuid.New(),
		VersionID:   uuid.New(),
		Title:       "Hooks",
		Content:     "useState returns a stateful value",
		ContentHash: store.HashContent("useState returns a stateful value"),
		ChunkIndex:  2,
		Hierarchy:   []string{"API", "Hooks"},
		SourceURL:   "https://react.dev/reference/react/useState",
		SourceType:  "web",
		Language:    "en",
		HasCode:     true,
		CodeLang:    "jsx",
		Metadata:    map[string]string{"section": "reference"},
		IndexedAt:   now,
		UpdatedAt:   now,
	}

	payload := qdrant.NewValueMap(documentPayload(doc))
	got := documentFromPayload(doc.ID, payload)

	if got.LibraryID != doc.LibraryID || got.VersionID != doc.VersionID {
		t.Errorf("ids = %s/%s, want %s/%s", got.LibraryID, got.VersionID, doc.LibraryID, doc.VersionID)
	}
	if got.Title != doc.Title || got.Content != doc.Content {
		t.Errorf("title/content mismatch: got %q/%q", got.Title, got.Content)
	}
	if len(got.Hierarchy) != 2 || got.Hierarchy[0] != "API" || got.Hierarchy[1] != "Hooks" {
		t.Errorf("hierarchy = %v, want %v", got.Hierarchy, doc.Hierarchy)
	}
	if !got.HasCode || got.CodeLang != "jsx" {
		t.Errorf("code flags = %v/%q, want true/jsx", got.HasCode, got.CodeLang)
	}
	if got.ChunkIndex != 2 {
		t.Errorf("chunkIndex = %d, want 2", got.ChunkIndex)
	}
	if got.Metadata["section"] != "reference" {
		t.Errorf("metadata = %v, want section=reference", got.Metadata)
	}
	if !got.IndexedAt.Equal(now) {
		t.Errorf("indexedAt = %v, want %v", got.IndexedAt, now)
	}
}

func TestVersionPayloadRoundTrip(t *testing.T) {
	release := time.Date(2022, 6, 14, 0, 0, 0, 0, time.UTC)
	v := &store.Version{
		ID:                uuid.New(),
		LibraryID:         uuid.New(),
		VersionString:     "v18.2.0",
		VersionNormalized: store.NormalizeVersion("v18.2.0"),
		ReleaseDate:       &release,
		IsLatest:          true,
		DocumentCount:     42,
		UpdatedAt:         time.Now().UTC(),
	}

	payload := qdrant.NewValueMap(versionPayload(v))
	got := versionFromPayload(v.ID, payload)

	if got.VersionString != "v18.2.0" || got.VersionNormalized != "0018.0002.0000" {
		t.Errorf("version = %q/%q, want v18.2.0/0018.0002.0000",
			got.VersionString, got.VersionNormalized)
	}
	if !got.IsLatest {
		t.Error("isLatest lost in round trip")
	}
	if got.ReleaseDate == nil || !got.ReleaseDate.Equal(release) {
		t.Errorf("releaseDate = %v, want %v", got.ReleaseDate, release)
	}
	if !got.IndexedAt.IsZero() {
		t.Errorf("indexedAt = %v, want zero for never-indexed version", got.IndexedAt)
	}
	if got.DocumentCount != 42 {
		t.Errorf("documentCount = %d, want 42", got.DocumentCount)
	}
}

func TestLexicalScore(t *testing.T) {
	tests := []struct {
		name     string
		title    string
		content  string
		query    string
		wantZero bool
	}{
		{name: "no terms match", title: "Router", content: "nested routes", query: "useState hook", wantZero: true},
		{name: "content match", title: "Hooks", content: "useState is a hook", query: "useState"},
		{name: "empty query", title: "Hooks", content: "useState", query: "", wantZero: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score := lexicalScore(tt.title, tt.content, queryTerms(tt.query))
			if tt.wantZero && score != 0 {
				t.Errorf("lexicalScore() = %v, want 0", score)
			}
			if !tt.wantZero && score <= 0 {
				t.Errorf("lexicalScore() = %v, want > 0", score)
			}
			if score < 0 || score > 1 {
				t.Errorf("lexicalScore() = %v, out of [0, 1]", score)
			}
		})
	}
}

func TestLexicalScore_TitleWorthMore(t *testing.T) {
	terms := queryTerms("useState")
	inTitle := lexicalScore("useState reference", "other text", terms)
	inBody := lexicalScore("Reference", "useState appears here", terms)
	if inTitle <= inBody {
		t.Errorf("title hit %v <= body hit %v, want title weighted higher", inTitle, inBody)
	}
}

func TestSearchFilter_AlwaysPinsDocumentKind(t *testing.T) {
	libID := uuid.New()
	f := searchFilter(store.SearchFilter{LibraryID: &libID, SourceType: "web"})

	if len(f.Must) != 3 {
		t.Fatalf("filter has %d conditions, want 3 (kind + library + source type)", len(f.Must))
	}

	empty := searchFilter(store.SearchFilter{})
	if len(empty.Must) != 1 {
		t.Errorf("empty filter has %d conditions, want the kind pin only", len(empty.Must))
	}
}
