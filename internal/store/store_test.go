package store

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestHashContent_Stable(t *testing.T) {
	content := "# React Hooks\n\nuseState returns a stateful value."

	first := HashContent(content)
	second := HashContent(content)

	if first != second {
		t.Errorf("HashContent not stable: %q != %q", first, second)
	}
	if len(first) != 64 {
		t.Errorf("HashContent length = %d, want 64 hex chars", len(first))
	}
	if first == HashContent(content+" ") {
		t.Error("HashContent should differ for different content")
	}
}

func TestDocumentID_Stable(t *testing.T) {
	libID := uuid.New()
	verID := uuid.New()

	a := DocumentID(libID, verID, 3)
	b := DocumentID(libID, verID, 3)
	if a != b {
		t.Errorf("DocumentID not stable: %s != %s", a, b)
	}
	if a == DocumentID(libID, verID, 4) {
		t.Error("DocumentID should differ per chunk index")
	}
	if a == DocumentID(libID, uuid.New(), 3) {
		t.Error("DocumentID should differ per version")
	}
}

func TestDetectCode(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantCode bool
		wantLang string
	}{
		{
			name:     "no code",
			content:  "Plain prose about nothing in particular.",
			wantCode: false,
		},
		{
			name:     "fenced block with language",
			content:  "Intro\n\n```go\nfunc main() {}\n```\n\nOutro",
			wantCode: true,
			wantLang: "go",
		},
		{
			name:     "fenced block without language",
			content:  "```\nplain\n```",
			wantCode: true,
			wantLang: "",
		},
		{
			name:     "first language wins",
			content:  "```python\npass\n```\n\n```js\nlet x\n```",
			wantCode: true,
			wantLang: "python",
		},
		{
			name:     "info string extras trimmed",
			content:  "```ts title=app.ts\nexport {}\n```",
			wantCode: true,
			wantLang: "ts",
		},
		{
			name:     "indented fence",
			content:  "  ```rust\n  fn main() {}\n  ```",
			wantCode: true,
			wantLang: "rust",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotCode, gotLang := DetectCode(tt.content)
			if gotCode != tt.wantCode {
				t.Errorf("DetectCode() hasCode = %v, want %v", gotCode, tt.wantCode)
			}
			if gotLang != tt.wantLang {
				t.Errorf("DetectCode() language = %q, want %q", gotLang, tt.wantLang)
			}
		})
	}
}

func TestNormalizeVersion(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"v18.2.0", "0018.0002.0000"},
		{"18.2.0", "0018.0002.0000"},
		{"1.4", "0001.0004.0000"},
		{"3", "0003.0000.0000"},
		{"2.0.0-rc1", "0002.0000.0000-rc1"},
		{"latest", "latest"},
		{"", ""},
		{"1.2.3.4", "1.2.3.4"},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			if got := NormalizeVersion(tt.raw); got != tt.want {
				t.Errorf("NormalizeVersion(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestNormalizeVersion_OrdersLexicographically(t *testing.T) {
	// The whole point of zero-padding: string order == semver order.
	low := NormalizeVersion("v9.9.9")
	high := NormalizeVersion("v18.2.0")
	if strings.Compare(low, high) >= 0 {
		t.Errorf("expected %q < %q lexicographically", low, high)
	}
}

func TestJobStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to JobStatus
		want     bool
	}{
		{JobPending, JobProcessing, true},
		{JobPending, JobCancelled, true},
		{JobPending, JobCompleted, false},
		{JobProcessing, JobCompleted, true},
		{JobProcessing, JobFailed, true},
		{JobProcessing, JobCancelled, true},
		{JobCompleted, JobProcessing, false},
		{JobFailed, JobCancelled, false},
		{JobCancelled, JobProcessing, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
				t.Errorf("CanTransitionTo(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestVersionIsReadyForIndexing(t *testing.T) {
	v := &Version{}
	if !v.IsReadyForIndexing() {
		t.Error("fresh version should be ready for indexing")
	}
	v.IsDeprecated = true
	if v.IsReadyForIndexing() {
		t.Error("deprecated version must not be ready for indexing")
	}
}

func TestSearchOptionsWeights(t *testing.T) {
	var opts SearchOptions
	v, txt := opts.Weights()
	if v != DefaultVectorWeight || txt != DefaultTextWeight {
		t.Errorf("default weights = (%v, %v), want (%v, %v)", v, txt, DefaultVectorWeight, DefaultTextWeight)
	}

	opts = SearchOptions{VectorWeight: 0.5, TextWeight: 0.5}
	v, txt = opts.Weights()
	if v != 0.5 || txt != 0.5 {
		t.Errorf("explicit weights = (%v, %v), want (0.5, 0.5)", v, txt)
	}
}
