// Package chunk splits raw source documents into retrieval-sized passages
// while preserving their header hierarchy. The splitter produces overlapping
// windows aligned to paragraph and code-fence boundaries; each window is
// annotated with the ordered list of markdown headers enclosing its start
// offset.
package chunk

import (
	"fmt"
	"log/slog"
)

// Defaults for the boundary-aware splitter.
const (
	DefaultSize    = 1500
	DefaultOverlap = 200
)

// RawDocument is the contract every source adapter must honor when handing
// material to the chunker.
type RawDocument struct {
	Title    string
	Content  string
	URL      string
	Metadata map[string]string
}

// Chunk is one retrieval-sized passage with structural context.
type Chunk struct {
	// Title is the deepest applicable header, or the document title when no
	// header encloses the chunk.
	Title string
	// Content is the passage text.
	Content string
	// Hierarchy lists enclosing header titles from top-level to deepest.
	Hierarchy []string
	// SectionLevel is len(Hierarchy).
	SectionLevel int
	// URL is the source document URL.
	URL string
	// Index is the zero-based window position within the source document.
	Index int
	// Offset and Length locate the passage in the source text.
	Offset int
	Length int
	// Metadata carries through the source document's metadata.
	Metadata map[string]string
}

// Config controls window sizing.
type Config struct {
	// Size is the target window length in characters.
	Size int
	// Overlap is the number of characters shared between consecutive
	// windows. Must be strictly smaller than Size.
	Overlap int
}

// Chunker splits documents into overlapping, hierarchy-annotated chunks.
type Chunker struct {
	size    int
	overlap int
	logger  *slog.Logger
}

// New creates a Chunker. Zero config fields fall back to defaults; the
// overlap must stay strictly smaller than the window size.
func New(cfg Config, logger *slog.Logger) (*Chunker, error) {
	if logger == nil {
		logger = slog.Default()
	}
	size := cfg.Size
	if size == 0 {
		size = DefaultSize
	}
	overlap := cfg.Overlap
	if overlap == 0 && cfg.Size == 0 {
		overlap = DefaultOverlap
	}
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("overlap %d must be in [0, size); size is %d", overlap, size)
	}
	return &Chunker{size: size, overlap: overlap, logger: logger}, nil
}

// ChunkDocuments splits each document into chunks. A malformed document is
// logged and skipped; the batch call never aborts for one bad input.
func (c *Chunker) ChunkDocuments(docs []RawDocument) []Chunk {
	var out []Chunk
	for _, doc := range docs {
		chunks, err := c.chunkOne(doc)
		if err != nil {
			c.logger.Warn("skipping malformed document",
				"title", doc.Title, "url", doc.URL, "error", err)
			continue
		}
		out = append(out, chunks...)
	}
	return out
}

// chunkOne splits a single document.
func (c *Chunker) chunkOne(doc RawDocument) ([]Chunk, error) {
	if doc.Content == "" {
		return nil, fmt.Errorf("document has no content")
	}

	headers := scanHeaders(doc.Content)
	windows := c.split(doc.Content)

	chunks := make([]Chunk, 0, len(windows))
	for i, w := range windows {
		hierarchy := hierarchyAt(headers, w.start)

		title := doc.Title
		if len(hierarchy) > 0 {
			title = hierarchy[len(hierarchy)-1]
		}

		chunks = append(chunks, Chunk{
			Title:        title,
			Content:      doc.Content[w.start:w.end],
			Hierarchy:    hierarchy,
			SectionLevel: len(hierarchy),
			URL:          doc.URL,
			Index:        i,
			Offset:       w.start,
			Length:       w.end - w.start,
			Metadata:     doc.Metadata,
		})
	}

	c.logger.Debug("chunked document",
		"title", doc.Title, "chunks", len(chunks), "headers", len(headers))
	return chunks, nil
}
