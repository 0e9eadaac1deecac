package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/docdex/docdex/internal/chunk"
	"github.com/docdex/docdex/internal/config"
	"github.com/docdex/docdex/internal/docs"
	"github.com/docdex/docdex/internal/pipeline"
	"github.com/docdex/docdex/internal/store"
)

// runIndex ingests a local documentation tree:
// docdex index <libraryId> <version> <dir>
func runIndex(logger *slog.Logger, args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("usage: docdex index <libraryId> <version> <dir>")
	}
	libraryID, versionString, dir := args[0], args[1], args[2]

	id, err := docs.ParseIdentifier(libraryID)
	if err != nil {
		return err
	}
	if id.Version != "" {
		return fmt.Errorf("%w: pass the version as a separate argument", store.ErrValidation)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	documents, err := collectDocuments(dir)
	if err != nil {
		return err
	}
	if len(documents) == 0 {
		return fmt.Errorf("no markdown files found under %s", dir)
	}
	logger.Info("collected documents", "dir", dir, "count", len(documents))

	st, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := st.Migrate(ctx); err != nil {
		return fmt.Errorf("migrating store: %w", err)
	}

	lib, version, err := ensureLibraryVersion(ctx, st, id, versionString)
	if err != nil {
		return err
	}

	embedder, err := newEmbedder(ctx, cfg, logger)
	if err != nil {
		return err
	}
	chunker, err := chunk.New(chunk.Config{
		Size:    cfg.ChunkSize,
		Overlap: cfg.ChunkOverlap,
	}, logger.With("component", "chunker"))
	if err != nil {
		return fmt.Errorf("creating chunker: %w", err)
	}
	pipe, err := pipeline.New(st, chunker, embedder, pipeline.Config{
		BatchSize: cfg.EmbedBatchSize,
	}, logger.With("component", "pipeline"))
	if err != nil {
		return fmt.Errorf("creating pipeline: %w", err)
	}

	result, err := pipe.Run(ctx, pipeline.Request{
		LibraryID:  lib.ID,
		VersionID:  version.ID,
		SourceType: "markdown",
		Documents:  documents,
	})
	if err != nil {
		return fmt.Errorf("indexing %s@%s: %w", lib.Identifier, versionString, err)
	}

	switch {
	case result.Cancelled:
		fmt.Printf("Indexing cancelled: %d indexed (job %s)\n",
			result.Indexed, result.JobID)
	case !result.Success:
		return fmt.Errorf("indexing failed: %s (job %s)", result.Error, result.JobID)
	default:
		fmt.Printf("Indexed %s@%s: %d chunks stored, %d with reused embeddings (job %s)\n",
			lib.Identifier, versionString, result.Indexed, result.Reused, result.JobID)
	}
	return nil
}

// ensureLibraryVersion finds or creates the library and version rows. A
// newly created version becomes the latest.
func ensureLibraryVersion(ctx context.Context, st store.Store, id docs.Identifier, versionString string) (*store.Library, *store.Version, error) {
	lib, err := st.GetLibraryByIdentifier(ctx, id.String())
	if errors.Is(err, store.ErrNotFound) {
		lib = &store.Library{
			Org:     id.Org,
			Project: id.Project,
			Name:    id.Project,
		}
		if err := st.CreateLibrary(ctx, lib); err != nil {
			return nil, nil, fmt.Errorf("creating library %s: %w", id.String(), err)
		}
	} else if err != nil {
		return nil, nil, fmt.Errorf("looking up library %s: %w", id.String(), err)
	}

	version, err := st.GetVersionByString(ctx, lib.ID, versionString)
	if errors.Is(err, store.ErrNotFound) {
		version = &store.Version{
			LibraryID:     lib.ID,
			VersionString: versionString,
			IsLatest:      true,
		}
		if err := st.CreateVersion(ctx, version); err != nil {
			return nil, nil, fmt.Errorf("creating version %s: %w", versionString, err)
		}
	} else if err != nil {
		return nil, nil, fmt.Errorf("looking up version %s: %w", versionString, err)
	}
	return lib, version, nil
}

// collectDocuments walks dir and reads every markdown file into a raw
// document. The relative path becomes the source URL; the first H1, or the
// file name, becomes the title.
func collectDocuments(dir string) ([]chunk.RawDocument, error) {
	var documents []chunk.RawDocument

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != dir {
				return filepath.SkipDir
			}
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".md" && ext != ".markdown" {
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			rel = path
		}
		documents = append(documents, chunk.RawDocument{
			Title:   documentTitle(string(content), rel),
			Content: string(content),
			URL:     filepath.ToSlash(rel),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", dir, err)
	}
	return documents, nil
}

// documentTitle returns the first H1 heading, falling back to the file name
// without its extension.
func documentTitle(content, rel string) string {
	for line := range strings.Lines(content) {
		trimmed := strings.TrimSpace(line)
		if after, ok := strings.CutPrefix(trimmed, "# "); ok {
			return strings.TrimSpace(after)
		}
	}
	base := filepath.Base(rel)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
