// Package migrate applies SQL schema files in lexicographic order and tracks
// each applied file by name, so re-running is a no-op for files already
// executed and new files slot in behind the history.
package migrate

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"

	"github.com/docdex/docdex/internal/store"
)

// Executor runs migration statements against a concrete backend. Apply must
// execute the file's SQL and record its name atomically.
type Executor interface {
	// EnsureHistory creates the tracking table if it does not exist.
	EnsureHistory(ctx context.Context) error
	// Applied returns the set of already executed file names.
	Applied(ctx context.Context) (map[string]bool, error)
	// Apply executes one migration file and records it.
	Apply(ctx context.Context, filename, sql string) error
}

// Runner walks an fs.FS of *.sql files and applies the pending ones.
type Runner struct {
	files  fs.FS
	dir    string
	logger *slog.Logger
}

// New creates a Runner reading migration files from dir within files.
func New(files fs.FS, dir string, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{files: files, dir: dir, logger: logger}
}

// Run applies every pending migration in filename order. The first failure
// stops the run; files applied before it stay applied.
func (r *Runner) Run(ctx context.Context, exec Executor) error {
	if err := exec.EnsureHistory(ctx); err != nil {
		return fmt.Errorf("%w: ensuring history table: %v", store.ErrMigration, err)
	}

	applied, err := exec.Applied(ctx)
	if err != nil {
		return fmt.Errorf("%w: reading history: %v", store.ErrMigration, err)
	}

	names, err := fs.Glob(r.files, r.dir+"/*.sql")
	if err != nil {
		return fmt.Errorf("%w: listing migration files: %v", store.ErrMigration, err)
	}
	sort.Strings(names)

	ran := 0
	for _, name := range names {
		base := name[len(r.dir)+1:]
		if applied[base] {
			continue
		}

		sql, err := fs.ReadFile(r.files, name)
		if err != nil {
			return fmt.Errorf("%w: reading %s: %v", store.ErrMigration, base, err)
		}
		if err := exec.Apply(ctx, base, string(sql)); err != nil {
			return fmt.Errorf("%w: applying %s: %v", store.ErrMigration, base, err)
		}

		r.logger.Info("applied migration", "file", base)
		ran++
	}

	r.logger.Debug("migrations up to date", "applied", ran, "total", len(names))
	return nil
}
