// Package postgres implements the storage contract on PostgreSQL with the
// pgvector extension. Vector search runs on an ivfflat cosine index, lexical
// search on a generated tsvector column, and hybrid ranking blends both
// scores inside a single SQL statement.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvector "github.com/pgvector/pgvector-go/pgx"

	"github.com/docdex/docdex/internal/store"
	"github.com/docdex/docdex/internal/store/migrate"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// DefaultSearchLimit applies when SearchOptions.Limit is zero.
const DefaultSearchLimit = 10

// DB is the subset of pgxpool.Pool the store uses. pgxmock satisfies it for
// unit tests.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// Store implements store.Store on PostgreSQL.
type Store struct {
	db     DB
	logger *slog.Logger
}

// NewPool opens a pgx pool with pgvector types registered on every
// connection.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing database url: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: creating pool: %v", store.ErrConnection, err)
	}
	return pool, nil
}

// New creates a Store over an open connection.
func New(db DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

// Initialize verifies connectivity.
func (s *Store) Initialize(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("%w: ping: %v", store.ErrConnection, err)
	}
	s.logger.Debug("postgres store initialized")
	return nil
}

// Close releases the pool.
func (s *Store) Close() error {
	s.db.Close()
	return nil
}

// HealthCheck probes the connection.
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", store.ErrConnection, err)
	}
	return nil
}

// Stats reports table row counts.
func (s *Store) Stats(ctx context.Context) (*store.Stats, error) {
	const q = `
		SELECT
			(SELECT count(*) FROM libraries),
			(SELECT count(*) FROM versions),
			(SELECT count(*) FROM documents),
			(SELECT count(*) FROM indexing_jobs)`

	var st store.Stats
	if err := s.db.QueryRow(ctx, q).Scan(&st.Libraries, &st.Versions, &st.Documents, &st.Jobs); err != nil {
		return nil, wrap("reading stats", err)
	}
	return &st, nil
}

// Migrate applies pending schema files.
func (s *Store) Migrate(ctx context.Context) error {
	runner := migrate.New(migrationFiles, "migrations", s.logger)
	return runner.Run(ctx, &executor{db: s.db})
}

// executor applies migration files against postgres, recording each file
// name in the same transaction as its statements.
type executor struct {
	db DB
}

func (e *executor) EnsureHistory(ctx context.Context) error {
	_, err := e.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_history (
			filename    TEXT PRIMARY KEY,
			executed_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	return err
}

func (e *executor) Applied(ctx context.Context) (map[string]bool, error) {
	rows, err := e.db.Query(ctx, `SELECT filename FROM schema_history`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		applied[name] = true
	}
	return applied, rows.Err()
}

func (e *executor) Apply(ctx context.Context, filename, sql string) error {
	tx, err := e.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, sql); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO schema_history (filename) VALUES ($1)`, filename); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// wrap classifies a pgx error into one storage sentinel.
func wrap(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, store.ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%s: %w", op, store.ErrDuplicate)
	}
	return fmt.Errorf("%s: %w: %v", op, store.ErrQuery, err)
}
