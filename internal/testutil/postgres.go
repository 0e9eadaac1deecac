// Package testutil provides shared test infrastructure: a pgvector-enabled
// PostgreSQL container, a deterministic fake embedding provider, and logger
// helpers.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/docdex/docdex/internal/log"
	"github.com/docdex/docdex/internal/store/postgres"
)

// TestDB wraps a PostgreSQL test container with a migrated store.
type TestDB struct {
	Container *tcpostgres.PostgresContainer
	Pool      *pgxpool.Pool
	Store     *postgres.Store
	ConnStr   string
}

// SetupTestDB starts a pgvector-enabled PostgreSQL container, connects with
// vector types registered, and applies the schema. Call the returned cleanup
// to terminate the container.
func SetupTestDB(t *testing.T) (*TestDB, func()) {
	t.Helper()

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"pgvector/pgvector:pg16",
		tcpostgres.WithDatabase("docdex_test"),
		tcpostgres.WithUsername("docdex_test"),
		tcpostgres.WithPassword("test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("starting postgres container: %v", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("getting connection string: %v", err)
	}

	pool, err := postgres.NewPool(ctx, connStr)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("creating pool: %v", err)
	}

	st := postgres.New(pool, log.NewNop())
	if err := st.Migrate(ctx); err != nil {
		pool.Close()
		_ = container.Terminate(ctx)
		t.Fatalf("applying migrations: %v", err)
	}

	db := &TestDB{Container: container, Pool: pool, Store: st, ConnStr: connStr}
	cleanup := func() {
		pool.Close()
		_ = container.Terminate(context.Background())
	}
	return db, cleanup
}
