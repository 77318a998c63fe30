package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupTestDB starts a PostgreSQL container and creates the schema.
// The returned cleanup must be called after the test completes.
func setupTestDB(t *testing.T) (*Pool, func()) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "failed to get connection string")

	pool, err := NewPool(ctx, dsn)
	require.NoError(t, err, "failed to create pool")

	createSchema(t, ctx, pool)

	cleanup := func() {
		pool.Close()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}

	return pool, cleanup
}

// createSchema applies the fill_events DDL directly. It mirrors the embedded
// migration file; importing the migrations package from here would be an
// import cycle.
func createSchema(t *testing.T, ctx context.Context, pool *Pool) {
	t.Helper()

	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS fill_events (
			fill_id            TEXT PRIMARY KEY,
			block_height       BIGINT NOT NULL,
			tx_index           INTEGER NOT NULL,
			op_index           INTEGER NOT NULL,
			block_time         BIGINT NOT NULL,
			pays_asset_id      BIGINT NOT NULL,
			pays_amount        BIGINT NOT NULL,
			receives_asset_id  BIGINT NOT NULL,
			receives_amount    BIGINT NOT NULL,
			created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
			CONSTRAINT fill_events_position_unique UNIQUE (block_height, tx_index, op_index)
		);
		CREATE INDEX IF NOT EXISTS idx_fill_events_height ON fill_events (block_height);
	`)
	require.NoError(t, err, "failed to create schema")
}
