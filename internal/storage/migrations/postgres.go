package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"market-history-lab/internal/storage/postgres"
)

// RunPostgresMigrations applies the embedded journal schema in lexical
// order. Every migration is written to be idempotent, so reapplying the
// whole set on startup is safe.
func RunPostgresMigrations(ctx context.Context, pool *postgres.Pool) error {
	files, err := fs.Glob(PostgresFS, "postgres/*.sql")
	if err != nil {
		return fmt.Errorf("list embedded postgres migrations: %w", err)
	}

	for _, file := range files {
		data, err := fs.ReadFile(PostgresFS, file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", path.Base(file), err)
		}
		if strings.TrimSpace(string(data)) == "" {
			continue
		}
		if _, err := pool.Exec(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", path.Base(file), err)
		}
	}

	return nil
}
