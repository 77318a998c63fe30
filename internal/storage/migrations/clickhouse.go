package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"net/url"
	"path"
	"strings"

	chstore "market-history-lab/internal/storage/clickhouse"
)

// RunClickhouseMigrations creates the archive database when missing and
// applies the embedded schema. The returned connection is bound to the
// target database and stays open for the caller.
func RunClickhouseMigrations(ctx context.Context, dsn string) (*chstore.Conn, error) {
	dbName, err := databaseFromDSN(dsn)
	if err != nil {
		return nil, err
	}
	if err := ensureDatabase(ctx, dsn, dbName); err != nil {
		return nil, err
	}

	conn, err := chstore.NewConnWithDatabase(ctx, dsn, dbName)
	if err != nil {
		return nil, fmt.Errorf("connect clickhouse db: %w", err)
	}

	files, err := fs.Glob(ClickhouseFS, "clickhouse/*.sql")
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("list embedded clickhouse migrations: %w", err)
	}

	for _, file := range files {
		data, err := fs.ReadFile(ClickhouseFS, file)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("read migration %s: %w", path.Base(file), err)
		}

		// The driver executes one statement per Exec, so files are split on
		// semicolons. The splitter cannot see string literals; reject files
		// it would cut apart.
		if err := validateNoSemicolonInStrings(string(data)); err != nil {
			conn.Close()
			return nil, fmt.Errorf("validate migration %s: %w", path.Base(file), err)
		}
		for _, stmt := range splitStatements(string(data)) {
			if err := conn.Exec(ctx, stmt); err != nil {
				conn.Close()
				return nil, fmt.Errorf("apply migration %s: %w", path.Base(file), err)
			}
		}
	}

	return conn, nil
}

// ensureDatabase creates the target database when missing. CREATE DATABASE
// runs on a short-lived connection bound to no database, since the target
// may not exist yet.
func ensureDatabase(ctx context.Context, dsn, dbName string) error {
	admin, err := chstore.NewConnWithDatabase(ctx, dsn, "")
	if err != nil {
		return fmt.Errorf("connect clickhouse admin: %w", err)
	}
	defer admin.Close()

	if err := admin.Exec(ctx, "CREATE DATABASE IF NOT EXISTS "+dbName); err != nil {
		return fmt.Errorf("create database %s: %w", dbName, err)
	}
	return nil
}

// splitStatements cuts a migration file into driver-sized statements,
// splitting on semicolons and dropping -- comments and blank lines. The
// split is textual: semicolons inside string literals or block comments
// would be misread as statement boundaries, so migration files must avoid
// both. validateNoSemicolonInStrings guards the literal case.
func splitStatements(input string) []string {
	var stmts []string
	var cur strings.Builder

	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			stmts = append(stmts, s)
		}
		cur.Reset()
	}

	for _, line := range strings.Split(input, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		for {
			i := strings.IndexByte(line, ';')
			if i < 0 {
				cur.WriteString(line)
				cur.WriteByte('\n')
				break
			}
			cur.WriteString(line[:i])
			flush()
			line = line[i+1:]
		}
	}
	flush()
	return stmts
}

// validateNoSemicolonInStrings rejects SQL carrying a semicolon inside a
// single-quoted literal, which splitStatements would misread as a statement
// boundary.
func validateNoSemicolonInStrings(sql string) error {
	inString := false
	for i := 0; i < len(sql); i++ {
		ch := sql[i]
		if ch == '\'' {
			// '' escapes a quote inside a literal
			if i+1 < len(sql) && sql[i+1] == '\'' {
				i++
				continue
			}
			inString = !inString
		} else if ch == ';' && inString {
			return fmt.Errorf("semicolon inside string literal at byte %d", i)
		}
	}
	return nil
}

// databaseFromDSN extracts the database name from the DSN path.
func databaseFromDSN(dsn string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("parse clickhouse dsn: %w", err)
	}
	db := strings.TrimPrefix(u.Path, "/")
	if db == "" {
		return "", fmt.Errorf("clickhouse dsn missing database")
	}
	return db, nil
}
