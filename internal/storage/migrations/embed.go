package migrations

import "embed"

// PostgresFS holds the fill journal schema.
//
//go:embed postgres/*.sql
var PostgresFS embed.FS

// ClickhouseFS holds the bucket archive schema.
//
//go:embed clickhouse/*.sql
var ClickhouseFS embed.FS
