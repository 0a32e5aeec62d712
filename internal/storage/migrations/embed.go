package migrations

import "embed"

// Schema holds one directory of .sql files per backend, applied in file-name order.
//
//go:embed postgres/*.sql clickhouse/*.sql sqlite/*.sql
var Schema embed.FS

// Backend directories inside Schema.
const (
	dirPostgres   = "postgres"
	dirClickhouse = "clickhouse"
	dirSqlite     = "sqlite"
)
