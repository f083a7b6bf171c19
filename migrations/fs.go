package migrations

import "embed"

// FS exposes the SQL migration files for the embedded migration runner.
//
//go:embed *.sql
var FS embed.FS
