package migrations

import "embed"

// FS contains embedded SQLite migrations for hangout storage.
//
//go:embed *.sql
var FS embed.FS
