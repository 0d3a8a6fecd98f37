// Package migrations embeds the Postgres schema for the key-value store.
// The SQLite backend creates its table on open and does not use these.
package migrations

import "embed"

// FS holds every .sql file in this directory, applied in name order.
//
//go:embed *.sql
var FS embed.FS
