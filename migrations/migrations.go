// Package migrations embeds the SQLite schema migration files so the agent
// binary can migrate a fresh device without shipping loose .sql files.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
