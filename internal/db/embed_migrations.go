package db

import "embed"

// MigrationFS embeds the SQL migrations so cmd/migrate needs no files on disk.
//
//go:embed migrations/*.sql
var MigrationFS embed.FS
