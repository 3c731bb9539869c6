// Package migrations holds the jobwatch Postgres schema, applied at startup
// by storage.RunMigrations.
package migrations

import "embed"

// FS contains every numbered .sql file in this directory.
//
//go:embed *.sql
var FS embed.FS
