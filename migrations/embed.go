// Package migrations embeds the goose SQL migrations for the replica schema.
package migrations

import "embed"

// FS contains the *.sql migration files applied by store.RunMigrations.
//
//go:embed *.sql
var FS embed.FS
