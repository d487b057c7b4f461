// Package migrations embeds the SQL migrations for the PostgreSQL directory.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
