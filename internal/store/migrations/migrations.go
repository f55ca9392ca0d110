// Package migrations embeds the portal's SQL migrations for goose.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
