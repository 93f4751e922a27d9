// Package migrations embeds the SQL schema migrations for comet.db.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
