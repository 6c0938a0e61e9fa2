// Package migrations embeds the SQL migration files goose applies at
// startup. Keeping the FS embed in its own package lets internal/postgres
// import it without the migration files needing to live at the module root.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
