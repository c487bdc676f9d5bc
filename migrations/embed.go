// Package migrations embeds the goose migrations of the change order schema.
package migrations

import "embed"

//go:embed changeorders/*.sql
var FS embed.FS

// Dir is the directory inside FS holding the migration files.
const Dir = "changeorders"
