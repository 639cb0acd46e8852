// Package migrations embeds the schema for each supported database.
package migrations

import "embed"

//go:embed sqlite/*.sql postgres/*.sql
var FS embed.FS

// Dir returns the migration directory inside FS for a database/sql driver
// name.
func Dir(driver string) string {
	if driver == "pgx" {
		return "postgres"
	}
	return "sqlite"
}
