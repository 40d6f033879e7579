// Package migrations embeds the SQL migration files into the binary so
// `flowline migrate` and `flowline serve` work without the files on disk.
package migrations

import (
	"embed"

	"github.com/nerrad567/flowline-core/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
