package auth

import (
	"embed"
)

//go:embed data/sql/migrations
var migrationsFS embed.FS

// GetMigrationsFS returns the postgres migrations for the auth tables, for
// deployments that manage schema outside CreateSchema.
func GetMigrationsFS() embed.FS {
	return migrationsFS
}
