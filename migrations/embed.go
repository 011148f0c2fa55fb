// Package migrations embeds the daemon's schema files into the binary.
//
// Files are named YYYYMMDD_HHMMSS_description.sql and applied forward-only
// in version order; see the database package for the ledger semantics.
package migrations

import (
	"embed"

	"github.com/hbtn-io/habitron-bridge/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	// Register embedded migrations with the database package.
	// The embed directive above captures all .sql files in this directory.
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "." // Files are at root of embedded FS
}
