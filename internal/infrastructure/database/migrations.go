package database

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"
)

// Schema migrations.
//
// The daemon owns its schema: the module inventory and state history tables
// are created and evolved by SQL files compiled into the binary and applied
// at startup, before the registry touches the database. Migrations are
// forward-only; a bad schema change ships as a new migration, never as a
// rollback.

// MigrationsFS carries the embedded migration files. The migrations package
// registers its embed.FS here from an init function. The zero value means no
// schema management and Migrate is a no-op.
var MigrationsFS embed.FS

// MigrationsDir is the directory inside MigrationsFS holding the .sql files.
var MigrationsDir = "migrations"

// Migration is one embedded schema step.
type Migration struct {
	// Version is the YYYYMMDD_HHMMSS filename prefix. Migrations apply in
	// version order.
	Version string

	// Name is the description part of the filename, for log lines.
	Name string

	// SQL is the statement batch to apply.
	SQL string
}

// Migrate applies every embedded migration the schema ledger has not
// recorded yet.
//
// Each migration commits in its own transaction together with its ledger
// row: a failing migration rolls back alone, earlier ones stay applied, and
// a rerun after the fix continues where it stopped. Already-applied versions
// are skipped, so running Migrate on every daemon start is idempotent.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: The first migration failure, wrapped with its version
func (db *DB) Migrate(ctx context.Context) error {
	migrations, err := loadMigrations()
	if err != nil {
		return fmt.Errorf("loading migrations: %w", err)
	}
	if len(migrations) == 0 {
		return nil
	}

	if err := db.ensureLedger(ctx); err != nil {
		return fmt.Errorf("creating schema ledger: %w", err)
	}
	applied, err := db.appliedVersions(ctx)
	if err != nil {
		return fmt.Errorf("reading schema ledger: %w", err)
	}

	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}
		if err := db.applyMigration(ctx, m); err != nil {
			return fmt.Errorf("migration %s (%s): %w", m.Version, m.Name, err)
		}
	}
	return nil
}

// ensureLedger creates the schema_migrations ledger if it does not exist.
func (db *DB) ensureLedger(ctx context.Context) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL
		)
	`)
	return err
}

// appliedVersions reads the ledger into a version set.
func (db *DB) appliedVersions(ctx context.Context) (map[string]bool, error) {
	rows, err := db.DB.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

// applyMigration runs one migration and its ledger insert in a single
// transaction.
func (db *DB) applyMigration(ctx context.Context, m Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // No-op after commit

	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		return fmt.Errorf("executing SQL: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)",
		m.Version, time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("recording in ledger: %w", err)
	}
	return tx.Commit()
}

// loadMigrations reads the embedded directory into a version-sorted list.
func loadMigrations() ([]Migration, error) {
	var zero embed.FS
	if MigrationsFS == zero {
		return nil, nil
	}

	entries, err := fs.ReadDir(MigrationsFS, MigrationsDir)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", MigrationsDir, err)
	}

	var migrations []Migration
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version, name, ok := parseMigrationFile(entry.Name())
		if !ok {
			continue
		}
		sql, err := fs.ReadFile(MigrationsFS, path.Join(MigrationsDir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", entry.Name(), err)
		}
		migrations = append(migrations, Migration{
			Version: version,
			Name:    name,
			SQL:     string(sql),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// parseMigrationFile splits YYYYMMDD_HHMMSS_description.sql into version and
// description. Anything else is skipped, not an error, so stray files in the
// migrations directory cannot brick startup.
func parseMigrationFile(filename string) (version, name string, ok bool) {
	base, found := strings.CutSuffix(filename, ".sql")
	if !found {
		return "", "", false
	}

	parts := strings.SplitN(base, "_", 3)
	if len(parts) < 3 {
		return "", "", false
	}
	return parts[0] + "_" + parts[1], parts[2], true
}
