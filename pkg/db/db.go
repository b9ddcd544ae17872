// Package db owns the sqlite schema every library database is created
// with: the devices/libraries/locations/entries/entries_closure/
// content_identities/media-metadata/tags/job_reports/audit_log/sync tables named
// throughout this module's other packages, applied via goose migrations
// embedded into the binary.
package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/sd-io/sdcore/pkg/logging"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Open opens the sqlite database at path, applying any pending schema
// migrations before returning it.
func Open(ctx context.Context, path string, logger *logging.Logger) (*sql.DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("db: opening database: %w", err)
	}

	if err := Migrate(ctx, conn, logger); err != nil {
		conn.Close()
		return nil, err
	}

	return conn, nil
}

// Migrate applies all pending schema migrations to conn.
func Migrate(ctx context.Context, conn *sql.DB, logger *logging.Logger) error {
	migrations, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("db: preparing migration filesystem: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, conn, migrations)
	if err != nil {
		return fmt.Errorf("db: creating migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("db: applying migrations: %w", err)
	}

	for _, result := range results {
		logger.Printf("applied migration %s (%s)", result.Source.Path, result.Duration)
	}

	return nil
}
