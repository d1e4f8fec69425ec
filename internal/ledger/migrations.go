package ledger

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrSchemaTooNew is returned when the ledger was written by a newer build.
// Migrating it down would lose run history, so Open refuses instead.
var ErrSchemaTooNew = errors.New("ledger: schema is newer than this build")

// migrateSchema brings the ledger schema up to the newest embedded
// migration and returns the resulting version.
func migrateSchema(ctx context.Context, db *sql.DB, logger *slog.Logger) (int64, error) {
	subFS, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return 0, fmt.Errorf("ledger: reading embedded migrations: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, subFS)
	if err != nil {
		return 0, fmt.Errorf("ledger: loading migrations: %w", err)
	}

	current, target, err := provider.GetVersions(ctx)
	if err != nil {
		return 0, fmt.Errorf("ledger: reading schema version: %w", err)
	}

	if current > target {
		return 0, fmt.Errorf("%w: database at version %d, build knows up to %d", ErrSchemaTooNew, current, target)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return 0, fmt.Errorf("ledger: migrating schema from version %d: %w", current, err)
	}

	for _, r := range results {
		logger.Info("ledger schema migrated",
			slog.Int64("version", r.Source.Version),
			slog.Int64("duration_ms", r.Duration.Milliseconds()),
		)
	}

	return target, nil
}
