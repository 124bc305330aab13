package store

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"

	"company-lookup/internal/logs"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// runMigrations applies pending schema migrations.
func runMigrations(db *sql.DB, logger *logs.Logger) error {
	goose.SetBaseFS(embedMigrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	goose.SetLogger(goose.NopLogger())

	current, err := goose.GetDBVersion(db)
	if err != nil {
		current = 0
	}

	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	version, err := goose.GetDBVersion(db)
	if err != nil {
		return fmt.Errorf("failed to get db version after migration: %w", err)
	}

	if version > current {
		logger.Info().
			Int64("from_version", current).
			Int64("to_version", version).
			Msg("storage migrations applied")
	}
	return nil
}
