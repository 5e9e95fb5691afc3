package state

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrations embed.FS

// Migrate runs all pending migrations for the store's dialect.
func (s *SQLStore) Migrate() error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}
	return MigrateWithDB(s.db, s.dialect)
}

// MigrateWithDB runs migrations using a raw database connection.
// This is useful for testing or when the connection comes from elsewhere.
func MigrateWithDB(db *sql.DB, dialect Dialect) error {
	goose.SetBaseFS(migrations)

	if err := goose.SetDialect(string(dialect)); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}

	if err := goose.Up(db, "migrations/"+string(dialect)); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// MigrationVersion returns the current migration version.
func (s *SQLStore) MigrationVersion() (int64, error) {
	if s.db == nil {
		return 0, fmt.Errorf("database not opened")
	}

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect(string(s.dialect)); err != nil {
		return 0, fmt.Errorf("failed to set dialect: %w", err)
	}

	return goose.GetDBVersion(s.db)
}
