package state

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // SQLite driver (pure Go)
)

// OpenSQLite opens a migrated SQLite store at path. Use ":memory:" for an
// in-memory database. The parent directory is created if needed.
func OpenSQLite(path string) (*SQLStore, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)"
	} else {
		dsn = ":memory:?_pragma=foreign_keys(ON)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	if path == ":memory:" {
		// Each pool connection would otherwise get its own private empty
		// in-memory database; a single shared connection keeps one database
		// visible to every caller.
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	store := NewSQLStore(db, DialectSQLite)
	if err := store.Migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}
