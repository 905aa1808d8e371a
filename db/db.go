// ABOUTME: SQLite bootstrap for the deal mirror database
// ABOUTME: Creates the data directory, applies pragmas, runs the schema
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// OpenDatabase opens the mirror database at path, creating the file and its
// parent directory on first use, and applies the schema. WAL keeps the hourly
// sync from blocking CLI reads; foreign keys are enforced because deal,
// mapping, and entry rows all reference users.
func OpenDatabase(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"
	database, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection at a time sidesteps SQLITE_BUSY between the daemon
	// and CLI writers.
	database.SetMaxOpenConns(1)

	if err := InitSchema(database); err != nil {
		database.Close()
		return nil, err
	}

	return database, nil
}
