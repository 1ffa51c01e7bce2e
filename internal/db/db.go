package db

import (
	"database/sql"
	"fmt"
	"os"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps a connection to one backup's userData.db store.
type DB struct {
	*sql.DB
	path string
}

// Open opens an existing store read-write and applies pragmas. The file must
// already exist: stores arrive inside an archive and are never created here.
func Open(path string) (*DB, error) {
	return open(path, false)
}

// OpenReadOnly opens an existing store for reading only.
func OpenReadOnly(path string) (*DB, error) {
	return open(path, true)
}

func open(path string, readOnly bool) (*DB, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to locate store: %w", err)
	}

	dsn := path
	if readOnly {
		dsn = "file:" + path + "?mode=ro"
	}

	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	// The merge writes rows whose references may not resolve, so foreign key
	// enforcement stays off. DELETE journaling keeps -wal/-shm sidecar files
	// out of the store directory, which is zipped as-is after close.
	pragmas := []string{
		"PRAGMA foreign_keys = OFF",
		"PRAGMA busy_timeout = 5000",
	}
	if !readOnly {
		pragmas = append(pragmas,
			"PRAGMA journal_mode = DELETE",
			"PRAGMA synchronous = NORMAL",
		)
	}

	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to apply pragma %q: %w", pragma, err)
		}
	}

	return &DB{DB: conn, path: path}, nil
}

// Path returns the store file path.
func (db *DB) Path() string {
	return db.path
}

// CountRows returns the number of rows in table. Table names come from the
// schema registry, never from input.
func (db *DB) CountRows(table string) (int, error) {
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s rows: %w", table, err)
	}
	return n, nil
}
