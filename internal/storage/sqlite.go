// Package storage persists session layouts for the reference backend.
//
// The backend keeps one row per session for the top-level fields (view
// mode, focus, editor card) and one row per agent and file preview. PATCH
// requests are merged server-side: only the fields present in a partial
// payload are written.
package storage

import (
	"database/sql"
	"fmt"
	"log"
	"sync"

	// SQLite driver - imported for side effects (registers the driver).
	// modernc.org/sqlite is pure Go and needs no CGO.
	_ "modernc.org/sqlite"
)

// timeLayout is RFC3339 with fixed-width nanoseconds, so stored timestamps
// sort as text. Values are always written in UTC.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore is the durable layout store. It creates the database and
// tables on first use and supports concurrent access through internal
// locking.
type SQLiteStore struct {
	db *sql.DB      // Database connection handle.
	mu sync.RWMutex // Guards all database operations for thread safety.
}

// NewSQLiteStore opens or creates a SQLite database at the given path.
// It initializes the schema if the tables don't exist.
// Use ":memory:" for an in-memory database (useful for testing).
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	log.Printf("storage: opening database at %s", path)

	// busy_timeout covers the CLI reading the file while the server writes.
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// A single connection keeps ":memory:" databases shared across calls
	// and serializes writers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	log.Printf("storage: database ready (schema version %d)", currentSchemaVersion)
	return store, nil
}

// Close releases the database connection.
func (s *SQLiteStore) Close() error {
	log.Printf("storage: closing database")
	return s.db.Close()
}
