package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"
)

// currentSchemaVersion is the current database schema version.
// Increment this when making schema changes and add migration logic.
const currentSchemaVersion = 3

// initSchema applies every migration newer than the recorded version.
func (s *SQLiteStore) initSchema() error {
	const schemaVersionTable = `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL
		);
	`

	if _, err := s.db.Exec(schemaVersionTable); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var version int
	err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	if err != nil {
		return fmt.Errorf("check schema version: %w", err)
	}

	migrations := []func() error{s.migrateToV1, s.migrateToV2, s.migrateToV3}
	for i, migrate := range migrations {
		if version >= i+1 {
			continue
		}
		if err := migrate(); err != nil {
			return fmt.Errorf("migrate to v%d: %w", i+1, err)
		}
	}

	return nil
}

// migrateToV1 creates the layout tables.
//
// Geometry columns hold the JSON wire form of a grid span or position and
// are NULL when the entity has no geometry of that kind. Timestamps are
// RFC3339 strings.
func (s *SQLiteStore) migrateToV1() error {
	log.Printf("storage: applying migration to schema version 1")

	const layoutTables = `
		CREATE TABLE IF NOT EXISTS session_layouts (
			session_id TEXT PRIMARY KEY,
			view_mode TEXT NOT NULL DEFAULT 'grid',
			active_agent_id TEXT,
			editor_grid_card_id TEXT,
			editor_grid_span TEXT,
			editor_freeform_position TEXT,
			updated_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS agent_layouts (
			session_id TEXT NOT NULL REFERENCES session_layouts(session_id) ON DELETE CASCADE,
			agent_id TEXT NOT NULL,
			grid_span TEXT,
			position TEXT,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (session_id, agent_id)
		);

		CREATE TABLE IF NOT EXISTS file_preview_layouts (
			session_id TEXT NOT NULL REFERENCES session_layouts(session_id) ON DELETE CASCADE,
			preview_id TEXT NOT NULL,
			grid_span TEXT,
			docked INTEGER NOT NULL DEFAULT 0,
			pinned INTEGER NOT NULL DEFAULT 0,
			path TEXT NOT NULL DEFAULT '',
			updated_at TEXT NOT NULL,
			PRIMARY KEY (session_id, preview_id)
		);

		-- Path lookups enforce one preview per path per session.
		CREATE INDEX IF NOT EXISTS idx_previews_path ON file_preview_layouts(session_id, path);
	`

	return s.applyMigration(1, layoutTables)
}

// migrateToV2 adds the session_devices table, which records the devices
// seen on each session topic.
func (s *SQLiteStore) migrateToV2() error {
	log.Printf("storage: applying migration to schema version 2")

	const devicesTable = `
		CREATE TABLE IF NOT EXISTS session_devices (
			session_id TEXT NOT NULL,
			device_id TEXT NOT NULL,
			user_id TEXT NOT NULL DEFAULT '',
			first_seen TEXT NOT NULL,
			last_seen TEXT NOT NULL,
			messages INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (session_id, device_id)
		);
	`

	return s.applyMigration(2, devicesTable)
}

// applyMigration runs ddl and records version in one transaction.
func (s *SQLiteStore) applyMigration(version int, ddl string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(ddl); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	_, err = tx.Exec(
		"INSERT INTO schema_version (version, applied_at) VALUES (?, ?)",
		version,
		time.Now().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("record migration: %w", err)
	}

	return tx.Commit()
}

// tableExists reports whether a table exists in the current database.
func (s *SQLiteStore) tableExists(name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var table string
	err := s.db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
		name,
	).Scan(&table)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check table %s: %w", name, err)
	}
	return table == name, nil
}

// SchemaVersion returns the current database schema version.
// This is useful for diagnostics and testing.
func (s *SQLiteStore) SchemaVersion() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var version int
	err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("get schema version: %w", err)
	}
	return version, nil
}
