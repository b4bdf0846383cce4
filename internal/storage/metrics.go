package storage

// metrics.go contains SQLiteStore methods for request latency samples.
// The server records one sample per REST request and reports the p95 on
// the /status endpoint.

import (
	"fmt"
	"log"
	"time"
)

// migrateToV3 adds the request_latency table.
func (s *SQLiteStore) migrateToV3() error {
	log.Printf("storage: applying migration to schema version 3")

	const latencyTable = `
		CREATE TABLE IF NOT EXISTS request_latency (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			route TEXT NOT NULL,
			status INTEGER NOT NULL,
			duration_ms INTEGER NOT NULL,
			recorded_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_latency_recorded_at ON request_latency(recorded_at);
	`

	return s.applyMigration(3, latencyTable)
}

// LatencyStats summarizes the samples of a window.
type LatencyStats struct {
	Samples int
	Errors  int // Samples with a status of 400 or above.
	P95     time.Duration
}

// RecordLatency inserts one request sample.
func (s *SQLiteStore) RecordLatency(route string, status int, d time.Duration, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		"INSERT INTO request_latency (route, status, duration_ms, recorded_at) VALUES (?, ?, ?, ?)",
		route, status, d.Milliseconds(), at.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("record latency: %w", err)
	}
	return nil
}

// LatencySince returns the sample count, error count, and p95 latency of
// the samples recorded at or after since.
func (s *SQLiteStore) LatencySince(since time.Time) (LatencyStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := since.UTC().Format(timeLayout)

	var stats LatencyStats
	err := s.db.QueryRow(
		"SELECT COUNT(*), COALESCE(SUM(CASE WHEN status >= 400 THEN 1 ELSE 0 END), 0) FROM request_latency WHERE recorded_at >= ?",
		cutoff,
	).Scan(&stats.Samples, &stats.Errors)
	if err != nil {
		return LatencyStats{}, fmt.Errorf("count latency samples: %w", err)
	}
	if stats.Samples == 0 {
		return stats, nil
	}

	// p95: the value at index ceil(0.95 * count) when sorted ascending.
	offset := int(float64(stats.Samples)*0.95) - 1
	if offset < 0 {
		offset = 0
	}

	var p95 int64
	err = s.db.QueryRow(
		"SELECT duration_ms FROM request_latency WHERE recorded_at >= ? ORDER BY duration_ms ASC LIMIT 1 OFFSET ?",
		cutoff, offset,
	).Scan(&p95)
	if err != nil {
		return stats, fmt.Errorf("query latency p95: %w", err)
	}
	stats.P95 = time.Duration(p95) * time.Millisecond

	return stats, nil
}

// PruneLatency deletes samples recorded before cutoff and returns how many
// were removed.
func (s *SQLiteStore) PruneLatency(cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(
		"DELETE FROM request_latency WHERE recorded_at < ?",
		cutoff.UTC().Format(timeLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("prune latency: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}
