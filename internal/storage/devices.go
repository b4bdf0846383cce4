package storage

// devices.go contains SQLiteStore methods for device activity tracking.
// A device is one browser tab or client connected to a session topic.

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"
)

// Device is the activity record of one device on one session.
type Device struct {
	SessionID string
	ID        string
	UserID    string
	FirstSeen time.Time
	LastSeen  time.Time
	Messages  int64 // Realtime messages relayed from this device.
}

// TouchDevice records activity by a device on a session. The first call
// creates the record; later calls move last_seen forward and add messages
// to the relayed count. A non-empty userID replaces the stored one.
func (s *SQLiteStore) TouchDevice(sessionID, deviceID, userID string, messages int64, at time.Time) error {
	if sessionID == "" || deviceID == "" {
		return errors.New("session and device id are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	const query = `
		INSERT INTO session_devices (session_id, device_id, user_id, first_seen, last_seen, messages)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (session_id, device_id) DO UPDATE SET
			user_id = CASE WHEN excluded.user_id != '' THEN excluded.user_id ELSE user_id END,
			last_seen = excluded.last_seen,
			messages = messages + excluded.messages
	`

	ts := at.UTC().Format(timeLayout)
	if _, err := s.db.Exec(query, sessionID, deviceID, userID, ts, ts, messages); err != nil {
		return fmt.Errorf("touch device: %w", err)
	}
	return nil
}

// GetDevice retrieves one device record.
// Returns nil, nil if the device has never been seen on the session.
func (s *SQLiteStore) GetDevice(sessionID, deviceID string) (*Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	const query = `
		SELECT session_id, device_id, user_id, first_seen, last_seen, messages
		FROM session_devices
		WHERE session_id = ? AND device_id = ?
	`

	device, err := scanDevice(s.db.QueryRow(query, sessionID, deviceID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get device: %w", err)
	}
	return device, nil
}

// ListDevices returns the devices seen on a session, most recent first.
func (s *SQLiteStore) ListDevices(sessionID string) ([]*Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	const query = `
		SELECT session_id, device_id, user_id, first_seen, last_seen, messages
		FROM session_devices
		WHERE session_id = ?
		ORDER BY last_seen DESC, device_id ASC
	`

	rows, err := s.db.Query(query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query devices: %w", err)
	}
	defer rows.Close()

	var devices []*Device
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, device)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate device rows: %w", err)
	}

	log.Printf("storage: listed %d devices for session %s", len(devices), sessionID)
	return devices, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanDevice(row scanner) (*Device, error) {
	var (
		device    Device
		firstSeen string
		lastSeen  string
	)

	err := row.Scan(
		&device.SessionID,
		&device.ID,
		&device.UserID,
		&firstSeen,
		&lastSeen,
		&device.Messages,
	)
	if err != nil {
		return nil, err
	}

	t, err := time.Parse(time.RFC3339Nano, firstSeen)
	if err != nil {
		return nil, fmt.Errorf("parse first_seen: %w", err)
	}
	device.FirstSeen = t

	t, err = time.Parse(time.RFC3339Nano, lastSeen)
	if err != nil {
		return nil, fmt.Errorf("parse last_seen: %w", err)
	}
	device.LastSeen = t

	return &device, nil
}
