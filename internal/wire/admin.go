package wire

import "time"

// Device is one entry of GET /sessions/{id}/devices.
type Device struct {
	DeviceID  string    `json:"device_id"`
	UserID    string    `json:"user_id,omitempty"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
	Messages  int64     `json:"messages"`
}

// Status is the body of GET /status.
type Status struct {
	// ListeningAddress is the address the backend is listening on.
	ListeningAddress string `json:"listening_address"`

	// Sessions maps each session with live connections to its connection count.
	Sessions map[string]int `json:"sessions"`

	// ConnectedClients is the total number of realtime connections.
	ConnectedClients int `json:"connected_clients"`

	// UptimeSeconds is how long the backend has been running.
	UptimeSeconds int64 `json:"uptime_seconds"`

	// RequireAuth reports whether a bearer token is required.
	RequireAuth bool `json:"require_auth"`

	// RequestsLastHour, ErrorsLastHour and P95MillisLastHour summarize the
	// REST requests of the last hour.
	RequestsLastHour  int   `json:"requests_last_hour"`
	ErrorsLastHour    int   `json:"errors_last_hour"`
	P95MillisLastHour int64 `json:"p95_ms_last_hour"`
}
