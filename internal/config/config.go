// Package config provides TOML configuration file loading for layoutsync.
// The configuration file lives at ~/.layoutsync/config.toml by default, but can
// be overridden with the --config flag. CLI flags always take precedence over
// file values.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the configuration file structure. It is shared by the
// backend ("serve") and the device-side commands ("attach", "set-view", ...).
type Config struct {
	// Addr is the host:port the reference backend listens on.
	// Default: 127.0.0.1:7171
	Addr string `toml:"addr"`

	// DBPath is the SQLite database holding session layouts.
	// Default: ~/.layoutsync/layouts.db
	DBPath string `toml:"db_path"`

	// BaseURL is the backend root used by device-side commands.
	// Default: http://127.0.0.1:7171
	BaseURL string `toml:"base_url"`

	// UserID tags realtime messages published by this device.
	UserID string `toml:"user_id"`

	// AuthToken is the shared bearer token. On the backend it enables
	// authentication; on devices it is sent with every request.
	AuthToken string `toml:"auth_token"`

	// AuthTokenHash is a bcrypt hash of the token, accepted by the backend
	// in place of AuthToken so the secret stays out of the file. Generate
	// one with "layoutsync hash-token".
	AuthTokenHash string `toml:"auth_token_hash"`

	// LogFile redirects log output. Empty means stderr.
	LogFile string `toml:"log_file"`

	// DebounceMs is the quiet period before continuous changes are pushed.
	// Default: 300
	DebounceMs int `toml:"debounce_ms"`

	// RateLimit and RateBurst bound outbound REST requests from a device.
	// Default: 10 requests/second, burst 20
	RateLimit float64 `toml:"rate_limit"`
	RateBurst int     `toml:"rate_burst"`

	// PublishRate and PublishBurst bound realtime frames per connection on
	// the backend. Default: 50 frames/second, burst 100
	PublishRate  float64 `toml:"publish_rate"`
	PublishBurst int     `toml:"publish_burst"`

	// LatencyRetentionHours is how long request latency samples are kept.
	// Default: 24
	LatencyRetentionHours int `toml:"latency_retention_hours"`

	// MdnsEnabled advertises the backend on the local network.
	// Default: false
	MdnsEnabled bool `toml:"mdns_enabled"`
}

// DefaultConfigPath returns the default config file location: ~/.layoutsync/config.toml.
// Returns an error only if the user's home directory cannot be determined.
func DefaultConfigPath() (string, error) {
	return homePath("config.toml")
}

// DefaultDBPath returns the default database location: ~/.layoutsync/layouts.db.
func DefaultDBPath() (string, error) {
	return homePath("layouts.db")
}

func homePath(name string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, DirName, name), nil
}

// WriteDefault creates a config file for a LAN-visible backend at path.
//
// Behavior:
//   - If the file already exists, returns without error (does not overwrite).
//   - Creates the parent directory if it doesn't exist.
//   - The generated file carries the given auth token.
func WriteDefault(path, authToken string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	content := fmt.Sprintf(`# layoutsync configuration

# Listen on all interfaces so other devices can reach the backend
addr = "0.0.0.0:%d"

# Shared bearer token for REST and realtime connections
auth_token = %q

debounce_ms = %d
`, DefaultPort, authToken, DefaultDebounceMs)

	// Owner read/write only: the file holds the auth token.
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Load reads a TOML config file from the given path and returns a Config.
//
// Behavior:
//   - If path is empty, attempts to load from the default location.
//     Returns an empty Config without error if the default file doesn't exist.
//   - If path is specified, returns an error if the file doesn't exist.
//   - Returns an error if the file cannot be parsed or fails Validate.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return cfg, nil
		}
		if _, err := os.Stat(defaultPath); os.IsNotExist(err) {
			return cfg, nil
		}
		path = defaultPath
	} else if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects negative numeric settings. Zero means "use the default".
func (c *Config) Validate() error {
	ints := []struct {
		name  string
		value int
	}{
		{"debounce_ms", c.DebounceMs},
		{"rate_burst", c.RateBurst},
		{"publish_burst", c.PublishBurst},
		{"latency_retention_hours", c.LatencyRetentionHours},
	}
	for _, f := range ints {
		if f.value < 0 {
			return fmt.Errorf("%s must not be negative, got %d", f.name, f.value)
		}
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate_limit must not be negative, got %g", c.RateLimit)
	}
	if c.PublishRate < 0 {
		return fmt.Errorf("publish_rate must not be negative, got %g", c.PublishRate)
	}
	return nil
}
