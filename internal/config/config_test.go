package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("Failed to write temp config: %v", err)
	}
	return path
}

// TestLoad_AllFields verifies that all config fields are parsed correctly from TOML.
func TestLoad_AllFields(t *testing.T) {
	path := writeConfig(t, `
addr = "0.0.0.0:8080"
db_path = "/data/layouts.db"
base_url = "http://backend:8080"
user_id = "u-42"
auth_token = "secret"
auth_token_hash = "$2a$10$abcdefghijklmnopqrstuv"
log_file = "/var/log/layoutsync.log"
debounce_ms = 150
rate_limit = 5.5
rate_burst = 7
publish_rate = 30
publish_burst = 60
latency_retention_hours = 48
mdns_enabled = true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Addr != "0.0.0.0:8080" {
		t.Errorf("Addr = %q", cfg.Addr)
	}
	if cfg.DBPath != "/data/layouts.db" {
		t.Errorf("DBPath = %q", cfg.DBPath)
	}
	if cfg.BaseURL != "http://backend:8080" {
		t.Errorf("BaseURL = %q", cfg.BaseURL)
	}
	if cfg.UserID != "u-42" {
		t.Errorf("UserID = %q", cfg.UserID)
	}
	if cfg.AuthToken != "secret" {
		t.Errorf("AuthToken = %q", cfg.AuthToken)
	}
	if cfg.AuthTokenHash != "$2a$10$abcdefghijklmnopqrstuv" {
		t.Errorf("AuthTokenHash = %q", cfg.AuthTokenHash)
	}
	if cfg.LogFile != "/var/log/layoutsync.log" {
		t.Errorf("LogFile = %q", cfg.LogFile)
	}
	if cfg.DebounceWindow() != 150*time.Millisecond {
		t.Errorf("DebounceWindow() = %v, want 150ms", cfg.DebounceWindow())
	}
	if cfg.RateLimit != 5.5 || cfg.RateBurst != 7 {
		t.Errorf("rate = %g/%d, want 5.5/7", cfg.RateLimit, cfg.RateBurst)
	}
	if cfg.PublishRate != 30 || cfg.PublishBurst != 60 {
		t.Errorf("publish = %g/%d, want 30/60", cfg.PublishRate, cfg.PublishBurst)
	}
	if cfg.LatencyRetention() != 48*time.Hour {
		t.Errorf("LatencyRetention() = %v, want 48h", cfg.LatencyRetention())
	}
	if !cfg.MdnsEnabled {
		t.Error("MdnsEnabled = false, want true")
	}
}

// TestLoad_PartialConfig verifies that unset fields keep their zero values.
func TestLoad_PartialConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, `addr = "127.0.0.1:9000"`))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Addr != "127.0.0.1:9000" {
		t.Errorf("Addr = %q", cfg.Addr)
	}
	if cfg.DebounceWindow() != 0 {
		t.Errorf("DebounceWindow() = %v, want 0 (engine default)", cfg.DebounceWindow())
	}
	if cfg.LatencyRetention() != DefaultLatencyRetention {
		t.Errorf("LatencyRetention() = %v, want default", cfg.LatencyRetention())
	}
}

func TestLoad_ExplicitPath_NotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err == nil {
		t.Fatal("Load() expected error for missing explicit path")
	}
}

// TestLoad_EmptyPath_NoDefaultFile verifies that a missing default file is not an error.
func TestLoad_EmptyPath_NoDefaultFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error: %v", err)
	}
	if cfg.Addr != "" {
		t.Errorf("Addr = %q, want empty", cfg.Addr)
	}
}

func TestLoad_EmptyPath_DefaultFileExists(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	dir := filepath.Join(home, DirName)
	if err := os.MkdirAll(dir, 0700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte(`user_id = "from-default"`), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error: %v", err)
	}
	if cfg.UserID != "from-default" {
		t.Errorf("UserID = %q, want from-default", cfg.UserID)
	}
}

func TestLoad_InvalidTOML(t *testing.T) {
	if _, err := Load(writeConfig(t, `addr = "unterminated`)); err == nil {
		t.Fatal("Load() expected parse error")
	}
}

func TestLoad_RejectsNegativeValues(t *testing.T) {
	if _, err := Load(writeConfig(t, `debounce_ms = -1`)); err == nil {
		t.Fatal("Load() expected validation error")
	}
}

func TestDefaultPaths(t *testing.T) {
	cfgPath, err := DefaultConfigPath()
	if err != nil {
		t.Fatalf("DefaultConfigPath() error: %v", err)
	}
	if filepath.Base(cfgPath) != "config.toml" || filepath.Base(filepath.Dir(cfgPath)) != DirName {
		t.Errorf("DefaultConfigPath() = %q", cfgPath)
	}

	dbPath, err := DefaultDBPath()
	if err != nil {
		t.Fatalf("DefaultDBPath() error: %v", err)
	}
	if filepath.Base(dbPath) != "layouts.db" || filepath.Base(filepath.Dir(dbPath)) != DirName {
		t.Errorf("DefaultDBPath() = %q", dbPath)
	}
}

// TestWriteDefault_CreatesFile verifies the generated file loads back with
// LAN-visible defaults and restrictive permissions.
func TestWriteDefault_CreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), DirName, "config.toml")

	if err := WriteDefault(path, "tok-1"); err != nil {
		t.Fatalf("WriteDefault() error: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() error: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("File permissions = %o, want 0600", info.Mode().Perm())
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Addr != "0.0.0.0:7171" {
		t.Errorf("Addr = %q, want 0.0.0.0:7171", cfg.Addr)
	}
	if cfg.AuthToken != "tok-1" {
		t.Errorf("AuthToken = %q, want tok-1", cfg.AuthToken)
	}
	if cfg.DebounceMs != DefaultDebounceMs {
		t.Errorf("DebounceMs = %d, want %d", cfg.DebounceMs, DefaultDebounceMs)
	}
}

func TestWriteDefault_NoOverwrite(t *testing.T) {
	path := writeConfig(t, `user_id = "keep-me"`)

	if err := WriteDefault(path, "tok"); err != nil {
		t.Fatalf("WriteDefault() error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "keep-me") {
		t.Errorf("existing config was overwritten: %s", data)
	}
}

func TestWriteDefault_TokenWithSpecialChars(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	token := `a"b\c`

	if err := WriteDefault(path, token); err != nil {
		t.Fatalf("WriteDefault() error: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.AuthToken != token {
		t.Errorf("AuthToken = %q, want %q", cfg.AuthToken, token)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"empty", Config{}, ""},
		{"valid", Config{DebounceMs: 300, RateLimit: 10, RateBurst: 20}, ""},
		{"negative_debounce", Config{DebounceMs: -5}, "debounce_ms"},
		{"negative_burst", Config{PublishBurst: -1}, "publish_burst"},
		{"negative_rate", Config{RateLimit: -0.5}, "rate_limit"},
		{"negative_publish_rate", Config{PublishRate: -2}, "publish_rate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %s", err, tt.wantErr)
			}
		})
	}
}
