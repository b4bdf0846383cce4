package config

import (
	"os"
	"testing"
	"time"
)

func TestWatch_ReloadsOnWrite(t *testing.T) {
	path := writeConfig(t, `auth_token = "old"`)

	changes := make(chan *Config, 4)
	w, err := Watch(path, func(cfg *Config) { changes <- cfg })
	if err != nil {
		t.Fatalf("Watch() error: %v", err)
	}
	defer w.Close()

	if err := os.WriteFile(path, []byte(`auth_token = "new"`), 0600); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-changes:
		if cfg.AuthToken != "new" {
			t.Errorf("AuthToken = %q, want new", cfg.AuthToken)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}

func TestWatch_IgnoresInvalidEdit(t *testing.T) {
	path := writeConfig(t, `auth_token = "old"`)

	changes := make(chan *Config, 4)
	w, err := Watch(path, func(cfg *Config) { changes <- cfg })
	if err != nil {
		t.Fatalf("Watch() error: %v", err)
	}
	defer w.Close()

	if err := os.WriteFile(path, []byte(`debounce_ms = -1`), 0600); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-changes:
		t.Fatalf("unexpected reload: %+v", cfg)
	case <-time.After(500 * time.Millisecond):
	}
}

func TestWatch_CloseTwice(t *testing.T) {
	w, err := Watch(writeConfig(t, ``), func(*Config) {})
	if err != nil {
		t.Fatalf("Watch() error: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("first Close() error: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second Close() error: %v", err)
	}
}
