package config

import (
	"fmt"
	"time"
)

// DirName is the per-user directory under $HOME holding config and data.
const DirName = ".layoutsync"

// DefaultPort is the default backend port.
const DefaultPort = 7171

// DefaultAddr is the default listen address for the backend.
var DefaultAddr = fmt.Sprintf("127.0.0.1:%d", DefaultPort)

// DefaultBaseURL is the backend root device-side commands talk to.
var DefaultBaseURL = fmt.Sprintf("http://127.0.0.1:%d", DefaultPort)

// DefaultDebounceMs matches the engine's continuous-change window.
const DefaultDebounceMs = 300

// DefaultLatencyRetention is how long request latency samples are kept.
const DefaultLatencyRetention = 24 * time.Hour

// DebounceWindow returns DebounceMs as a duration, or zero when unset.
func (c *Config) DebounceWindow() time.Duration {
	return time.Duration(c.DebounceMs) * time.Millisecond
}

// LatencyRetention returns the configured retention or the default.
func (c *Config) LatencyRetention() time.Duration {
	if c.LatencyRetentionHours <= 0 {
		return DefaultLatencyRetention
	}
	return time.Duration(c.LatencyRetentionHours) * time.Hour
}
