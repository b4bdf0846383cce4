// Package mdns provides optional mDNS/Bonjour advertisement of a layoutsync
// backend.
//
// When enabled, the backend advertises itself on the local network using
// DNS-SD so devices can find the layout endpoints without a configured base
// URL. The advertisement carries:
//   - Service type: _layoutsync._tcp
//   - TXT records with protocol version, instance name and whether a bearer
//     token is required
//
// Discovery only reveals presence; the auth token is never advertised.
package mdns

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/grandcat/zeroconf"
)

// ServiceType is the mDNS service type for layoutsync backends.
const ServiceType = "_layoutsync._tcp"

// ProtocolVersion identifies the REST/realtime protocol revision.
const ProtocolVersion = "1"

// Config holds configuration for mDNS advertisement.
type Config struct {
	// Port is the backend port to advertise.
	Port int

	// Name is a human-readable instance name.
	// Defaults to the system hostname if empty.
	Name string

	// RequireAuth is advertised so devices know to ask for a token.
	RequireAuth bool
}

// Advertiser manages mDNS/DNS-SD service registration.
type Advertiser struct {
	config Config
	server *zeroconf.Server
	mu     sync.Mutex
}

// NewAdvertiser creates a new mDNS advertiser with the given configuration.
func NewAdvertiser(cfg Config) *Advertiser {
	return &Advertiser{config: cfg}
}

// Start begins advertising the backend. Calling Start on a running
// advertiser is a no-op.
func (a *Advertiser) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		return nil
	}

	name := instanceName(a.config.Name)
	server, err := zeroconf.Register(
		name,
		ServiceType,
		"local.",
		a.config.Port,
		txtRecords(name, a.config.RequireAuth),
		nil, // all interfaces
	)
	if err != nil {
		return fmt.Errorf("mdns register: %w", err)
	}

	a.server = server
	return nil
}

// Stop unregisters the service. It is safe to call Stop multiple times or on
// an advertiser that was never started.
func (a *Advertiser) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
}

// IsRunning returns true if the advertiser is currently running.
func (a *Advertiser) IsRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.server != nil
}

func instanceName(name string) string {
	if name != "" {
		return name
	}
	if hostname, err := os.Hostname(); err == nil {
		return hostname
	}
	return "layoutsync"
}

func txtRecords(name string, requireAuth bool) []string {
	auth := "none"
	if requireAuth {
		auth = "bearer"
	}
	return []string{
		"version=" + ProtocolVersion,
		"name=" + name,
		"auth=" + auth,
	}
}

// DiscoveredBackend represents a backend found via mDNS discovery.
type DiscoveredBackend struct {
	Name        string
	Host        string
	Port        int
	Version     string
	RequireAuth bool
}

// BaseURL returns the REST root for the backend.
func (b DiscoveredBackend) BaseURL() string {
	return "http://" + net.JoinHostPort(b.Host, strconv.Itoa(b.Port))
}

func backendFromEntry(entry *zeroconf.ServiceEntry) DiscoveredBackend {
	b := DiscoveredBackend{
		Name: entry.Instance,
		Port: entry.Port,
	}

	// Prefer IPv4.
	if len(entry.AddrIPv4) > 0 {
		b.Host = entry.AddrIPv4[0].String()
	} else if len(entry.AddrIPv6) > 0 {
		b.Host = entry.AddrIPv6[0].String()
	}

	for _, txt := range entry.Text {
		key, value, ok := strings.Cut(txt, "=")
		if !ok {
			continue
		}
		switch key {
		case "version":
			b.Version = value
		case "name":
			b.Name = value
		case "auth":
			b.RequireAuth = value == "bearer"
		}
	}
	return b
}

// Discover browses for layoutsync backends until ctx is done and returns
// everything found.
func Discover(ctx context.Context) ([]DiscoveredBackend, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("mdns resolver: %w", err)
	}

	var (
		found []DiscoveredBackend
		wg    sync.WaitGroup
	)

	entries := make(chan *zeroconf.ServiceEntry)

	wg.Add(1)
	go func() {
		defer wg.Done()
		for entry := range entries {
			found = append(found, backendFromEntry(entry))
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, "local.", entries); err != nil {
		return nil, fmt.Errorf("mdns browse: %w", err)
	}

	<-ctx.Done()

	// zeroconf closes entries once ctx is done.
	wg.Wait()

	return found, nil
}
