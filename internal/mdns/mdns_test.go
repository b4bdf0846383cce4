package mdns

import (
	"context"
	"net"
	"reflect"
	"testing"
	"time"

	"github.com/grandcat/zeroconf"
)

func TestNewAdvertiser(t *testing.T) {
	advertiser := NewAdvertiser(Config{Port: 7171, Name: "test-backend", RequireAuth: true})
	if advertiser.config.Port != 7171 {
		t.Errorf("expected port 7171, got %d", advertiser.config.Port)
	}
	if advertiser.IsRunning() {
		t.Error("advertiser should not be running before Start()")
	}
}

func TestAdvertiserMultipleStops(t *testing.T) {
	advertiser := NewAdvertiser(Config{Port: 7171})

	advertiser.Stop()
	advertiser.Stop()

	if advertiser.IsRunning() {
		t.Error("advertiser should not be running after Stop()")
	}
}

func TestTXTRecords(t *testing.T) {
	got := txtRecords("studio", true)
	want := []string{"version=1", "name=studio", "auth=bearer"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("txtRecords = %v, want %v", got, want)
	}

	if got := txtRecords("studio", false)[2]; got != "auth=none" {
		t.Errorf("auth record = %q, want auth=none", got)
	}
}

func TestInstanceNameFallsBackToHostname(t *testing.T) {
	if got := instanceName("explicit"); got != "explicit" {
		t.Errorf("instanceName = %q", got)
	}
	if got := instanceName(""); got == "" {
		t.Error("instanceName should never be empty")
	}
}

func TestBackendFromEntry(t *testing.T) {
	entry := zeroconf.NewServiceEntry("raw-instance", ServiceType, "local.")
	entry.Port = 7171
	entry.AddrIPv6 = []net.IP{net.ParseIP("fe80::1")}
	entry.AddrIPv4 = []net.IP{net.ParseIP("192.168.1.5")}
	entry.Text = []string{"version=1", "name=studio", "auth=bearer", "junk"}

	b := backendFromEntry(entry)
	if b.Name != "studio" {
		t.Errorf("Name = %q, want the TXT name", b.Name)
	}
	if b.Host != "192.168.1.5" {
		t.Errorf("Host = %q, want IPv4 preferred", b.Host)
	}
	if !b.RequireAuth || b.Version != "1" {
		t.Errorf("RequireAuth/Version = %v/%q", b.RequireAuth, b.Version)
	}
	if got := b.BaseURL(); got != "http://192.168.1.5:7171" {
		t.Errorf("BaseURL = %q", got)
	}

	v6 := DiscoveredBackend{Host: "fe80::1", Port: 7171}
	if got := v6.BaseURL(); got != "http://[fe80::1]:7171" {
		t.Errorf("IPv6 BaseURL = %q", got)
	}
}

// TestAdvertiseAndDiscover requires multicast networking and may not work in
// all CI environments.
func TestAdvertiseAndDiscover(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping network test in short mode")
	}

	advertiser := NewAdvertiser(Config{Port: 7172, Name: "discover-test-backend"})
	if err := advertiser.Start(); err != nil {
		t.Skipf("mdns unavailable: %v", err)
	}
	defer advertiser.Stop()

	if err := advertiser.Start(); err != nil {
		t.Fatalf("second Start() should be no-op, got error: %v", err)
	}

	time.Sleep(500 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	backends, err := Discover(ctx)
	if err != nil {
		t.Fatalf("Discover() failed: %v", err)
	}

	for _, b := range backends {
		if b.Name == "discover-test-backend" {
			if b.Port != 7172 {
				t.Errorf("expected port 7172, got %d", b.Port)
			}
			return
		}
	}
	// mDNS is unreliable in containers; absence is not a failure.
	t.Log("test backend not discovered")
}
