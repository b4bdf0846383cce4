package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/pflag"

	"github.com/pseudocoder/layoutsync/internal/mdns"
)

func runStatus(args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("status", pflag.ContinueOnError)
	fs.SetOutput(stderr)

	var flags deviceFlags
	var asJSON bool
	flags.register(fs, false)
	fs.BoolVar(&asJSON, "json", false, "Output in JSON format")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: layoutsync status [options]\n\nShow the status of a backend running on this machine.\n\nOptions:\n")
		fs.PrintDefaults()
	}
	if ok, code := parseFlags(fs, args); !ok {
		return code
	}

	cfg, err := flags.resolve()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	client, err := newClient(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	st, err := client.Status(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "Error: backend not reachable at %s: %v\n", cfg.BaseURL, err)
		return 1
	}

	if asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		enc.Encode(st)
		return 0
	}

	auth := "disabled"
	if st.RequireAuth {
		auth = "required"
	}
	fmt.Fprintf(stdout, "Address:   %s\n", st.ListeningAddress)
	fmt.Fprintf(stdout, "Uptime:    %s\n", time.Duration(st.UptimeSeconds)*time.Second)
	fmt.Fprintf(stdout, "Auth:      %s\n", auth)
	fmt.Fprintf(stdout, "Clients:   %d\n", st.ConnectedClients)

	sessions := make([]string, 0, len(st.Sessions))
	for id := range st.Sessions {
		sessions = append(sessions, id)
	}
	sort.Strings(sessions)
	for _, id := range sessions {
		fmt.Fprintf(stdout, "  %s: %d\n", id, st.Sessions[id])
	}

	fmt.Fprintf(stdout, "Requests (last hour): %d (%d errors, p95 %dms)\n",
		st.RequestsLastHour, st.ErrorsLastHour, st.P95MillisLastHour)
	return 0
}

func runDiscover(args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("discover", pflag.ContinueOnError)
	fs.SetOutput(stderr)

	var timeout time.Duration
	fs.DurationVar(&timeout, "timeout", 3*time.Second, "How long to browse")
	if ok, code := parseFlags(fs, args); !ok {
		return code
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	backends, err := mdns.Discover(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if len(backends) == 0 {
		fmt.Fprintln(stdout, "No backends found.")
		return 0
	}
	for _, b := range backends {
		auth := ""
		if b.RequireAuth {
			auth = " (token required)"
		}
		fmt.Fprintf(stdout, "%s\t%s%s\n", b.Name, b.BaseURL(), auth)
	}
	return 0
}
