package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"
)

// formatDuration formats a duration in a human-readable way.
// Examples: "just now", "5m ago", "2h ago", "3d ago"
func formatDuration(d time.Duration) string {
	if d < 0 {
		return "in the future"
	}
	if d < time.Minute {
		return "just now"
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	}
	return fmt.Sprintf("%dd ago", int(d.Hours()/24))
}

func runDevices(args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("devices", pflag.ContinueOnError)
	fs.SetOutput(stderr)

	var flags deviceFlags
	var asJSON bool
	flags.register(fs, true)
	fs.BoolVar(&asJSON, "json", false, "Output in JSON format")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: layoutsync devices --session <id> [options]\n\nList devices that have published on a session.\n\nOptions:\n")
		fs.PrintDefaults()
	}
	if ok, code := parseFlags(fs, args); !ok {
		return code
	}
	if flags.SessionID == "" {
		fmt.Fprintln(stderr, "Error: --session is required")
		return 1
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
	devices, err := client.ListDevices(ctx, flags.SessionID)
	if err != nil {
		fmt.Fprintf(stderr, "Error: failed to list devices: %v\n", err)
		return 1
	}

	if asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		enc.Encode(devices)
		return 0
	}

	if len(devices) == 0 {
		fmt.Fprintln(stdout, "No devices have published on this session.")
		return 0
	}

	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DEVICE ID\tUSER\tFIRST SEEN\tLAST SEEN\tMESSAGES")
	fmt.Fprintln(w, "---------\t----\t----------\t---------\t--------")

	now := time.Now()
	for _, d := range devices {
		user := d.UserID
		if user == "" {
			user = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n",
			d.DeviceID,
			user,
			formatDuration(now.Sub(d.FirstSeen)),
			formatDuration(now.Sub(d.LastSeen)),
			d.Messages,
		)
	}
	w.Flush()

	return 0
}
