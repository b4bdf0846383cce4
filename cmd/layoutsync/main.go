package main

import (
	"fmt"
	"io"
	"os"
)

// Version is set at build time via -ldflags.
// Example: go build -ldflags="-X main.Version=v0.1.0" ./cmd/layoutsync
var Version = "dev"

const usage = `layoutsync - keep session layouts in sync across devices

Usage:
  layoutsync <command> [options]

Commands:
  serve                     Run the reference layout backend
  init                      Write a default config file
  hash-token [token]        Print a bcrypt hash for auth_token_hash
  attach                    Attach to a session and print layout changes
  layout                    Print the stored layout of a session
  set-view <grid|focus|freeform>  Change a session's view mode
  full-sync                 Ask every device on a session to re-fetch
  devices                   List devices seen on a session
  status                    Show backend status (local only)
  discover                  Find backends on the local network
  version                   Print the version

Run 'layoutsync <command> --help' for more information on a command.
`

func main() {
	os.Exit(run(os.Args, os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		fmt.Fprint(stdout, usage)
		return 0
	}

	switch args[1] {
	case "serve":
		return runServe(args[2:], stdout, stderr)
	case "init":
		return runInit(args[2:], stdout, stderr)
	case "hash-token":
		return runHashToken(args[2:], stdout, stderr)
	case "attach":
		return runAttach(args[2:], stdout, stderr)
	case "layout":
		return runLayout(args[2:], stdout, stderr)
	case "set-view":
		return runSetView(args[2:], stdout, stderr)
	case "full-sync":
		return runFullSync(args[2:], stdout, stderr)
	case "devices":
		return runDevices(args[2:], stdout, stderr)
	case "status":
		return runStatus(args[2:], stdout, stderr)
	case "discover":
		return runDiscover(args[2:], stdout, stderr)
	case "--help", "-h", "help":
		fmt.Fprint(stdout, usage)
		return 0
	case "--version", "-v", "version":
		fmt.Fprintf(stdout, "layoutsync %s\n", Version)
		return 0
	default:
		fmt.Fprintf(stdout, "Unknown command: %s\n", args[1])
		fmt.Fprint(stdout, usage)
		return 1
	}
}
