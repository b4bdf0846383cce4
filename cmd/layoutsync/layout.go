package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/pflag"

	"github.com/pseudocoder/layoutsync/internal/layout"
	"github.com/pseudocoder/layoutsync/internal/wire"
)

func runLayout(args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("layout", pflag.ContinueOnError)
	fs.SetOutput(stderr)

	var flags deviceFlags
	var asJSON bool
	flags.register(fs, true)
	fs.BoolVar(&asJSON, "json", false, "Print the full layout document")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: layoutsync layout --session <id> [--json]\n\nOptions:\n")
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
	l, err := client.FetchLayout(ctx, flags.SessionID)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	writeLayout(stdout, flags.SessionID, l, asJSON)
	return 0
}

func runSetView(args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("set-view", pflag.ContinueOnError)
	fs.SetOutput(stderr)

	var flags deviceFlags
	flags.register(fs, true)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: layoutsync set-view --session <id> <grid|focus|freeform>\n\nOptions:\n")
		fs.PrintDefaults()
	}
	if ok, code := parseFlags(fs, args); !ok {
		return code
	}
	if flags.SessionID == "" || fs.NArg() != 1 {
		fs.Usage()
		return 1
	}
	mode, err := layout.ParseViewMode(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	cfg, err := flags.resolve()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	closeLog, err := setupLogging(cfg.LogFile)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer closeLog()

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	sess, err := openSession(ctx, cfg, flags.SessionID, nil)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if l, _ := sess.engine.Snapshot(); l.ViewMode == mode {
		sess.close(ctx)
		fmt.Fprintf(stdout, "View mode already %s\n", mode)
		return 0
	}

	delivered := sess.awaitEcho(wire.MessageTypeViewMode)
	if err := sess.engine.SetViewMode(mode); err != nil {
		sess.close(ctx)
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if err := delivered(ctx); err != nil {
		sess.close(ctx)
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if err := sess.close(ctx); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "View mode set to %s\n", mode)
	return 0
}

func runFullSync(args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("full-sync", pflag.ContinueOnError)
	fs.SetOutput(stderr)

	var flags deviceFlags
	flags.register(fs, true)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: layoutsync full-sync --session <id>\n\nAsk every device on the session to re-fetch its layout.\n\nOptions:\n")
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
	closeLog, err := setupLogging(cfg.LogFile)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer closeLog()

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	sess, err := openSession(ctx, cfg, flags.SessionID, nil)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer sess.close(ctx)

	delivered := sess.awaitEcho(wire.MessageTypeFullSync)
	if err := sess.engine.RequestFullSync(ctx); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if err := delivered(ctx); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "Full sync requested for session %s\n", flags.SessionID)
	return 0
}
