package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/spf13/pflag"

	"github.com/pseudocoder/layoutsync/internal/codec"
	"github.com/pseudocoder/layoutsync/internal/layout"
	"github.com/pseudocoder/layoutsync/internal/syncengine"
)

// printer writes engine notifications as they arrive. Callbacks run on the
// engine's goroutines.
type printer struct {
	mu        sync.Mutex
	out       io.Writer
	sessionID string
	json      bool
}

func (p *printer) listener() syncengine.ListenerFuncs {
	return syncengine.ListenerFuncs{
		OnStatus: func(s syncengine.Status) {
			p.printf("status %s\n", s)
		},
		OnSnapshot: func(_ *syncengine.RemoteScope, l layout.SessionLayout) {
			p.layout(l)
		},
		OnRemote: func(_ *syncengine.RemoteScope, ev codec.Event) {
			p.printf("%s\n", describeEvent(ev))
		},
	}
}

func (p *printer) printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, format, args...)
}

func (p *printer) layout(l layout.SessionLayout) {
	p.mu.Lock()
	defer p.mu.Unlock()
	writeLayout(p.out, p.sessionID, l, p.json)
}

func describeEvent(ev codec.Event) string {
	switch e := ev.(type) {
	case codec.ViewModeChanged:
		return fmt.Sprintf("view_mode %s", e.ViewMode)
	case codec.ActiveAgentChanged:
		if e.AgentID == "" {
			return "active_agent cleared"
		}
		return fmt.Sprintf("active_agent %s", e.AgentID)
	case codec.AgentLayoutChanged:
		return fmt.Sprintf("agent_layout %s", e.AgentID)
	case codec.FilePreviewLayoutChanged:
		return fmt.Sprintf("file_preview_layout %s", e.PreviewID)
	case codec.EditorLayoutChanged:
		return "editor_layout"
	default:
		return string(ev.MessageType())
	}
}

// writeLayout prints l either as the wire document or as a short summary.
func writeLayout(w io.Writer, sessionID string, l layout.SessionLayout, asJSON bool) {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.Encode(codec.LayoutToWire(sessionID, l))
		return
	}

	active := l.ActiveAgentID
	if active == "" {
		active = "-"
	}
	fmt.Fprintf(w, "view=%s active=%s agents=%d previews=%d", l.ViewMode, active,
		len(l.AgentLayouts), len(l.FilePreviewLayouts))
	if l.Editor.GridCardID != "" {
		fmt.Fprintf(w, " editor=%s", l.Editor.GridCardID)
	}
	fmt.Fprintln(w)
}

func runAttach(args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("attach", pflag.ContinueOnError)
	fs.SetOutput(stderr)

	var flags deviceFlags
	var agents, previews []string
	var asJSON bool
	flags.register(fs, true)
	fs.StringSliceVar(&agents, "agent", nil, "Agent panel to track (repeatable)")
	fs.StringSliceVar(&previews, "preview", nil, "File preview to track (repeatable)")
	fs.BoolVar(&asJSON, "json", false, "Print layouts as JSON documents")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: layoutsync attach --session <id> [options]\n\nAttach to a session and print layout changes until interrupted.\n\nOptions:\n")
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

	ctx, stop := interruptContext()
	defer stop()

	out := &printer{out: stdout, sessionID: flags.SessionID, json: asJSON}
	sess, err := openSession(ctx, cfg, flags.SessionID, out.listener())
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	for _, id := range agents {
		sess.engine.TrackAgent(id)
	}
	for _, id := range previews {
		sess.engine.TrackFilePreview(id)
	}
	if len(agents)+len(previews) > 0 {
		l, _ := sess.engine.Snapshot()
		out.layout(l)
	}

	<-ctx.Done()

	drainCtx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	if err := sess.close(drainCtx); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
