package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/time/rate"

	"github.com/pseudocoder/layoutsync/internal/config"
	"github.com/pseudocoder/layoutsync/internal/persist"
	"github.com/pseudocoder/layoutsync/internal/realtime"
	"github.com/pseudocoder/layoutsync/internal/syncengine"
	"github.com/pseudocoder/layoutsync/internal/wire"
)

// commandTimeout bounds one-shot commands.
const commandTimeout = 15 * time.Second

// interruptContext is replaced in tests so long-running commands return.
var interruptContext = func() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// deviceFlags are shared by every command that talks to a backend.
type deviceFlags struct {
	Config    string
	BaseURL   string
	Token     string
	UserID    string
	SessionID string
	LogFile   string
}

func (f *deviceFlags) register(fs *pflag.FlagSet, needSession bool) {
	fs.StringVarP(&f.Config, "config", "c", "", "Path to config file (default: ~/.layoutsync/config.toml)")
	fs.StringVar(&f.BaseURL, "base-url", "", "Backend root URL (default: "+config.DefaultBaseURL+")")
	fs.StringVar(&f.Token, "token", "", "Bearer token for the backend")
	fs.StringVar(&f.LogFile, "log-file", "", "Write log output to this file")
	if needSession {
		fs.StringVarP(&f.SessionID, "session", "s", "", "Session id (required)")
		fs.StringVar(&f.UserID, "user", "", "User id to tag realtime messages with")
	}
}

// resolve loads the config file and lays flag values over it.
func (f *deviceFlags) resolve() (*config.Config, error) {
	cfg, err := config.Load(f.Config)
	if err != nil {
		return nil, err
	}
	if f.BaseURL != "" {
		cfg.BaseURL = f.BaseURL
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = config.DefaultBaseURL
	}
	if f.Token != "" {
		cfg.AuthToken = f.Token
	}
	if f.UserID != "" {
		cfg.UserID = f.UserID
	}
	if f.LogFile != "" {
		cfg.LogFile = f.LogFile
	}
	return cfg, nil
}

// parseFlags parses args and reports whether the command should continue.
// code is the exit status to return when it should not.
func parseFlags(fs *pflag.FlagSet, args []string) (ok bool, code int) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return false, 0
		}
		return false, 1
	}
	return true, 0
}

// setupLogging redirects the standard logger to path. An empty path keeps
// stderr.
func setupLogging(path string) (func(), error) {
	if path == "" {
		return func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	prev := log.Writer()
	log.SetOutput(f)
	return func() {
		log.SetOutput(prev)
		f.Close()
	}, nil
}

func newClient(cfg *config.Config) (*persist.Client, error) {
	opts := persist.Options{BaseURL: cfg.BaseURL, Token: cfg.AuthToken}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = persist.DefaultRateBurst
		}
		opts.Limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return persist.New(opts)
}

// deviceSession is one engine attached to a session through the backend.
type deviceSession struct {
	engine  *syncengine.Engine
	channel *realtime.WSChannel

	// live is engine as seen from the channel's reconnect goroutine, which
	// starts before the engine exists.
	live atomic.Pointer[syncengine.Engine]
}

// resyncAfterReconnect re-fetches the layout once the topic is back. A
// reconnect before the engine is built is skipped: the bootstrap that
// follows fetches the current layout anyway.
func (s *deviceSession) resyncAfterReconnect() {
	e := s.live.Load()
	if e == nil {
		log.Printf("layoutsync: reconnected before the engine was ready, skipping resync")
		return
	}
	if err := e.Resync(context.Background()); err != nil {
		log.Printf("layoutsync: resync after reconnect failed: %v", err)
	}
}

// openSession dials the session topic, attaches an engine and wires
// reconnects to a full re-fetch. A bootstrap failure is logged; the session
// stays usable.
func openSession(ctx context.Context, cfg *config.Config, sessionID string, listener syncengine.Listener) (*deviceSession, error) {
	client, err := newClient(cfg)
	if err != nil {
		return nil, err
	}

	s := &deviceSession{}
	ch, err := realtime.DialWS(ctx, realtime.WSOptions{
		BaseURL:   cfg.BaseURL,
		SessionID: sessionID,
		Token:     cfg.AuthToken,
		OnReconnect: s.resyncAfterReconnect,
	})
	if err != nil {
		return nil, err
	}
	if err := ch.WaitConnected(ctx); err != nil {
		ch.Close()
		return nil, fmt.Errorf("connect to session topic: %w", err)
	}
	s.channel = ch

	engine, err := syncengine.New(syncengine.Options{
		SessionID:      sessionID,
		UserID:         cfg.UserID,
		Persistence:    client,
		Channel:        ch,
		Listener:       listener,
		DebounceWindow: cfg.DebounceWindow(),
	})
	if err != nil {
		ch.Close()
		return nil, err
	}
	s.engine = engine
	s.live.Store(engine)

	if err := engine.Attach(ctx); err != nil {
		log.Printf("layoutsync: %v", err)
	}
	return s, nil
}

// awaitEcho returns a function that blocks until the backend relays a
// message of type t published by this session's own device. The topic
// fans frames back to their sender, so the echo proves delivery.
func (s *deviceSession) awaitEcho(t wire.MessageType) func(ctx context.Context) error {
	seen := make(chan struct{})
	var closed bool
	unsubscribe := s.channel.Subscribe(func(msg wire.Message) {
		if msg.Type == t && msg.DeviceID == s.engine.DeviceID() && !closed {
			closed = true
			close(seen)
		}
	})
	return func(ctx context.Context) error {
		defer unsubscribe()
		select {
		case <-seen:
			return nil
		case <-ctx.Done():
			return fmt.Errorf("waiting for %s delivery: %w", t, ctx.Err())
		}
	}
}

// close waits for queued pushes, then detaches and hangs up.
func (s *deviceSession) close(ctx context.Context) error {
	err := s.engine.Drain(ctx)
	s.engine.Detach()
	s.channel.Close()
	if err != nil {
		return err
	}
	if n := s.engine.PushFailures(); n > 0 {
		return fmt.Errorf("%d layout updates were not saved", n)
	}
	return nil
}
