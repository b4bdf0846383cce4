package main

import (
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/pseudocoder/layoutsync/internal/auth"
	"github.com/pseudocoder/layoutsync/internal/config"
	"github.com/pseudocoder/layoutsync/internal/mdns"
	"github.com/pseudocoder/layoutsync/internal/server"
	"github.com/pseudocoder/layoutsync/internal/storage"
)

// ServeConfig holds the configuration for the serve command.
type ServeConfig struct {
	Config       string
	Addr         string
	DBPath       string
	Token        string
	LogFile      string
	PublishRate  float64
	PublishBurst int
	Mdns         bool
	QR           bool
}

func runServe(args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	fs.SetOutput(stderr)

	flags := &ServeConfig{}
	fs.StringVarP(&flags.Config, "config", "c", "", "Path to config file (default: ~/.layoutsync/config.toml)")
	fs.StringVar(&flags.Addr, "addr", "", "Listen address (default: "+config.DefaultAddr+")")
	fs.StringVar(&flags.DBPath, "db", "", "Path to the layout database (default: ~/.layoutsync/layouts.db)")
	fs.StringVar(&flags.Token, "token", "", "Require this bearer token on every request")
	fs.StringVar(&flags.LogFile, "log-file", "", "Write log output to this file")
	fs.Float64Var(&flags.PublishRate, "publish-rate", 0, "Realtime frames per second per connection")
	fs.IntVar(&flags.PublishBurst, "publish-burst", 0, "Realtime frame burst per connection")
	fs.BoolVar(&flags.Mdns, "mdns", false, "Advertise the backend on the local network")
	fs.BoolVar(&flags.QR, "qr", false, "Print a QR code devices can scan to connect")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: layoutsync serve [options]\n\nRun the reference layout backend.\n\nOptions:\n")
		fs.PrintDefaults()
	}
	if ok, code := parseFlags(fs, args); !ok {
		return code
	}

	cfg, err := serveConfig(flags)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	verifier, err := auth.NewVerifier(cfg.AuthToken, cfg.AuthTokenHash)
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

	if cfg.DBPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0700); err != nil {
			fmt.Fprintf(stderr, "Error: failed to create data directory: %v\n", err)
			return 1
		}
	}
	store, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: failed to open storage: %v\n", err)
		return 1
	}
	defer store.Close()

	srv := server.NewServer(server.Options{
		Addr:             cfg.Addr,
		Store:            store,
		Auth:             verifier,
		PublishRate:      cfg.PublishRate,
		PublishBurst:     cfg.PublishBurst,
		LatencyRetention: cfg.LatencyRetention(),
	})
	if err := <-srv.StartAsync(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer srv.Stop()

	if path := configFileInUse(flags.Config); path != "" && flags.Token == "" {
		watcher, err := config.Watch(path, func(next *config.Config) {
			reloadAuth(srv, next)
		})
		if err != nil {
			log.Printf("config: not watching %s: %v", path, err)
		} else {
			defer watcher.Close()
		}
	}

	if cfg.MdnsEnabled {
		adv, err := startAdvertiser(srv.Addr(), verifier.Enabled())
		if err != nil {
			// The backend is still reachable by address.
			log.Printf("mdns: advertisement disabled: %v", err)
		} else {
			defer adv.Stop()
		}
	}

	fmt.Fprintf(stdout, "layoutsync backend listening on %s\n", srv.Addr())
	if !verifier.Enabled() {
		fmt.Fprintln(stdout, "Warning: authentication is disabled (no token configured)")
	}
	if flags.QR {
		// A hashed token cannot be shown; devices enter it themselves.
		DisplayConnectQR(stdout, advertisedBaseURL(srv.Addr()), cfg.AuthToken)
	}

	ctx, stop := interruptContext()
	defer stop()
	<-ctx.Done()

	fmt.Fprintln(stdout, "Shutting down")
	return 0
}

// serveConfig merges flags over the config file and fills defaults.
func serveConfig(flags *ServeConfig) (*config.Config, error) {
	cfg, err := config.Load(flags.Config)
	if err != nil {
		return nil, err
	}
	if flags.Addr != "" {
		cfg.Addr = flags.Addr
	}
	if flags.DBPath != "" {
		cfg.DBPath = flags.DBPath
	}
	if flags.Token != "" {
		cfg.AuthToken = flags.Token
		cfg.AuthTokenHash = ""
	}
	if flags.LogFile != "" {
		cfg.LogFile = flags.LogFile
	}
	if flags.PublishRate > 0 {
		cfg.PublishRate = flags.PublishRate
	}
	if flags.PublishBurst > 0 {
		cfg.PublishBurst = flags.PublishBurst
	}
	if flags.Mdns {
		cfg.MdnsEnabled = true
	}

	if cfg.Addr == "" {
		cfg.Addr = config.DefaultAddr
	}
	if cfg.DBPath == "" {
		cfg.DBPath, err = config.DefaultDBPath()
		if err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// configFileInUse returns the config file serve loaded, or "" when it ran
// on defaults alone.
func configFileInUse(explicit string) string {
	if explicit != "" {
		return explicit
	}
	path, err := config.DefaultConfigPath()
	if err != nil {
		return ""
	}
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

// reloadAuth applies a changed auth_token or auth_token_hash. Other settings
// need a restart.
func reloadAuth(srv *server.Server, cfg *config.Config) {
	verifier, err := auth.NewVerifier(cfg.AuthToken, cfg.AuthTokenHash)
	if err != nil {
		log.Printf("config: keeping previous auth settings: %v", err)
		return
	}
	srv.SetAuth(verifier)
	log.Printf("config: auth settings reloaded (required=%t)", verifier.Enabled())
}

func startAdvertiser(addr string, requireAuth bool) (*mdns.Advertiser, error) {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, err
	}
	adv := mdns.NewAdvertiser(mdns.Config{Port: port, RequireAuth: requireAuth})
	if err := adv.Start(); err != nil {
		return nil, err
	}
	log.Printf("mdns: advertising %s on port %d", mdns.ServiceType, port)
	return adv, nil
}

func runInit(args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("init", pflag.ContinueOnError)
	fs.SetOutput(stderr)

	var path, token string
	fs.StringVarP(&path, "config", "c", "", "Where to write the config (default: ~/.layoutsync/config.toml)")
	fs.StringVar(&token, "token", "", "Auth token to write (default: a random token)")
	if ok, code := parseFlags(fs, args); !ok {
		return code
	}

	if path == "" {
		var err error
		path, err = config.DefaultConfigPath()
		if err != nil {
			fmt.Fprintf(stderr, "Error: failed to determine config path: %v\n", err)
			return 1
		}
	}
	if _, err := os.Stat(path); err == nil {
		fmt.Fprintf(stdout, "Config already exists: %s\n", path)
		return 0
	}
	if token == "" {
		token = uuid.NewString()
	}
	if err := config.WriteDefault(path, token); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "Created config: %s\n", path)
	return 0
}
