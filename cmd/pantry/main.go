// Package main is the entry point for the pantry server.
//
// pantry tracks household stock: signed-in users add and use up items, and
// can ask a generative model for recipe ideas based on what is left.
// Configuration is read from CLI flags, a .env file in the data directory and
// server_config.json (JWT secret, quotas, rate limits).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/maruel/pantry/internal/advisor"
	"github.com/maruel/pantry/internal/server"
	"github.com/maruel/pantry/internal/server/handlers"
	"github.com/maruel/pantry/internal/server/ipgeo"
	"github.com/maruel/pantry/internal/server/ratelimit"
	"github.com/maruel/pantry/internal/storage"
	"github.com/maruel/pantry/internal/storage/git"
	"github.com/maruel/pantry/internal/storage/identity"
	"github.com/maruel/pantry/internal/storage/inventory"
	"github.com/mattn/go-isatty"
)

// historyPrefix is the data directory subfolder holding item files. It is
// the only part of the data directory recorded in the history.
const historyPrefix = "pantry"

func main() {
	if err := mainImpl(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "pantry: %v\n", err)
		os.Exit(1)
	}
}

func mainImpl() error {
	version := flag.Bool("version", false, "Print version and exit")
	opts := registerFlags(flag.CommandLine)
	flag.Parse()
	if len(flag.Args()) > 0 {
		return fmt.Errorf("unknown arguments: %v", flag.Args())
	}
	if *version {
		readBuildInfo().print(os.Stdout)
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()
	ll := &slog.LevelVar{}
	slog.SetDefault(newLogger(os.Stderr, ll))

	if err := os.MkdirAll(opts.dataDir, 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	// Run onboarding if no .env file exists and stdin is a TTY.
	if _, err := os.Stat(filepath.Join(opts.dataDir, ".env")); os.IsNotExist(err) && isatty.IsTerminal(os.Stdin.Fd()) {
		if err := runOnboarding(os.Stdin, os.Stdout, opts.dataDir); err != nil {
			return fmt.Errorf("onboarding failed: %w", err)
		}
	}
	env, err := loadDotEnv(opts.dataDir)
	if err != nil {
		return err
	}
	// .env only fills in flags that were not passed explicitly.
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if err := applyEnv(flag.CommandLine, env, set); err != nil {
		return err
	}
	if err := opts.validate(); err != nil {
		return err
	}
	level, err := parseLevel(opts.logLevel)
	if err != nil {
		return err
	}
	ll.Set(level)

	serverCfg, err := storage.LoadServerConfig(opts.dataDir)
	if err != nil {
		return fmt.Errorf("failed to load server_config.json: %w", err)
	}

	addr := opts.httpAddr
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	baseURL := withLocalPort(opts.baseURL, addr)

	dbDir := filepath.Join(opts.dataDir, "db")
	if err := os.MkdirAll(dbDir, 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
		return fmt.Errorf("failed to create db directory: %w", err)
	}
	userService, err := identity.NewUserService(filepath.Join(dbDir, "users.jsonl"))
	if err != nil {
		return fmt.Errorf("failed to initialize user service: %w", err)
	}
	sessionService, err := identity.NewSessionService(filepath.Join(dbDir, "sessions.jsonl"))
	if err != nil {
		return fmt.Errorf("failed to initialize session service: %w", err)
	}
	// Cleanup old expired sessions (older than 7 days past expiration).
	if count, err := sessionService.CleanupExpired(7 * 24 * time.Hour); err != nil {
		slog.WarnContext(ctx, "Failed to cleanup expired sessions", "err", err)
	} else if count > 0 {
		slog.InfoContext(ctx, "Cleaned up expired sessions", "count", count)
	}

	gw, err := openGateway(opts.driver, opts.dataDir)
	if err != nil {
		return err
	}
	defer func() { _ = gw.Close() }()
	svc := &handlers.Services{
		User:      userService,
		Session:   sessionService,
		Inventory: inventory.NewService(gw, serverCfg.Quotas.MaxNameLength),
	}

	var seed map[string]int64
	if opts.seed != "" {
		if seed, err = inventory.LoadSeed(opts.seed); err != nil {
			return err
		}
	}
	shared := opts.scope == "global"
	if shared && len(seed) > 0 {
		n, err := svc.Inventory.Seed(ctx, inventory.Global(), seed)
		if err != nil {
			return fmt.Errorf("failed to seed pantry: %w", err)
		}
		slog.InfoContext(ctx, "Seeded pantry", "items", n)
	}

	if opts.history {
		if svc.History, err = git.Open(opts.dataDir, "pantry", "pantry@localhost"); err != nil {
			return err
		}
		// Changes made while the server was down are recorded first.
		if ok, err := svc.History.Commit(ctx, git.Author{}, "Startup snapshot", historyPrefix); err != nil {
			return err
		} else if ok {
			slog.InfoContext(ctx, "Recorded pending pantry changes")
		}
	}

	if opts.geminiAPIKey != "" {
		gen, err := advisor.NewGenAI(ctx, opts.geminiAPIKey, opts.geminiModel)
		if err != nil {
			return fmt.Errorf("failed to initialize recipe advisor: %w", err)
		}
		svc.Advisor = advisor.New(gen)
		slog.InfoContext(ctx, "Recipe advisor enabled", "model", gen.Model())
	}

	if opts.geoDB != "" {
		if svc.Geo, err = ipgeo.Open(opts.geoDB); err != nil {
			return fmt.Errorf("failed to open geo database: %w", err)
		}
		defer func() { _ = svc.Geo.Close() }()
		slog.InfoContext(ctx, "IP geolocation enabled", "db", opts.geoDB)
	}

	var web fs.FS
	if opts.web != "" {
		if st, err := os.Stat(opts.web); err != nil || !st.IsDir() {
			return fmt.Errorf("-web %q is not a directory", opts.web)
		}
		web = os.DirFS(opts.web)
	}

	// Watch own executable for modifications (for development restarts).
	if err := watchExecutable(ctx, stop); err != nil {
		return fmt.Errorf("failed to watch executable: %w", err)
	}

	buildVersion := readBuildInfo().Version
	cfg := &server.Config{
		Config: handlers.Config{
			ServerConfig:    *serverCfg,
			BaseURL:         baseURL,
			Version:         buildVersion,
			SharedInventory: shared,
			HistoryPrefix:   historyPrefix,
			Seed:            seed,
		},
		GoogleClientID:     opts.googleClientID,
		GoogleClientSecret: opts.googleClientSecret,
		Web:                web,
	}
	if opts.googleClientID == "" {
		slog.WarnContext(ctx, "Google sign-in is not configured; nobody can sign in")
	}
	limiters := ratelimit.NewLimiters(serverCfg.RateLimits)
	defer limiters.Close()

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.NewRouter(svc, cfg, limiters),
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
		ReadHeaderTimeout: 10 * time.Second,
	}
	serverErr := make(chan error, 1)
	go func() {
		slog.InfoContext(ctx, "Starting server", "addr", addr, "baseURL", baseURL, "version", buildVersion, "driver", opts.driver, "scope", opts.scope)
		serverErr <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		slog.InfoContext(ctx, "Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		slog.InfoContext(ctx, "Server stopped")
	}
	return nil
}

// openGateway opens the item store selected by driver.
func openGateway(driver, dataDir string) (inventory.Gateway, error) {
	switch driver {
	case "jsonl":
		dir := filepath.Join(dataDir, historyPrefix)
		if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
			return nil, fmt.Errorf("failed to create pantry directory: %w", err)
		}
		return inventory.NewJSONL(dir), nil
	case "sqlite":
		db, err := inventory.OpenSQLite(filepath.Join(dataDir, "pantry.sqlite"))
		if err != nil {
			return nil, err
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unknown driver: %q", driver)
	}
}

// withLocalPort appends the listening port to a localhost base URL that has
// none, so OAuth callbacks reach this server.
func withLocalPort(baseURL, addr string) string {
	u, err := url.Parse(baseURL)
	if err != nil || u.Port() != "" || u.Hostname() != "localhost" {
		return baseURL
	}
	_, p, err := net.SplitHostPort(addr)
	if err != nil {
		return baseURL
	}
	u.Host = net.JoinHostPort(u.Hostname(), p)
	return u.String()
}

func parseLevel(s string) (slog.Level, error) {
	switch s {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level: %q", s)
	}
}
