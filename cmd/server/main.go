// Package main provides the server entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/osa030/dp1feed/internal/api/httpapi"
	"github.com/osa030/dp1feed/internal/app/feed"
	"github.com/osa030/dp1feed/internal/app/resolver"
	"github.com/osa030/dp1feed/internal/app/storage"
	"github.com/osa030/dp1feed/internal/infra/config"
	"github.com/osa030/dp1feed/internal/infra/kv"
	"github.com/osa030/dp1feed/internal/infra/logger"
	"github.com/osa030/dp1feed/internal/infra/signing"
)

var (
	app        = kingpin.New("dp1feed-server", "DP-1 playlist feed server")
	configPath = app.Flag("config", "Path to config file").Default("config/server.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()
	logFormat  = app.Flag("log-format", "Console log format").Default("console").Enum("console", "json")
	onStarted  = app.Flag("on-started", "Shell command run once the server is listening").Strings()
	onStopped  = app.Flag("on-stopped", "Shell command run after the server stopped").Strings()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	kingpin.MustParse(app.Parse(os.Args[1:]))

	loggerConfig := logger.Config{
		Output: "stdout",
		Level:  "info",
		Format: *logFormat,
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
	}
	if err := logger.Init(loggerConfig); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Server error: %v", err)
		os.Exit(1)
	}
}

// run executes the main server logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	ctx := context.Background()

	key, err := signing.LoadPrivateKey(signing.PrivateKeyEnv, cfg.Signing.PrivateKey)
	if err != nil {
		return err
	}

	backend, err := kv.Open(ctx, cfg.Storage)
	if err != nil {
		return errors.Wrap(err, "failed to open storage")
	}
	defer func() {
		if err := backend.Close(); err != nil {
			zlog.Error().Msgf("Failed to close storage: %v", err)
		}
	}()

	if len(cfg.Feed.SelfHostedDomains) == 0 {
		zlog.Warn().Msg("No self-hosted domains configured, every playlist reference will be fetched")
	}
	res := resolver.New(resolver.Config{
		SelfHostedDomains: cfg.Feed.SelfHostedDomains,
		FetchTimeout:      cfg.FetchTimeout(),
	})
	engine := storage.New(backend.Namespaces, res)
	svc := feed.New(engine, key, feed.Config{DPVersion: cfg.Feed.DPVersion})
	zlog.Info().Msgf("Signing key loaded: public=%x", svc.PublicKey())

	api := httpapi.NewServer(svc, httpapi.Options{
		APISecret:    cfg.Server.APISecret,
		DefaultLimit: cfg.Feed.DefaultPageLimit,
	})

	// Create server with h2c (HTTP/2 cleartext) support
	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: h2c.NewHandler(api.Router(), &http2.Server{}),
	}

	serverErrCh := make(chan error, 1)
	go func() {
		zlog.Info().Msgf("Starting server: addr=%s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- err
		}
	}()

	executeHooks(*onStarted, "on_started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case err := <-serverErrCh:
		return errors.Wrap(err, "server error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}
	zlog.Info().Msg("Server stopped")

	executeHooks(*onStopped, "on_stopped")
	return nil
}

// executeHooks runs a list of shell commands.
func executeHooks(hooks []string, stage string) {
	if len(hooks) == 0 {
		return
	}

	zlog.Info().Msgf("Executing %s hooks (%d commands)", stage, len(hooks))

	for _, hook := range hooks {
		zlog.Info().Msgf("Executing hook: %s", hook)
		cmd := exec.Command("sh", "-c", hook)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			zlog.Error().Err(err).Msgf("Failed to execute hook: %s", hook)
		}
	}
}
