package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rmacdonaldsmith/pusher-go/internal/authserver"
	"github.com/rmacdonaldsmith/pusher-go/internal/config"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

const (
	// Application info
	appName    = "pusher-authd"
	appVersion = "0.1.0"

	shutdownTimeout = 30 * time.Second
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

// run parses args, serves until ctx is cancelled and shuts down gracefully.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	flags := pflag.NewFlagSet(appName, pflag.ContinueOnError)
	flags.SetOutput(stderr)

	var (
		configPath  = flags.String("config", "", "Path to YAML config file")
		listenAddr  = flags.String("listen", config.DefaultAuthdListen, "Listen address")
		appKey      = flags.String("key", "", "Application key")
		appSecret   = flags.String("secret", "", "Application secret used to sign channel authorizations")
		jwtSecret   = flags.String("jwt-secret", "", "Secret for signing login tokens")
		noAuth      = flags.Bool("no-auth", false, "Authorize channels without a bearer token (development only)")
		logLevel    = flags.String("log-level", "", "Log level (debug, info, warn, error)")
		showVersion = flags.Bool("version", false, "Show version and exit")
	)
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if *showVersion {
		fmt.Fprintf(stdout, "%s v%s\n", appName, appVersion)
		return nil
	}

	cfg, err := config.LoadWithDefaults(*configPath)
	if err != nil {
		return err
	}
	if flags.Changed("listen") {
		cfg.Authd.Listen = *listenAddr
	}
	if flags.Changed("key") {
		cfg.App.Key = *appKey
	}
	if flags.Changed("secret") {
		cfg.App.Secret = *appSecret
	}
	if flags.Changed("jwt-secret") {
		cfg.Authd.JWTSecret = *jwtSecret
	}
	if flags.Changed("no-auth") {
		cfg.Authd.NoAuth = *noAuth
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = *logLevel
	}
	if err := cfg.ValidateAuthd(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: stderr}).
		Level(level).
		With().
		Timestamp().
		Str("service", appName).
		Logger()

	fmt.Fprintf(stdout, "🚀 Starting %s v%s\n", appName, appVersion)
	fmt.Fprintf(stdout, "🔑 App key: %s\n", cfg.App.Key)

	server, err := authserver.NewServer(authserver.Config{
		Addr:      cfg.Authd.Listen,
		AppKey:    cfg.App.Key,
		AppSecret: cfg.App.Secret,
		JWTSecret: cfg.Authd.JWTSecret,
		TokenTTL:  cfg.Authd.TokenTTL,
		NoAuth:    cfg.Authd.NoAuth,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create auth server: %w", err)
	}

	listener, err := net.Listen("tcp", cfg.Authd.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.Authd.Listen, err)
	}
	fmt.Fprintf(stdout, "🔌 Listening on http://%s\n", listener.Addr())
	if cfg.Authd.NoAuth {
		fmt.Fprintf(stdout, "⚠️  Bearer tokens disabled (--no-auth); every request is user %q\n", authserver.DevUserID)
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve(listener)
	}()

	fmt.Fprintf(stdout, "✅ %s started successfully!\n", appName)
	fmt.Fprintf(stdout, "💡 Use Ctrl+C to shutdown gracefully\n")

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	fmt.Fprintf(stdout, "🛑 Shutting down gracefully...\n")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("error during graceful stop: %w", err)
	}
	<-serveErr

	fmt.Fprintf(stdout, "👋 %s stopped\n", appName)
	return nil
}
