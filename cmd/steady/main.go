package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/steadyhq/steady/internal/observability"
	"github.com/steadyhq/steady/internal/scheduler"
	"github.com/steadyhq/steady/internal/server"
	"github.com/steadyhq/steady/internal/store"
)

var logLevel string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "steady",
	Short: "steady — durable Postgres-backed job queue",
	Long:  "A durable at-least-once job queue on Postgres: enqueue over HTTP, work in-process, survive restarts.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging()
	},
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the steady API server and maintenance scheduler",
	Long: "Serves the enqueue/status/cancel API and runs the lease-reclaim and\n" +
		"retention sweeps. Handlers run in collaborator processes (pkg/queue),\n" +
		"not here.",
	RunE: runServer,
}

var (
	bindAddr        string
	databaseURL     string
	maxConns        int32
	reclaimInterval time.Duration
	purgeInterval   time.Duration
	shutdownTimeout = 10 * time.Second
	otelEnabled     bool
	otelEndpoint    string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	serverCmd.Flags().StringVar(&bindAddr, "bind", ":8080", "HTTP bind address")
	serverCmd.Flags().StringVar(&databaseURL, "database-url", os.Getenv("STEADY_DATABASE_URL"), "Postgres connection string")
	serverCmd.Flags().Int32Var(&maxConns, "max-conns", 10, "Max connections in the store pool")
	serverCmd.Flags().DurationVar(&reclaimInterval, "reclaim-interval", 5*time.Second, "How often to sweep expired leases")
	serverCmd.Flags().DurationVar(&purgeInterval, "purge-interval", time.Hour, "How often to purge terminal jobs past retention")
	serverCmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 10*time.Second, "Graceful shutdown timeout")
	serverCmd.Flags().BoolVar(&otelEnabled, "otel", false, "Enable OpenTelemetry tracing")
	serverCmd.Flags().StringVar(&otelEndpoint, "otel-endpoint", "", "OTLP/HTTP endpoint (stdout export when empty)")

	addClientFlags(statusCmd, cancelCmd, enqueueCmd, queuesCmd)
	rootCmd.AddCommand(serverCmd, enqueueCmd, statusCmd, cancelCmd, queuesCmd)
}

func setupLogging() {
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

func runServer(cmd *cobra.Command, args []string) error {
	if databaseURL == "" {
		return fmt.Errorf("--database-url (or STEADY_DATABASE_URL) is required")
	}

	otelShutdown, err := observability.InitTracer(otelEnabled, "steady-server", otelEndpoint)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer func() {
		if err := otelShutdown(context.Background()); err != nil {
			slog.Error("otel shutdown error", "error", err)
		}
	}()

	s, err := store.Open(cmd.Context(), store.Config{
		DatabaseURL:    databaseURL,
		MaxConns:       maxConns,
		ConnectTimeout: 10 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	schedCtx, schedCancel := context.WithCancel(context.Background())
	sched := scheduler.New(s, scheduler.Config{
		ReclaimInterval: reclaimInterval,
		PurgeInterval:   purgeInterval,
	})
	go sched.Run(schedCtx)

	srv := server.New(s, bindAddr)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("steady server ready", "bind", bindAddr)

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh
	slog.Info("received shutdown signal", "signal", sig)

	slog.Info("stopping HTTP server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP shutdown error", "error", err)
	}

	slog.Info("stopping scheduler")
	schedCancel()

	slog.Info("stopping store")
	s.Close()

	slog.Info("steady server stopped")
	return nil
}
