// Sysdash - host CPU and memory dashboard feed
//
// Samples CPU load and memory usage once per second, keeps a one minute
// load history and serves it to dashboard renderers over HTTP/websocket.
// Snapshots are optionally mirrored to Redis for remote dashboards.
//
// Usage:
//
//	sysdash
//
// Or with a Redis feed:
//
//	SYSDASH_SERVICE=office SYSDASH_REDIS_URL=redis://localhost:6379 sysdash
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/gravito-framework/sysdash/internal/redis"
	"github.com/gravito-framework/sysdash/pkg/config"
	"github.com/gravito-framework/sysdash/pkg/probes"
	"github.com/gravito-framework/sysdash/pkg/publisher"
	"github.com/gravito-framework/sysdash/pkg/sampler"
	"github.com/gravito-framework/sysdash/pkg/server"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const shutdownTimeout = 5 * time.Second

func main() {
	// Handle --help or --version
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--help", "-h":
			printHelp()
			os.Exit(0)
		case "--version", "-v":
			fmt.Printf("sysdash %s (commit: %s, built: %s)\n", version, commit, date)
			os.Exit(0)
		}
	}

	cfg := config.Load()

	// Setup structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	fmt.Printf(`
  ███████ ██    ██ ███████ ██████   █████  ███████ ██   ██
  ██       ██  ██  ██      ██   ██ ██   ██ ██      ██   ██
  ███████   ████   ███████ ██   ██ ███████ ███████ ███████
       ██    ██         ██ ██   ██ ██   ██      ██ ██   ██
  ███████    ██    ███████ ██████  ██   ██ ███████ ██   ██
  📈 Sysdash %s (%s)

`, version, commit[:min(7, len(commit))])

	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration error", "error", err)
		fmt.Println("\nRun 'sysdash --help' for usage information.")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	node := cfg.NodeName()
	host := probes.ReadHostInfo(ctx)
	logger.Info("Host detected",
		"node", node,
		"platform", host.Platform,
		"cpu", host.CPUModel,
		"cores", host.Cores,
		"rss", datasize.ByteSize(host.ProcessRSS).HumanReadable(),
	)

	s := sampler.New(probes.NewGoSystemProbe(), sampler.WithLogger(logger))

	var srv *server.Server
	if cfg.ListenAddr != "" {
		srv = server.New(cfg.ListenAddr, s,
			server.WithLogger(logger),
			server.WithIdentity(cfg.Service, node),
			server.WithHostInfo(host),
		)
		if err := srv.Start(ctx); err != nil {
			logger.Error("Failed to start HTTP feed", "error", err)
			os.Exit(1)
		}
	}

	var pub *publisher.Publisher
	if cfg.RedisURL != "" {
		client, err := redis.NewClientLazy(cfg.RedisURL, "sysdash-"+node)
		if err != nil {
			logger.Error("Failed to create Redis client", "error", err)
			os.Exit(1)
		}
		pub = publisher.New(client, s, cfg.Service, node,
			publisher.WithLogger(logger),
			publisher.WithTTL(cfg.KeyTTL),
			publisher.WithHostInfo(host),
		)
		if err := pub.Start(ctx); err != nil {
			logger.Error("Failed to start Redis publisher", "error", err)
			os.Exit(1)
		}
	}

	if err := s.Start(); err != nil {
		logger.Error("Failed to start sampler", "error", err)
		os.Exit(1)
	}

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	logger.Info("Received shutdown signal", "signal", sig)

	// Stop sampling first so no update races the transports going away
	s.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	exitCode := 0
	if pub != nil {
		if err := pub.Stop(shutdownCtx); err != nil {
			logger.Error("Shutdown error", "component", "publisher", "error", err)
			exitCode = 1
		}
	}
	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Shutdown error", "component", "server", "error", err)
			exitCode = 1
		}
	}
	cancel()

	stats := s.Stats()
	logger.Info("Sysdash stopped", "published", stats.Published, "failures", stats.Failures)
	os.Exit(exitCode)
}

func printHelp() {
	fmt.Println(`Usage: sysdash [options]

Sysdash samples host CPU load and memory usage once per second and serves
the latest snapshot plus a one minute CPU history to dashboard renderers.

Environment Variables:
  SYSDASH_SERVICE     Service name used in Redis keys (default: sysdash)
  SYSDASH_NAME        Custom node name (default: hostname)
  SYSDASH_LISTEN      HTTP feed address, "off" to disable (default: :9470)
  SYSDASH_REDIS_URL   Redis URL for the remote feed (default: disabled)
  REDIS_URL           Same as SYSDASH_REDIS_URL
  SYSDASH_KEY_TTL     Lifetime of the Redis node key in seconds (default: 5)
  SYSDASH_LOG_LEVEL   debug, info, warn or error (default: info)

HTTP Endpoints:
  GET /api/snapshot   Latest snapshot
  GET /api/history    CPU load history, oldest first
  GET /ws             Live "system-update" events
  GET /metrics        Prometheus metrics
  GET /health         Sampler state

Options:
  -h, --help      Show this help message
  -v, --version   Show version information

Examples:
  # Local dashboard feed only
  sysdash

  # Mirror snapshots to Redis
  SYSDASH_SERVICE=office SYSDASH_REDIS_URL=redis://localhost:6379 sysdash`)
}
