// gemini-mcp serves the Google Gemini API as Model Context Protocol tools
// over stdio.
//
// Examples:
//
//	export GOOGLE_GEMINI_API_KEY=...
//	export GOOGLE_GEMINI_MODEL=gemini-1.5-flash
//	gemini-mcp
//
//	gemini-mcp -env ./gemini.env
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/Protocol-Lattice/gemini-mcp/src/config"
	"github.com/Protocol-Lattice/gemini-mcp/src/gemini"
	"github.com/Protocol-Lattice/gemini-mcp/src/logging"
	"github.com/Protocol-Lattice/gemini-mcp/src/mcpserver"
	"github.com/Protocol-Lattice/gemini-mcp/src/models"
)

var version = "dev"

var (
	flagEnv     = flag.String("env", "", "dotenv file to load (default .env when present)")
	flagVersion = flag.Bool("version", false, "print the version and exit")
)

func main() {
	flag.Parse()
	if *flagVersion {
		fmt.Println("gemini-mcp", version)
		return
	}
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "gemini-mcp:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(*flagEnv)
	if err != nil {
		return err
	}
	logger := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	transport, err := models.NewGeminiTransport(ctx, cfg.APIKey)
	if err != nil {
		return fmt.Errorf("create gemini client: %w", err)
	}
	defer transport.Close()

	registry := gemini.NewRegistry(transport, gemini.RegistryConfig{
		TTL:         cfg.SessionTTL,
		MaxSessions: cfg.MaxSessions,
		Logger:      logger,
	})
	svc := gemini.NewService(transport, gemini.Options{
		DefaultModel: cfg.DefaultModel,
		Registry:     registry,
		Logger:       logger,
	})
	srv := mcpserver.New(svc, mcpserver.Options{Version: version, Logger: logger})

	if cfg.DefaultModel == "" {
		logger.Warn("no default model configured; every call must name a model")
	}
	logger.Info("gemini-mcp starting", "version", version, "default_model", cfg.DefaultModel,
		"session_ttl", cfg.SessionTTL, "max_sessions", cfg.MaxSessions)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer stop()
		return srv.ServeStdio(gctx, os.Stdin, os.Stdout)
	})
	g.Go(func() error { return registry.Run(gctx) })

	err = g.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
		err = nil
	}
	logger.Info("gemini-mcp stopped", "sessions", registry.Len())
	return err
}
