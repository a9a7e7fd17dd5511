package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nettle-sh/lume/internal/config"
	"github.com/nettle-sh/lume/internal/engine"
	"github.com/nettle-sh/lume/server"
)

func main() {
	rcPath := flag.String("config", "", "path to the rc file (default "+config.DefaultRCPath+")")
	logLevel := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	flag.Parse()

	setupLogger(*logLevel)

	cfg, err := config.Load(*rcPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	eng, err := engine.New(cfg, slog.Default())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start engine: %v\n", err)
		os.Exit(1)
	}

	srv, err := server.NewServer(eng, cfg, slog.Default())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create server: %v\n", err)
		eng.Shutdown()
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	slog.Info("lumed started", "socket", cfg.SocketPath, "entries", eng.Count())

	select {
	case sig := <-sigChan:
		slog.Info("lumed shutting down", "signal", sig.String())
		cancel()
		if err := srv.Stop(); err != nil {
			slog.Error("stopping server", "error", err)
		}
	case err := <-serverErr:
		if err != nil {
			slog.Error("server error", "error", err)
		}
	}

	if err := eng.Shutdown(); err != nil {
		slog.Error("engine shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("lumed stopped")
}

func setupLogger(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}
