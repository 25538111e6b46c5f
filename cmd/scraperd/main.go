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

	"github.com/flowvex/scraperd/internal/config"
	"github.com/flowvex/scraperd/internal/engine"
	"github.com/flowvex/scraperd/internal/handlers"
	"github.com/flowvex/scraperd/internal/scraper"
	"github.com/flowvex/scraperd/internal/session"
)

var version = "dev"

func main() {
	if len(os.Args) > 1 && (os.Args[1] == "--version" || os.Args[1] == "-v") {
		fmt.Printf("scraperd %s\n", version)
		os.Exit(0)
	}

	cfg := config.Load()
	listenAddr := cfg.ListenAddr()
	slog.Info("scraperd starting",
		"listen", listenAddr,
		"headless", cfg.Headless,
		"maxSessions", cfg.MaxSessions,
		"token", config.MaskToken(cfg.Token),
	)

	// Chrome launches lazily on the first open command.
	eng := engine.New(cfg)
	registry := session.NewRegistry(eng, cfg)
	dispatcher := scraper.NewDispatcher(registry, cfg)

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	go registry.RunSweeper(sweepCtx)

	mux := http.NewServeMux()
	h := handlers.New(dispatcher, registry, eng, cfg)
	h.RegisterRoutes(mux)

	var handler http.Handler = mux
	handler = handlers.LoggingMiddleware(handler)
	handler = handlers.AuthMiddleware(cfg, handler)
	handler = handlers.RequestIDMiddleware(handler)

	server := &http.Server{
		Addr:              listenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("scraperd listening", "addr", listenAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	slog.Info("shutting down")

	stopSweep()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown", "err", err)
	}

	if n := registry.CloseAll(); n > 0 {
		slog.Info("closed sessions", "count", n)
	}
	eng.Shutdown()
}
