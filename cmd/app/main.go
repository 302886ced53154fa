package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"trader_go/internal/app"

	_ "net/http/pprof" // For pprof profiling
)

func main() {
	// 1. Load .env if present (silently ignore if missing). Real
	// deployments inject MEXC_API_KEY / MEXC_API_SECRET through the
	// process environment instead.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("⚠️ Failed to load .env file", slog.Any("error", err))
	}

	// 2. System Bootstrapping
	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(); err != nil {
		slog.Error("❌ Bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer bootstrap.Close()

	// 3. Debug Server (pprof + Prometheus metrics). Keep the listen
	// address on localhost; it exposes runtime internals.
	if addr := bootstrap.Config.Debug.ListenAddr; addr != "" {
		http.Handle("/metrics", promhttp.Handler())
		go func() {
			slog.Info("🕵️ Debug server started", slog.String("addr", addr))
			if err := http.ListenAndServe(addr, nil); err != nil {
				slog.Error("Debug server failed", slog.Any("error", err))
			}
		}()
	}

	// 4. Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 5. Run everything: feed, reconciler, pollers, symbol workers.
	// Blocks until the context is cancelled, then joins all goroutines.
	bootstrap.Run(ctx)
}
