package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"trader_go/internal/infra/mexc"
)

// Read-only integration smoke against the real MEXC REST API. It never
// places an order: it verifies connectivity, clock skew and that the
// signed endpoints accept our signature. Requires MEXC_API_KEY and
// MEXC_API_SECRET in the environment (or a local .env).
func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)
	slog.Info("🚀 Starting MEXC Integration Test (read-only)...")

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("⚠️ Failed to load .env file", "error", err)
	}

	apiKey := os.Getenv("MEXC_API_KEY")
	apiSecret := os.Getenv("MEXC_API_SECRET")
	if apiKey == "" || apiSecret == "" {
		slog.Error("❌ MEXC_API_KEY / MEXC_API_SECRET not set")
		os.Exit(1)
	}

	client := mexc.NewClient(mexc.Options{
		APIKey:    apiKey,
		APISecret: apiSecret,
		Timeout:   10 * time.Second,
	})
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// STEP 1: public endpoint plus local clock skew check.
	slog.Info("STEP 1: Fetching server time...")
	serverMS, err := client.ServerTime(ctx)
	if err != nil {
		slog.Error("❌ ServerTime failed", "error", err)
		os.Exit(1)
	}
	skew := time.Now().UnixMilli() - serverMS
	slog.Info("✅ Server time OK", "server_ms", serverMS, "skew_ms", skew)
	if skew > 1000 || skew < -1000 {
		slog.Warn("⚠️ Local clock skew above 1s; signed requests rely on server-time sync")
	}
	client.Clock().Observe(serverMS)

	// STEP 2: signed endpoint with no parameters.
	slog.Info("STEP 2: Fetching account balances...")
	assets, err := client.Account(ctx)
	if err != nil {
		slog.Error("❌ Account failed (check key permissions)", "error", err)
		os.Exit(1)
	}
	slog.Info("✅ Account OK", "assets", len(assets))
	for _, a := range assets {
		slog.Info("  balance", "asset", a.Asset, "free", a.Free.String(), "locked", a.Locked.String())
	}

	// STEP 3: signed endpoint with query parameters.
	slog.Info("STEP 3: Fetching open orders...", "symbol", "BTCUSDT")
	open, err := client.OpenOrders(ctx, "BTCUSDT")
	if err != nil {
		slog.Error("❌ OpenOrders failed", "error", err)
		os.Exit(1)
	}
	slog.Info("✅ OpenOrders OK", "count", len(open))

	slog.Info("🎉 Integration Test Passed!")
}
