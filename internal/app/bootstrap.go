// Package app wires the engine together: configuration, storage, the
// exchange client, risk gates, the executor, and the per-symbol workers.
package app

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"trader_go/internal/decision"
	"trader_go/internal/domain"
	"trader_go/internal/engine"
	"trader_go/internal/event"
	"trader_go/internal/execution"
	"trader_go/internal/infra"
	"trader_go/internal/infra/mexc"
	"trader_go/internal/storage"
)

// Bootstrap orchestrates the application startup sequence and owns the
// long-lived components the run loop hands out to workers.
type Bootstrap struct {
	Config     *infra.Config
	Store      *storage.Store
	Snapshots  *storage.SnapshotWriter
	Client     *mexc.Client
	Prices     *event.PriceCache
	Balances   *domain.BalanceBook
	Risk       *engine.RiskBook
	Decider    decision.Decider
	Executor   execution.Executor
	Reconciler *execution.Reconciler

	unlock func()
}

// NewBootstrap creates an empty Bootstrap; Initialize fills it.
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize performs core system initialization. Order matters: config
// first (the logger level depends on it), storage before anything that
// writes, credentials before the exchange client.
func (b *Bootstrap) Initialize() error {
	slog.Info("🚀 Bootstrapping trader-go...")

	// 0. Runtime warmup so the first feed burst does not allocate.
	event.Warmup()

	// 1. Config + logger + banner.
	cfg, err := infra.LoadConfig(infra.ResolveConfigPath())
	if err != nil {
		return err
	}
	b.Config = cfg
	slog.SetDefault(infra.NewLogger(cfg))
	infra.PrintBanner(cfg)

	// 2. Workspace layout and the single-instance lock. Two engines on
	// one account would double-spend the balance.
	workDir := infra.GetWorkspaceDir()
	dataDir := filepath.Join(workDir, "data", cfg.Trading.Mode)
	if err := infra.EnsureDir(dataDir); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	unlock, err := infra.CreateLockFile(workDir)
	if err != nil {
		return err
	}
	b.unlock = unlock

	// 3. Storage (single-writer WAL SQLite) and the snapshot writer.
	dbPath := cfg.Storage.DBPath
	if dbPath == "" {
		dbPath = filepath.Join(dataDir, "trader.db")
	}
	store, err := storage.NewStore(dbPath)
	if err != nil {
		return err
	}
	b.Store = store
	slog.Info("✅ Store initialized (WAL-mode)", "path", dbPath, "mode", cfg.Trading.Mode)

	snapPath := cfg.Storage.SnapshotPath
	if snapPath == "" {
		snapPath = filepath.Join(dataDir, "engine_state.json")
	}
	b.Snapshots = storage.NewSnapshotWriter(snapPath)

	// 4. Credentials and the exchange client. Paper mode works
	// unauthenticated; live mode fails fast without key material.
	creds, err := infra.CredentialsFromConfig(cfg)
	if err != nil {
		return err
	}
	b.Client = mexc.NewClient(mexc.Options{
		BaseURL:      cfg.API.Mexc.RestURL,
		APIKey:       creds.APIKey,
		APISecret:    creds.APISecret,
		RecvWindowMS: cfg.API.Mexc.RecvWindowMS,
		Timeout:      time.Duration(cfg.API.Mexc.TimeoutSec) * time.Second,
	})
	creds.Wipe()
	slog.Info("✅ Exchange client ready", "base_url", cfg.API.Mexc.RestURL)

	// 5. Shared read-mostly state: last prices and the balance book.
	b.Prices = event.NewPriceCache()
	b.Balances = domain.NewBalanceBook()
	if cfg.Trading.Mode == infra.ModePaper {
		seed := decimal.NewFromFloat(cfg.Trading.PaperQuoteBalance)
		for _, asset := range quoteAssets(cfg) {
			b.Balances.Update(asset, func(bal *domain.Balance) { bal.Credit(seed) })
			slog.Info("💰 Paper balance seeded", "asset", asset, "amount", seed)
		}
	}

	// 6. Risk gates, one per symbol, behind a registry the reconciler
	// can book realized losses through.
	b.Risk = engine.NewRiskBook()
	for _, spec := range cfg.SymbolSpecs() {
		b.Risk.Add(engine.NewRiskGate(spec.Symbol, riskConfigFor(cfg, spec)))
	}

	// 7. Default decider. Failures degrade to HOLD inside the worker, so
	// a broken decider can never place an order.
	dec, err := decision.NewSMACross(cfg.Trading.SmaFast, cfg.Trading.SmaSlow)
	if err != nil {
		return fmt.Errorf("decider setup: %w", err)
	}
	b.Decider = dec

	// 8. Executor (paper or live; live demands the safety latch) and the
	// reconciliation poller.
	b.Executor, err = execution.New(cfg.Trading.Mode, execution.Deps{
		Store:  store,
		Book:   b.Balances,
		Risk:   b.Risk,
		Placer: b.Client,
		FeeBps: cfg.Trading.FeeBps,
	})
	if err != nil {
		return err
	}
	b.Reconciler = execution.NewReconciler(store, b.Client, b.Risk,
		time.Duration(cfg.Trading.ReconcileSec)*time.Second)

	slog.Info("✅ Execution system ready", "mode", b.Executor.Mode())
	return nil
}

// Close releases everything Initialize acquired, safe to call once.
func (b *Bootstrap) Close() {
	if b.Client != nil {
		b.Client.Close()
	}
	if b.Store != nil {
		if err := b.Store.Close(); err != nil {
			slog.Error("store close failed", "error", err)
		}
	}
	if b.unlock != nil {
		b.unlock()
	}
}

// riskConfigFor merges process-wide trading limits with one symbol's
// precision constraints.
func riskConfigFor(cfg *infra.Config, spec domain.SymbolSpec) engine.RiskConfig {
	t := cfg.Trading
	return engine.RiskConfig{
		MinConfidence: t.MinConfidence,
		MaxPerTrade:   decimal.NewFromFloat(t.MaxPerTrade),
		DailyMaxLoss:  decimal.NewFromFloat(t.DailyMaxLoss),
		Cooldown:      time.Duration(t.CooldownAfterLossS) * time.Second,
		FeeBps:        t.FeeBps,
		MinProfitBps:  t.MinProfitBps,
		StopLossPct:   decimal.NewFromFloat(t.StopLossPct),
		TimeStop:      time.Duration(t.TimeStopMin) * time.Minute,
		DcaStepBps:    t.DcaStepBps,
		SlippageBps:   t.SlippageBps,
		PriceDecimals: spec.PriceDecimals,
		QtyDecimals:   spec.QtyDecimals,
		MinNotional:   spec.MinNotional,
	}
}

// quoteAssets returns the distinct quote assets across configured symbols.
func quoteAssets(cfg *infra.Config) []string {
	seen := make(map[string]bool)
	var out []string
	for _, spec := range cfg.SymbolSpecs() {
		if spec.QuoteAsset != "" && !seen[spec.QuoteAsset] {
			seen[spec.QuoteAsset] = true
			out = append(out, spec.QuoteAsset)
		}
	}
	return out
}
