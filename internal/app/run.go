package app

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"trader_go/internal/domain"
	"trader_go/internal/event"
	"trader_go/internal/infra"
	"trader_go/internal/infra/mexc"
	"trader_go/internal/storage"
)

// Run starts every background task and blocks until the context is
// cancelled, then joins them. Shutdown is cooperative: in-flight
// placements complete or time out naturally; the idempotency key, not
// cancellation, covers the ambiguous case.
func (b *Bootstrap) Run(ctx context.Context) {
	cfg := b.Config
	var wg sync.WaitGroup

	// 1. Server-clock sync keeps signed timestamps inside the venue's
	// validity window.
	b.Client.Clock().StartSync(ctx, b.Client,
		time.Duration(cfg.API.Mexc.TimeSyncSec)*time.Second)

	// 2. Ticker feed (optional; candle closes cover its absence).
	if cfg.API.Mexc.FeedEnabled {
		symbols := make([]string, 0, len(cfg.Trading.Symbols))
		for _, spec := range cfg.SymbolSpecs() {
			symbols = append(symbols, spec.Symbol)
		}
		inbox := make(chan event.Event, 1024)
		var seq uint64
		feed := mexc.NewTickerWorker(cfg.API.Mexc.WSURL, symbols, inbox, &seq)
		if err := feed.Connect(ctx); err != nil {
			slog.Error("Failed to connect ticker feed", slog.Any("error", err))
		}
		defer feed.Disconnect()

		wg.Add(1)
		go func() {
			defer wg.Done()
			b.pumpFeed(ctx, inbox)
		}()
		slog.Info("✅ Ticker feed started", "url", cfg.API.Mexc.WSURL, "symbols", len(symbols))
	}

	// 3. Singleton pollers: reconciliation, balances, state snapshot.
	wg.Add(1)
	go func() {
		defer wg.Done()
		b.Reconciler.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		b.runBalancePoller(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		b.runSnapshotWriter(ctx)
	}()

	// 4. One worker per symbol.
	for _, spec := range cfg.SymbolSpecs() {
		gate, ok := b.Risk.Get(spec.Symbol)
		if !ok {
			slog.Error("no risk gate registered, symbol skipped", "symbol", spec.Symbol)
			continue
		}
		worker := NewSymbolWorker(cfg, spec, WorkerDeps{
			Market:  b.Client,
			Store:   b.Store,
			Decider: b.Decider,
			Gate:    gate,
			Exec:    b.Executor,
			Book:    b.Balances,
			Prices:  b.Prices,
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker.Run(ctx)
		}()
	}

	slog.Info("✨ trader-go fully operational. Press Ctrl+C to exit.")
	<-ctx.Done()
	slog.Info("👋 Shutting down gracefully...")
	wg.Wait()
}

// pumpFeed drains the feed inbox into the price cache and returns the
// pooled events. It is the cache's only writer.
func (b *Bootstrap) pumpFeed(ctx context.Context, inbox <-chan event.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-inbox:
			update, ok := ev.(*event.MarketUpdateEvent)
			if !ok {
				continue
			}
			b.Prices.Apply(update)
			infra.SetLastPrice(update.Symbol, update.PriceMicros.Float64())
			event.ReleaseMarketUpdateEvent(update)
		}
	}
}

func (b *Bootstrap) runBalancePoller(ctx context.Context) {
	interval := time.Duration(b.Config.Trading.BalancePollSec) * time.Second
	slog.Info("💰 balance poller started", "interval", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := b.pollBalances(ctx); err != nil && ctx.Err() == nil {
			slog.Warn("balance poll failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// pollBalances refreshes the balance book from the venue (live) or
// snapshots the virtual book (paper), and persists nonzero rows.
func (b *Bootstrap) pollBalances(ctx context.Context) error {
	now := time.Now().UnixMilli()

	if b.Config.Trading.Mode == infra.ModeLive {
		assets, err := b.Client.Account(ctx)
		if err != nil {
			return err
		}
		for _, a := range assets {
			if a.Free.IsZero() && a.Locked.IsZero() {
				continue
			}
			b.Balances.Update(a.Asset, func(bal *domain.Balance) {
				bal.Amount = a.Free.Add(a.Locked)
				bal.Reserved = a.Locked
			})
			snap := domain.BalanceSnapshot{Asset: a.Asset, Free: a.Free, Locked: a.Locked, TsUnixMs: now}
			if err := b.Store.InsertBalanceSnapshot(ctx, snap); err != nil {
				return err
			}
		}
		return nil
	}

	for _, bal := range b.Balances.Snapshot() {
		if bal.Amount.IsZero() {
			continue
		}
		snap := domain.BalanceSnapshot{Asset: bal.Asset, Free: bal.Available(), Locked: bal.Reserved, TsUnixMs: now}
		if err := b.Store.InsertBalanceSnapshot(ctx, snap); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bootstrap) runSnapshotWriter(ctx context.Context) {
	interval := time.Duration(b.Config.Storage.SnapshotSec) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			// One last snapshot so external readers see the shutdown state.
			if err := b.writeSnapshot(context.WithoutCancel(ctx)); err != nil {
				slog.Warn("final snapshot failed", "error", err)
			}
			return
		case <-ticker.C:
			if err := b.writeSnapshot(ctx); err != nil && ctx.Err() == nil {
				slog.Warn("snapshot write failed", "error", err)
			}
		}
	}
}

// writeSnapshot publishes positions, risk counters and last prices as
// one atomically-replaced JSON file. The engine never reads it back;
// positions rebuild from trades and risk counters reset with the
// process.
func (b *Bootstrap) writeSnapshot(ctx context.Context) error {
	snap := &storage.EngineSnapshot{
		TsUnixMs:   time.Now().UnixMilli(),
		Mode:       b.Config.Trading.Mode,
		Positions:  make(map[string]domain.Position),
		Risk:       make(map[string]storage.RiskCounters),
		LastPrices: make(map[string]string),
	}

	for _, spec := range b.Config.SymbolSpecs() {
		trades, err := b.Store.TradesBySymbol(ctx, spec.Symbol)
		if err != nil {
			return err
		}
		if pos := domain.BuildPosition(spec.Symbol, trades); pos.IsOpen() {
			snap.Positions[spec.Symbol] = pos
		}
		if micros, _, ok := b.Prices.Last(spec.Symbol); ok {
			snap.LastPrices[spec.Symbol] = decimal.New(int64(micros), -6).String()
		}
	}
	for symbol, c := range b.Risk.Counters() {
		snap.Risk[symbol] = storage.RiskCounters{
			Day:            c.Day,
			RealizedLoss:   c.RealizedLoss.String(),
			LastLossUnixMs: c.LastLossUnixMs,
		}
	}
	return b.Snapshots.Write(snap)
}
