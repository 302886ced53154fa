package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
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

// MarketData is the slice of the exchange client the worker pulls
// candles through.
type MarketData interface {
	Klines(ctx context.Context, symbol, interval string, limit int) ([]domain.Candle, error)
}

// SymbolWorker runs the trade cycle for one symbol: fetch candles,
// persist them, decide, guard, size, submit. Iterations are strictly
// sequential; workers share nothing mutable except the store and the
// balance book.
type SymbolWorker struct {
	spec    domain.SymbolSpec
	market  MarketData
	store   *storage.Store
	decider decision.Decider
	gate    *engine.RiskGate
	exec    execution.Executor
	book    *domain.BalanceBook
	prices  *event.PriceCache
	breaker *infra.CircuitBreaker

	heartbeat  time.Duration
	klineLimit int
	staleAfter time.Duration
	live       bool
}

// WorkerDeps carries the shared components a SymbolWorker borrows.
type WorkerDeps struct {
	Market  MarketData
	Store   *storage.Store
	Decider decision.Decider
	Gate    *engine.RiskGate
	Exec    execution.Executor
	Book    *domain.BalanceBook
	Prices  *event.PriceCache
}

func NewSymbolWorker(cfg *infra.Config, spec domain.SymbolSpec, d WorkerDeps) *SymbolWorker {
	return &SymbolWorker{
		spec:       spec,
		market:     d.Market,
		store:      d.Store,
		decider:    d.Decider,
		gate:       d.Gate,
		exec:       d.Exec,
		book:       d.Book,
		prices:     d.Prices,
		breaker:    infra.NewCircuitBreaker("worker_"+spec.Symbol, 5, 2, 30*time.Second),
		heartbeat:  time.Duration(cfg.Trading.HeartbeatSec) * time.Second,
		klineLimit: cfg.Trading.KlineLimit,
		staleAfter: time.Duration(cfg.API.Mexc.FeedStaleAfterS) * time.Second,
		live:       cfg.Trading.Mode == infra.ModeLive,
	}
}

// Run loops until the context is cancelled. A failed iteration is logged
// and slept over; a single bad cycle must never kill the worker.
func (w *SymbolWorker) Run(ctx context.Context) {
	slog.Info("⚙️ symbol worker started",
		"symbol", w.spec.Symbol, "heartbeat", w.heartbeat, "interval", w.spec.KlineInterval)

	for {
		sleep := w.heartbeat
		if err := w.runCycle(ctx); err != nil && ctx.Err() == nil {
			slog.Error("trade cycle failed", "symbol", w.spec.Symbol, "error", err)
			sleep = max(w.heartbeat, 5*time.Second)
		}

		select {
		case <-ctx.Done():
			slog.Info("symbol worker stopped", "symbol", w.spec.Symbol)
			return
		case <-time.After(sleep):
		}
	}
}

// runCycle wraps one iteration in the circuit breaker. While the breaker
// is open the worker idles in HOLD-biased degraded mode instead of
// hammering a failing venue.
func (w *SymbolWorker) runCycle(ctx context.Context) error {
	if !w.breaker.Allow() {
		slog.Warn("circuit open, cycle skipped",
			"symbol", w.spec.Symbol, "probe_in", w.breaker.NextProbeIn().Round(time.Second))
		return nil
	}
	err := w.cycle(ctx)
	switch {
	case err == nil:
		w.breaker.RecordSuccess()
	case ctx.Err() == nil:
		w.breaker.RecordFailure()
	}
	return err
}

func (w *SymbolWorker) cycle(ctx context.Context) error {
	symbol := w.spec.Symbol

	candles, err := w.market.Klines(ctx, symbol, w.spec.KlineInterval, w.klineLimit)
	if err != nil {
		return fmt.Errorf("klines: %w", err)
	}
	if err := w.store.UpsertCandles(ctx, candles); err != nil {
		return fmt.Errorf("persist candles: %w", err)
	}
	closes, err := w.store.RecentCloses(ctx, symbol, w.klineLimit)
	if err != nil {
		return fmt.Errorf("load closes: %w", err)
	}

	trades, err := w.store.TradesBySymbol(ctx, symbol)
	if err != nil {
		return fmt.Errorf("load trades: %w", err)
	}
	pos := domain.BuildPosition(symbol, trades)
	infra.SetPositionQty(symbol, pos.Qty.InexactFloat64())

	available := w.book.Get(w.spec.QuoteAsset).Available()

	d, err := w.decider.Decide(ctx, domain.DecisionInput{
		Symbol:   symbol,
		Closes:   closes,
		Position: pos,
		Budget:   available,
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// A broken decider degrades to HOLD, never to a crash.
		slog.Warn("decider failed, holding", "symbol", symbol, "error", err)
		d = domain.Hold("decider error")
	}
	d = d.Sanitize()

	price := w.refPrice(d, closes)
	if !price.IsPositive() {
		slog.Debug("no reference price yet", "symbol", symbol)
		return nil
	}
	infra.SetLastPrice(symbol, price.InexactFloat64())

	switch d.Action {
	case domain.ActionBuy:
		return w.tryBuy(ctx, d, pos, price, available)
	case domain.ActionSell:
		return w.trySell(ctx, d, pos, price)
	default:
		slog.Debug("holding", "symbol", symbol, "reason", d.Reason)
		return nil
	}
}

// refPrice picks the execution reference: decider hint first, then a
// fresh feed price, then the latest persisted close. The engine stays
// correct with the feed disabled.
func (w *SymbolWorker) refPrice(d domain.Decision, closes []float64) decimal.Decimal {
	if d.PriceHint != nil {
		return *d.PriceHint
	}
	if w.prices != nil {
		if micros, ok := w.prices.Fresh(w.spec.Symbol, time.Now().UnixMicro(), w.staleAfter); ok {
			return decimal.New(int64(micros), -6)
		}
	}
	if n := len(closes); n > 0 {
		return decimal.NewFromFloat(closes[n-1])
	}
	return decimal.Zero
}

func (w *SymbolWorker) tryBuy(ctx context.Context, d domain.Decision, pos domain.Position, price, available decimal.Decimal) error {
	if v := w.gate.AllowTrade(d.Confidence); !v.Allowed {
		w.skip(domain.SideBuy, v)
		return nil
	}
	if pos.IsOpen() {
		// Averaging down is only allowed a full step below entry; the
		// decider's opinion on this is not trusted.
		if v := w.gate.CheckDca(pos, price); !v.Allowed {
			w.skip(domain.SideBuy, v)
			return nil
		}
	}
	px, qty, v := w.gate.SizeBuy(w.gate.LimitPrice(domain.SideBuy, price), available)
	if !v.Allowed {
		w.skip(domain.SideBuy, v)
		return nil
	}
	if w.live {
		qty = w.gate.ShaveBuyForBalance(px, qty, available)
		if !qty.IsPositive() {
			w.skip(domain.SideBuy, domain.Reject(domain.GuardZeroSize, "balance shave left nothing"))
			return nil
		}
	}
	return w.submit(ctx, d, domain.SideBuy, px, qty)
}

func (w *SymbolWorker) trySell(ctx context.Context, d domain.Decision, pos domain.Position, price decimal.Decimal) error {
	if !pos.IsOpen() {
		w.skip(domain.SideSell, domain.Reject(domain.GuardNoPosition, "nothing to exit"))
		return nil
	}
	if v := w.gate.AllowTrade(d.Confidence); !v.Allowed {
		w.skip(domain.SideSell, v)
		return nil
	}
	if v := w.gate.CheckProfitFloor(pos, price); !v.Allowed {
		w.skip(domain.SideSell, v)
		return nil
	}
	px, qty, v := w.gate.SizeSell(w.gate.LimitPrice(domain.SideSell, price), pos.Qty)
	if !v.Allowed {
		w.skip(domain.SideSell, v)
		return nil
	}
	if w.live {
		qty = w.gate.ClampSellToBalance(qty, w.book.Get(w.spec.BaseAsset).Available())
		if !qty.IsPositive() {
			w.skip(domain.SideSell, domain.Reject(domain.GuardZeroSize, "free base below one lot"))
			return nil
		}
	}
	return w.submit(ctx, d, domain.SideSell, px, qty)
}

func (w *SymbolWorker) submit(ctx context.Context, d domain.Decision, side domain.Side, price, qty decimal.Decimal) error {
	slog.Info("🎯 decision actionable",
		slog.String("symbol", w.spec.Symbol),
		slog.String("side", string(side)),
		slog.String("price", price.String()),
		slog.String("qty", qty.String()),
		slog.Float64("confidence", d.Confidence),
		slog.String("reason", d.Reason),
	)

	order, err := w.exec.Submit(ctx, execution.OrderRequest{
		Symbol:     w.spec.Symbol,
		BaseAsset:  w.spec.BaseAsset,
		QuoteAsset: w.spec.QuoteAsset,
		Side:       side,
		Type:       domain.OrderTypeLimit,
		Price:      price,
		Qty:        qty,
	})
	if err != nil {
		if errors.Is(err, mexc.ErrNotConfirmed) {
			// The row is on disk; reconciliation owns the outcome now.
			return err
		}
		return fmt.Errorf("submit %s: %w", side, err)
	}

	slog.Info("📬 order accepted",
		"symbol", w.spec.Symbol,
		"client_id", order.ClientOrderID,
		"status", order.Status)
	return nil
}

// skip records a guard rejection. Rejections are the gate doing its job,
// logged at info and counted, never treated as errors.
func (w *SymbolWorker) skip(side domain.Side, v domain.Verdict) {
	infra.IncGuardSkip(w.spec.Symbol, string(v.Reason))
	slog.Info("🛡️ guard skipped cycle",
		"symbol", w.spec.Symbol,
		"side", side,
		"reason", v.Reason,
		"detail", v.Detail)
}
