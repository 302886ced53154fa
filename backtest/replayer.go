// Package backtest replays stored candles through the same decision,
// risk and paper-execution path the live engine runs, so a strategy's
// hypothetical P&L comes out of the exact code that would trade it.
package backtest

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
	"trader_go/internal/execution"
	"trader_go/internal/storage"
)

// Config describes one replay run.
type Config struct {
	Spec       domain.SymbolSpec
	Risk       engine.RiskConfig
	StartQuote decimal.Decimal // quote balance the run begins with
	FeeBps     int64
	Window     int // closes handed to the decider per step; 0 means all history
}

// Result is the outcome of one replay run. Equity marks the open
// remainder at the last close; it is hypothetical by construction.
type Result struct {
	Symbol     string
	Candles    int
	Submitted  int
	Fills      int
	Rejected   int // virtual shortfalls
	GuardSkips int
	Position   domain.Position
	QuoteStart decimal.Decimal
	QuoteEnd   decimal.Decimal
	Equity     decimal.Decimal
}

// Replayer walks one symbol's stored candles in order, consults the
// decider at every close and settles fills against a scratch ledger.
// Candle closes double as the execution price; intra-candle moves are
// invisible at this resolution.
type Replayer struct {
	source  *storage.Store // candles, read side
	ledger  *storage.Store // replayed orders and trades, throwaway
	decider decision.Decider
	cfg     Config

	gate  *engine.RiskGate
	exec  *execution.PaperExecutor
	book  *domain.BalanceBook
	nowMS int64 // candle-time cursor; every component reads time through it
}

// NewReplayer wires a gate, a virtual balance book and a paper executor
// around the scratch ledger. The gate and the executor are pinned to the
// replay clock so cooldowns, time-stops and daily rollovers follow the
// candle timeline instead of the wall clock.
func NewReplayer(source, ledger *storage.Store, decider decision.Decider, cfg Config) (*Replayer, error) {
	if source == nil || ledger == nil {
		return nil, fmt.Errorf("replayer: source and ledger stores required")
	}
	if decider == nil {
		return nil, fmt.Errorf("replayer: decider required")
	}
	if err := cfg.Spec.Validate(); err != nil {
		return nil, fmt.Errorf("replayer: %w", err)
	}
	if !cfg.StartQuote.IsPositive() {
		return nil, fmt.Errorf("replayer: start quote balance must be positive")
	}

	r := &Replayer{source: source, ledger: ledger, decider: decider, cfg: cfg}

	r.book = domain.NewBalanceBook()
	r.book.Update(cfg.Spec.QuoteAsset, func(b *domain.Balance) { b.Credit(cfg.StartQuote) })

	r.gate = engine.NewRiskGate(cfg.Spec.Symbol, cfg.Risk)
	r.gate.SetClock(func() time.Time { return time.UnixMilli(r.nowMS) })

	risk := engine.NewRiskBook()
	risk.Add(r.gate)

	r.exec = execution.NewPaperExecutor(ledger, r.book, risk, cfg.FeeBps)
	r.exec.SetClock(func() int64 { return r.nowMS })
	return r, nil
}

// Run replays every stored candle once and reports the outcome.
func (r *Replayer) Run(ctx context.Context) (Result, error) {
	symbol := r.cfg.Spec.Symbol
	candles, err := r.source.CandlesBySymbol(ctx, symbol)
	if err != nil {
		return Result{}, err
	}
	res := Result{Symbol: symbol, Candles: len(candles), QuoteStart: r.cfg.StartQuote}
	if len(candles) == 0 {
		return res, fmt.Errorf("replayer: no stored candles for %s", symbol)
	}

	slog.Info("⏪ replay started",
		"symbol", symbol,
		"candles", len(candles),
		"start_quote", r.cfg.StartQuote.String())

	closes := make([]float64, 0, len(candles))
	for i, c := range candles {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		r.nowMS = c.OpenUnixMs
		closes = append(closes, c.Close)

		if err := r.step(ctx, &res, closes); err != nil {
			return res, fmt.Errorf("replay step %d (%s@%d): %w", i, symbol, c.OpenUnixMs, err)
		}
	}

	last := decimal.NewFromFloat(closes[len(closes)-1])
	trades, err := r.ledger.TradesBySymbol(ctx, symbol)
	if err != nil {
		return res, err
	}
	res.Position = domain.BuildPosition(symbol, trades)
	res.QuoteEnd = r.book.Get(r.cfg.Spec.QuoteAsset).Available()
	res.Equity = res.QuoteEnd.Add(res.Position.Qty.Mul(last))

	slog.Info("⏩ replay finished",
		"symbol", symbol,
		"submitted", res.Submitted,
		"fills", res.Fills,
		"rejected", res.Rejected,
		"guard_skips", res.GuardSkips,
		"quote_end", res.QuoteEnd.String(),
		"equity", res.Equity.String())
	return res, nil
}

// step is one candle close: rebuild the position from the scratch
// ledger, consult the decider, run the same guards the live worker runs,
// submit. Replay is offline, so a decider error aborts the run instead
// of degrading to HOLD.
func (r *Replayer) step(ctx context.Context, res *Result, closes []float64) error {
	window := closes
	if r.cfg.Window > 0 && len(closes) > r.cfg.Window {
		window = closes[len(closes)-r.cfg.Window:]
	}

	trades, err := r.ledger.TradesBySymbol(ctx, r.cfg.Spec.Symbol)
	if err != nil {
		return err
	}
	pos := domain.BuildPosition(r.cfg.Spec.Symbol, trades)
	available := r.book.Get(r.cfg.Spec.QuoteAsset).Available()

	d, err := r.decider.Decide(ctx, domain.DecisionInput{
		Symbol:   r.cfg.Spec.Symbol,
		Closes:   window,
		Position: pos,
		Budget:   available,
	})
	if err != nil {
		return err
	}
	d = d.Sanitize()

	price := decimal.NewFromFloat(window[len(window)-1])
	if d.PriceHint != nil {
		price = *d.PriceHint
	}
	if !price.IsPositive() {
		return nil
	}

	switch d.Action {
	case domain.ActionBuy:
		return r.tryBuy(ctx, res, d, pos, price, available)
	case domain.ActionSell:
		return r.trySell(ctx, res, d, pos, price)
	}
	return nil
}

func (r *Replayer) tryBuy(ctx context.Context, res *Result, d domain.Decision, pos domain.Position, price, available decimal.Decimal) error {
	if v := r.gate.AllowTrade(d.Confidence); !v.Allowed {
		res.GuardSkips++
		return nil
	}
	if pos.IsOpen() {
		if v := r.gate.CheckDca(pos, price); !v.Allowed {
			res.GuardSkips++
			return nil
		}
	}
	px, qty, v := r.gate.SizeBuy(r.gate.LimitPrice(domain.SideBuy, price), available)
	if !v.Allowed {
		res.GuardSkips++
		return nil
	}
	return r.submit(ctx, res, domain.SideBuy, px, qty)
}

func (r *Replayer) trySell(ctx context.Context, res *Result, d domain.Decision, pos domain.Position, price decimal.Decimal) error {
	if !pos.IsOpen() {
		res.GuardSkips++
		return nil
	}
	if v := r.gate.AllowTrade(d.Confidence); !v.Allowed {
		res.GuardSkips++
		return nil
	}
	if v := r.gate.CheckProfitFloor(pos, price); !v.Allowed {
		res.GuardSkips++
		return nil
	}
	px, qty, v := r.gate.SizeSell(r.gate.LimitPrice(domain.SideSell, price), pos.Qty)
	if !v.Allowed {
		res.GuardSkips++
		return nil
	}
	return r.submit(ctx, res, domain.SideSell, px, qty)
}

func (r *Replayer) submit(ctx context.Context, res *Result, side domain.Side, price, qty decimal.Decimal) error {
	res.Submitted++
	_, err := r.exec.Submit(ctx, execution.OrderRequest{
		Symbol:     r.cfg.Spec.Symbol,
		BaseAsset:  r.cfg.Spec.BaseAsset,
		QuoteAsset: r.cfg.Spec.QuoteAsset,
		Side:       side,
		Type:       domain.OrderTypeLimit,
		Price:      price,
		Qty:        qty,
	})
	switch {
	case err == nil:
		res.Fills++
	case errors.Is(err, execution.ErrInsufficientBalance):
		// A virtual shortfall is a data point, not a failure.
		res.Rejected++
	default:
		return err
	}
	return nil
}
