// Package engine holds the per-symbol risk gate: the final authority on
// whether an order may be submitted and at what size. Deciders are
// advisory; the gate re-checks everything.
package engine

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"trader_go/internal/domain"
	"trader_go/internal/infra"
)

var bpsDenom = decimal.NewFromInt(10000)

// RiskConfig carries one symbol's limits. Zero values disable the
// corresponding check (a zero daily cap means uncapped, a zero cooldown
// means none).
type RiskConfig struct {
	MinConfidence float64
	MaxPerTrade   decimal.Decimal // quote notional cap per order
	DailyMaxLoss  decimal.Decimal // quote, accumulated realized losses
	Cooldown      time.Duration   // wait after a realized loss
	FeeBps        int64
	MinProfitBps  int64
	StopLossPct   decimal.Decimal // 0.05 = 5%
	TimeStop      time.Duration   // max holding time before SELL is forced through
	DcaStepBps    int64
	SlippageBps   int64 // limit-price pad so taker-style orders cross the spread
	PriceDecimals int32
	QtyDecimals   int32
	MinNotional   decimal.Decimal
}

// RiskGate is one symbol's stateful admission controller. Counters live
// in memory for the process lifetime; the daily loss resets at UTC
// midnight, decided here rather than inherited from the previous run.
type RiskGate struct {
	symbol string
	cfg    RiskConfig

	mu           sync.Mutex
	day          string // UTC yyyy-mm-dd the counters belong to
	realizedLoss decimal.Decimal
	lastLossAt   time.Time

	now func() time.Time
}

func NewRiskGate(symbol string, cfg RiskConfig) *RiskGate {
	return &RiskGate{
		symbol:       symbol,
		cfg:          cfg,
		realizedLoss: decimal.Zero,
		now:          time.Now,
	}
}

// SetClock overrides the gate's time source. The backtest replayer pins
// it to candle time so cooldown, time-stop and the daily rollover follow
// replayed history instead of the wall clock.
func (g *RiskGate) SetClock(now func() time.Time) {
	g.now = now
}

// rollover resets the daily counters when the UTC day has changed.
// Callers hold g.mu.
func (g *RiskGate) rollover(now time.Time) {
	day := now.UTC().Format("2006-01-02")
	if day == g.day {
		return
	}
	if g.day != "" && g.realizedLoss.IsPositive() {
		slog.Info("Daily loss counter reset",
			slog.String("symbol", g.symbol),
			slog.String("day", day),
			slog.String("prev_loss", g.realizedLoss.String()))
	}
	g.day = day
	g.realizedLoss = decimal.Zero
	infra.SetDailyLoss(g.symbol, 0)
}

// AllowTrade runs the eligibility checks that precede any submission:
// confidence floor, daily loss cap, post-loss cooldown.
func (g *RiskGate) AllowTrade(confidence float64) domain.Verdict {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.rollover(now)

	if confidence < g.cfg.MinConfidence {
		return domain.Reject(domain.GuardConfidenceFloor,
			fmt.Sprintf("confidence %.2f below floor %.2f", confidence, g.cfg.MinConfidence))
	}
	if g.cfg.DailyMaxLoss.IsPositive() && g.realizedLoss.GreaterThanOrEqual(g.cfg.DailyMaxLoss) {
		return domain.Reject(domain.GuardDailyLossCap,
			fmt.Sprintf("daily loss %s reached cap %s", g.realizedLoss, g.cfg.DailyMaxLoss))
	}
	if g.cfg.Cooldown > 0 && !g.lastLossAt.IsZero() {
		if since := now.Sub(g.lastLossAt); since < g.cfg.Cooldown {
			return domain.Reject(domain.GuardCooldown,
				fmt.Sprintf("last loss %s ago, cooldown %s", since.Truncate(time.Second), g.cfg.Cooldown))
		}
	}
	return domain.Allow()
}

// CheckDca is the averaging-down guard: with an open position, a BUY
// must come in at least step_bps below the average entry. The decider
// claims to respect this; the gate enforces it regardless.
func (g *RiskGate) CheckDca(pos domain.Position, price decimal.Decimal) domain.Verdict {
	if !pos.IsOpen() {
		return domain.Allow()
	}
	step := decimal.NewFromInt(g.cfg.DcaStepBps).Div(bpsDenom)
	limit := pos.AvgEntry.Mul(decimal.NewFromInt(1).Sub(step))
	if price.GreaterThan(limit) {
		return domain.Reject(domain.GuardDcaStep,
			fmt.Sprintf("price %s above dca limit %s (avg %s)", price, limit.StringFixed(g.cfg.PriceDecimals), pos.AvgEntry))
	}
	return domain.Allow()
}

// CheckProfitFloor gates a SELL: the price must clear breakeven
// (avg_entry grossed up by two fee legs plus the minimum profit), unless
// a stop-loss or time-stop condition forces the exit through.
func (g *RiskGate) CheckProfitFloor(pos domain.Position, price decimal.Decimal) domain.Verdict {
	if !pos.IsOpen() {
		return domain.Reject(domain.GuardNoPosition, "no open position to sell")
	}

	if g.cfg.StopLossPct.IsPositive() {
		stopAt := pos.AvgEntry.Mul(decimal.NewFromInt(1).Sub(g.cfg.StopLossPct))
		if price.LessThanOrEqual(stopAt) {
			slog.Warn("Stop loss forcing exit",
				slog.String("symbol", g.symbol),
				slog.String("price", price.String()),
				slog.String("stop_at", stopAt.StringFixed(g.cfg.PriceDecimals)))
			return domain.Allow()
		}
	}
	if g.cfg.TimeStop > 0 && pos.HeldFor(g.now().UnixMilli()) >= g.cfg.TimeStop {
		slog.Warn("Time stop forcing exit",
			slog.String("symbol", g.symbol),
			slog.Duration("held", pos.HeldFor(g.now().UnixMilli()).Truncate(time.Second)))
		return domain.Allow()
	}

	floorBps := decimal.NewFromInt(2*g.cfg.FeeBps + g.cfg.MinProfitBps).Div(bpsDenom)
	breakeven := pos.AvgEntry.Mul(decimal.NewFromInt(1).Add(floorBps))
	if price.LessThan(breakeven) {
		return domain.Reject(domain.GuardProfitFloor,
			fmt.Sprintf("price %s below breakeven %s", price, breakeven.StringFixed(g.cfg.PriceDecimals)))
	}
	return domain.Allow()
}

// RecordLoss books a realized loss against the daily counter and starts
// the cooldown. Profits do not offset the counter.
func (g *RiskGate) RecordLoss(loss decimal.Decimal) {
	if !loss.IsPositive() {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.rollover(now)
	g.realizedLoss = g.realizedLoss.Add(loss)
	g.lastLossAt = now

	lossF, _ := g.realizedLoss.Float64()
	infra.SetDailyLoss(g.symbol, lossF)
	slog.Warn("Realized loss recorded",
		slog.String("symbol", g.symbol),
		slog.String("loss", loss.String()),
		slog.String("daily_total", g.realizedLoss.String()))
}

// RiskCounters is a copy of the gate's current state for snapshots.
type RiskCounters struct {
	Day            string
	RealizedLoss   decimal.Decimal
	LastLossUnixMs int64
}

// Counters returns the gate's state at this instant.
func (g *RiskGate) Counters() RiskCounters {
	g.mu.Lock()
	defer g.mu.Unlock()

	c := RiskCounters{Day: g.day, RealizedLoss: g.realizedLoss}
	if !g.lastLossAt.IsZero() {
		c.LastLossUnixMs = g.lastLossAt.UnixMilli()
	}
	return c
}

// RiskBook is the process-wide registry of per-symbol gates. The
// reconciler books losses through it; workers fetch their own gate once
// at startup.
type RiskBook struct {
	mu    sync.RWMutex
	gates map[string]*RiskGate
}

func NewRiskBook() *RiskBook {
	return &RiskBook{gates: make(map[string]*RiskGate)}
}

// Add registers a gate under its symbol.
func (b *RiskBook) Add(gate *RiskGate) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gates[gate.symbol] = gate
}

// Get returns the gate for a symbol.
func (b *RiskBook) Get(symbol string) (*RiskGate, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	g, ok := b.gates[symbol]
	return g, ok
}

// RecordLoss books a loss against a symbol's gate. Unknown symbols are
// ignored: a fill for an unconfigured symbol cannot gate anything.
func (b *RiskBook) RecordLoss(symbol string, loss decimal.Decimal) {
	if g, ok := b.Get(symbol); ok {
		g.RecordLoss(loss)
	}
}

// Counters snapshots every gate, keyed by symbol.
func (b *RiskBook) Counters() map[string]RiskCounters {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]RiskCounters, len(b.gates))
	for sym, g := range b.gates {
		out[sym] = g.Counters()
	}
	return out
}
