package domain

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// lotEpsilon is the residual below which a lot is considered consumed.
// Exchange quantities carry at most 18 fractional digits.
var lotEpsilon = decimal.New(1, -18)

// Lot is a remaining quantity from a single BUY, not yet consumed by SELLs.
// Derived state only; never persisted.
type Lot struct {
	Qty        decimal.Decimal
	Price      decimal.Decimal
	OpenUnixMs int64
}

// Position is the FIFO-derived snapshot for one symbol. When Qty is zero
// the entry fields are meaningless and left at their zero values.
type Position struct {
	Symbol       string          `json:"symbol"`
	Qty          decimal.Decimal `json:"qty"`
	AvgEntry     decimal.Decimal `json:"avg_entry"`
	OpenedUnixMs int64           `json:"opened_unix_ms"` // earliest remaining lot
}

// IsOpen reports whether any lot quantity remains.
func (p *Position) IsOpen() bool {
	return p.Qty.IsPositive()
}

// HeldFor returns how long the oldest open lot has been held.
func (p *Position) HeldFor(nowUnixMs int64) time.Duration {
	if !p.IsOpen() || p.OpenedUnixMs <= 0 {
		return 0
	}
	return time.Duration(nowUnixMs-p.OpenedUnixMs) * time.Millisecond
}

// UnrealizedPct returns the percentage move of last against the average
// entry. Zero when flat or when no reference price is known.
func (p *Position) UnrealizedPct(last decimal.Decimal) decimal.Decimal {
	if !p.IsOpen() || !p.AvgEntry.IsPositive() || !last.IsPositive() {
		return decimal.Zero
	}
	return last.Sub(p.AvgEntry).Div(p.AvgEntry).Mul(decimal.NewFromInt(100))
}

// BuildPosition replays a symbol's trade history with FIFO lot matching:
// each BUY opens a lot, each SELL consumes the oldest lots first. A SELL
// beyond the open quantity is discarded; short inventory is not modeled.
// The replay is deterministic: trades are ordered by timestamp with the
// row id as tiebreaker regardless of input order.
func BuildPosition(symbol string, trades []Trade) Position {
	ordered := make([]Trade, len(trades))
	copy(ordered, trades)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].TsUnixMs != ordered[j].TsUnixMs {
			return ordered[i].TsUnixMs < ordered[j].TsUnixMs
		}
		return ordered[i].ID < ordered[j].ID
	})

	var lots []Lot
	for _, t := range ordered {
		if t.Symbol != symbol {
			continue
		}
		switch t.Side {
		case SideBuy:
			lots = append(lots, Lot{Qty: t.Qty, Price: t.Price, OpenUnixMs: t.TsUnixMs})
		case SideSell:
			remaining := t.Qty
			for len(lots) > 0 && remaining.IsPositive() {
				head := &lots[0]
				take := decimal.Min(head.Qty, remaining)
				head.Qty = head.Qty.Sub(take)
				remaining = remaining.Sub(take)
				if head.Qty.LessThanOrEqual(lotEpsilon) {
					lots = lots[1:]
				}
			}
			// Excess SELL quantity falls through here and is ignored.
		}
	}

	pos := Position{Symbol: symbol}
	if len(lots) == 0 {
		return pos
	}

	notional := decimal.Zero
	for _, l := range lots {
		pos.Qty = pos.Qty.Add(l.Qty)
		notional = notional.Add(l.Qty.Mul(l.Price))
	}
	if pos.Qty.IsPositive() {
		pos.AvgEntry = notional.Div(pos.Qty)
		pos.OpenedUnixMs = lots[0].OpenUnixMs
	}
	return pos
}
