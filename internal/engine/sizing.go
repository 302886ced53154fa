package engine

import (
	"fmt"

	"github.com/shopspring/decimal"

	"trader_go/internal/domain"
)

var one = decimal.NewFromInt(1)

// TruncPrice chops a price down to the symbol's tick precision.
// Truncation, never rounding: the exchange rejects over-precision and
// rounding a price up would move a limit through the book.
func (g *RiskGate) TruncPrice(price decimal.Decimal) decimal.Decimal {
	return price.Truncate(g.cfg.PriceDecimals)
}

// TruncQty chops a quantity down to the symbol's lot precision.
// Rounding up could exceed the available balance.
func (g *RiskGate) TruncQty(qty decimal.Decimal) decimal.Decimal {
	return qty.Truncate(g.cfg.QtyDecimals)
}

// QtyStep is one lot increment at the configured precision.
func (g *RiskGate) QtyStep() decimal.Decimal {
	return decimal.New(1, -g.cfg.QtyDecimals)
}

// LimitPrice pads the reference price by the configured slippage so the
// limit order crosses the spread: BUY bids above the market, SELL asks
// below it. Guards judge the raw market price; only sizing and the
// submitted order see the pad.
func (g *RiskGate) LimitPrice(side domain.Side, price decimal.Decimal) decimal.Decimal {
	if g.cfg.SlippageBps <= 0 {
		return price
	}
	pad := decimal.NewFromInt(g.cfg.SlippageBps).Div(bpsDenom)
	if side == domain.SideSell {
		return price.Mul(one.Sub(pad))
	}
	return price.Mul(one.Add(pad))
}

// SizeBuy turns a candidate price and the available quote balance into a
// rounded (price, qty) pair. The budget is the smaller of the per-trade
// cap and the available balance, shaved by one taker fee so the gross
// spend still fits the balance. Returns a rejection verdict when the
// result cannot form a valid order.
func (g *RiskGate) SizeBuy(price, available decimal.Decimal) (decimal.Decimal, decimal.Decimal, domain.Verdict) {
	price = g.TruncPrice(price)
	if !price.IsPositive() {
		return decimal.Zero, decimal.Zero, domain.Reject(domain.GuardZeroSize, "price not positive")
	}

	budget := decimal.Min(g.cfg.MaxPerTrade, available)
	if !budget.IsPositive() {
		return decimal.Zero, decimal.Zero, domain.Reject(domain.GuardZeroSize,
			fmt.Sprintf("no budget: cap %s available %s", g.cfg.MaxPerTrade, available))
	}
	feeKeep := one.Sub(decimal.NewFromInt(g.cfg.FeeBps).Div(bpsDenom))
	budget = budget.Mul(feeKeep)

	qty := g.TruncQty(budget.Div(price))
	if !qty.IsPositive() {
		return decimal.Zero, decimal.Zero, domain.Reject(domain.GuardZeroSize,
			fmt.Sprintf("budget %s too small at price %s", budget.StringFixed(4), price))
	}
	if v := g.checkNotional(price, qty); !v.Allowed {
		return decimal.Zero, decimal.Zero, v
	}
	return price, qty, domain.Allow()
}

// SizeSell rounds the full open position into a sellable (price, qty)
// pair. Exits are all-or-nothing; partial exits are not modeled.
func (g *RiskGate) SizeSell(price, positionQty decimal.Decimal) (decimal.Decimal, decimal.Decimal, domain.Verdict) {
	price = g.TruncPrice(price)
	if !price.IsPositive() {
		return decimal.Zero, decimal.Zero, domain.Reject(domain.GuardZeroSize, "price not positive")
	}
	qty := g.TruncQty(positionQty)
	if !qty.IsPositive() {
		return decimal.Zero, decimal.Zero, domain.Reject(domain.GuardZeroSize,
			fmt.Sprintf("position %s truncates to zero", positionQty))
	}
	if v := g.checkNotional(price, qty); !v.Allowed {
		return decimal.Zero, decimal.Zero, v
	}
	return price, qty, domain.Allow()
}

// checkNotional enforces the exchange's minimum order value after
// rounding. Undersized orders are skipped, never resized upward.
func (g *RiskGate) checkNotional(price, qty decimal.Decimal) domain.Verdict {
	if !g.cfg.MinNotional.IsPositive() {
		return domain.Allow()
	}
	notional := price.Mul(qty)
	if notional.LessThan(g.cfg.MinNotional) {
		return domain.Reject(domain.GuardMinNotional,
			fmt.Sprintf("notional %s below minimum %s", notional.StringFixed(4), g.cfg.MinNotional))
	}
	return domain.Allow()
}

// ClampSellToBalance caps a live SELL at what the account actually
// holds. The exchange's view of the free base balance wins over the
// ledger when they disagree (dust, external withdrawals).
func (g *RiskGate) ClampSellToBalance(qty, freeBase decimal.Decimal) decimal.Decimal {
	if freeBase.LessThan(qty) {
		qty = g.TruncQty(freeBase)
	}
	return qty
}

// ShaveBuyForBalance walks a live BUY quantity down one lot step at a
// time until its notional fits the free quote balance. Returns zero when
// even one step does not fit.
func (g *RiskGate) ShaveBuyForBalance(price, qty, freeQuote decimal.Decimal) decimal.Decimal {
	if !price.IsPositive() || !freeQuote.IsPositive() {
		return decimal.Zero
	}
	step := g.QtyStep()
	for qty.IsPositive() && price.Mul(qty).GreaterThan(freeQuote) {
		qty = qty.Sub(step)
	}
	if qty.IsNegative() {
		return decimal.Zero
	}
	return qty
}
