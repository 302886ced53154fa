package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Trade is one executed fill, paper or aggregated-live. Immutable once
// written; exactly one row is ever emitted per order.
type Trade struct {
	ID            int64           `json:"id"`
	Symbol        string          `json:"symbol"`
	Side          Side            `json:"side"`
	Price         decimal.Decimal `json:"price"`
	Qty           decimal.Decimal `json:"qty"`
	FeeAsset      string          `json:"fee_asset,omitempty"`
	FeeAmt        decimal.Decimal `json:"fee_amt"`
	OrderClientID string          `json:"order_client_id"`
	TsUnixMs      int64           `json:"ts_unix_ms"`
}

// Validate enforces the fill invariants before persistence.
func (t *Trade) Validate() error {
	if !t.Qty.IsPositive() {
		return fmt.Errorf("trade %s/%s: qty %s must be positive", t.Symbol, t.OrderClientID, t.Qty)
	}
	if !t.Price.IsPositive() {
		return fmt.Errorf("trade %s/%s: price %s must be positive", t.Symbol, t.OrderClientID, t.Price)
	}
	if t.FeeAmt.IsNegative() {
		return fmt.Errorf("trade %s/%s: fee %s must not be negative", t.Symbol, t.OrderClientID, t.FeeAmt)
	}
	return nil
}

// Notional returns price*qty in the quote asset.
func (t *Trade) Notional() decimal.Decimal {
	return t.Price.Mul(t.Qty)
}
