package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// SymbolSpec carries the per-symbol exchange constraints the engine must
// respect when rounding and submitting orders.
type SymbolSpec struct {
	Symbol        string          `json:"symbol"`         // e.g. "BTCUSDT"
	BaseAsset     string          `json:"base_asset"`     // e.g. "BTC"
	QuoteAsset    string          `json:"quote_asset"`    // e.g. "USDT"
	PriceDecimals int32           `json:"price_decimals"` // truncate, never round up
	QtyDecimals   int32           `json:"qty_decimals"`
	MinNotional   decimal.Decimal `json:"min_notional"`
	KlineInterval string          `json:"kline_interval"` // e.g. "1m"
}

// Validate rejects specs the exchange would refuse anyway.
func (s *SymbolSpec) Validate() error {
	if s.Symbol == "" {
		return fmt.Errorf("symbol spec: empty symbol")
	}
	if s.BaseAsset == "" || s.QuoteAsset == "" {
		return fmt.Errorf("symbol spec %s: base and quote assets required", s.Symbol)
	}
	if !strings.HasSuffix(s.Symbol, s.QuoteAsset) {
		return fmt.Errorf("symbol spec %s: symbol must end with quote asset %s", s.Symbol, s.QuoteAsset)
	}
	if s.PriceDecimals < 0 || s.QtyDecimals < 0 {
		return fmt.Errorf("symbol spec %s: negative decimals", s.Symbol)
	}
	if s.MinNotional.IsNegative() {
		return fmt.Errorf("symbol spec %s: negative min notional", s.Symbol)
	}
	if s.KlineInterval == "" {
		return fmt.Errorf("symbol spec %s: empty kline interval", s.Symbol)
	}
	return nil
}

// QtyStep is the smallest quantity increment, 10^-QtyDecimals.
func (s *SymbolSpec) QtyStep() decimal.Decimal {
	return decimal.New(1, -s.QtyDecimals)
}
