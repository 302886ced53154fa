// Package execution owns the order lifecycle: submission in paper or
// live mode, the client-id idempotency scheme, and the reconciliation
// poller that drives every order to a terminal state.
package execution

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"trader_go/internal/domain"
	"trader_go/internal/engine"
	"trader_go/internal/storage"
)

// clientIDPrefix marks orders created by this engine. Everything else in
// the account is ignored by reconciliation.
const clientIDPrefix = "bot"

// OrderRequest is one sized, guard-approved order ready for submission.
// Price and Qty arrive already truncated by the risk gate.
type OrderRequest struct {
	Symbol     string
	BaseAsset  string
	QuoteAsset string
	Side       domain.Side
	Type       domain.OrderType
	Price      decimal.Decimal
	Qty        decimal.Decimal
}

// NewClientOrderID builds the idempotency key assigned before any
// network call: <prefix>_<symbol>_<unix-ms>_<uuid8>. The uuid suffix
// removes the same-millisecond collision a bare timestamp would allow.
func NewClientOrderID(symbol string, nowMS int64) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s_%s_%d_%s", clientIDPrefix, symbol, nowMS, suffix)
}

// bookRealizedLoss charges a losing sell against the symbol's daily loss
// budget. The ledger is read before the new fill lands so the average
// entry still reflects the position being closed. Gains do not offset
// the loss counter.
func bookRealizedLoss(ctx context.Context, store *storage.Store, risk *engine.RiskBook, symbol string, side domain.Side, price, qty decimal.Decimal) {
	if risk == nil || side != domain.SideSell {
		return
	}
	trades, err := store.TradesBySymbol(ctx, symbol)
	if err != nil {
		slog.Error("realized pnl lookup failed", "symbol", symbol, "error", err)
		return
	}
	pos := domain.BuildPosition(symbol, trades)
	if !pos.IsOpen() {
		return
	}
	pnl := price.Sub(pos.AvgEntry).Mul(decimal.Min(qty, pos.Qty))
	if pnl.IsNegative() {
		risk.RecordLoss(symbol, pnl.Neg())
	}
}
