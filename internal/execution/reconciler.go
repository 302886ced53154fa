package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"trader_go/internal/domain"
	"trader_go/internal/engine"
	"trader_go/internal/infra"
	"trader_go/internal/infra/mexc"
	"trader_go/internal/storage"
)

const (
	// minReconcileInterval floors the poll cadence. Anything faster
	// burns the order-endpoint rate budget for no information gain.
	minReconcileInterval = 5 * time.Second

	// defaultUnconfirmedTTL bounds how long an order with no exchange id
	// may stay NEW before it is expired locally. Within the window a
	// venue miss is treated as propagation lag.
	defaultUnconfirmedTTL = 5 * time.Minute
)

// Reconciler drives every open order to a terminal state by polling the
// exchange by client id. It is the only component allowed to resolve an
// unconfirmed placement; nothing is ever re-sent.
type Reconciler struct {
	store    *storage.Store
	querier  StatusQuerier
	risk     *engine.RiskBook
	interval time.Duration
	ttl      time.Duration
	nowMS    func() int64
}

func NewReconciler(store *storage.Store, querier StatusQuerier, risk *engine.RiskBook, interval time.Duration) *Reconciler {
	if interval < minReconcileInterval {
		interval = minReconcileInterval
	}
	return &Reconciler{
		store:    store,
		querier:  querier,
		risk:     risk,
		interval: interval,
		ttl:      defaultUnconfirmedTTL,
		nowMS:    func() int64 { return time.Now().UnixMilli() },
	}
}

// Run polls until the context is cancelled. The first pass happens
// immediately so a restart resolves leftover orders without waiting a
// full interval.
func (r *Reconciler) Run(ctx context.Context) {
	slog.Info("🔄 reconciler started", "interval", r.interval)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		if err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
			slog.Error("reconcile pass failed", "error", err)
		}
		select {
		case <-ctx.Done():
			slog.Info("reconciler stopped")
			return
		case <-ticker.C:
		}
	}
}

// RunOnce reconciles every open order. A failure on one order is logged
// and counted, never allowed to starve the rest of the batch.
func (r *Reconciler) RunOnce(ctx context.Context) error {
	open, err := r.store.OpenOrders(ctx)
	if err != nil {
		return fmt.Errorf("load open orders: %w", err)
	}
	infra.SetOpenOrders(len(open))
	for i := range open {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := r.reconcileOne(ctx, &open[i]); err != nil {
			infra.IncReconcileError()
			slog.Error("order reconciliation failed",
				"client_id", open[i].ClientOrderID,
				"symbol", open[i].Symbol,
				"error", err)
		}
	}
	return nil
}

func (r *Reconciler) reconcileOne(ctx context.Context, o *domain.Order) error {
	st, err := r.querier.QueryOrder(ctx, o.Symbol, o.ClientOrderID)
	if errors.Is(err, mexc.ErrOrderNotFound) {
		return r.resolveMissing(ctx, o)
	}
	if err != nil {
		return err
	}

	next, ok := domain.ParseOrderStatus(st.Status)
	if !ok {
		slog.Warn("unknown exchange order status",
			"client_id", o.ClientOrderID, "status", st.Status)
		return nil
	}

	if o.ExchOrderID == "" && st.OrderID != "" {
		if err := r.store.SetOrderExchangeID(ctx, o.ClientOrderID, st.OrderID, r.nowMS()); err != nil {
			return err
		}
	}

	if next == o.Status && next != domain.StatusPartiallyFilled {
		return nil
	}
	if !o.Status.CanTransition(next) {
		slog.Warn("illegal order transition ignored",
			"client_id", o.ClientOrderID, "from", o.Status, "to", next)
		return nil
	}

	avg := st.AvgFillPrice()
	switch next {
	case domain.StatusFilled:
		// Trade before status: if the status write dies the next pass
		// retries it, and the trade dedup keeps the ledger single-entry.
		if err := r.recordFill(ctx, o, &st, avg); err != nil {
			return err
		}
		return r.store.SetOrderStatus(ctx, o.ClientOrderID, next, avg, r.nowMS())
	case domain.StatusPartiallyFilled:
		// Fills accumulate on the venue; only price and status move
		// here. The aggregated trade is written once, at FILLED.
		return r.store.SetOrderStatus(ctx, o.ClientOrderID, next, avg, r.nowMS())
	default:
		// CANCELED, EXPIRED, REJECTED: terminal, no trade.
		return r.store.SetOrderStatus(ctx, o.ClientOrderID, next, decimal.Zero, r.nowMS())
	}
}

// recordFill writes the single aggregated trade for a filled order.
// Re-running it is safe: the per-order dedup makes the second pass a
// no-op.
func (r *Reconciler) recordFill(ctx context.Context, o *domain.Order, st *mexc.OrderStatus, avg decimal.Decimal) error {
	if !st.ExecutedQty.IsPositive() {
		slog.Warn("filled order reports no executed quantity, trade skipped",
			"client_id", o.ClientOrderID)
		return nil
	}
	have, err := r.store.HasTradeForOrder(ctx, o.ClientOrderID)
	if err != nil {
		return err
	}
	if have {
		return nil
	}

	price := avg
	if !price.IsPositive() {
		price = o.Price
	}
	if !price.IsPositive() {
		// No usable price yet; keep the order open and retry next pass.
		return fmt.Errorf("filled order %s has no usable price", o.ClientOrderID)
	}
	bookRealizedLoss(ctx, r.store, r.risk, o.Symbol, o.Side, price, st.ExecutedQty)

	ts := st.UpdateMS
	if ts <= 0 {
		ts = r.nowMS()
	}
	trade := domain.Trade{
		Symbol:        o.Symbol,
		Side:          o.Side,
		Price:         price,
		Qty:           st.ExecutedQty,
		OrderClientID: o.ClientOrderID,
		TsUnixMs:      ts,
	}
	if err := r.store.InsertTrade(ctx, &trade); err != nil {
		return err
	}
	infra.IncTradeRecorded(o.Symbol, string(o.Side))
	slog.Info("✅ order filled",
		slog.String("symbol", o.Symbol),
		slog.String("side", string(o.Side)),
		slog.String("price", price.String()),
		slog.String("qty", st.ExecutedQty.String()),
		slog.String("client_id", o.ClientOrderID),
	)
	return nil
}

// resolveMissing handles venue-unknown orders. An acked order briefly
// missing is propagation lag and is left alone. An unconfirmed one older
// than the TTL never reached the venue and is expired locally.
func (r *Reconciler) resolveMissing(ctx context.Context, o *domain.Order) error {
	if o.ExchOrderID != "" {
		slog.Warn("acked order missing on venue",
			"client_id", o.ClientOrderID, "exch_id", o.ExchOrderID)
		return nil
	}
	age := time.Duration(r.nowMS()-o.CreatedUnixMs) * time.Millisecond
	if age < r.ttl {
		return nil
	}
	slog.Warn("unconfirmed order expired locally",
		"client_id", o.ClientOrderID, "age", age.Round(time.Second))
	return r.store.SetOrderStatus(ctx, o.ClientOrderID, domain.StatusExpired, decimal.Zero, r.nowMS())
}
