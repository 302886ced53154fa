package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"trader_go/internal/domain"
	"trader_go/internal/infra"
	"trader_go/internal/infra/mexc"
	"trader_go/internal/storage"
)

// LiveExecutor sends real orders to the exchange. Ordering is
// send-then-persist: the NEW row carries the server-acknowledged order
// id, except after an indeterminate fault, where the row holds only the
// client id and the reconciler resolves the outcome. Nothing is ever
// re-sent on a fault.
type LiveExecutor struct {
	placer OrderPlacer
	store  *storage.Store
	nowMS  func() int64
}

func NewLiveExecutor(placer OrderPlacer, store *storage.Store) *LiveExecutor {
	return &LiveExecutor{
		placer: placer,
		store:  store,
		nowMS:  func() int64 { return time.Now().UnixMilli() },
	}
}

func (l *LiveExecutor) Mode() string { return "live" }

func (l *LiveExecutor) Submit(ctx context.Context, req OrderRequest) (domain.Order, error) {
	if !req.Qty.IsPositive() {
		return domain.Order{}, fmt.Errorf("live submit %s: qty %s must be positive", req.Symbol, req.Qty)
	}
	if req.Type == domain.OrderTypeLimit && !req.Price.IsPositive() {
		return domain.Order{}, fmt.Errorf("live submit %s: limit price %s must be positive", req.Symbol, req.Price)
	}

	now := l.nowMS()
	order := domain.Order{
		ClientOrderID: NewClientOrderID(req.Symbol, now),
		Symbol:        req.Symbol,
		Side:          req.Side,
		Type:          req.Type,
		Price:         req.Price,
		Qty:           req.Qty,
		Status:        domain.StatusNew,
		CreatedUnixMs: now,
		UpdatedUnixMs: now,
	}

	ack, err := l.placer.PlaceOrder(ctx, mexc.PlaceOrderRequest{
		Symbol:        req.Symbol,
		Side:          req.Side,
		Type:          req.Type,
		Qty:           req.Qty,
		Price:         req.Price,
		ClientOrderID: order.ClientOrderID,
	})
	switch {
	case err == nil:
		order.ExchOrderID = ack.OrderID
		if ierr := l.store.InsertOrder(ctx, &order); ierr != nil {
			return order, fmt.Errorf("live submit %s acked but not persisted: %w", order.ClientOrderID, ierr)
		}
		infra.IncOrderPlaced(l.Mode(), req.Symbol, string(req.Side))
		slog.Info("🚀 LIVE EXECUTION: Order Sent",
			slog.String("symbol", req.Symbol),
			slog.String("side", string(req.Side)),
			slog.String("price", req.Price.String()),
			slog.String("qty", req.Qty.String()),
			slog.String("client_id", order.ClientOrderID),
			slog.String("exch_id", order.ExchOrderID),
		)
		return order, nil

	case errors.Is(err, mexc.ErrNotConfirmed):
		// Unknown outcome. The order may exist on the venue, so the row
		// is written with the client id only and left to reconciliation.
		if ierr := l.store.InsertOrder(ctx, &order); ierr != nil {
			slog.Error("unconfirmed order row not persisted, venue state orphaned",
				"client_id", order.ClientOrderID, "error", ierr)
			return order, errors.Join(err, ierr)
		}
		infra.IncOrderPlaced(l.Mode(), req.Symbol, string(req.Side))
		slog.Warn("⏳ LIVE EXECUTION: outcome unknown, awaiting reconciliation",
			slog.String("symbol", req.Symbol),
			slog.String("client_id", order.ClientOrderID),
			slog.String("error", err.Error()),
		)
		return order, err

	default:
		// Definitive venue reject. The order never existed; no row.
		slog.Error("❌ LIVE EXECUTION: Order Rejected",
			slog.String("symbol", req.Symbol),
			slog.String("side", string(req.Side)),
			slog.String("error", err.Error()),
		)
		return domain.Order{}, fmt.Errorf("live submit %s: %w", req.Symbol, err)
	}
}
