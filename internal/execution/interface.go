package execution

import (
	"context"

	"trader_go/internal/domain"
	"trader_go/internal/infra/mexc"
)

// Executor submits orders and persists their initial lifecycle state.
// Paper and live implementations differ in ordering: paper persists then
// fills synthetically, live sends first and persists only what the
// exchange acknowledged (or, on an indeterminate fault, the client id
// the reconciler needs to resolve it).
type Executor interface {
	Submit(ctx context.Context, req OrderRequest) (domain.Order, error)
	Mode() string
}

// OrderPlacer is the slice of the exchange client used at submission.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, req mexc.PlaceOrderRequest) (mexc.OrderAck, error)
}

// StatusQuerier is the slice of the exchange client used by the
// reconciler to resolve open orders by client id.
type StatusQuerier interface {
	QueryOrder(ctx context.Context, symbol, clientOrderID string) (mexc.OrderStatus, error)
}
