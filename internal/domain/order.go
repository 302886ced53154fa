package domain

import (
	"github.com/shopspring/decimal"
)

// Side is the order direction.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderType is the execution style requested from the exchange.
type OrderType string

const (
	OrderTypeLimit  OrderType = "LIMIT"
	OrderTypeMarket OrderType = "MARKET"
)

// OrderStatus is the internal lifecycle vocabulary. Exchange statuses are
// mapped onto this set by ParseOrderStatus before they touch the state
// machine.
type OrderStatus string

const (
	StatusNew             OrderStatus = "NEW"
	StatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	StatusFilled          OrderStatus = "FILLED"
	StatusCanceled        OrderStatus = "CANCELED"
	StatusExpired         OrderStatus = "EXPIRED"
	StatusRejected        OrderStatus = "REJECTED"
)

// IsTerminal reports whether no further transition is possible.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case StatusFilled, StatusCanceled, StatusExpired, StatusRejected:
		return true
	}
	return false
}

// CanTransition reports whether moving from s to next is legal.
// NEW and PARTIALLY_FILLED may move forward; terminal states are frozen.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	if s.IsTerminal() {
		return false
	}
	switch next {
	case StatusNew:
		return s == StatusNew
	case StatusPartiallyFilled, StatusFilled, StatusCanceled, StatusExpired, StatusRejected:
		return true
	}
	return false
}

// ParseOrderStatus maps the exchange's status vocabulary onto the internal
// enum. PARTIALLY_CANCELED collapses into CANCELED: whatever executed before
// the cancel is reconciled from the cumulative fill fields, the remainder is
// dead. Unknown strings return false so the caller can log and skip.
func ParseOrderStatus(s string) (OrderStatus, bool) {
	switch s {
	case "NEW":
		return StatusNew, true
	case "PARTIALLY_FILLED":
		return StatusPartiallyFilled, true
	case "FILLED":
		return StatusFilled, true
	case "CANCELED", "PARTIALLY_CANCELED":
		return StatusCanceled, true
	case "EXPIRED":
		return StatusExpired, true
	case "REJECTED":
		return StatusRejected, true
	}
	return "", false
}

// Order is one client-initiated order intent. Rows are never deleted,
// only superseded by status.
type Order struct {
	ID            int64           `json:"id"`
	ClientOrderID string          `json:"client_order_id"` // unique, assigned before any network call
	ExchOrderID   string          `json:"exch_order_id"`   // empty until the exchange accepts
	Symbol        string          `json:"symbol"`
	Side          Side            `json:"side"`
	Type          OrderType       `json:"type"`
	Price         decimal.Decimal `json:"price"` // zero until known (market orders)
	Qty           decimal.Decimal `json:"qty"`
	Status        OrderStatus     `json:"status"`
	CreatedUnixMs int64           `json:"created_unix_ms"`
	UpdatedUnixMs int64           `json:"updated_unix_ms"`
}

// IsOpen checks if the order is still active.
func (o *Order) IsOpen() bool {
	return o.Status == StatusNew || o.Status == StatusPartiallyFilled
}
