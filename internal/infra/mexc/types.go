package mexc

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"trader_go/internal/domain"
)

// REST paths, /api/v3 spot conventions.
const (
	pathTime       = "/api/v3/time"
	pathKlines     = "/api/v3/klines"
	pathAccount    = "/api/v3/account"
	pathOrder      = "/api/v3/order"
	pathOpenOrders = "/api/v3/openOrders"

	apiKeyHeader = "X-MEXC-APIKEY"
)

// Exchange error codes the client reacts to by name.
const (
	codeOrderNotExist = -2013
)

// APIError is a decoded exchange error response. 429, 418 and 5xx are
// retried; every other 4xx is terminal because retrying cannot fix a
// malformed or unauthorized request.
type APIError struct {
	Status int    `json:"-"`
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("mexc: http %d code %d: %s", e.Status, e.Code, e.Msg)
}

// Temporary reports whether the request may succeed on retry.
// 418 is the vendor's "temporarily banned for hammering" status.
func (e *APIError) Temporary() bool {
	return e.Status == 429 || e.Status == 418 || e.Status >= 500
}

func parseAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status}
	if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Msg == "" {
		msg := strings.TrimSpace(string(body))
		if len(msg) > 256 {
			msg = msg[:256]
		}
		apiErr.Msg = msg
	}
	return apiErr
}

// flexNum decodes a JSON number that gateways deliver either as a bare
// number or as a string. Empty and "null" both mean absent.
type flexNum string

func (f *flexNum) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "null" {
		s = ""
	}
	*f = flexNum(s)
	return nil
}

func (f flexNum) decimal() (decimal.Decimal, bool) {
	if f == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(string(f))
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// firstNum returns the first present value from a priority list of field
// name variants. Keeping the list explicit (instead of ad hoc lookups)
// makes the accepted vocabulary auditable in one place.
func firstNum(candidates ...flexNum) decimal.Decimal {
	for _, c := range candidates {
		if d, ok := c.decimal(); ok {
			return d
		}
	}
	return decimal.Zero
}

func firstStr(candidates ...string) string {
	for _, c := range candidates {
		if c != "" {
			return c
		}
	}
	return ""
}

// AssetBalance is one asset row from the account endpoint, normalized.
type AssetBalance struct {
	Asset  string
	Free   decimal.Decimal
	Locked decimal.Decimal
}

// balanceEntry carries every known field-name variant for one balance row.
// Priority per concept: asset > currency > coin; free > available >
// availableBalance > availableAmt; locked > frozen > hold > frozenAmt.
type balanceEntry struct {
	Asset    string `json:"asset"`
	Currency string `json:"currency"`
	Coin     string `json:"coin"`

	Free             flexNum `json:"free"`
	Available        flexNum `json:"available"`
	AvailableBalance flexNum `json:"availableBalance"`
	AvailableAmt     flexNum `json:"availableAmt"`

	Locked    flexNum `json:"locked"`
	Frozen    flexNum `json:"frozen"`
	Hold      flexNum `json:"hold"`
	FrozenAmt flexNum `json:"frozenAmt"`
}

func (b *balanceEntry) normalize() (AssetBalance, bool) {
	asset := strings.ToUpper(firstStr(b.Asset, b.Currency, b.Coin))
	if asset == "" {
		return AssetBalance{}, false
	}
	return AssetBalance{
		Asset:  asset,
		Free:   firstNum(b.Free, b.Available, b.AvailableBalance, b.AvailableAmt),
		Locked: firstNum(b.Locked, b.Frozen, b.Hold, b.FrozenAmt),
	}, true
}

// parseBalances accepts the account payload shapes seen across gateway
// versions: {"balances":[...]}, {"data":{"balances":[...]}}, {"data":[...]}
// and {"coins":[...]}, tried in that order.
func parseBalances(body []byte) ([]AssetBalance, error) {
	var top struct {
		Balances []balanceEntry  `json:"balances"`
		Coins    []balanceEntry  `json:"coins"`
		Data     json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &top); err != nil {
		return nil, fmt.Errorf("account payload: %w", err)
	}

	entries := top.Balances
	if entries == nil && len(top.Data) > 0 {
		var nested struct {
			Balances []balanceEntry `json:"balances"`
		}
		if err := json.Unmarshal(top.Data, &nested); err == nil && nested.Balances != nil {
			entries = nested.Balances
		} else {
			var list []balanceEntry
			if err := json.Unmarshal(top.Data, &list); err == nil {
				entries = list
			}
		}
	}
	if entries == nil {
		entries = top.Coins
	}

	out := make([]AssetBalance, 0, len(entries))
	for i := range entries {
		if ab, ok := entries[i].normalize(); ok {
			out = append(out, ab)
		}
	}
	return out, nil
}

// PlaceOrderRequest is the outgoing order shape. Price and Qty arrive
// pre-rounded from the risk gate; they are sent verbatim.
type PlaceOrderRequest struct {
	Symbol        string
	Side          domain.Side
	Type          domain.OrderType
	Qty           decimal.Decimal
	Price         decimal.Decimal // ignored for MARKET
	TimeInForce   string          // default GTC
	ClientOrderID string
}

// OrderAck is the server acknowledgement of a placement.
type OrderAck struct {
	OrderID       string
	ClientOrderID string
	TransactMS    int64
}

type orderAckWire struct {
	OrderID       json.Number `json:"orderId"`
	ClientOrderID string      `json:"clientOrderId"`
	OrigClientID  string      `json:"origClientOrderId"`
	TransactTime  int64       `json:"transactTime"`
	Data          *struct {
		OrderID       json.Number `json:"orderId"`
		ClientOrderID string      `json:"clientOrderId"`
	} `json:"data"`
}

func parseOrderAck(body []byte) (OrderAck, error) {
	var w orderAckWire
	if err := json.Unmarshal(body, &w); err != nil {
		return OrderAck{}, fmt.Errorf("order ack payload: %w", err)
	}
	ack := OrderAck{
		OrderID:       w.OrderID.String(),
		ClientOrderID: firstStr(w.ClientOrderID, w.OrigClientID),
		TransactMS:    w.TransactTime,
	}
	if ack.OrderID == "" && w.Data != nil {
		ack.OrderID = w.Data.OrderID.String()
		ack.ClientOrderID = firstStr(ack.ClientOrderID, w.Data.ClientOrderID)
	}
	if ack.OrderID == "" {
		return OrderAck{}, fmt.Errorf("order ack payload: no orderId in %q", truncate(body, 128))
	}
	return ack, nil
}

// OrderStatus is the reconciliation view of one exchange order.
type OrderStatus struct {
	Symbol        string
	OrderID       string
	ClientOrderID string
	Status        string // exchange vocabulary, mapped by domain.ParseOrderStatus
	Price         decimal.Decimal
	ExecutedQty   decimal.Decimal
	CumQuoteQty   decimal.Decimal
	UpdateMS      int64
}

// AvgFillPrice derives the volume-weighted fill price from cumulative
// quote over executed quantity; when either is missing it falls back to
// the reported limit price.
func (o *OrderStatus) AvgFillPrice() decimal.Decimal {
	if o.ExecutedQty.IsPositive() && o.CumQuoteQty.IsPositive() {
		return o.CumQuoteQty.Div(o.ExecutedQty)
	}
	return o.Price
}

// orderStatusWire tolerates the status/executed field variants:
// status > state; executedQty > executed_qty; cummulativeQuoteQty (the
// exchange's historic double-m spelling) > cumulativeQuoteQty > cum_quote.
type orderStatusWire struct {
	Symbol        string      `json:"symbol"`
	OrderID       json.Number `json:"orderId"`
	ClientOrderID string      `json:"clientOrderId"`
	OrigClientID  string      `json:"origClientOrderId"`

	Status string `json:"status"`
	State  string `json:"state"`

	Price flexNum `json:"price"`

	ExecutedQty  flexNum `json:"executedQty"`
	ExecutedQty2 flexNum `json:"executed_qty"`

	CumQuoteQty  flexNum `json:"cummulativeQuoteQty"`
	CumQuoteQty2 flexNum `json:"cumulativeQuoteQty"`
	CumQuoteQty3 flexNum `json:"cum_quote"`

	UpdateTime int64 `json:"updateTime"`
	Time       int64 `json:"time"`
}

func (w *orderStatusWire) normalize() OrderStatus {
	price, _ := w.Price.decimal()
	ts := w.UpdateTime
	if ts == 0 {
		ts = w.Time
	}
	return OrderStatus{
		Symbol:        w.Symbol,
		OrderID:       w.OrderID.String(),
		ClientOrderID: firstStr(w.ClientOrderID, w.OrigClientID),
		Status:        strings.ToUpper(firstStr(w.Status, w.State)),
		Price:         price,
		ExecutedQty:   firstNum(w.ExecutedQty, w.ExecutedQty2),
		CumQuoteQty:   firstNum(w.CumQuoteQty, w.CumQuoteQty2, w.CumQuoteQty3),
		UpdateMS:      ts,
	}
}

// parseOrderStatus accepts a flat order object or one nested under "data".
func parseOrderStatus(body []byte) (OrderStatus, error) {
	var w orderStatusWire
	if err := json.Unmarshal(body, &w); err != nil {
		return OrderStatus{}, fmt.Errorf("order status payload: %w", err)
	}
	if w.Status == "" && w.State == "" {
		var nested struct {
			Data *orderStatusWire `json:"data"`
		}
		if err := json.Unmarshal(body, &nested); err == nil && nested.Data != nil {
			w = *nested.Data
		}
	}
	st := w.normalize()
	if st.Status == "" {
		return OrderStatus{}, fmt.Errorf("order status payload: no status in %q", truncate(body, 128))
	}
	return st, nil
}

func parseOpenOrders(body []byte) ([]OrderStatus, error) {
	var list []orderStatusWire
	if err := json.Unmarshal(body, &list); err != nil {
		var nested struct {
			Data []orderStatusWire `json:"data"`
		}
		if err2 := json.Unmarshal(body, &nested); err2 != nil {
			return nil, fmt.Errorf("open orders payload: %w", err)
		}
		list = nested.Data
	}
	out := make([]OrderStatus, 0, len(list))
	for i := range list {
		out = append(out, list[i].normalize())
	}
	return out, nil
}

// parseKlines decodes the array-of-arrays kline shape:
// [openTime, open, high, low, close, volume, closeTime, ...] with OHLCV
// as strings or numbers depending on gateway version.
func parseKlines(symbol string, body []byte) ([]domain.Candle, error) {
	var rows [][]json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("klines payload: %w", err)
	}

	candles := make([]domain.Candle, 0, len(rows))
	for _, row := range rows {
		if len(row) < 6 {
			continue
		}
		openMS, ok := cellInt(row[0])
		if !ok {
			continue
		}
		c := domain.Candle{
			Symbol:     symbol,
			OpenUnixMs: openMS,
			Open:       cellFloat(row[1]),
			High:       cellFloat(row[2]),
			Low:        cellFloat(row[3]),
			Close:      cellFloat(row[4]),
			Volume:     cellFloat(row[5]),
		}
		candles = append(candles, c)
	}
	return candles, nil
}

func cellInt(raw json.RawMessage) (int64, bool) {
	var n int64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		var f flexNum = flexNum(s)
		if d, ok := f.decimal(); ok {
			return d.IntPart(), true
		}
	}
	return 0, false
}

func cellFloat(raw json.RawMessage) float64 {
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if d, err2 := decimal.NewFromString(s); err2 == nil {
			v, _ := d.Float64()
			return v
		}
	}
	return 0
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
