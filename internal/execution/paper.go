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
	"trader_go/internal/storage"
)

// ErrInsufficientBalance marks a paper order rejected because the
// virtual account cannot cover it.
var ErrInsufficientBalance = errors.New("insufficient balance")

// PaperExecutor simulates order execution against virtual balances.
// Ordering is persist-then-fill: the NEW row is written before the
// synthetic fill so the ledger never holds a trade without its order.
type PaperExecutor struct {
	store  *storage.Store
	book   *domain.BalanceBook
	risk   *engine.RiskBook
	feeBps int64
	nowMS  func() int64
}

func NewPaperExecutor(store *storage.Store, book *domain.BalanceBook, risk *engine.RiskBook, feeBps int64) *PaperExecutor {
	return &PaperExecutor{
		store:  store,
		book:   book,
		risk:   risk,
		feeBps: feeBps,
		nowMS:  func() int64 { return time.Now().UnixMilli() },
	}
}

func (p *PaperExecutor) Mode() string { return "paper" }

// SetClock overrides the executor's time source. The backtest replayer
// pins it to candle time so replayed fills carry historical timestamps.
func (p *PaperExecutor) SetClock(nowMS func() int64) {
	p.nowMS = nowMS
}

// Submit fills the order immediately at the requested price. A shortfall
// in the virtual account rejects the order the way a venue would: the
// row ends REJECTED and no trade is recorded.
func (p *PaperExecutor) Submit(ctx context.Context, req OrderRequest) (domain.Order, error) {
	if !req.Price.IsPositive() || !req.Qty.IsPositive() {
		return domain.Order{}, fmt.Errorf("paper submit %s: price %s qty %s must be positive",
			req.Symbol, req.Price, req.Qty)
	}

	now := p.nowMS()
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
	if err := p.store.InsertOrder(ctx, &order); err != nil {
		return domain.Order{}, fmt.Errorf("paper submit %s: %w", req.Symbol, err)
	}
	infra.IncOrderPlaced(p.Mode(), req.Symbol, string(req.Side))

	notional := req.Price.Mul(req.Qty)
	fee := notional.Mul(decimal.NewFromInt(p.feeBps)).Div(decimal.NewFromInt(10000))
	if err := p.settle(req, notional, fee); err != nil {
		if uerr := p.store.SetOrderStatus(ctx, order.ClientOrderID, domain.StatusRejected, decimal.Zero, p.nowMS()); uerr != nil {
			slog.Error("paper reject not persisted", "client_id", order.ClientOrderID, "error", uerr)
		}
		order.Status = domain.StatusRejected
		return order, err
	}

	bookRealizedLoss(ctx, p.store, p.risk, req.Symbol, req.Side, req.Price, req.Qty)

	trade := domain.Trade{
		Symbol:        req.Symbol,
		Side:          req.Side,
		Price:         req.Price,
		Qty:           req.Qty,
		FeeAsset:      req.QuoteAsset,
		FeeAmt:        fee,
		OrderClientID: order.ClientOrderID,
		TsUnixMs:      now,
	}
	if err := p.store.InsertTrade(ctx, &trade); err != nil {
		return order, fmt.Errorf("paper fill %s: %w", order.ClientOrderID, err)
	}
	infra.IncTradeRecorded(req.Symbol, string(req.Side))

	if err := p.store.SetOrderStatus(ctx, order.ClientOrderID, domain.StatusFilled, req.Price, p.nowMS()); err != nil {
		return order, fmt.Errorf("paper fill %s: %w", order.ClientOrderID, err)
	}
	order.Status = domain.StatusFilled
	order.UpdatedUnixMs = p.nowMS()

	slog.Info("📝 PAPER EXECUTION: Order Filled",
		slog.String("symbol", req.Symbol),
		slog.String("side", string(req.Side)),
		slog.String("price", req.Price.String()),
		slog.String("qty", req.Qty.String()),
		slog.String("fee", fee.String()),
		slog.String("client_id", order.ClientOrderID),
	)
	return order, nil
}

// settle moves virtual funds for one fill. Fees are charged in the quote
// asset on both sides. The shortfall check runs under the book lock so
// workers sharing a quote asset cannot double-spend it.
func (p *PaperExecutor) settle(req OrderRequest, notional, fee decimal.Decimal) error {
	switch req.Side {
	case domain.SideBuy:
		need := notional.Add(fee)
		var short decimal.Decimal
		p.book.Update(req.QuoteAsset, func(b *domain.Balance) {
			if b.Available().LessThan(need) {
				short = need.Sub(b.Available())
				return
			}
			b.Debit(need)
		})
		if short.IsPositive() {
			return fmt.Errorf("%w: %s short by %s", ErrInsufficientBalance, req.QuoteAsset, short)
		}
		p.book.Update(req.BaseAsset, func(b *domain.Balance) { b.Credit(req.Qty) })
	case domain.SideSell:
		var short decimal.Decimal
		p.book.Update(req.BaseAsset, func(b *domain.Balance) {
			if b.Available().LessThan(req.Qty) {
				short = req.Qty.Sub(b.Available())
				return
			}
			b.Debit(req.Qty)
		})
		if short.IsPositive() {
			return fmt.Errorf("%w: %s short by %s", ErrInsufficientBalance, req.BaseAsset, short)
		}
		proceeds := notional.Sub(fee)
		if proceeds.IsNegative() {
			proceeds = decimal.Zero
		}
		p.book.Update(req.QuoteAsset, func(b *domain.Balance) { b.Credit(proceeds) })
	default:
		return fmt.Errorf("paper settle: unknown side %q", req.Side)
	}
	return nil
}
