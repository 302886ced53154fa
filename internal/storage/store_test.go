package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"trader_go/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "engine.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestStore_OrderLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	order := &domain.Order{
		ClientOrderID: "bot_BTCUSDT_1700000000000_abc12345",
		Symbol:        "BTCUSDT",
		Side:          domain.SideBuy,
		Type:          domain.OrderTypeLimit,
		Price:         dec("100.25"),
		Qty:           dec("0.5"),
		Status:        domain.StatusNew,
		CreatedUnixMs: 1700000000000,
		UpdatedUnixMs: 1700000000000,
	}
	if err := store.InsertOrder(ctx, order); err != nil {
		t.Fatalf("InsertOrder: %v", err)
	}
	if order.ID == 0 {
		t.Error("row id not filled in")
	}

	if err := store.SetOrderExchangeID(ctx, order.ClientOrderID, "987654", 1700000001000); err != nil {
		t.Fatalf("SetOrderExchangeID: %v", err)
	}
	if err := store.SetOrderStatus(ctx, order.ClientOrderID, domain.StatusFilled, dec("100.5"), 1700000002000); err != nil {
		t.Fatalf("SetOrderStatus: %v", err)
	}

	got, ok, err := store.OrderByClientID(ctx, order.ClientOrderID)
	if err != nil || !ok {
		t.Fatalf("OrderByClientID: ok=%v err=%v", ok, err)
	}
	if got.Status != domain.StatusFilled {
		t.Errorf("status = %s, want FILLED", got.Status)
	}
	if got.ExchOrderID != "987654" {
		t.Errorf("exchOrderID = %s", got.ExchOrderID)
	}
	if !got.Price.Equal(dec("100.5")) {
		t.Errorf("price = %s, want avg fill price 100.5", got.Price)
	}
	if got.UpdatedUnixMs != 1700000002000 {
		t.Errorf("updatedMs = %d", got.UpdatedUnixMs)
	}
}

func TestStore_DuplicateClientIDRejected(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := domain.Order{
		ClientOrderID: "bot_dup",
		Symbol:        "BTCUSDT",
		Side:          domain.SideBuy,
		Type:          domain.OrderTypeMarket,
		Qty:           dec("1"),
		Status:        domain.StatusNew,
	}

	first := base
	if err := store.InsertOrder(ctx, &first); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	second := base
	if err := store.InsertOrder(ctx, &second); err == nil {
		t.Fatal("duplicate client order id must be rejected")
	}
}

func TestStore_SetOrderStatusKeepsPriceWhenZero(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	order := &domain.Order{
		ClientOrderID: "bot_keep_price",
		Symbol:        "BTCUSDT",
		Side:          domain.SideBuy,
		Type:          domain.OrderTypeLimit,
		Price:         dec("99.9"),
		Qty:           dec("1"),
		Status:        domain.StatusNew,
	}
	if err := store.InsertOrder(ctx, order); err != nil {
		t.Fatal(err)
	}

	// Canceled with nothing executed: no fill price to record.
	if err := store.SetOrderStatus(ctx, order.ClientOrderID, domain.StatusCanceled, decimal.Zero, 2); err != nil {
		t.Fatal(err)
	}

	got, _, _ := store.OrderByClientID(ctx, order.ClientOrderID)
	if got.Status != domain.StatusCanceled {
		t.Errorf("status = %s", got.Status)
	}
	if !got.Price.Equal(dec("99.9")) {
		t.Errorf("price = %s, zero update must keep the limit price", got.Price)
	}
}

func TestStore_OpenOrders(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i, st := range []domain.OrderStatus{
		domain.StatusNew,
		domain.StatusPartiallyFilled,
		domain.StatusFilled,
		domain.StatusCanceled,
	} {
		o := &domain.Order{
			ClientOrderID: "bot_open_" + string(st),
			Symbol:        "BTCUSDT",
			Side:          domain.SideBuy,
			Type:          domain.OrderTypeLimit,
			Price:         dec("1"),
			Qty:           dec("1"),
			Status:        st,
			CreatedUnixMs: int64(i + 1),
		}
		if err := store.InsertOrder(ctx, o); err != nil {
			t.Fatal(err)
		}
	}

	open, err := store.OpenOrders(ctx)
	if err != nil {
		t.Fatalf("OpenOrders: %v", err)
	}
	if len(open) != 2 {
		t.Fatalf("open orders = %d, want 2", len(open))
	}
	if open[0].Status != domain.StatusNew || open[1].Status != domain.StatusPartiallyFilled {
		t.Errorf("unexpected order or status: %+v", open)
	}
}

func TestStore_TradesRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	trades := []domain.Trade{
		{Symbol: "BTCUSDT", Side: domain.SideBuy, Price: dec("100.00000001"), Qty: dec("0.00000001"), OrderClientID: "bot_t1", TsUnixMs: 1000},
		{Symbol: "BTCUSDT", Side: domain.SideSell, Price: dec("101"), Qty: dec("0.5"), FeeAsset: "USDT", FeeAmt: dec("0.05"), OrderClientID: "bot_t2", TsUnixMs: 2000},
		{Symbol: "ETHUSDT", Side: domain.SideBuy, Price: dec("10"), Qty: dec("1"), OrderClientID: "bot_t3", TsUnixMs: 1500},
	}
	for i := range trades {
		if err := store.InsertTrade(ctx, &trades[i]); err != nil {
			t.Fatalf("InsertTrade %d: %v", i, err)
		}
	}

	got, err := store.TradesBySymbol(ctx, "BTCUSDT")
	if err != nil {
		t.Fatalf("TradesBySymbol: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("trades = %d, want 2 (other symbols excluded)", len(got))
	}
	if !got[0].Price.Equal(dec("100.00000001")) {
		t.Errorf("price precision lost: %s", got[0].Price)
	}
	if got[1].FeeAsset != "USDT" || !got[1].FeeAmt.Equal(dec("0.05")) {
		t.Errorf("fee fields lost: %+v", got[1])
	}

	has, err := store.HasTradeForOrder(ctx, "bot_t1")
	if err != nil || !has {
		t.Errorf("HasTradeForOrder(bot_t1) = %v, %v", has, err)
	}
	has, err = store.HasTradeForOrder(ctx, "bot_never")
	if err != nil || has {
		t.Errorf("HasTradeForOrder(bot_never) = %v, %v", has, err)
	}
}

func TestStore_InsertTradeValidates(t *testing.T) {
	store := newTestStore(t)

	bad := domain.Trade{Symbol: "BTCUSDT", Side: domain.SideBuy, Price: dec("100"), Qty: decimal.Zero, OrderClientID: "bot_bad"}
	if err := store.InsertTrade(context.Background(), &bad); err == nil {
		t.Fatal("zero-quantity trade must be rejected")
	}
}

func TestStore_Balances(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rows := []domain.BalanceSnapshot{
		{Asset: "USDT", Free: dec("1000"), Locked: dec("0"), TsUnixMs: 1000},
		{Asset: "USDT", Free: dec("900.5"), Locked: dec("50"), TsUnixMs: 2000},
		{Asset: "BTC", Free: dec("0.1"), Locked: dec("0"), TsUnixMs: 1500},
	}
	for _, b := range rows {
		if err := store.InsertBalanceSnapshot(ctx, b); err != nil {
			t.Fatalf("InsertBalanceSnapshot: %v", err)
		}
	}

	got, ok, err := store.LatestBalance(ctx, "USDT")
	if err != nil || !ok {
		t.Fatalf("LatestBalance: ok=%v err=%v", ok, err)
	}
	if !got.Free.Equal(dec("900.5")) || got.TsUnixMs != 2000 {
		t.Errorf("latest balance wrong: %+v", got)
	}

	_, ok, err = store.LatestBalance(ctx, "DOGE")
	if err != nil || ok {
		t.Errorf("missing asset: ok=%v err=%v", ok, err)
	}
}

func TestStore_CandlesUpsertAndCloses(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	batch := []domain.Candle{
		{Symbol: "BTCUSDT", OpenUnixMs: 1000, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 10},
		{Symbol: "BTCUSDT", OpenUnixMs: 2000, Open: 1.5, High: 3, Low: 1, Close: 2.5, Volume: 12},
		{Symbol: "BTCUSDT", OpenUnixMs: 3000, Open: 2.5, High: 4, Low: 2, Close: 3.5, Volume: 9},
	}
	if err := store.UpsertCandles(ctx, batch); err != nil {
		t.Fatalf("UpsertCandles: %v", err)
	}

	// Refetch of an overlapping window replaces the old row.
	update := []domain.Candle{
		{Symbol: "BTCUSDT", OpenUnixMs: 3000, Open: 2.5, High: 5, Low: 2, Close: 4.5, Volume: 11},
	}
	if err := store.UpsertCandles(ctx, update); err != nil {
		t.Fatalf("UpsertCandles update: %v", err)
	}

	closes, err := store.RecentCloses(ctx, "BTCUSDT", 2)
	if err != nil {
		t.Fatalf("RecentCloses: %v", err)
	}
	if len(closes) != 2 || closes[0] != 2.5 || closes[1] != 4.5 {
		t.Errorf("closes = %v, want [2.5 4.5] oldest first", closes)
	}

	latest, ok, err := store.LatestCandle(ctx, "BTCUSDT")
	if err != nil || !ok {
		t.Fatalf("LatestCandle: ok=%v err=%v", ok, err)
	}
	if latest.OpenUnixMs != 3000 || latest.Close != 4.5 {
		t.Errorf("latest candle = %+v", latest)
	}
}
