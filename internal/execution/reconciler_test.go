package execution

import (
	"context"
	"fmt"
	"testing"
	"time"

	"trader_go/internal/domain"
	"trader_go/internal/engine"
	"trader_go/internal/infra/mexc"
	"trader_go/internal/storage"
)

type fakeQuerier struct {
	statuses map[string]mexc.OrderStatus
	errs     map[string]error
	calls    int
}

func (f *fakeQuerier) QueryOrder(ctx context.Context, symbol, clientOrderID string) (mexc.OrderStatus, error) {
	f.calls++
	if err, ok := f.errs[clientOrderID]; ok {
		return mexc.OrderStatus{}, err
	}
	st, ok := f.statuses[clientOrderID]
	if !ok {
		return mexc.OrderStatus{}, fmt.Errorf("%s %s: %w", symbol, clientOrderID, mexc.ErrOrderNotFound)
	}
	return st, nil
}

const reconTestNowMS = int64(1700000600000)

func newReconcilerFixture(t *testing.T) (*Reconciler, *storage.Store, *fakeQuerier, *engine.RiskBook) {
	t.Helper()
	store := newTestStore(t)
	querier := &fakeQuerier{
		statuses: make(map[string]mexc.OrderStatus),
		errs:     make(map[string]error),
	}
	risk := engine.NewRiskBook()
	risk.Add(engine.NewRiskGate("BTCUSDT", engine.RiskConfig{DailyMaxLoss: dec("1000")}))

	rec := NewReconciler(store, querier, risk, time.Minute)
	rec.nowMS = func() int64 { return reconTestNowMS }
	return rec, store, querier, risk
}

func seedOrder(t *testing.T, store *storage.Store, clientID, exchID string, side domain.Side, price string, createdMS int64) domain.Order {
	t.Helper()
	o := domain.Order{
		ClientOrderID: clientID,
		ExchOrderID:   exchID,
		Symbol:        "BTCUSDT",
		Side:          side,
		Type:          domain.OrderTypeLimit,
		Price:         dec(price),
		Qty:           dec("1"),
		Status:        domain.StatusNew,
		CreatedUnixMs: createdMS,
		UpdatedUnixMs: createdMS,
	}
	if err := store.InsertOrder(context.Background(), &o); err != nil {
		t.Fatalf("seed order failed: %v", err)
	}
	return o
}

// An unconfirmed placement followed by reconciliation must resolve to one
// order row and one trade, never duplicates.
func TestReconciler_TimeoutThenReconcileNoDuplicates(t *testing.T) {
	rec, store, querier, _ := newReconcilerFixture(t)
	ctx := context.Background()

	// Placement times out after send: the row holds only the client id.
	placer := &fakePlacer{err: fmt.Errorf("place_order: %w", mexc.ErrNotConfirmed)}
	exec := NewLiveExecutor(placer, store)
	order, _ := exec.Submit(ctx, buyReq("100", "0.5"))

	// The venue actually accepted and filled it.
	querier.statuses[order.ClientOrderID] = mexc.OrderStatus{
		Symbol:      "BTCUSDT",
		OrderID:     "777",
		Status:      "FILLED",
		ExecutedQty: dec("0.5"),
		CumQuoteQty: dec("50.25"),
		UpdateMS:    reconTestNowMS - 1000,
	}

	if err := rec.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}

	stored, ok, _ := store.OrderByClientID(ctx, order.ClientOrderID)
	if !ok {
		t.Fatal("order row vanished")
	}
	if stored.Status != domain.StatusFilled {
		t.Errorf("status = %s, want FILLED", stored.Status)
	}
	if stored.ExchOrderID != "777" {
		t.Errorf("exch id = %q, want 777", stored.ExchOrderID)
	}
	// 50.25 / 0.5 = 100.5 volume-weighted fill.
	if !stored.Price.Equal(dec("100.5")) {
		t.Errorf("price = %s, want 100.5", stored.Price)
	}

	trades, _ := store.TradesBySymbol(ctx, "BTCUSDT")
	if len(trades) != 1 {
		t.Fatalf("trades = %d, want exactly 1", len(trades))
	}
	if !trades[0].Price.Equal(dec("100.5")) || !trades[0].Qty.Equal(dec("0.5")) {
		t.Errorf("trade = %s @ %s, want 0.5 @ 100.5", trades[0].Qty, trades[0].Price)
	}

	// A stale pass over the same order must dedup on the trade.
	staleCopy := order
	staleCopy.Status = domain.StatusNew
	if err := rec.reconcileOne(ctx, &staleCopy); err != nil {
		t.Fatalf("stale reconcile failed: %v", err)
	}
	trades, _ = store.TradesBySymbol(ctx, "BTCUSDT")
	if len(trades) != 1 {
		t.Errorf("trades = %d after stale pass, want still 1", len(trades))
	}

	open, _ := store.OpenOrders(ctx)
	if len(open) != 0 {
		t.Errorf("open orders = %d, want none", len(open))
	}
}

func TestReconciler_PartialFillUpdatesPriceWithoutTrade(t *testing.T) {
	rec, store, querier, _ := newReconcilerFixture(t)
	ctx := context.Background()
	o := seedOrder(t, store, "bot_BTCUSDT_1_aaaa1111", "42", domain.SideBuy, "100", reconTestNowMS-5000)

	querier.statuses[o.ClientOrderID] = mexc.OrderStatus{
		OrderID:     "42",
		Status:      "PARTIALLY_FILLED",
		ExecutedQty: dec("0.5"),
		CumQuoteQty: dec("51"),
	}
	if err := rec.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}

	stored, _, _ := store.OrderByClientID(ctx, o.ClientOrderID)
	if stored.Status != domain.StatusPartiallyFilled {
		t.Errorf("status = %s, want PARTIALLY_FILLED", stored.Status)
	}
	// 51 / 0.5 = 102 average so far.
	if !stored.Price.Equal(dec("102")) {
		t.Errorf("price = %s, want 102", stored.Price)
	}
	if has, _ := store.HasTradeForOrder(ctx, o.ClientOrderID); has {
		t.Fatal("partial fill must not write a trade")
	}

	// The fill completes: one aggregated trade at the final average.
	querier.statuses[o.ClientOrderID] = mexc.OrderStatus{
		OrderID:     "42",
		Status:      "FILLED",
		ExecutedQty: dec("1"),
		CumQuoteQty: dec("103"),
	}
	if err := rec.RunOnce(ctx); err != nil {
		t.Fatalf("second RunOnce failed: %v", err)
	}
	trades, _ := store.TradesBySymbol(ctx, "BTCUSDT")
	if len(trades) != 1 {
		t.Fatalf("trades = %d, want exactly 1 aggregated", len(trades))
	}
	if !trades[0].Qty.Equal(dec("1")) || !trades[0].Price.Equal(dec("103")) {
		t.Errorf("trade = %s @ %s, want 1 @ 103", trades[0].Qty, trades[0].Price)
	}
}

func TestReconciler_CanceledWritesNoTrade(t *testing.T) {
	rec, store, querier, _ := newReconcilerFixture(t)
	ctx := context.Background()
	o := seedOrder(t, store, "bot_BTCUSDT_2_bbbb2222", "43", domain.SideBuy, "100", reconTestNowMS-5000)

	querier.statuses[o.ClientOrderID] = mexc.OrderStatus{OrderID: "43", Status: "CANCELED"}
	if err := rec.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}

	stored, _, _ := store.OrderByClientID(ctx, o.ClientOrderID)
	if stored.Status != domain.StatusCanceled {
		t.Errorf("status = %s, want CANCELED", stored.Status)
	}
	if !stored.Price.Equal(dec("100")) {
		t.Errorf("price = %s, want original 100 retained", stored.Price)
	}
	if has, _ := store.HasTradeForOrder(ctx, o.ClientOrderID); has {
		t.Error("canceled order must not produce a trade")
	}
}

func TestReconciler_PerOrderIsolation(t *testing.T) {
	rec, store, querier, _ := newReconcilerFixture(t)
	ctx := context.Background()
	bad := seedOrder(t, store, "bot_BTCUSDT_3_cccc3333", "44", domain.SideBuy, "100", reconTestNowMS-10000)
	good := seedOrder(t, store, "bot_BTCUSDT_4_dddd4444", "45", domain.SideBuy, "100", reconTestNowMS-5000)

	querier.errs[bad.ClientOrderID] = &mexc.APIError{Status: 503, Code: -1001, Msg: "server busy"}
	querier.statuses[good.ClientOrderID] = mexc.OrderStatus{
		OrderID:     "45",
		Status:      "FILLED",
		ExecutedQty: dec("1"),
		CumQuoteQty: dec("100"),
	}

	if err := rec.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}

	badStored, _, _ := store.OrderByClientID(ctx, bad.ClientOrderID)
	if badStored.Status != domain.StatusNew {
		t.Errorf("failing order status = %s, want NEW untouched", badStored.Status)
	}
	goodStored, _, _ := store.OrderByClientID(ctx, good.ClientOrderID)
	if goodStored.Status != domain.StatusFilled {
		t.Errorf("healthy order status = %s, want FILLED despite sibling failure", goodStored.Status)
	}
}

func TestReconciler_UnconfirmedExpiresAfterTTL(t *testing.T) {
	rec, store, _, _ := newReconcilerFixture(t)
	ctx := context.Background()

	// All three are unknown to the venue.
	stale := seedOrder(t, store, "bot_BTCUSDT_5_eeee5555", "", domain.SideBuy, "100", reconTestNowMS-int64(6*time.Minute/time.Millisecond))
	fresh := seedOrder(t, store, "bot_BTCUSDT_6_ffff6666", "", domain.SideBuy, "100", reconTestNowMS-1000)
	acked := seedOrder(t, store, "bot_BTCUSDT_7_aaaa7777", "99", domain.SideBuy, "100", reconTestNowMS-int64(10*time.Minute/time.Millisecond))

	if err := rec.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}

	staleStored, _, _ := store.OrderByClientID(ctx, stale.ClientOrderID)
	if staleStored.Status != domain.StatusExpired {
		t.Errorf("stale unconfirmed = %s, want EXPIRED", staleStored.Status)
	}
	freshStored, _, _ := store.OrderByClientID(ctx, fresh.ClientOrderID)
	if freshStored.Status != domain.StatusNew {
		t.Errorf("fresh unconfirmed = %s, want NEW (propagation window)", freshStored.Status)
	}
	ackedStored, _, _ := store.OrderByClientID(ctx, acked.ClientOrderID)
	if ackedStored.Status != domain.StatusNew {
		t.Errorf("acked-but-missing = %s, want NEW (never expired locally)", ackedStored.Status)
	}
}

func TestReconciler_SellFillBooksRealizedLoss(t *testing.T) {
	rec, store, querier, risk := newReconcilerFixture(t)
	ctx := context.Background()

	entry := domain.Trade{
		Symbol:        "BTCUSDT",
		Side:          domain.SideBuy,
		Price:         dec("100"),
		Qty:           dec("1"),
		OrderClientID: "bot_BTCUSDT_0_00000000",
		TsUnixMs:      reconTestNowMS - 60000,
	}
	if err := store.InsertTrade(ctx, &entry); err != nil {
		t.Fatalf("seed trade failed: %v", err)
	}

	o := seedOrder(t, store, "bot_BTCUSDT_8_bbbb8888", "46", domain.SideSell, "90", reconTestNowMS-5000)
	querier.statuses[o.ClientOrderID] = mexc.OrderStatus{
		OrderID:     "46",
		Status:      "FILLED",
		ExecutedQty: dec("1"),
		CumQuoteQty: dec("90"),
	}

	if err := rec.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}

	counters := risk.Counters()["BTCUSDT"]
	if !counters.RealizedLoss.Equal(dec("10")) {
		t.Errorf("realized loss = %s, want 10", counters.RealizedLoss)
	}
}

func TestReconciler_UnknownStatusLeavesOrderAlone(t *testing.T) {
	rec, store, querier, _ := newReconcilerFixture(t)
	ctx := context.Background()
	o := seedOrder(t, store, "bot_BTCUSDT_9_cccc9999", "47", domain.SideBuy, "100", reconTestNowMS-5000)

	querier.statuses[o.ClientOrderID] = mexc.OrderStatus{OrderID: "47", Status: "SOMETHING_NEW"}
	if err := rec.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}

	stored, _, _ := store.OrderByClientID(ctx, o.ClientOrderID)
	if stored.Status != domain.StatusNew {
		t.Errorf("status = %s, want NEW untouched", stored.Status)
	}
}

func TestNewReconciler_FloorsPollInterval(t *testing.T) {
	store := newTestStore(t)
	fast := NewReconciler(store, &fakeQuerier{}, nil, time.Second)
	if fast.interval != minReconcileInterval {
		t.Errorf("interval = %s, want floored to %s", fast.interval, minReconcileInterval)
	}
	slow := NewReconciler(store, &fakeQuerier{}, nil, time.Minute)
	if slow.interval != time.Minute {
		t.Errorf("interval = %s, want time.Minute kept", slow.interval)
	}
}
