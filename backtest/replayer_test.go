package backtest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"trader_go/internal/decision"
	"trader_go/internal/domain"
	"trader_go/internal/engine"
	"trader_go/internal/storage"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func newStore(t *testing.T, name string) *storage.Store {
	t.Helper()
	store, err := storage.NewStore(filepath.Join(t.TempDir(), name))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

const replayStartMS = int64(1700000000000)

func seedCandles(t *testing.T, store *storage.Store, symbol string, closes ...float64) {
	t.Helper()
	candles := make([]domain.Candle, len(closes))
	for i, c := range closes {
		candles[i] = domain.Candle{
			Symbol:     symbol,
			OpenUnixMs: replayStartMS + int64(i)*60_000,
			Open:       c,
			High:       c,
			Low:        c,
			Close:      c,
			Volume:     1,
		}
	}
	if err := store.UpsertCandles(context.Background(), candles); err != nil {
		t.Fatalf("UpsertCandles: %v", err)
	}
}

func testSpec() domain.SymbolSpec {
	return domain.SymbolSpec{
		Symbol:        "BTCUSDT",
		BaseAsset:     "BTC",
		QuoteAsset:    "USDT",
		PriceDecimals: 2,
		QtyDecimals:   4,
		MinNotional:   dec("5"),
		KlineInterval: "1m",
	}
}

func testRisk() engine.RiskConfig {
	return engine.RiskConfig{
		MinConfidence: 0.5,
		MaxPerTrade:   dec("100"),
		DailyMaxLoss:  dec("1000"),
		PriceDecimals: 2,
		QtyDecimals:   4,
		MinNotional:   dec("5"),
	}
}

func newTestReplayer(t *testing.T, cfg Config) (*Replayer, *storage.Store, *storage.Store) {
	t.Helper()
	source := newStore(t, "source.db")
	ledger := newStore(t, "ledger.db")
	decider, err := decision.NewSMACross(2, 3)
	if err != nil {
		t.Fatalf("NewSMACross: %v", err)
	}
	r, err := NewReplayer(source, ledger, decider, cfg)
	if err != nil {
		t.Fatalf("NewReplayer: %v", err)
	}
	return r, source, ledger
}

// A golden cross buys the close, a later dead cross above entry sells the
// whole position. The run must end flat with the round-trip profit in
// the quote balance.
func TestReplayer_RoundTrip(t *testing.T) {
	cfg := Config{Spec: testSpec(), Risk: testRisk(), StartQuote: dec("1000")}
	r, source, ledger := newTestReplayer(t, cfg)
	ctx := context.Background()

	// sma2/sma3: golden cross on the 6th close (100), dead cross on the
	// 10th (106).
	seedCandles(t, source, "BTCUSDT", 100, 98, 96, 94, 95, 100, 105, 110, 108, 106)

	res, err := r.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.Candles != 10 {
		t.Errorf("candles = %d, want 10", res.Candles)
	}
	if res.Submitted != 2 || res.Fills != 2 || res.Rejected != 0 {
		t.Errorf("submitted/fills/rejected = %d/%d/%d, want 2/2/0",
			res.Submitted, res.Fills, res.Rejected)
	}
	if res.GuardSkips != 0 {
		t.Errorf("guard skips = %d, want 0", res.GuardSkips)
	}
	if res.Position.IsOpen() {
		t.Errorf("position still open: %s", res.Position.Qty)
	}

	// buy 1 @ 100, sell 1 @ 106, zero fees.
	if !res.QuoteEnd.Equal(dec("1006")) {
		t.Errorf("quote end = %s, want 1006", res.QuoteEnd)
	}
	if !res.Equity.Equal(dec("1006")) {
		t.Errorf("equity = %s, want 1006", res.Equity)
	}

	// Fills carry candle time, not wall time.
	trades, err := ledger.TradesBySymbol(ctx, "BTCUSDT")
	if err != nil {
		t.Fatalf("TradesBySymbol: %v", err)
	}
	if len(trades) != 2 {
		t.Fatalf("trades = %d, want 2", len(trades))
	}
	if want := replayStartMS + 5*60_000; trades[0].TsUnixMs != want {
		t.Errorf("buy ts = %d, want %d", trades[0].TsUnixMs, want)
	}
	if want := replayStartMS + 9*60_000; trades[1].TsUnixMs != want {
		t.Errorf("sell ts = %d, want %d", trades[1].TsUnixMs, want)
	}
}

// A dead cross below the stop level is forced through the profit floor,
// the realized loss lands on the daily counter, and the counter then
// blocks the next golden cross.
func TestReplayer_StopLossBooksLossAndCapsNextBuy(t *testing.T) {
	risk := testRisk()
	risk.StopLossPct = dec("0.05")
	risk.DailyMaxLoss = dec("5")
	cfg := Config{Spec: testSpec(), Risk: risk, StartQuote: dec("1000")}
	r, source, _ := newTestReplayer(t, cfg)

	// Golden cross at 100, dead cross at 93 (through the 95 stop), then
	// another golden cross at 98 that the daily cap must block.
	seedCandles(t, source, "BTCUSDT", 100, 98, 96, 94, 95, 100, 99, 93, 92, 98)

	res, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.Submitted != 2 || res.Fills != 2 {
		t.Errorf("submitted/fills = %d/%d, want 2/2", res.Submitted, res.Fills)
	}
	if res.GuardSkips != 1 {
		t.Errorf("guard skips = %d, want 1 (capped re-buy)", res.GuardSkips)
	}
	if res.Position.IsOpen() {
		t.Errorf("position still open: %s", res.Position.Qty)
	}

	// buy 1 @ 100, stopped out 1 @ 93: seven quote lost.
	if !res.QuoteEnd.Equal(dec("993")) {
		t.Errorf("quote end = %s, want 993", res.QuoteEnd)
	}
}

func TestReplayer_NoCandlesFails(t *testing.T) {
	cfg := Config{Spec: testSpec(), Risk: testRisk(), StartQuote: dec("1000")}
	r, _, _ := newTestReplayer(t, cfg)

	if _, err := r.Run(context.Background()); err == nil {
		t.Fatal("want error for empty candle history, got nil")
	}
}

func TestNewReplayer_Validates(t *testing.T) {
	source := newStore(t, "source.db")
	ledger := newStore(t, "ledger.db")
	decider, _ := decision.NewSMACross(2, 3)

	if _, err := NewReplayer(nil, ledger, decider, Config{Spec: testSpec(), StartQuote: dec("1")}); err == nil {
		t.Error("want error for nil source store")
	}
	if _, err := NewReplayer(source, ledger, nil, Config{Spec: testSpec(), StartQuote: dec("1")}); err == nil {
		t.Error("want error for nil decider")
	}
	if _, err := NewReplayer(source, ledger, decider, Config{Spec: testSpec(), StartQuote: decimal.Zero}); err == nil {
		t.Error("want error for zero starting balance")
	}
	if _, err := NewReplayer(source, ledger, decider, Config{Spec: domain.SymbolSpec{}, StartQuote: dec("1")}); err == nil {
		t.Error("want error for invalid symbol spec")
	}
}
