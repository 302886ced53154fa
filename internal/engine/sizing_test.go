package engine

import (
	"testing"

	"github.com/shopspring/decimal"

	"trader_go/internal/domain"
)

func TestSizeBuy_FloorDivision(t *testing.T) {
	// max_per_trade=10, price=3, qty_decimals=0: qty = floor(10/3) = 3,
	// never 3.33 and never 4.
	g, _ := newTestGate(RiskConfig{MaxPerTrade: dec("10"), QtyDecimals: 0, PriceDecimals: 2})

	price, qty, v := g.SizeBuy(dec("3"), dec("100"))
	if !v.Allowed {
		t.Fatalf("verdict = %+v", v)
	}
	if !qty.Equal(dec("3")) {
		t.Errorf("qty = %s, want 3", qty)
	}
	if !price.Equal(dec("3")) {
		t.Errorf("price = %s", price)
	}
}

func TestSizeBuy_NeverExceedsBudget(t *testing.T) {
	tests := []struct {
		name      string
		cfg       RiskConfig
		price     string
		available string
	}{
		{
			name:      "cap binds",
			cfg:       RiskConfig{MaxPerTrade: dec("10"), QtyDecimals: 4, PriceDecimals: 2, FeeBps: 10},
			price:     "3.33",
			available: "1000",
		},
		{
			name:      "balance binds",
			cfg:       RiskConfig{MaxPerTrade: dec("1000"), QtyDecimals: 2, PriceDecimals: 2, FeeBps: 25},
			price:     "2",
			available: "5",
		},
		{
			name:      "awkward precision",
			cfg:       RiskConfig{MaxPerTrade: dec("7"), QtyDecimals: 3, PriceDecimals: 4, FeeBps: 0},
			price:     "0.0713",
			available: "6.5",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, _ := newTestGate(tt.cfg)
			price, qty, v := g.SizeBuy(dec(tt.price), dec(tt.available))
			if !v.Allowed {
				t.Fatalf("verdict = %+v", v)
			}
			bound := decimal.Min(tt.cfg.MaxPerTrade, dec(tt.available))
			if price.Mul(qty).GreaterThan(bound) {
				t.Errorf("notional %s exceeds bound %s", price.Mul(qty), bound)
			}
		})
	}
}

func TestSizeBuy_FeeHeadroom(t *testing.T) {
	// Budget 100 shaved by 10 bps leaves 99.9; at price 1 with whole-unit
	// lots that is 99, not 100.
	g, _ := newTestGate(RiskConfig{MaxPerTrade: dec("100"), QtyDecimals: 0, PriceDecimals: 2, FeeBps: 10})

	_, qty, v := g.SizeBuy(dec("1"), dec("500"))
	if !v.Allowed {
		t.Fatalf("verdict = %+v", v)
	}
	if !qty.Equal(dec("99")) {
		t.Errorf("qty = %s, want 99 after fee headroom", qty)
	}
}

func TestSizeBuy_Rejections(t *testing.T) {
	g, _ := newTestGate(RiskConfig{MaxPerTrade: dec("10"), QtyDecimals: 2, PriceDecimals: 2, MinNotional: dec("5")})

	tests := []struct {
		name      string
		price     string
		available string
		reason    domain.GuardReason
	}{
		{"zero price", "0", "100", domain.GuardZeroSize},
		{"negative price", "-1", "100", domain.GuardZeroSize},
		{"no balance", "10", "0", domain.GuardZeroSize},
		{"budget smaller than one lot", "1000", "3", domain.GuardZeroSize},
		{"under min notional", "10", "4.9", domain.GuardMinNotional},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, v := g.SizeBuy(dec(tt.price), dec(tt.available))
			if v.Allowed || v.Reason != tt.reason {
				t.Errorf("verdict = %+v, want %s", v, tt.reason)
			}
		})
	}
}

func TestSizeSell(t *testing.T) {
	g, _ := newTestGate(RiskConfig{QtyDecimals: 2, PriceDecimals: 2, MinNotional: dec("5")})

	price, qty, v := g.SizeSell(dec("100.123"), dec("0.126"))
	if !v.Allowed {
		t.Fatalf("verdict = %+v", v)
	}
	if !price.Equal(dec("100.12")) || !qty.Equal(dec("0.12")) {
		t.Errorf("got %s x %s, want truncated 100.12 x 0.12", price, qty)
	}

	if _, _, v := g.SizeSell(dec("100"), dec("0.004")); v.Allowed || v.Reason != domain.GuardZeroSize {
		t.Errorf("dust position verdict = %+v", v)
	}
	if _, _, v := g.SizeSell(dec("1"), dec("4.9")); v.Allowed || v.Reason != domain.GuardMinNotional {
		t.Errorf("tiny notional verdict = %+v", v)
	}
}

func TestLimitPrice(t *testing.T) {
	g, _ := newTestGate(RiskConfig{SlippageBps: 25, PriceDecimals: 2})

	// BUY bids above the market, SELL asks below it.
	if got := g.LimitPrice(domain.SideBuy, dec("100")); !got.Equal(dec("100.25")) {
		t.Errorf("buy limit = %s, want 100.25", got)
	}
	if got := g.LimitPrice(domain.SideSell, dec("100")); !got.Equal(dec("99.75")) {
		t.Errorf("sell limit = %s, want 99.75", got)
	}

	flat, _ := newTestGate(RiskConfig{PriceDecimals: 2})
	if got := flat.LimitPrice(domain.SideBuy, dec("100")); !got.Equal(dec("100")) {
		t.Errorf("zero slippage must pass the price through, got %s", got)
	}
}

func TestClampSellToBalance(t *testing.T) {
	g, _ := newTestGate(RiskConfig{QtyDecimals: 2})

	if got := g.ClampSellToBalance(dec("1.5"), dec("1.237")); !got.Equal(dec("1.23")) {
		t.Errorf("clamped qty = %s, want 1.23", got)
	}
	if got := g.ClampSellToBalance(dec("1.5"), dec("2")); !got.Equal(dec("1.5")) {
		t.Errorf("unclamped qty = %s, want 1.5", got)
	}
}

func TestShaveBuyForBalance(t *testing.T) {
	g, _ := newTestGate(RiskConfig{QtyDecimals: 2})

	// 1.00 * 10 = 10 > 9.95; one step down: 0.99 * 10 = 9.9 fits.
	if got := g.ShaveBuyForBalance(dec("10"), dec("1"), dec("9.95")); !got.Equal(dec("0.99")) {
		t.Errorf("shaved qty = %s, want 0.99", got)
	}
	// Already fits: untouched.
	if got := g.ShaveBuyForBalance(dec("10"), dec("0.5"), dec("9.95")); !got.Equal(dec("0.5")) {
		t.Errorf("qty = %s, want 0.5", got)
	}
	// Nothing fits.
	if got := g.ShaveBuyForBalance(dec("10"), dec("0.05"), dec("0.01")); !got.IsZero() {
		t.Errorf("qty = %s, want 0", got)
	}
	if got := g.ShaveBuyForBalance(dec("10"), dec("1"), decimal.Zero); !got.IsZero() {
		t.Errorf("qty with no balance = %s, want 0", got)
	}
}
