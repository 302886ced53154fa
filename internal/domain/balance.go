package domain

import (
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
)

// Balance is one asset's holding inside the paper account. Reserved funds
// back open orders and are released on settlement or cancel.
type Balance struct {
	Asset    string          `json:"asset"`
	Amount   decimal.Decimal `json:"amount"`
	Reserved decimal.Decimal `json:"reserved"`
}

// Available is the spendable amount.
func (b *Balance) Available() decimal.Decimal {
	return b.Amount.Sub(b.Reserved)
}

// Credit adds funds.
func (b *Balance) Credit(amt decimal.Decimal) {
	if amt.IsNegative() {
		panic(fmt.Sprintf("BALANCE_CREDIT_NEGATIVE %s %s", b.Asset, amt))
	}
	b.Amount = b.Amount.Add(amt)
}

// Debit removes funds and panics when the balance cannot cover it.
// Paper accounting must never go negative silently.
func (b *Balance) Debit(amt decimal.Decimal) {
	if amt.IsNegative() {
		panic(fmt.Sprintf("BALANCE_DEBIT_NEGATIVE %s %s", b.Asset, amt))
	}
	if b.Amount.LessThan(amt) {
		panic(fmt.Sprintf("BALANCE_INSUFFICIENT %s have %s need %s", b.Asset, b.Amount, amt))
	}
	b.Amount = b.Amount.Sub(amt)
}

// Reserve earmarks funds for an open order.
func (b *Balance) Reserve(amt decimal.Decimal) {
	if amt.IsNegative() || b.Available().LessThan(amt) {
		panic(fmt.Sprintf("BALANCE_RESERVE_INVALID %s available %s want %s", b.Asset, b.Available(), amt))
	}
	b.Reserved = b.Reserved.Add(amt)
}

// Release frees previously reserved funds.
func (b *Balance) Release(amt decimal.Decimal) {
	if amt.IsNegative() || b.Reserved.LessThan(amt) {
		panic(fmt.Sprintf("BALANCE_RELEASE_INVALID %s reserved %s want %s", b.Asset, b.Reserved, amt))
	}
	b.Reserved = b.Reserved.Sub(amt)
}

// VerifyInvariant panics when the balance is in an impossible state.
func (b *Balance) VerifyInvariant() {
	if b.Amount.IsNegative() {
		panic(fmt.Sprintf("BALANCE_NEGATIVE %s %s", b.Asset, b.Amount))
	}
	if b.Reserved.IsNegative() || b.Reserved.GreaterThan(b.Amount) {
		panic(fmt.Sprintf("BALANCE_RESERVED_EXCEEDS %s amount %s reserved %s", b.Asset, b.Amount, b.Reserved))
	}
}

// BalanceBook is the paper account: per-asset balances behind one lock.
type BalanceBook struct {
	mu       sync.Mutex
	balances map[string]*Balance
}

func NewBalanceBook() *BalanceBook {
	return &BalanceBook{balances: make(map[string]*Balance)}
}

// Get returns the balance for an asset, creating it at zero on first use.
// The caller mutates the returned balance under Update, not Get.
func (bb *BalanceBook) Get(asset string) *Balance {
	bb.mu.Lock()
	defer bb.mu.Unlock()
	return bb.get(asset)
}

func (bb *BalanceBook) get(asset string) *Balance {
	b, ok := bb.balances[asset]
	if !ok {
		b = &Balance{Asset: asset}
		bb.balances[asset] = b
	}
	return b
}

// Update runs fn with the asset's balance held under the book lock.
func (bb *BalanceBook) Update(asset string, fn func(*Balance)) {
	bb.mu.Lock()
	defer bb.mu.Unlock()
	fn(bb.get(asset))
}

// VerifyAll checks every balance invariant.
func (bb *BalanceBook) VerifyAll() {
	bb.mu.Lock()
	defer bb.mu.Unlock()
	for _, b := range bb.balances {
		b.VerifyInvariant()
	}
}

// Snapshot returns a copy of all balances, sorted by asset for stable output.
func (bb *BalanceBook) Snapshot() []Balance {
	bb.mu.Lock()
	defer bb.mu.Unlock()
	out := make([]Balance, 0, len(bb.balances))
	for _, b := range bb.balances {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Asset < out[j].Asset })
	return out
}

// BalanceSnapshot is one persisted point-in-time row of an asset's
// free/locked amounts, written by the balance poller.
type BalanceSnapshot struct {
	ID       int64           `json:"id"`
	Asset    string          `json:"asset"`
	Free     decimal.Decimal `json:"free"`
	Locked   decimal.Decimal `json:"locked"`
	TsUnixMs int64           `json:"ts_unix_ms"`
}
