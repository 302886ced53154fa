package event

import (
	"sync"
	"time"

	"trader_go/pkg/quant"
)

// PriceCache is the read-mostly last-price table fed by the ticker feed.
// One goroutine (the feed consumer) writes; workers read under RLock.
// The engine stays correct without it: readers fall back to the latest
// stored candle close when an entry is missing or stale.
type PriceCache struct {
	mu     sync.RWMutex
	prices map[string]pricePoint
}

type pricePoint struct {
	price quant.PriceMicros
	ts    quant.TimeStamp
}

func NewPriceCache() *PriceCache {
	return &PriceCache{prices: make(map[string]pricePoint)}
}

// Apply records the event's price. Events with a non-positive price are
// ignored so a malformed feed message cannot poison the cache.
func (pc *PriceCache) Apply(ev *MarketUpdateEvent) {
	if ev.PriceMicros <= 0 {
		return
	}
	pc.mu.Lock()
	pc.prices[ev.Symbol] = pricePoint{price: ev.PriceMicros, ts: ev.Ts}
	pc.mu.Unlock()
}

// Last returns the most recent observation for a symbol, if any.
func (pc *PriceCache) Last(symbol string) (quant.PriceMicros, quant.TimeStamp, bool) {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	p, ok := pc.prices[symbol]
	if !ok {
		return 0, 0, false
	}
	return p.price, p.ts, true
}

// Fresh returns the last price only when it is newer than maxAge.
func (pc *PriceCache) Fresh(symbol string, nowUnixMicros int64, maxAge time.Duration) (quant.PriceMicros, bool) {
	price, ts, ok := pc.Last(symbol)
	if !ok || ts <= 0 {
		return 0, false
	}
	if nowUnixMicros-int64(ts) > maxAge.Microseconds() {
		return 0, false
	}
	return price, true
}
