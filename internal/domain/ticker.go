package domain

import (
	"time"

	"trader_go/pkg/quant"
)

// Ticker is one price observation from the market data feed.
// Hot fields first: the feed updates these on every message.
type Ticker struct {
	PriceMicros quant.PriceMicros `json:"price"`
	VolumeSats  quant.QtySats     `json:"volume"` // rolling 24h volume
	EventUnixM  quant.TimeStamp   `json:"event_unix,string"`
	Symbol      string            `json:"symbol"`
}

// IsStale reports whether the observation is older than maxAge. A stale
// ticker must not feed unrealized P&L; callers fall back to the latest
// stored candle close.
func (t *Ticker) IsStale(nowUnixMicros int64, maxAge time.Duration) bool {
	if t.EventUnixM <= 0 {
		return true
	}
	return nowUnixMicros-int64(t.EventUnixM) > maxAge.Microseconds()
}
