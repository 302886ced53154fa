package event

import (
	"sync"

	"trader_go/pkg/quant"
)

// Type defines the type of event.
type Type uint16

const (
	EvMarketUpdate Type = iota + 1
	EvOrderUpdate
	EvBalanceUpdate
)

// Event is the interface for all feed events.
type Event interface {
	GetSeq() uint64
	GetTs() quant.TimeStamp
	GetType() Type
}

// BaseEvent contains common fields for all events.
type BaseEvent struct {
	Seq uint64          `json:"seq"`
	Ts  quant.TimeStamp `json:"ts"`
}

func (e BaseEvent) GetSeq() uint64         { return e.Seq }
func (e BaseEvent) GetTs() quant.TimeStamp { return e.Ts }

// MarketUpdateEvent represents a price observation from the ticker feed.
type MarketUpdateEvent struct {
	BaseEvent
	Symbol      string            `json:"symbol"`
	PriceMicros quant.PriceMicros `json:"price"`
	QtySats     quant.QtySats     `json:"qty"`
	Exchange    string            `json:"exchange"`
}

func (e *MarketUpdateEvent) GetType() Type { return EvMarketUpdate }

// Reset zeroes the event for pool reuse.
func (e *MarketUpdateEvent) Reset() {
	*e = MarketUpdateEvent{}
}

// marketUpdatePool recycles MarketUpdateEvents. The feed produces one event
// per websocket message; pooling keeps the hotpath allocation-free.
var marketUpdatePool = sync.Pool{
	New: func() any { return new(MarketUpdateEvent) },
}

// AcquireMarketUpdateEvent takes a zeroed event from the pool.
func AcquireMarketUpdateEvent() *MarketUpdateEvent {
	return marketUpdatePool.Get().(*MarketUpdateEvent)
}

// ReleaseMarketUpdateEvent resets and returns an event to the pool.
// The caller must not touch the event afterwards.
func ReleaseMarketUpdateEvent(e *MarketUpdateEvent) {
	e.Reset()
	marketUpdatePool.Put(e)
}

// Warmup pre-populates the pool so the first feed burst does not allocate.
func Warmup() {
	const warmupSize = 64
	events := make([]*MarketUpdateEvent, warmupSize)
	for i := range events {
		events[i] = AcquireMarketUpdateEvent()
	}
	for _, ev := range events {
		ReleaseMarketUpdateEvent(ev)
	}
}
