package mexc

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"trader_go/internal/event"
	"trader_go/internal/infra"
	"trader_go/pkg/quant"
)

// Websocket protocol shapes for the spot stream.
type wsCommand struct {
	Method string   `json:"method"`
	Params []string `json:"params,omitempty"`
}

type wsEnvelope struct {
	Channel string        `json:"c"`
	Ts      int64         `json:"t"` // milliseconds
	Symbol  string        `json:"s"`
	Data    miniTickerMsg `json:"d"`
	Msg     string        `json:"msg"`
}

type miniTickerMsg struct {
	Symbol string `json:"s"`
	Price  string `json:"p"`
	Volume string `json:"v"`
}

// TickerWorker subscribes to miniTicker streams and publishes pooled
// market events into the inbox. The feed is optional: the engine falls
// back to stored candle closes when no fresh ticker exists.
type TickerWorker struct {
	base    *infra.BaseWSWorker
	url     string
	symbols []string
	inbox   chan<- event.Event
	seq     *uint64
}

// NewTickerWorker creates a feed worker for the given symbols.
func NewTickerWorker(wsURL string, symbols []string, inbox chan<- event.Event, seq *uint64) *TickerWorker {
	w := &TickerWorker{
		url:     wsURL,
		symbols: symbols,
		inbox:   inbox,
		seq:     seq,
	}
	w.base = infra.NewBaseWSWorker(w)
	return w
}

func (w *TickerWorker) ID() string     { return "MEXC_TICKER" }
func (w *TickerWorker) GetURL() string { return w.url }

// Connect starts the reconnecting websocket loop.
func (w *TickerWorker) Connect(ctx context.Context) error {
	w.base.Start(ctx)
	return nil
}

func (w *TickerWorker) Disconnect() {
	w.base.Stop()
}

func (w *TickerWorker) OnConnect(ctx context.Context, conn *websocket.Conn) error {
	params := make([]string, 0, len(w.symbols))
	for _, s := range w.symbols {
		params = append(params, fmt.Sprintf("spot@public.miniTicker.v3.api@%s@UTC+0", s))
	}
	cmd := wsCommand{Method: "SUBSCRIPTION", Params: params}
	b, _ := json.Marshal(cmd)
	return w.base.Write(websocket.TextMessage, b)
}

func (w *TickerWorker) OnMessage(ctx context.Context, msg []byte) {
	var env wsEnvelope
	if err := json.Unmarshal(msg, &env); err != nil {
		return
	}
	if env.Msg == "PONG" || !strings.Contains(env.Channel, "miniTicker") {
		return
	}

	symbol := env.Data.Symbol
	if symbol == "" {
		symbol = env.Symbol
	}
	if symbol == "" || env.Data.Price == "" {
		return
	}

	ev := event.AcquireMarketUpdateEvent()
	ev.Seq = quant.NextSeq(w.seq)
	ev.Ts = quant.TimeStamp(env.Ts * 1000)
	if env.Ts == 0 {
		ev.Ts = quant.TimeStamp(time.Now().UnixMicro())
	}
	ev.Symbol = symbol
	ev.PriceMicros = quant.ToPriceMicrosStr(env.Data.Price)
	ev.QtySats = quant.ToQtySatsStr(env.Data.Volume)
	ev.Exchange = "MEXC_SPOT"

	select {
	case w.inbox <- ev:
	default:
		// Inbox full: drop the tick rather than stall the read loop.
		event.ReleaseMarketUpdateEvent(ev)
	}
}

func (w *TickerWorker) OnPing(ctx context.Context, conn *websocket.Conn) error {
	b, _ := json.Marshal(wsCommand{Method: "PING"})
	return w.base.Write(websocket.TextMessage, b)
}
