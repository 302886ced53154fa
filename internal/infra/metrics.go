package infra

import "github.com/prometheus/client_golang/prometheus"

// Prometheus metrics the engine updates during operation:
//   - trader_orders_placed_total{mode,symbol,side} – orders accepted by the venue (or paper book)
//   - trader_trades_recorded_total{symbol,side}    – aggregated fills written to storage
//   - trader_guard_skips_total{symbol,reason}      – cycles skipped by the risk gate
//   - trader_api_retries_total{op}                 – transient faults retried by the client
//   - trader_reconcile_errors_total                – per-order reconciliation faults
//   - trader_open_orders                           – orders currently NEW/PARTIALLY_FILLED
//   - trader_position_qty{symbol}                  – open position quantity
//   - trader_daily_loss{symbol}                    – realized loss accumulated today
//   - trader_last_price{symbol}                    – last known price from the feed
//
// Registered in init() and served next to pprof on the debug mux.
var (
	mtxOrdersPlaced = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_orders_placed_total",
			Help: "Orders placed",
		},
		[]string{"mode", "symbol", "side"},
	)

	mtxTradesRecorded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_trades_recorded_total",
			Help: "Fill records written to storage",
		},
		[]string{"symbol", "side"},
	)

	mtxGuardSkips = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_guard_skips_total",
			Help: "Cycles skipped by the risk gate, by reason",
		},
		[]string{"symbol", "reason"},
	)

	mtxAPIRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_api_retries_total",
			Help: "Transient API faults that were retried",
		},
		[]string{"op"},
	)

	mtxReconcileErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "trader_reconcile_errors_total",
			Help: "Per-order reconciliation faults (isolated, not fatal)",
		},
	)

	mtxOpenOrders = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "trader_open_orders",
			Help: "Orders currently open locally",
		},
	)

	mtxPositionQty = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "trader_position_qty",
			Help: "Open position quantity per symbol",
		},
		[]string{"symbol"},
	)

	mtxDailyLoss = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "trader_daily_loss",
			Help: "Realized loss accumulated today per symbol (quote asset)",
		},
		[]string{"symbol"},
	)

	mtxLastPrice = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "trader_last_price",
			Help: "Last known price per symbol",
		},
		[]string{"symbol"},
	)
)

func init() {
	prometheus.MustRegister(mtxOrdersPlaced, mtxTradesRecorded, mtxGuardSkips)
	prometheus.MustRegister(mtxAPIRetries, mtxReconcileErrors)
	prometheus.MustRegister(mtxOpenOrders, mtxPositionQty, mtxDailyLoss, mtxLastPrice)
}

// Helper setters so callers never touch label plumbing directly.

func IncOrderPlaced(mode, symbol, side string) {
	mtxOrdersPlaced.WithLabelValues(mode, symbol, side).Inc()
}

func IncTradeRecorded(symbol, side string) {
	mtxTradesRecorded.WithLabelValues(symbol, side).Inc()
}

func IncGuardSkip(symbol, reason string) {
	mtxGuardSkips.WithLabelValues(symbol, reason).Inc()
}

func IncAPIRetry(op string) { mtxAPIRetries.WithLabelValues(op).Inc() }

func IncReconcileError() { mtxReconcileErrors.Inc() }

func SetOpenOrders(n int) { mtxOpenOrders.Set(float64(n)) }

func SetPositionQty(symbol string, qty float64) {
	mtxPositionQty.WithLabelValues(symbol).Set(qty)
}

func SetDailyLoss(symbol string, loss float64) {
	mtxDailyLoss.WithLabelValues(symbol).Set(loss)
}

func SetLastPrice(symbol string, price float64) {
	mtxLastPrice.WithLabelValues(symbol).Set(price)
}
