package domain

// Candle is one kline as fetched from the exchange and persisted for the
// decision pipeline. OHLCV stays float64: market data feeds indicators,
// not accounting.
type Candle struct {
	Symbol     string  `json:"symbol"`
	OpenUnixMs int64   `json:"open_unix_ms"`
	Open       float64 `json:"open"`
	High       float64 `json:"high"`
	Low        float64 `json:"low"`
	Close      float64 `json:"close"`
	Volume     float64 `json:"volume"`
}

// Closes extracts the close series in input order.
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}
