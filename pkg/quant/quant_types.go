package quant

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync/atomic"

	"trader_go/pkg/safe"
)

// PriceMicros represents price multiplied by 1,000,000 (10^6).
// E.g., 1.23 USDT = 1,230,000 PriceMicros.
type PriceMicros int64

// QtySats represents quantity multiplied by 100,000,000 (10^8).
// E.g., 1.0 BTC = 100,000,000 QtySats.
type QtySats int64

// TimeStamp represents Unix Microseconds.
type TimeStamp int64

const (
	PriceScale = 1000000
	QtyScale   = 100000000
)

// ToPriceMicros converts a float64 (from external API) to PriceMicros.
// Only used at the boundary. Internal logic stays in PriceMicros.
func ToPriceMicros(f float64) PriceMicros {
	return PriceMicros(math.Round(f * PriceScale))
}

// ToQtySats converts a float64 to QtySats.
func ToQtySats(f float64) QtySats {
	return QtySats(math.Round(f * QtyScale))
}

func (p PriceMicros) String() string {
	return fmt.Sprintf("%.6f", float64(p)/PriceScale)
}

func (q QtySats) String() string {
	return fmt.Sprintf("%.8f", float64(q)/QtyScale)
}

// Float64 returns the boundary representation for logging and snapshots.
func (p PriceMicros) Float64() float64 {
	return float64(p) / PriceScale
}

func (q QtySats) Float64() float64 {
	return float64(q) / QtyScale
}

// NotionalMicros returns price*qty in micros of the quote asset.
// Panics on int64 overflow, which for spot tickers means corrupt input.
func NotionalMicros(p PriceMicros, q QtySats) int64 {
	return safe.Div(safe.Mul(int64(p), int64(q)), QtyScale)
}

// NextSeq generates the next sequence number atomically.
func NextSeq(ptr *uint64) uint64 {
	return atomic.AddUint64(ptr, 1)
}

// ParseTimeStamp converts a millisecond string to TimeStamp (micros).
func ParseTimeStamp(s string) (TimeStamp, error) {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return TimeStamp(ms * 1000), nil
}

// ToPriceMicrosStr converts a numeric string to PriceMicros without
// going through float64. Exchange feeds quote prices as strings.
func ToPriceMicrosStr(s string) PriceMicros {
	return PriceMicros(parseFixedPoint(s, 6))
}

// ToQtySatsStr converts a numeric string to QtySats without float64.
func ToQtySatsStr(s string) QtySats {
	return QtySats(parseFixedPoint(s, 8))
}

// parseFixedPoint parses a numeric string into an int64 with the given precision.
// E.g., parseFixedPoint("1.23", 6) -> 1,230,000. Excess fraction digits are
// truncated, never rounded up.
func parseFixedPoint(s string, precision int) int64 {
	if s == "" || s == "null" {
		return 0
	}

	parts := []string{s}
	if dotIdx := strings.IndexByte(s, '.'); dotIdx != -1 {
		parts = []string{s[:dotIdx], s[dotIdx+1:]}
	}

	intPart, _ := strconv.ParseInt(parts[0], 10, 64)
	for i := 0; i < precision; i++ {
		intPart *= 10
	}

	if len(parts) < 2 {
		return intPart
	}

	fracStr := parts[1]
	if len(fracStr) > precision {
		fracStr = fracStr[:precision]
	}
	fracPart, _ := strconv.ParseInt(fracStr, 10, 64)

	// Pad fraction part with zeros if shorter than precision
	for i := len(fracStr); i < precision; i++ {
		fracPart *= 10
	}

	if strings.HasPrefix(parts[0], "-") {
		return intPart - fracPart
	}
	return intPart + fracPart
}
