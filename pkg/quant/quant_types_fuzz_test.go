package quant

import (
	"strings"
	"testing"
)

// FuzzToPriceMicrosStr exercises the fixed-point string parser.
func FuzzToPriceMicrosStr(f *testing.F) {
	f.Add("0")
	f.Add("1.23")
	f.Add("-1.23")
	f.Add("0.000001")
	f.Add("9999999.999999")
	f.Add("null")
	f.Add("..")

	f.Fuzz(func(t *testing.T, s string) {
		// Must never panic on feed garbage.
		got := ToPriceMicrosStr(s)

		// A clean decimal with few digits must round-trip through String.
		if len(s) < 8 && got > 0 && !strings.HasPrefix(s, "-") {
			back := ToPriceMicrosStr(got.String())
			if back != got {
				t.Errorf("round trip mismatch: %q -> %d -> %d", s, got, back)
			}
		}
	})
}

// FuzzToQtySats covers the float boundary conversion.
func FuzzToQtySats(f *testing.F) {
	f.Add(0.0)
	f.Add(1.0)
	f.Add(0.00000001)
	f.Add(21000000.0) // Max BTC supply

	f.Fuzz(func(t *testing.T, val float64) {
		_ = ToQtySats(val)
	})
}

// FuzzParseTimeStamp checks invalid input returns an error, never a panic.
func FuzzParseTimeStamp(f *testing.F) {
	f.Add("0")
	f.Add("1704067200000") // 2024-01-01 00:00:00 UTC in ms
	f.Add("-1")
	f.Add("9223372036854775807")

	f.Fuzz(func(t *testing.T, s string) {
		_, _ = ParseTimeStamp(s)
	})
}
