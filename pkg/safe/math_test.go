package safe

import (
	"math"
	"testing"
)

func TestSafeMath(t *testing.T) {
	tests := []struct {
		name string
		op   func(int64, int64) int64
		a, b int64
		want int64
	}{
		{"Add", Add, 10, 20, 30},
		{"Add Boundary", Add, math.MaxInt64 - 1, 1, math.MaxInt64},
		{"Sub", Sub, 30, 10, 20},
		{"Sub Negative", Sub, -5, 10, -15},
		{"Mul", Mul, 5, 6, 30},
		{"Mul Zero", Mul, 0, math.MaxInt64, 0},
		{"Div", Div, 100, 4, 25},
		{"Div Truncates", Div, 7, 2, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.op(tt.a, tt.b)
			if got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestMathPanic(t *testing.T) {
	cases := []struct {
		name string
		fn   func()
	}{
		{"Add Overflow", func() { Add(math.MaxInt64, 1) }},
		{"Sub Underflow", func() { Sub(math.MinInt64, 1) }},
		{"Mul Overflow", func() { Mul(math.MaxInt64, 2) }},
		{"Div By Zero", func() { Div(10, 0) }},
		{"Div Overflow", func() { Div(math.MinInt64, -1) }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			defer func() {
				if r := recover(); r == nil {
					t.Error("Should have panicked")
				}
			}()
			tc.fn()
		})
	}
}
