package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"trader_go/pkg/quant"
)

func main() {
	fmt.Println("=== trader-go Fixed-Point Price Fetcher ===")
	fmt.Println()

	// 1. MEXC last trade price
	last := fetchLastPrice()
	fmt.Printf("📊 MEXC 현재가 BTCUSDT\n")
	fmt.Printf("   원본 문자열: %s\n", last.Raw)
	fmt.Printf("   PriceMicros: %d\n", last.Micros)
	fmt.Printf("   표시 가격:   $%s\n", formatUSD(last.Micros))
	fmt.Println()

	// 2. MEXC best bid/ask
	bid, ask := fetchBookTicker()
	fmt.Printf("📊 MEXC 호가 BTCUSDT\n")
	fmt.Printf("   매수 호가:   $%s (%d micros)\n", formatUSD(bid.Micros), bid.Micros)
	fmt.Printf("   매도 호가:   $%s (%d micros)\n", formatUSD(ask.Micros), ask.Micros)
	fmt.Println()

	// 3. MEXC latest 1m candle close
	closePx := fetchKlineClose()
	fmt.Printf("📊 MEXC 1분봉 종가 BTCUSDT\n")
	fmt.Printf("   원본 문자열: %s\n", closePx.Raw)
	fmt.Printf("   PriceMicros: %d\n", closePx.Micros)
	fmt.Println()

	// 4. Spread
	spread := ask.Micros - bid.Micros
	fmt.Printf("💹 스프레드: %d micros ($%.2f)\n", spread, float64(spread)/1_000_000)
	fmt.Println()
	fmt.Println("✅ 모든 가격이 float64 없이 int64로 처리됨!")
}

type PriceResult struct {
	Raw    string
	Micros quant.PriceMicros
}

func fetchLastPrice() PriceResult {
	resp, err := http.Get("https://api.mexc.com/api/v3/ticker/price?symbol=BTCUSDT")
	if err != nil {
		return PriceResult{Raw: "ERROR", Micros: 0}
	}
	defer resp.Body.Close()

	var data struct {
		Price string `json:"price"`
	}
	json.NewDecoder(resp.Body).Decode(&data)

	if data.Price == "" {
		return PriceResult{Raw: "NO_DATA", Micros: 0}
	}

	raw := strings.TrimRight(strings.TrimRight(data.Price, "0"), ".")
	return PriceResult{
		Raw:    raw,
		Micros: quant.ToPriceMicrosStr(data.Price),
	}
}

func fetchBookTicker() (bid, ask PriceResult) {
	resp, err := http.Get("https://api.mexc.com/api/v3/ticker/bookTicker?symbol=BTCUSDT")
	if err != nil {
		return PriceResult{Raw: "ERROR"}, PriceResult{Raw: "ERROR"}
	}
	defer resp.Body.Close()

	var data struct {
		BidPrice string `json:"bidPrice"`
		AskPrice string `json:"askPrice"`
	}
	json.NewDecoder(resp.Body).Decode(&data)

	if data.BidPrice == "" || data.AskPrice == "" {
		return PriceResult{Raw: "NO_DATA"}, PriceResult{Raw: "NO_DATA"}
	}

	bid = PriceResult{Raw: data.BidPrice, Micros: quant.ToPriceMicrosStr(data.BidPrice)}
	ask = PriceResult{Raw: data.AskPrice, Micros: quant.ToPriceMicrosStr(data.AskPrice)}
	return bid, ask
}

func fetchKlineClose() PriceResult {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get("https://api.mexc.com/api/v3/klines?symbol=BTCUSDT&interval=1m&limit=1")
	if err != nil {
		return PriceResult{Raw: "ERROR", Micros: 0}
	}
	defer resp.Body.Close()

	// Kline rows are positional arrays; close is index 4.
	var rows [][]any
	json.NewDecoder(resp.Body).Decode(&rows)

	if len(rows) == 0 || len(rows[0]) < 5 {
		return PriceResult{Raw: "NO_DATA", Micros: 0}
	}
	raw, ok := rows[0][4].(string)
	if !ok {
		return PriceResult{Raw: "BAD_TYPE", Micros: 0}
	}

	return PriceResult{
		Raw:    raw,
		Micros: quant.ToPriceMicrosStr(raw),
	}
}

func formatUSD(micros quant.PriceMicros) string {
	dollars := float64(micros) / 1_000_000
	return fmt.Sprintf("%.2f", dollars)
}
