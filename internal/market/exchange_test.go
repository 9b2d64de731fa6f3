package market

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestBinanceKlinesParsing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/klines" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("symbol"); got != "BTCUSDT" {
			t.Errorf("symbol = %s", got)
		}
		fmt.Fprint(w, `[
			[1709251200000,"62000.1","62500.0","61800.0","62400.5","123.4",1709254799999,"0",0,"0","0","0"],
			[1709254800000,"62400.5","63000.0","62300.0","62900.0","98.7",1709258399999,"0",0,"0","0","0"]
		]`)
	}))
	defer server.Close()

	client := NewBinanceClient(server.URL, server.URL, 5*time.Second, nil)
	candles, err := client.Klines(context.Background(), "BTCUSDT", TF1h, 2, MarketSpot)
	if err != nil {
		t.Fatalf("Klines: %v", err)
	}
	if len(candles) != 2 {
		t.Fatalf("got %d candles, want 2", len(candles))
	}
	if candles[0].Open != 62000.1 || candles[0].Close != 62400.5 {
		t.Errorf("first candle parsed wrong: %+v", candles[0])
	}
	if !candles[1].OpenTime.After(candles[0].OpenTime) {
		t.Error("candles not ascending by open time")
	}
}

func TestBinanceErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"rate limited", http.StatusTooManyRequests, `{}`, ErrRateLimited},
		{"teapot ban", 418, `{}`, ErrRateLimited},
		{"server error", http.StatusBadGateway, `{}`, ErrTransientNetwork},
		{"invalid symbol", http.StatusBadRequest, `{"code":-1121,"msg":"Invalid symbol."}`, ErrSymbolUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer server.Close()

			client := NewBinanceClient(server.URL, server.URL, 5*time.Second, nil)
			_, err := client.Klines(context.Background(), "BTCUSDT", TF1h, 10, MarketSpot)
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestBybitKlinesReversedToAscending(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v5/market/kline" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("category"); got != "linear" {
			t.Errorf("category = %s, want linear for futures", got)
		}
		// Bybit returns newest-first.
		fmt.Fprint(w, `{
			"retCode": 0, "retMsg": "OK",
			"result": {"category": "linear", "symbol": "BTCUSDT", "list": [
				["1709254800000","62400.5","63000.0","62300.0","62900.0","98.7","0"],
				["1709251200000","62000.1","62500.0","61800.0","62400.5","123.4","0"]
			]}
		}`)
	}))
	defer server.Close()

	client := NewBybitClient(server.URL, 5*time.Second, nil)
	candles, err := client.Klines(context.Background(), "BTCUSDT", TF1h, 2, MarketFutures)
	if err != nil {
		t.Fatalf("Klines: %v", err)
	}
	if len(candles) != 2 {
		t.Fatalf("got %d candles, want 2", len(candles))
	}
	if !candles[0].OpenTime.Before(candles[1].OpenTime) {
		t.Error("bybit candles not reversed to ascending order")
	}
	if candles[0].Open != 62000.1 {
		t.Errorf("oldest candle open = %v, want 62000.1", candles[0].Open)
	}
}

func TestBybitRetCodeClassification(t *testing.T) {
	tests := []struct {
		name    string
		retCode int
		want    error
	}{
		{"bad symbol", 10001, ErrSymbolUnknown},
		{"rate limited", 10006, ErrRateLimited},
		{"other", 10002, ErrTransientNetwork},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprintf(w, `{"retCode": %d, "retMsg": "x", "result": {"list": []}}`, tt.retCode)
			}))
			defer server.Close()

			client := NewBybitClient(server.URL, 5*time.Second, nil)
			_, err := client.Klines(context.Background(), "BTCUSDT", TF1h, 10, MarketSpot)
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}
