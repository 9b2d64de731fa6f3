package market

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

// fakeClient scripts per-market responses for fetcher tests.
type fakeClient struct {
	candles map[MarketType][]Candle
	err     error
	calls   int
}

func (f *fakeClient) Klines(ctx context.Context, symbol string, tf Timeframe, limit int, market MarketType) ([]Candle, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.candles[market], nil
}

func TestFetchFallsBackOnPrimaryError(t *testing.T) {
	primary := &fakeClient{err: fmt.Errorf("%w: status 502", ErrTransientNetwork)}
	fallback := &fakeClient{candles: map[MarketType][]Candle{MarketFutures: cacheWindow(40)}}

	f := NewFetcher(map[Exchange]ExchangeClient{
		ExchangeBybit:   primary,
		ExchangeBinance: fallback,
	}, nil, nil)

	res, err := f.Fetch(context.Background(), FetchRequest{
		Symbol:    "BTCUSDT",
		Timeframe: TF4h,
		Limit:     40,
		Exchange:  ExchangeBybit,
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if res.Exchange != ExchangeBinance {
		t.Errorf("served by %s, want fallback binance", res.Exchange)
	}
	if len(res.Candles) != 40 {
		t.Errorf("got %d candles, want 40", len(res.Candles))
	}
}

func TestFetchFallsBackOnShortWindow(t *testing.T) {
	primary := &fakeClient{candles: map[MarketType][]Candle{MarketFutures: cacheWindow(5)}}
	fallback := &fakeClient{candles: map[MarketType][]Candle{MarketFutures: cacheWindow(100)}}

	f := NewFetcher(map[Exchange]ExchangeClient{
		ExchangeBinance: primary,
		ExchangeBybit:   fallback,
	}, nil, nil)

	res, err := f.Fetch(context.Background(), FetchRequest{
		Symbol:    "ETHUSDT",
		Timeframe: TF1h,
		Limit:     100,
		Exchange:  ExchangeBinance,
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if res.Exchange != ExchangeBybit {
		t.Errorf("short primary window should fall back, served by %s", res.Exchange)
	}
}

func TestFetchInsufficientDataAfterFallback(t *testing.T) {
	small := map[MarketType][]Candle{MarketFutures: cacheWindow(3)}
	f := NewFetcher(map[Exchange]ExchangeClient{
		ExchangeBinance: &fakeClient{candles: small},
		ExchangeBybit:   &fakeClient{candles: small},
	}, nil, nil)

	_, err := f.Fetch(context.Background(), FetchRequest{
		Symbol:    "TINYUSDT",
		Timeframe: TF1h,
		Limit:     100,
	})
	if !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("got %v, want ErrInsufficientData", err)
	}
}

func TestFetchAutoTriesFuturesThenSpot(t *testing.T) {
	client := &fakeClient{candles: map[MarketType][]Candle{
		MarketSpot: cacheWindow(60),
		// no futures data
	}}
	f := NewFetcher(map[Exchange]ExchangeClient{
		ExchangeBinance: client,
		ExchangeBybit:   &fakeClient{err: fmt.Errorf("%w", ErrTransientNetwork)},
	}, nil, nil)

	res, err := f.Fetch(context.Background(), FetchRequest{
		Symbol:    "BTCUSDT",
		Timeframe: TF1h,
		Limit:     60,
		Exchange:  ExchangeBinance,
		Market:    MarketAuto,
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if res.Market != MarketSpot {
		t.Errorf("auto mode served %s, want spot after empty futures", res.Market)
	}
}

func TestFetchExplicitMarketHonored(t *testing.T) {
	client := &fakeClient{candles: map[MarketType][]Candle{
		MarketFutures: cacheWindow(60),
		// spot intentionally empty
	}}
	f := NewFetcher(map[Exchange]ExchangeClient{
		ExchangeBinance: client,
		ExchangeBybit:   &fakeClient{},
	}, nil, nil)

	_, err := f.Fetch(context.Background(), FetchRequest{
		Symbol:    "BTCUSDT",
		Timeframe: TF1h,
		Limit:     60,
		Exchange:  ExchangeBinance,
		Market:    MarketSpot,
	})
	if err == nil {
		t.Fatal("explicit spot request must not cross into futures data")
	}
}

func TestFetchServesFreshCache(t *testing.T) {
	cache := NewDiskCache(t.TempDir(), nil)
	if err := cache.Store(ExchangeBinance, "BTCUSDT", TF1h, cacheWindow(50)); err != nil {
		t.Fatal(err)
	}

	network := &fakeClient{candles: map[MarketType][]Candle{MarketFutures: cacheWindow(50)}}
	f := NewFetcher(map[Exchange]ExchangeClient{ExchangeBinance: network}, cache, nil)

	res, err := f.Fetch(context.Background(), FetchRequest{
		Symbol:    "BTCUSDT",
		Timeframe: TF1h,
		Limit:     50,
		Exchange:  ExchangeBinance,
		UseCache:  true,
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !res.FromCache {
		t.Error("expected the fresh cache file to serve the request")
	}
	if network.calls != 0 {
		t.Errorf("network called %d times on a cache hit", network.calls)
	}
}

func TestLatestPrice(t *testing.T) {
	window := cacheWindow(2)
	client := &fakeClient{candles: map[MarketType][]Candle{MarketFutures: window}}
	f := NewFetcher(map[Exchange]ExchangeClient{
		ExchangeBinance: client,
		ExchangeBybit:   &fakeClient{},
	}, nil, nil)

	price, err := f.LatestPrice(context.Background(), "btcusdt", ExchangeBinance, MarketAuto)
	if err != nil {
		t.Fatalf("LatestPrice: %v", err)
	}
	if want := window[len(window)-1].Close; price != want {
		t.Errorf("price %v, want %v", price, want)
	}
}
