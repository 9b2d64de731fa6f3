package market

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func cacheWindow(n int) []Candle {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]Candle, n)
	for i := range candles {
		price := 100 + float64(i)
		candles[i] = Candle{
			OpenTime: base.Add(time.Duration(i) * time.Hour),
			Open:     price,
			High:     price + 1,
			Low:      price - 1,
			Close:    price + 0.5,
			Volume:   1000,
		}
	}
	return candles
}

func TestDiskCacheRoundTrip(t *testing.T) {
	cache := NewDiskCache(t.TempDir(), nil)
	window := cacheWindow(30)

	if err := cache.Store(ExchangeBinance, "BTCUSDT", TF1h, window); err != nil {
		t.Fatalf("Store: %v", err)
	}

	loaded, ok := cache.Load(ExchangeBinance, "BTCUSDT", TF1h, 30)
	if !ok {
		t.Fatal("expected a fresh cache hit")
	}
	if len(loaded) != 30 {
		t.Fatalf("loaded %d candles, want 30", len(loaded))
	}
	for i, c := range loaded {
		want := window[i]
		if !c.OpenTime.Equal(want.OpenTime) || c.Open != want.Open || c.High != want.High ||
			c.Low != want.Low || c.Close != want.Close || c.Volume != want.Volume {
			t.Fatalf("candle %d round-trip mismatch: got %+v want %+v", i, c, want)
		}
	}
}

func TestDiskCacheServesTail(t *testing.T) {
	cache := NewDiskCache(t.TempDir(), nil)
	window := cacheWindow(50)

	if err := cache.Store(ExchangeBinance, "ETHUSDT", TF1h, window); err != nil {
		t.Fatalf("Store: %v", err)
	}

	loaded, ok := cache.Load(ExchangeBinance, "ETHUSDT", TF1h, 10)
	if !ok {
		t.Fatal("expected a cache hit")
	}
	if len(loaded) != 10 {
		t.Fatalf("loaded %d candles, want tail of 10", len(loaded))
	}
	if !loaded[9].OpenTime.Equal(window[49].OpenTime) {
		t.Error("tail does not end at the newest candle")
	}
}

func TestDiskCacheMissWhenTooFewRows(t *testing.T) {
	cache := NewDiskCache(t.TempDir(), nil)
	if err := cache.Store(ExchangeBybit, "BTCUSDT", TF4h, cacheWindow(20)); err != nil {
		t.Fatalf("Store: %v", err)
	}

	if _, ok := cache.Load(ExchangeBybit, "BTCUSDT", TF4h, 100); ok {
		t.Error("cache hit with fewer rows than requested")
	}
}

func TestDiskCacheStaleFileMisses(t *testing.T) {
	root := t.TempDir()
	cache := NewDiskCache(root, nil)
	if err := cache.Store(ExchangeBinance, "BTCUSDT", TF1h, cacheWindow(30)); err != nil {
		t.Fatalf("Store: %v", err)
	}

	// Age the file past one timeframe duration.
	matches, err := filepath.Glob(filepath.Join(root, "binance", "*.csv"))
	if err != nil || len(matches) != 1 {
		t.Fatalf("expected one cache file, got %v (%v)", matches, err)
	}
	old := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(matches[0], old, old); err != nil {
		t.Fatal(err)
	}

	if _, ok := cache.Load(ExchangeBinance, "BTCUSDT", TF1h, 30); ok {
		t.Error("stale cache file served as fresh")
	}
}

func TestDiskCachePruneKeepsNewest(t *testing.T) {
	root := t.TempDir()
	cache := NewDiskCache(root, nil)

	if err := cache.Store(ExchangeBinance, "BTCUSDT", TF1h, cacheWindow(25)); err != nil {
		t.Fatal(err)
	}
	// Distinct stamp for the second file.
	time.Sleep(1100 * time.Millisecond)
	if err := cache.Store(ExchangeBinance, "BTCUSDT", TF1h, cacheWindow(30)); err != nil {
		t.Fatal(err)
	}

	// Prune runs in the background.
	deadline := time.Now().Add(3 * time.Second)
	for {
		matches, _ := filepath.Glob(filepath.Join(root, "binance", "*.csv"))
		if len(matches) == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("prune left %d files, want 1", len(matches))
		}
		time.Sleep(50 * time.Millisecond)
	}

	loaded, ok := cache.Load(ExchangeBinance, "BTCUSDT", TF1h, 30)
	if !ok || len(loaded) != 30 {
		t.Fatalf("newest window not served after prune: ok=%v len=%d", ok, len(loaded))
	}
}
