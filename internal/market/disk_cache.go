package market

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"trading-advisor-bot/internal/logging"
)

const cacheStampLayout = "20060102T150405Z"

// DiskCache stores candle windows as human-inspectable CSV files under
// {root}/{exchange}/{exchange}_{symbol}_{timeframe}_{stamp}.csv. Concurrent
// writers are safe because filenames carry a UTC timestamp; the pruner keeps
// only the newest file per key and tolerates races.
type DiskCache struct {
	root   string
	logger *logging.Logger
}

// NewDiskCache creates a cache rooted at root.
func NewDiskCache(root string, logger *logging.Logger) *DiskCache {
	if logger == nil {
		logger = logging.WithComponent("candle-cache")
	}
	return &DiskCache{root: root, logger: logger}
}

// Load returns the tail of the newest fresh cached window for the key, if one
// exists with at least limit rows. Freshness is one timeframe duration from
// the file's mtime.
func (c *DiskCache) Load(exchange Exchange, symbol string, tf Timeframe, limit int) ([]Candle, bool) {
	path, mtime, ok := c.newestFile(exchange, symbol, tf)
	if !ok {
		return nil, false
	}

	if time.Since(mtime) >= tf.Duration() {
		return nil, false
	}

	candles, err := readCandleCSV(path)
	if err != nil {
		c.logger.Warn("failed to read cache file", "path", path, "error", err)
		return nil, false
	}

	if len(candles) < limit {
		return nil, false
	}

	return Tail(candles, limit), true
}

// Store writes a new cache file for the key and prunes older files for the
// same key in the background.
func (c *DiskCache) Store(exchange Exchange, symbol string, tf Timeframe, candles []Candle) error {
	dir := filepath.Join(c.root, string(exchange))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create cache dir: %w", err)
	}

	stamp := time.Now().UTC().Format(cacheStampLayout)
	name := fmt.Sprintf("%s_%s_%s_%s.csv", exchange, symbol, tf, stamp)
	path := filepath.Join(dir, name)

	if err := writeCandleCSV(path, candles); err != nil {
		return err
	}

	go c.prune(exchange, symbol, tf, path)

	return nil
}

// newestFile finds the most recently modified cache file for the key.
func (c *DiskCache) newestFile(exchange Exchange, symbol string, tf Timeframe) (string, time.Time, bool) {
	pattern := filepath.Join(c.root, string(exchange),
		fmt.Sprintf("%s_%s_%s_*.csv", exchange, symbol, tf))
	matches, err := filepath.Glob(pattern)
	if err != nil || len(matches) == 0 {
		return "", time.Time{}, false
	}

	var newest string
	var newestMtime time.Time
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			continue
		}
		if newest == "" || info.ModTime().After(newestMtime) {
			newest = m
			newestMtime = info.ModTime()
		}
	}

	if newest == "" {
		return "", time.Time{}, false
	}
	return newest, newestMtime, true
}

// prune removes all cache files for the key except keep. Missing-file errors
// are ignored; a concurrent pruner may have won.
func (c *DiskCache) prune(exchange Exchange, symbol string, tf Timeframe, keep string) {
	pattern := filepath.Join(c.root, string(exchange),
		fmt.Sprintf("%s_%s_%s_*.csv", exchange, symbol, tf))
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return
	}

	for _, m := range matches {
		if m == keep {
			continue
		}
		if err := os.Remove(m); err != nil && !os.IsNotExist(err) {
			c.logger.Debug("failed to prune cache file", "path", m, "error", err)
		}
	}
}

func writeCandleCSV(path string, candles []Candle) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create cache file: %w", err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	defer w.Flush()

	if err := w.Write([]string{"timestamp", "open", "high", "low", "close", "volume"}); err != nil {
		return fmt.Errorf("failed to write cache header: %w", err)
	}

	for _, c := range candles {
		row := []string{
			c.OpenTime.UTC().Format(time.RFC3339),
			strconv.FormatFloat(c.Open, 'f', -1, 64),
			strconv.FormatFloat(c.High, 'f', -1, 64),
			strconv.FormatFloat(c.Low, 'f', -1, 64),
			strconv.FormatFloat(c.Close, 'f', -1, 64),
			strconv.FormatFloat(c.Volume, 'f', -1, 64),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write cache row: %w", err)
		}
	}

	return nil
}

func readCandleCSV(path string) ([]Candle, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, err
	}

	if len(rows) < 1 {
		return nil, nil
	}

	candles := make([]Candle, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if len(row) < 6 {
			continue
		}
		ts, err := time.Parse(time.RFC3339, row[0])
		if err != nil {
			continue
		}
		candles = append(candles, Candle{
			OpenTime: ts,
			Open:     parseFloatStr(row[1]),
			High:     parseFloatStr(row[2]),
			Low:      parseFloatStr(row[3]),
			Close:    parseFloatStr(row[4]),
			Volume:   parseFloatStr(row[5]),
		})
	}

	return candles, nil
}
