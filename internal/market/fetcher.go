package market

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"trading-advisor-bot/internal/logging"
)

const (
	// DefaultFetchBudget bounds a single fetch including fallback.
	DefaultFetchBudget = 15 * time.Second
	// MinWindow is the smallest usable candle window; shorter primary
	// results trigger the fallback exchange, and shorter final results are
	// reported as insufficient.
	MinWindow = 20
)

// ExchangeClient is the per-exchange kline surface consumed by the fetcher.
type ExchangeClient interface {
	Klines(ctx context.Context, symbol string, tf Timeframe, limit int, market MarketType) ([]Candle, error)
}

// FetchRequest describes one candle window pull.
type FetchRequest struct {
	Symbol    string
	Timeframe Timeframe
	Limit     int
	Exchange  Exchange
	Market    MarketType
	UseCache  bool
}

// FetchResult carries the window and the exchange that actually served it,
// which may differ from the requested one after fallback.
type FetchResult struct {
	Candles  []Candle
	Exchange Exchange
	Market   MarketType
	FromCache bool
}

// Fetcher pulls candle windows with disk caching, per-exchange pacing (inside
// the clients) and a one-shot alternate-exchange fallback.
type Fetcher struct {
	clients     map[Exchange]ExchangeClient
	cache       *DiskCache
	budget      time.Duration
	minRequired int
	logger      *logging.Logger
}

// NewFetcher creates a fetcher over the given clients. cache may be nil to
// disable disk caching.
func NewFetcher(clients map[Exchange]ExchangeClient, cache *DiskCache, logger *logging.Logger) *Fetcher {
	if logger == nil {
		logger = logging.WithComponent("market-fetcher")
	}
	return &Fetcher{
		clients:     clients,
		cache:       cache,
		budget:      DefaultFetchBudget,
		minRequired: MinWindow,
		logger:      logger,
	}
}

// SetBudget overrides the per-fetch time budget.
func (f *Fetcher) SetBudget(d time.Duration) {
	f.budget = d
}

// Fetch pulls a candle window per the request. It never blocks past the
// fetch budget; timeouts surface as ErrTransientNetwork so the orchestrator
// retries cleanly.
func (f *Fetcher) Fetch(ctx context.Context, req FetchRequest) (*FetchResult, error) {
	req.Symbol = strings.ToUpper(req.Symbol)
	if !req.Timeframe.Valid() {
		return nil, fmt.Errorf("unsupported timeframe: %q", req.Timeframe)
	}
	if req.Limit <= 0 {
		req.Limit = 100
	}
	if req.Exchange == "" {
		req.Exchange = ExchangeBinance
	}
	if req.Market == "" {
		req.Market = MarketAuto
	}

	if req.UseCache && f.cache != nil {
		if candles, ok := f.cache.Load(req.Exchange, req.Symbol, req.Timeframe, req.Limit); ok {
			return &FetchResult{
				Candles:   candles,
				Exchange:  req.Exchange,
				Market:    req.Market,
				FromCache: true,
			}, nil
		}
	}

	ctx, cancel := context.WithTimeout(ctx, f.budget)
	defer cancel()

	candles, market, primaryErr := f.fetchFrom(ctx, req.Exchange, req)
	if primaryErr != nil || len(candles) < MinWindow {
		alt := req.Exchange.Alternate()
		if primaryErr != nil {
			f.logger.Warn("primary exchange fetch failed, trying fallback",
				"symbol", req.Symbol, "exchange", string(req.Exchange),
				"fallback", string(alt), "error", primaryErr)
		}
		altCandles, altMarket, altErr := f.fetchFrom(ctx, alt, req)
		if altErr == nil && len(altCandles) > len(candles) {
			candles, market = altCandles, altMarket
			req.Exchange = alt
			primaryErr = nil
		}
	}

	if primaryErr != nil {
		return nil, primaryErr
	}

	if len(candles) < f.minRequired {
		return nil, fmt.Errorf("%w: %s %s has %d candles, need %d",
			ErrInsufficientData, req.Symbol, req.Timeframe, len(candles), f.minRequired)
	}

	if f.cache != nil {
		if err := f.cache.Store(req.Exchange, req.Symbol, req.Timeframe, candles); err != nil {
			f.logger.Warn("failed to store candle cache", "symbol", req.Symbol, "error", err)
		}
	}

	return &FetchResult{Candles: candles, Exchange: req.Exchange, Market: market}, nil
}

// LatestPrice returns the close of the most recent 1-minute candle. Cache is
// bypassed: alert evaluation needs live prices.
func (f *Fetcher) LatestPrice(ctx context.Context, symbol string, exchange Exchange, market MarketType) (float64, error) {
	res, err := f.fetchSmall(ctx, FetchRequest{
		Symbol:    symbol,
		Timeframe: TF1m,
		Limit:     2,
		Exchange:  exchange,
		Market:    market,
	})
	if err != nil {
		return 0, err
	}
	return LastClose(res), nil
}

// fetchSmall is Fetch without the minimum-window check, for tiny pulls.
func (f *Fetcher) fetchSmall(ctx context.Context, req FetchRequest) ([]Candle, error) {
	req.Symbol = strings.ToUpper(req.Symbol)
	if req.Exchange == "" {
		req.Exchange = ExchangeBinance
	}
	if req.Market == "" {
		req.Market = MarketAuto
	}

	ctx, cancel := context.WithTimeout(ctx, f.budget)
	defer cancel()

	candles, _, err := f.fetchFrom(ctx, req.Exchange, req)
	if err != nil || len(candles) == 0 {
		altCandles, _, altErr := f.fetchFrom(ctx, req.Exchange.Alternate(), req)
		if altErr == nil && len(altCandles) > 0 {
			return altCandles, nil
		}
		if err == nil {
			err = fmt.Errorf("%w: empty window for %s", ErrInsufficientData, req.Symbol)
		}
		return nil, err
	}
	return candles, nil
}

// fetchFrom resolves the market mode for one exchange and issues the call.
// Auto mode tries futures first, then spot; an explicit mode is honored and
// never crosses market types.
func (f *Fetcher) fetchFrom(ctx context.Context, exchange Exchange, req FetchRequest) ([]Candle, MarketType, error) {
	client, ok := f.clients[exchange]
	if !ok {
		return nil, req.Market, fmt.Errorf("no client configured for exchange %q", exchange)
	}

	markets := []MarketType{req.Market}
	if req.Market == MarketAuto {
		markets = []MarketType{MarketFutures, MarketSpot}
	}

	var lastErr error
	for _, market := range markets {
		candles, err := client.Klines(ctx, req.Symbol, req.Timeframe, req.Limit, market)
		if err != nil {
			lastErr = err
			if errors.Is(err, ErrSymbolUnknown) {
				continue
			}
			return nil, market, err
		}
		if len(candles) > 0 {
			return candles, market, nil
		}
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("%w: empty window for %s on %s", ErrInsufficientData, req.Symbol, exchange)
	}
	return nil, req.Market, lastErr
}
