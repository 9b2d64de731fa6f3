// Package screener ranks a symbol universe with a cheap local score and an
// optional LLM quick score.
package screener

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"trading-advisor-bot/config"
	"trading-advisor-bot/internal/indicator"
	"trading-advisor-bot/internal/logging"
	"trading-advisor-bot/internal/market"
	"trading-advisor-bot/internal/planner"
)

// Completer is the LLM surface Stage B needs.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// CandleSource supplies the Stage A windows.
type CandleSource interface {
	Fetch(ctx context.Context, req market.FetchRequest) (*market.FetchResult, error)
}

// Request describes one screening run.
type Request struct {
	Universe  []string
	Timeframe market.Timeframe
	MinScore  float64
	Exchange  market.Exchange
	Market    market.MarketType
	UseLLM    bool
}

// QuickScore is the Stage B LLM verdict for one symbol.
type QuickScore struct {
	Score    float64  `json:"score"` // 0..10
	Trend    string   `json:"trend"`
	Signals  []string `json:"signals"`
	Analysis string   `json:"analysis"`
}

// Result is one ranked symbol.
type Result struct {
	Symbol     string          `json:"symbol"`
	Timeframe  market.Timeframe `json:"timeframe"`
	LocalScore float64         `json:"local_score"`
	Breakdown  ScoreBreakdown  `json:"breakdown"`
	Quick      QuickScore      `json:"quick"`
	Score      float64         `json:"score"` // final rank, 0..100
	Price      float64         `json:"price"`
	FromCache  bool            `json:"from_cache"`
}

// Summary aggregates a screening run.
type Summary struct {
	Total       int              `json:"total"`
	AvgScore    float64          `json:"avg_score"`
	TopScore    float64          `json:"top_score"`
	Bullish     int              `json:"bullish"`
	Bearish     int              `json:"bearish"`
	Neutral     int              `json:"neutral"`
	Timeframe   market.Timeframe `json:"timeframe"`
	GeneratedAt time.Time        `json:"generated_at"`
}

// Report is the output of Run.
type Report struct {
	Results []Result `json:"results"`
	Summary Summary  `json:"summary"`
}

// Screener runs the two-stage pipeline.
type Screener struct {
	cfg    config.ScreenerConfig
	source CandleSource
	llm    Completer
	cache  *ScoreCache
	logger *logging.Logger
}

// New creates a screener. llm and cache may be nil; Stage B then falls back
// to neutral scores or is skipped.
func New(cfg config.ScreenerConfig, source CandleSource, llm Completer, cache *ScoreCache, logger *logging.Logger) *Screener {
	if logger == nil {
		logger = logging.WithComponent("screener")
	}
	if cfg.StageAGate <= 0 {
		cfg.StageAGate = DefaultGate
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 20
	}
	return &Screener{cfg: cfg, source: source, llm: llm, cache: cache, logger: logger}
}

const stageAFetchers = 4

// Run screens the universe and returns ranked results above MinScore,
// truncated to the configured maximum.
func (s *Screener) Run(ctx context.Context, req Request) (*Report, error) {
	universe := req.Universe
	if len(universe) == 0 {
		universe = s.cfg.Universe
	}
	if len(universe) == 0 {
		return nil, fmt.Errorf("screener universe is empty")
	}
	if !req.Timeframe.Valid() {
		return nil, fmt.Errorf("invalid screener timeframe %q", req.Timeframe)
	}

	start := time.Now()
	survivors := s.stageA(ctx, universe, req)
	s.logger.Info("stage A complete",
		"universe", len(universe), "survivors", len(survivors),
		"gate", s.cfg.StageAGate, "elapsed", time.Since(start).String())

	if req.UseLLM && s.cfg.QuickScoreLLM && s.llm != nil {
		s.stageB(ctx, survivors)
	}

	for i := range survivors {
		survivors[i].Score = finalScore(survivors[i], req.UseLLM && s.cfg.QuickScoreLLM && s.llm != nil)
	}

	filtered := survivors[:0]
	for _, r := range survivors {
		if r.Score >= req.MinScore {
			filtered = append(filtered, r)
		}
	}

	sort.Slice(filtered, func(i, j int) bool {
		if filtered[i].Score != filtered[j].Score {
			return filtered[i].Score > filtered[j].Score
		}
		return filtered[i].Symbol < filtered[j].Symbol
	})
	if len(filtered) > s.cfg.MaxResults {
		filtered = filtered[:s.cfg.MaxResults]
	}

	return &Report{
		Results: filtered,
		Summary: summarize(filtered, req.Timeframe),
	}, nil
}

// stageA fetches a 100-bar window per symbol and keeps those whose local
// score clears the gate. Fetching fans out over a small fixed worker set; the
// exchange pace limiter spaces the actual requests.
func (s *Screener) stageA(ctx context.Context, universe []string, req Request) []Result {
	type scored struct {
		result Result
		ok     bool
	}

	out := make([]scored, len(universe))
	sem := make(chan struct{}, stageAFetchers)
	var wg sync.WaitGroup

	for i, symbol := range universe {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, symbol string) {
			defer wg.Done()
			defer func() { <-sem }()

			res, err := s.source.Fetch(ctx, market.FetchRequest{
				Symbol:    symbol,
				Timeframe: req.Timeframe,
				Limit:     100,
				Exchange:  req.Exchange,
				Market:    req.Market,
				UseCache:  true,
			})
			if err != nil {
				s.logger.Debug("dropping symbol, fetch failed", "symbol", symbol, "error", err)
				return
			}

			breakdown := LocalScore(res.Candles)
			if breakdown.Total < s.cfg.StageAGate {
				return
			}
			out[i] = scored{
				result: Result{
					Symbol:     strings.ToUpper(symbol),
					Timeframe:  req.Timeframe,
					LocalScore: breakdown.Total,
					Breakdown:  breakdown,
					Price:      market.LastClose(res.Candles),
				},
				ok: true,
			}
		}(i, symbol)
	}
	wg.Wait()

	survivors := make([]Result, 0, len(universe))
	for _, sc := range out {
		if sc.ok {
			survivors = append(survivors, sc.result)
		}
	}
	return survivors
}

// stageB attaches LLM quick scores to the survivors, batch by batch, with a
// pause between batches. A failed call gets the neutral fallback so the run
// never stalls on the LLM.
func (s *Screener) stageB(ctx context.Context, survivors []Result) {
	batch := s.cfg.BatchSize
	for lo := 0; lo < len(survivors); lo += batch {
		hi := lo + batch
		if hi > len(survivors) {
			hi = len(survivors)
		}

		var wg sync.WaitGroup
		for i := lo; i < hi; i++ {
			wg.Add(1)
			go func(r *Result) {
				defer wg.Done()
				r.Quick, r.FromCache = s.quickScore(ctx, r)
			}(&survivors[i])
		}
		wg.Wait()

		if hi < len(survivors) {
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				for i := hi; i < len(survivors); i++ {
					survivors[i].Quick = neutralQuickScore()
				}
				return
			}
		}
	}
}

func (s *Screener) quickScore(ctx context.Context, r *Result) (QuickScore, bool) {
	if qs, ok := s.cache.Get(ctx, r.Symbol, r.Timeframe); ok {
		return qs, true
	}

	response, err := s.llm.Complete(ctx, quickScoreSystemPrompt, buildQuickScorePrompt(r))
	if err != nil {
		s.logger.Warn("quick score failed, using neutral fallback", "symbol", r.Symbol, "error", err)
		return neutralQuickScore(), false
	}

	var qs QuickScore
	if err := json.Unmarshal([]byte(stripCodeFences(response)), &qs); err != nil {
		s.logger.Warn("quick score unparseable, using neutral fallback", "symbol", r.Symbol, "error", err)
		return neutralQuickScore(), false
	}
	if qs.Score < 0 {
		qs.Score = 0
	}
	if qs.Score > 10 {
		qs.Score = 10
	}

	s.cache.Put(ctx, r.Symbol, r.Timeframe, qs)
	return qs, false
}

func neutralQuickScore() QuickScore {
	return QuickScore{Score: 5.0, Trend: "NEUTRAL", Analysis: "quick score unavailable"}
}

// finalScore blends the two stages when Stage B ran: 60% local, 40% LLM.
// Without Stage B the local score ranks alone.
func finalScore(r Result, withLLM bool) float64 {
	if !withLLM {
		return r.LocalScore
	}
	return 0.6*r.LocalScore + 0.4*r.Quick.Score*10
}

func summarize(results []Result, tf market.Timeframe) Summary {
	sum := Summary{
		Total:       len(results),
		Timeframe:   tf,
		GeneratedAt: time.Now().UTC(),
	}
	if len(results) == 0 {
		return sum
	}

	total := 0.0
	for _, r := range results {
		total += r.Score
		if r.Score > sum.TopScore {
			sum.TopScore = r.Score
		}
		switch r.Breakdown.Direction {
		case indicator.TrendBullish:
			sum.Bullish++
		case indicator.TrendBearish:
			sum.Bearish++
		default:
			sum.Neutral++
		}
	}
	sum.AvgScore = total / float64(len(results))
	return sum
}

const quickScoreSystemPrompt = `You are a cryptocurrency screening assistant. Respond with valid JSON only:
{"score": 0.0-10.0, "trend": "BULLISH"|"BEARISH"|"NEUTRAL", "signals": ["..."], "analysis": "one sentence"}
Score the setup quality from the supplied indicator snapshot. Be terse.`

func buildQuickScorePrompt(r *Result) string {
	var b strings.Builder
	prec := planner.PricePrecision(r.Price)
	fmt.Fprintf(&b, "Symbol: %s\nTimeframe: %s\nPrice: %.*f\n", r.Symbol, r.Timeframe, prec, r.Price)
	fmt.Fprintf(&b, "Local score: %.0f/100 (trend %.0f, rsi %.0f, macd %.0f, adx %.0f, volume %.0f, price action %.0f)\n",
		r.Breakdown.Total, r.Breakdown.Trend, r.Breakdown.RSI, r.Breakdown.MACD,
		r.Breakdown.ADX, r.Breakdown.Volume, r.Breakdown.PriceAction)
	fmt.Fprintf(&b, "Local trend: %s\n", r.Breakdown.Direction)
	b.WriteString("Return the quick score JSON now.")
	return b.String()
}

// stripCodeFences removes ```json fences some models wrap around JSON-mode
// output.
func stripCodeFences(response string) string {
	response = strings.TrimSpace(response)
	if strings.HasPrefix(response, "```") {
		response = strings.TrimPrefix(response, "```json")
		response = strings.TrimPrefix(response, "```")
		if idx := strings.LastIndex(response, "```"); idx >= 0 {
			response = response[:idx]
		}
	}
	return strings.TrimSpace(response)
}
