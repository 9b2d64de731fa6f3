package planner

import (
	"context"
	"errors"
	"testing"
	"time"

	"trading-advisor-bot/internal/market"
)

type fakeCompleter struct {
	response string
	err      error
}

func (f *fakeCompleter) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return f.response, f.err
}

func planWindow(start, step float64, n int) []market.Candle {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	out := make([]market.Candle, n)
	for i := range out {
		c := start + step*float64(i)
		out[i] = market.Candle{
			OpenTime: base.Add(time.Duration(i) * 4 * time.Hour),
			Open:     c,
			High:     c + 0.5,
			Low:      c - 0.5,
			Close:    c,
			Volume:   1000,
		}
	}
	return out
}

func TestValidityFor(t *testing.T) {
	tests := []struct {
		tf   market.Timeframe
		want time.Duration
	}{
		{market.TF1h, 3 * time.Hour},
		{market.TF2h, 4 * time.Hour},
		{market.TF4h, 6 * time.Hour},
		{market.TF1d, 12 * time.Hour},
		{market.TF15m, time.Hour},      // 4x15m clamped up to 1h
		{market.TF30m, 2 * time.Hour},  // 4x30m
		{market.TF1w, 24 * time.Hour},  // 4x1w clamped down to 24h
	}
	for _, tt := range tests {
		if got := ValidityFor(tt.tf); got != tt.want {
			t.Errorf("ValidityFor(%s) = %v, want %v", tt.tf, got, tt.want)
		}
	}
}

func TestNormalizeSignal(t *testing.T) {
	tests := []struct {
		in    string
		want  Signal
		scalp bool
	}{
		{"BUY", SignalBuy, false},
		{"long", SignalBuy, false},
		{"SELL", SignalSell, false},
		{"Short", SignalSell, false},
		{"SCALP_LONG", SignalBuy, true},
		{"scalp_short", SignalSell, true},
		{"WAIT", SignalWait, false},
		{"  hold  ", SignalHold, false},
		{"nonsense", SignalHold, false},
		{"", SignalHold, false},
	}
	for _, tt := range tests {
		got, scalp := normalizeSignal(tt.in)
		if got != tt.want || scalp != tt.scalp {
			t.Errorf("normalizeSignal(%q) = (%v, %v), want (%v, %v)", tt.in, got, scalp, tt.want, tt.scalp)
		}
	}
}

func TestStripMarkdownCodeBlock(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare json", `{"signal":"BUY"}`, `{"signal":"BUY"}`},
		{"json fence", "```json\n{\"signal\":\"BUY\"}\n```", `{"signal":"BUY"}`},
		{"plain fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"surrounding whitespace", "  ```json\n{}\n```  ", `{}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stripMarkdownCodeBlock(tt.in); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func validBuyPlan() *TradingPlan {
	return &TradingPlan{
		Signal:       SignalBuy,
		CurrentPrice: 100,
		Entries:      []Entry{{Level: 99, Weight: 1}},
		TakeProfits:  []TakeProfit{{Level: 107}},
		StopLoss:     95,
	}
}

func TestValidatePassesCleanBuy(t *testing.T) {
	if err := validBuyPlan().Validate(); err != nil {
		t.Errorf("clean BUY plan rejected: %v", err)
	}
}

func TestValidateNonActionablePassesTrivially(t *testing.T) {
	for _, sig := range []Signal{SignalHold, SignalWait} {
		p := &TradingPlan{Signal: sig}
		if err := p.Validate(); err != nil {
			t.Errorf("%s plan with no levels rejected: %v", sig, err)
		}
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*TradingPlan)
	}{
		{"no entries", func(p *TradingPlan) { p.Entries = nil }},
		{"no take profits", func(p *TradingPlan) { p.TakeProfits = nil }},
		{"entry too far above price", func(p *TradingPlan) { p.Entries[0].Level = 102 }},
		{"stop above entry", func(p *TradingPlan) { p.StopLoss = 99.5 }},
		{"take profit below entry", func(p *TradingPlan) { p.TakeProfits[0].Level = 98 }},
		{"reward risk below two", func(p *TradingPlan) { p.TakeProfits[0].Level = 104 }},
		{"weights off", func(p *TradingPlan) { p.Entries[0].Weight = 0.8 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validBuyPlan()
			tt.mutate(p)
			if err := p.Validate(); err == nil {
				t.Error("expected a validation error")
			}
		})
	}
}

func TestValidateSellDirections(t *testing.T) {
	p := &TradingPlan{
		Signal:       SignalSell,
		CurrentPrice: 100,
		Entries:      []Entry{{Level: 101, Weight: 1}},
		TakeProfits:  []TakeProfit{{Level: 93}},
		StopLoss:     105,
	}
	if err := p.Validate(); err != nil {
		t.Errorf("clean SELL plan rejected: %v", err)
	}

	p.StopLoss = 100.5 // not above entry
	if err := p.Validate(); err == nil {
		t.Error("SELL stop below entry must be rejected")
	}
}

func TestGenerateValidBuyPlan(t *testing.T) {
	window := planWindow(100, 1, 60) // steady uptrend, price 159
	llm := &fakeCompleter{response: `{
		"signal": "BUY", "trend": "BULLISH", "confidence": 0.8,
		"reason": "breakout continuation",
		"entries": [{"level": 158, "weight": 1, "risk_score": 4}],
		"take_profits": [{"level": 166, "reward_ratio": 2}],
		"stop_loss": 154
	}`}

	g := NewGenerator(llm, nil, nil)
	plan, err := g.Generate(context.Background(), PlanRequest{
		Symbol: "btcusdt", Timeframe: market.TF4h, Window: window,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if plan.Signal != SignalBuy {
		t.Errorf("signal = %v, want BUY", plan.Signal)
	}
	if plan.Symbol != "BTCUSDT" {
		t.Errorf("symbol = %q, want uppercased", plan.Symbol)
	}
	if plan.CurrentPrice != 159 {
		t.Errorf("current price = %v, want last close 159", plan.CurrentPrice)
	}
	if want := plan.GeneratedAt.Add(6 * time.Hour); !plan.ExpiresAt.Equal(want) {
		t.Errorf("expiry = %v, want generated+6h", plan.ExpiresAt)
	}
}

func TestGenerateCounterTrendBecomesWait(t *testing.T) {
	window := planWindow(100, 1, 60) // primary trend bullish
	llm := &fakeCompleter{response: `{
		"signal": "SELL", "confidence": 0.7, "reason": "local weakness",
		"entries": [{"level": 160, "weight": 1}],
		"take_profits": [{"level": 148}],
		"stop_loss": 165
	}`}

	g := NewGenerator(llm, nil, nil)
	plan, err := g.Generate(context.Background(), PlanRequest{
		Symbol: "ETHUSDT", Timeframe: market.TF4h, Window: window,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if plan.Signal != SignalWait {
		t.Errorf("counter-trend SELL against an uptrend = %v, want WAIT", plan.Signal)
	}
	if len(plan.Entries) != 0 || len(plan.TakeProfits) != 0 {
		t.Error("WAIT plan must carry no levels")
	}
}

func TestGenerateScalpSkipsTrendOverride(t *testing.T) {
	window := planWindow(260, -1, 60) // primary trend bearish, price 201
	llm := &fakeCompleter{response: `{
		"signal": "SCALP_LONG", "confidence": 0.6, "reason": "support bounce",
		"entries": [{"level": 200.5, "weight": 1}],
		"take_profits": [{"level": 206}],
		"stop_loss": 198
	}`}

	g := NewGenerator(llm, nil, nil)
	plan, err := g.Generate(context.Background(), PlanRequest{
		Symbol: "SOLUSDT", Timeframe: market.TF1h, Window: window,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if plan.Signal != SignalBuy || !plan.Scalp {
		t.Errorf("got (%v, scalp=%v), want scalp BUY untouched by trend authority", plan.Signal, plan.Scalp)
	}
}

func TestGenerateCoercesInvalidPlanToHold(t *testing.T) {
	window := planWindow(100, 1, 60)
	// Stop above entry on a BUY fails validation.
	llm := &fakeCompleter{response: `{
		"signal": "BUY", "confidence": 0.9, "reason": "x",
		"entries": [{"level": 158, "weight": 1}],
		"take_profits": [{"level": 166}],
		"stop_loss": 159
	}`}

	g := NewGenerator(llm, nil, nil)
	plan, err := g.Generate(context.Background(), PlanRequest{
		Symbol: "BTCUSDT", Timeframe: market.TF4h, Window: window,
	})
	if err != nil {
		t.Fatalf("validation failure must not surface as an error, got %v", err)
	}
	if plan.Signal != SignalHold {
		t.Errorf("signal = %v, want HOLD after failed validation", plan.Signal)
	}
}

func TestGenerateFailures(t *testing.T) {
	window := planWindow(100, 1, 60)
	g := NewGenerator(&fakeCompleter{response: "not json at all"}, nil, nil)
	if _, err := g.Generate(context.Background(), PlanRequest{Symbol: "X", Timeframe: market.TF1h, Window: window}); !errors.Is(err, ErrPlanGenerationFailed) {
		t.Errorf("garbage response: got %v, want ErrPlanGenerationFailed", err)
	}

	g = NewGenerator(&fakeCompleter{err: errors.New("upstream down")}, nil, nil)
	if _, err := g.Generate(context.Background(), PlanRequest{Symbol: "X", Timeframe: market.TF1h, Window: window}); !errors.Is(err, ErrPlanGenerationFailed) {
		t.Errorf("llm error: got %v, want ErrPlanGenerationFailed", err)
	}

	if _, err := g.Generate(context.Background(), PlanRequest{Symbol: "X", Timeframe: market.TF1h}); !errors.Is(err, ErrPlanGenerationFailed) {
		t.Errorf("empty window: got %v, want ErrPlanGenerationFailed", err)
	}
}

func TestParsePlanSingleEntryWeightDefaults(t *testing.T) {
	g := NewGenerator(nil, nil, nil)
	snap := marketSnapshot{Symbol: "BTCUSDT", Timeframe: market.TF1h, CurrentPrice: 100}
	plan, err := g.parsePlan(`{
		"signal": "BUY",
		"entries": [{"level": 99}],
		"take_profits": [{"level": 107}],
		"stop_loss": 95
	}`, snap)
	if err != nil {
		t.Fatalf("parsePlan: %v", err)
	}
	if plan.Entries[0].Weight != 1 {
		t.Errorf("single entry weight = %v, want defaulted to 1", plan.Entries[0].Weight)
	}
}

func TestPricePrecision(t *testing.T) {
	tests := []struct {
		price float64
		want  int
	}{
		{65000, 2},
		{1000, 2},
		{3.5, 4},
		{1, 4},
		{0.0042, 6},
	}
	for _, tt := range tests {
		if got := PricePrecision(tt.price); got != tt.want {
			t.Errorf("PricePrecision(%v) = %d, want %d", tt.price, got, tt.want)
		}
	}
}
