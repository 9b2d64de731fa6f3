// Package orchestrator schedules and executes the recurring advisory work:
// alert checks, subscription signal checks, screenings and auto plans.
package orchestrator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"trading-advisor-bot/config"
	"trading-advisor-bot/internal/events"
	"trading-advisor-bot/internal/logging"
	"trading-advisor-bot/internal/market"
	"trading-advisor-bot/internal/notify"
	"trading-advisor-bot/internal/planner"
	"trading-advisor-bot/internal/screener"
	"trading-advisor-bot/internal/store"
	"trading-advisor-bot/internal/tracker"
)

const (
	fetchRetries   = 3
	fetchBackoff   = 2 * time.Second
	signalWindowTF = market.TF4h
	signalWindow   = 100
)

// Stats is a point-in-time view of the orchestrator for the status API.
type Stats struct {
	QueueDepth      int       `json:"queue_depth"`
	QueueDropped    int64     `json:"queue_dropped"`
	Workers         int       `json:"workers"`
	Processed       int64     `json:"processed"`
	Failed          int64     `json:"failed"`
	LastTick        time.Time `json:"last_tick"`
	LastSignalCheck time.Time `json:"last_signal_check"`
	Running         bool      `json:"running"`
}

// Orchestrator owns the tick scheduler and the worker pool.
type Orchestrator struct {
	cfg         config.SchedulerConfig
	screenerCfg config.ScreenerConfig

	fetcher   *market.Fetcher
	generator *planner.Generator
	screener  *screener.Screener
	tracker   *tracker.Tracker
	repo      *store.Repository
	notifier  *notify.Manager
	bus       *events.EventBus
	logger    *logging.Logger

	queue  *workQueue
	memory *SignalMemory

	mu              sync.Mutex
	lastSignalCheck time.Time
	lastTick        time.Time
	running         bool

	processed atomic.Int64
	failed    atomic.Int64

	stopChan chan struct{}
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// New wires the orchestrator.
func New(
	cfg config.SchedulerConfig,
	screenerCfg config.ScreenerConfig,
	fetcher *market.Fetcher,
	generator *planner.Generator,
	sc *screener.Screener,
	tr *tracker.Tracker,
	repo *store.Repository,
	notifier *notify.Manager,
	bus *events.EventBus,
	logger *logging.Logger,
) *Orchestrator {
	if logger == nil {
		logger = logging.WithComponent("orchestrator")
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Minute
	}
	if cfg.SignalCheckInterval <= 0 {
		cfg.SignalCheckInterval = 30 * time.Minute
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 8
	}

	return &Orchestrator{
		cfg:         cfg,
		screenerCfg: screenerCfg,
		fetcher:     fetcher,
		generator:   generator,
		screener:    sc,
		tracker:     tr,
		repo:        repo,
		notifier:    notifier,
		bus:         bus,
		logger:      logger,
		queue:       newWorkQueue(cfg.QueueCapacity),
		memory:      NewSignalMemory(),
		stopChan:    make(chan struct{}),
	}
}

// Start launches the workers and the tick loop.
func (o *Orchestrator) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	o.cancel = cancel

	o.mu.Lock()
	o.running = true
	o.mu.Unlock()

	for i := 0; i < o.cfg.WorkerCount; i++ {
		o.wg.Add(1)
		go o.worker(ctx, i)
	}

	o.wg.Add(1)
	go o.tickLoop(ctx)

	o.bus.Publish(events.Event{Type: events.EventServiceStarted, Data: map[string]interface{}{
		"workers": o.cfg.WorkerCount,
	}})
	o.logger.Info("orchestrator started",
		"workers", o.cfg.WorkerCount, "tick", o.cfg.TickInterval.String())
}

// Stop drains the loops and waits for workers to finish their current item.
func (o *Orchestrator) Stop() {
	close(o.stopChan)
	if o.cancel != nil {
		o.cancel()
	}
	o.wg.Wait()

	o.mu.Lock()
	o.running = false
	o.mu.Unlock()

	o.bus.Publish(events.Event{Type: events.EventServiceStopped})
	o.logger.Info("orchestrator stopped")
}

// Stats snapshots the orchestrator state.
func (o *Orchestrator) Stats() Stats {
	o.mu.Lock()
	defer o.mu.Unlock()
	return Stats{
		QueueDepth:      o.queue.Len(),
		QueueDropped:    o.queue.Dropped(),
		Workers:         o.cfg.WorkerCount,
		Processed:       o.processed.Load(),
		Failed:          o.failed.Load(),
		LastTick:        o.lastTick,
		LastSignalCheck: o.lastSignalCheck,
		Running:         o.running,
	}
}

// EnqueueScreening queues an on-demand screening for a user. Used by the API;
// on-demand runs get the larger auto-plan K.
func (o *Orchestrator) EnqueueScreening(chatID int64, tf market.Timeframe, minScore float64) bool {
	item := newWorkItem(KindScheduledScreening, PriorityScreening)
	item.ChatID = chatID
	item.Timeframe = tf
	item.MinScore = minScore
	item.TopK = o.screenerCfg.OnDemandTopK
	return o.queue.Enqueue(item)
}

func (o *Orchestrator) tickLoop(ctx context.Context) {
	defer o.wg.Done()

	ticker := time.NewTicker(o.cfg.TickInterval)
	defer ticker.Stop()

	o.tick(ctx, time.Now().UTC())
	for {
		select {
		case <-o.stopChan:
			return
		case now := <-ticker.C:
			o.tick(ctx, now.UTC())
		}
	}
}

// tick enqueues the minute's due work.
func (o *Orchestrator) tick(ctx context.Context, now time.Time) {
	o.mu.Lock()
	o.lastTick = now
	signalDue := now.Sub(o.lastSignalCheck) >= o.cfg.SignalCheckInterval
	if signalDue {
		o.lastSignalCheck = now
	}
	o.mu.Unlock()

	o.queue.Enqueue(newWorkItem(KindAlertCheck, PriorityAlert))

	if signalDue {
		users, err := o.repo.ListEnabledUsers(ctx)
		if err != nil {
			o.logger.Error("failed to list users for signal checks", "error", err)
		} else {
			for _, u := range users {
				item := newWorkItem(KindSignalCheck, PrioritySignal)
				item.ChatID = u.ChatID
				o.queue.Enqueue(item)
			}
		}
	}

	o.enqueueDueScreenings(ctx, now)
}

// enqueueDueScreenings queues every due schedule, doubling the interval
// outside active hours to reduce LLM spend.
func (o *Orchestrator) enqueueDueScreenings(ctx context.Context, now time.Time) {
	schedules, err := o.repo.ListEnabledSchedules(ctx)
	if err != nil {
		o.logger.Error("failed to list screening schedules", "error", err)
		return
	}

	offHours := now.Hour() < o.cfg.ActiveHoursStart || now.Hour() >= o.cfg.ActiveHoursEnd

	for _, s := range schedules {
		interval := time.Duration(s.IntervalMinutes) * time.Minute
		if offHours {
			interval *= 2
		}
		if s.LastRun != nil && s.LastRun.Add(interval).After(now) {
			continue
		}

		item := newWorkItem(KindScheduledScreening, PriorityScreening)
		item.ChatID = s.ChatID
		item.Timeframe = s.Timeframe
		item.MinScore = s.MinScore
		item.TopK = o.screenerCfg.ScheduledTopK
		if !o.queue.Enqueue(item) {
			o.logger.Warn("queue full, dropping screening", "chat_id", s.ChatID)
			continue
		}
		if err := o.repo.MarkScheduleRun(ctx, s.ID, now); err != nil {
			o.logger.Error("failed to mark schedule run", "schedule_id", s.ID, "error", err)
		}
	}
}

func (o *Orchestrator) worker(ctx context.Context, id int) {
	defer o.wg.Done()

	for {
		item, ok := o.queue.Dequeue(ctx)
		if !ok {
			return
		}
		o.runItem(ctx, id, item)
	}
}

// runItem executes one work item under its deadline. Panics stop at the
// worker boundary.
func (o *Orchestrator) runItem(ctx context.Context, workerID int, item WorkItem) {
	itemCtx, cancel := context.WithTimeout(ctx, item.Deadline())
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			o.failed.Add(1)
			o.logger.Error("worker panic recovered",
				"worker", workerID, "kind", string(item.Kind), "panic", r)
		}
	}()

	var err error
	switch item.Kind {
	case KindAlertCheck:
		err = o.handleAlertCheck(itemCtx)
	case KindSignalCheck:
		err = o.handleSignalCheck(itemCtx, item.ChatID)
	case KindScheduledScreening:
		err = o.handleScreening(itemCtx, item)
	case KindAutoPlan:
		err = o.handleAutoPlan(itemCtx, item)
	default:
		o.logger.Warn("unknown work kind", "kind", string(item.Kind))
		return
	}

	if err != nil {
		o.failed.Add(1)
		o.bus.Publish(events.Event{Type: events.EventWorkerError, Data: map[string]interface{}{
			"kind":  string(item.Kind),
			"error": err.Error(),
		}})
		o.logger.Error("work item failed",
			"worker", workerID, "kind", string(item.Kind), "chat_id", item.ChatID, "error", err)
		return
	}
	o.processed.Add(1)
}

// fetchWithRetry retries transient fetch failures with exponential backoff.
// SymbolUnknown and InsufficientData fail immediately.
func (o *Orchestrator) fetchWithRetry(ctx context.Context, req market.FetchRequest) (*market.FetchResult, error) {
	var lastErr error
	backoff := fetchBackoff
	for attempt := 1; attempt <= fetchRetries; attempt++ {
		res, err := o.fetcher.Fetch(ctx, req)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if !market.IsRetryable(err) || attempt == fetchRetries {
			break
		}

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		backoff *= 2
	}
	return nil, lastErr
}

// userFetchPrefs reads the user's exchange and market type preferences,
// defaulting to binance auto.
func (o *Orchestrator) userFetchPrefs(ctx context.Context, chatID int64) (market.Exchange, market.MarketType) {
	exchange := market.ExchangeBinance
	marketType := market.MarketAuto

	prefs, err := o.repo.GetPreferences(ctx, chatID)
	if err != nil {
		o.logger.Warn("failed to load preferences", "chat_id", chatID, "error", err)
		return exchange, marketType
	}

	if v := prefs[store.PrefDefaultExchange]; v == string(market.ExchangeBybit) {
		exchange = market.ExchangeBybit
	}
	switch prefs[store.PrefMarketType] {
	case string(market.MarketSpot):
		marketType = market.MarketSpot
	case string(market.MarketFutures):
		marketType = market.MarketFutures
	}
	return exchange, marketType
}

// handleAlertCheck scans pending alerts and fires the crossed ones. The send
// happens before the DB flip; a failed send leaves the alert pending so the
// next tick retries.
func (o *Orchestrator) handleAlertCheck(ctx context.Context) error {
	alerts, err := o.repo.ListPendingAlerts(ctx)
	if err != nil {
		return err
	}

	for _, alert := range alerts {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		exchange, marketType := o.userFetchPrefs(ctx, alert.ChatID)
		price, err := o.fetcher.LatestPrice(ctx, alert.Symbol, exchange, marketType)
		if err != nil {
			o.logger.Warn("alert price fetch failed",
				"alert_id", alert.ID, "symbol", alert.Symbol, "error", err)
			continue
		}
		if !alert.Crossed(price) {
			continue
		}

		if err := o.notifier.Send(ctx, &notify.Message{
			ChatID: alert.ChatID,
			Kind:   notify.KindAlert,
			Symbol: alert.Symbol,
			Text:   formatAlertMessage(alert, price),
		}); err != nil {
			o.logger.Warn("alert send failed, will retry next tick",
				"alert_id", alert.ID, "error", err)
			continue
		}

		flipped, err := o.repo.MarkAlertTriggered(ctx, alert.ID)
		if err != nil {
			o.logger.Error("failed to mark alert triggered", "alert_id", alert.ID, "error", err)
			continue
		}
		if flipped {
			o.bus.PublishAlertTriggered(alert.ID, alert.ChatID, alert.Symbol, price, alert.TargetPrice)
		}
	}
	return nil
}

// handleSignalCheck derives signals for one user's subscriptions and notifies
// on changes to BUY or SELL.
func (o *Orchestrator) handleSignalCheck(ctx context.Context, chatID int64) error {
	subs, err := o.repo.ListSubscriptions(ctx, chatID)
	if err != nil {
		return err
	}
	if len(subs) == 0 {
		return nil
	}

	exchange, marketType := o.userFetchPrefs(ctx, chatID)

	for _, sub := range subs {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		tf := sub.Timeframe
		if !tf.Valid() {
			tf = signalWindowTF
		}

		res, err := o.fetchWithRetry(ctx, market.FetchRequest{
			Symbol:    sub.Symbol,
			Timeframe: tf,
			Limit:     signalWindow,
			Exchange:  exchange,
			Market:    marketType,
			UseCache:  true,
		})
		if err != nil {
			o.logger.Warn("signal check fetch failed",
				"chat_id", chatID, "symbol", sub.Symbol, "error", err)
			continue
		}

		signal := deriveSignal(res.Candles)
		if !signal.Actionable() {
			continue
		}

		key := o.memory.Acquire(chatID, sub.Symbol)
		if key.Last() == string(signal) {
			key.Release()
			continue
		}

		price := market.LastClose(res.Candles)
		err = o.notifier.Send(ctx, &notify.Message{
			ChatID: chatID,
			Kind:   notify.KindSignal,
			Symbol: sub.Symbol,
			Text:   formatSignalMessage(sub.Symbol, signal, price),
		})
		if err != nil {
			// Memory stays untouched so the next check retries.
			key.Release()
			o.logger.Warn("signal send failed", "chat_id", chatID, "symbol", sub.Symbol, "error", err)
			continue
		}
		key.Set(string(signal))
		key.Release()

		o.bus.PublishSignalNotified(chatID, sub.Symbol, string(signal))
	}
	return nil
}

// handleScreening runs the screener for one user, notifies the ranked list,
// and spawns the auto-plan follow-up for the top K symbols.
func (o *Orchestrator) handleScreening(ctx context.Context, item WorkItem) error {
	exchange, marketType := o.userFetchPrefs(ctx, item.ChatID)

	report, err := o.screener.Run(ctx, screener.Request{
		Timeframe: item.Timeframe,
		MinScore:  item.MinScore,
		Exchange:  exchange,
		Market:    marketType,
		UseLLM:    true,
	})
	if err != nil {
		return err
	}

	o.bus.PublishScreeningCompleted(item.ChatID, string(item.Timeframe),
		report.Summary.Total, report.Summary.TopScore)

	if report.Summary.Total == 0 {
		return nil
	}

	if err := o.notifier.Send(ctx, &notify.Message{
		ChatID: item.ChatID,
		Kind:   notify.KindScreening,
		Text:   formatScreeningMessage(report),
	}); err != nil {
		return err
	}

	topK := item.TopK
	if topK <= 0 {
		topK = o.screenerCfg.ScheduledTopK
	}
	if topK > len(report.Results) {
		topK = len(report.Results)
	}
	if topK == 0 {
		return nil
	}

	symbols := make([]string, 0, topK)
	for _, r := range report.Results[:topK] {
		symbols = append(symbols, r.Symbol)
	}

	auto := newWorkItem(KindAutoPlan, PriorityAutoPlan)
	auto.ChatID = item.ChatID
	auto.Timeframe = item.Timeframe
	auto.Symbols = symbols
	if !o.queue.Enqueue(auto) {
		o.logger.Warn("queue full, dropping auto plan", "chat_id", item.ChatID)
	}
	return nil
}

// handleAutoPlan generates plans for the screened symbols and forwards only
// actionable ones. Plan failures are silent per symbol.
func (o *Orchestrator) handleAutoPlan(ctx context.Context, item WorkItem) error {
	exchange, marketType := o.userFetchPrefs(ctx, item.ChatID)

	for _, symbol := range item.Symbols {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		res, err := o.fetchWithRetry(ctx, market.FetchRequest{
			Symbol:    symbol,
			Timeframe: item.Timeframe,
			Limit:     signalWindow,
			Exchange:  exchange,
			Market:    marketType,
			UseCache:  true,
		})
		if err != nil {
			o.logger.Warn("auto plan fetch failed", "symbol", symbol, "error", err)
			continue
		}

		plan, err := o.generator.Generate(ctx, planner.PlanRequest{
			Symbol:    symbol,
			Timeframe: item.Timeframe,
			Window:    res.Candles,
			Exchange:  exchange,
			Market:    marketType,
		})
		if err != nil {
			if !errors.Is(err, planner.ErrPlanGenerationFailed) {
				o.logger.Warn("auto plan generation error", "symbol", symbol, "error", err)
			}
			continue
		}
		plan.DataSource = res.Exchange

		o.bus.PublishPlanGenerated(plan.Symbol, string(plan.Timeframe), string(plan.Signal), plan.Confidence)

		if !plan.Signal.Actionable() {
			continue
		}

		if err := o.notifier.Send(ctx, &notify.Message{
			ChatID: item.ChatID,
			Kind:   notify.KindPlan,
			Symbol: plan.Symbol,
			Text:   formatPlanMessage(plan),
		}); err != nil {
			o.logger.Warn("plan send failed", "chat_id", item.ChatID, "symbol", symbol, "error", err)
			continue
		}

		if _, err := o.tracker.Record(ctx, plan, item.ChatID); err != nil {
			o.logger.Error("failed to record signal", "symbol", symbol, "error", err)
		}
	}
	return nil
}
