package orchestrator

import (
	"fmt"
	"strings"

	"trading-advisor-bot/internal/planner"
	"trading-advisor-bot/internal/screener"
	"trading-advisor-bot/internal/store"
)

func formatAlertMessage(alert store.PriceAlert, price float64) string {
	arrow := "above"
	if alert.Direction == store.AlertBelow {
		arrow = "below"
	}
	prec := planner.PricePrecision(price)
	return fmt.Sprintf("🔔 <b>Price alert</b>\n%s is %s %.*f (now %.*f)",
		alert.Symbol, arrow, prec, alert.TargetPrice, prec, price)
}

func formatSignalMessage(symbol string, signal planner.Signal, price float64) string {
	emoji := "🟢"
	if signal == planner.SignalSell {
		emoji = "🔴"
	}
	prec := planner.PricePrecision(price)
	return fmt.Sprintf("%s <b>%s signal</b>\n%s @ %.*f", emoji, signal, symbol, prec, price)
}

func formatScreeningMessage(report *screener.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🔍 <b>Screening %s</b> — %d matches (avg %.1f)\n",
		report.Summary.Timeframe, report.Summary.Total, report.Summary.AvgScore)
	for i, r := range report.Results {
		if i >= 10 {
			fmt.Fprintf(&b, "… and %d more\n", len(report.Results)-i)
			break
		}
		fmt.Fprintf(&b, "%d. %s — %.1f (%s)\n", i+1, r.Symbol, r.Score, r.Breakdown.Direction)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatPlanMessage(plan *planner.TradingPlan) string {
	emoji := "🟢"
	if plan.Signal == planner.SignalSell {
		emoji = "🔴"
	}
	prec := planner.PricePrecision(plan.CurrentPrice)

	var b strings.Builder
	fmt.Fprintf(&b, "%s <b>%s %s</b> (%s", emoji, plan.Signal, plan.Symbol, plan.Timeframe)
	if plan.Scalp {
		b.WriteString(", scalp")
	}
	fmt.Fprintf(&b, ")\nPrice: %.*f | Confidence: %.0f%%\n", prec, plan.CurrentPrice, plan.Confidence*100)

	for i, e := range plan.Entries {
		fmt.Fprintf(&b, "Entry %d: %.*f (%.0f%%)\n", i+1, prec, e.Level, e.Weight*100)
	}
	for i, tp := range plan.TakeProfits {
		fmt.Fprintf(&b, "TP %d: %.*f (+%.1f%%)\n", i+1, prec, tp.Level, tp.PctGain)
	}
	if plan.StopLoss > 0 {
		fmt.Fprintf(&b, "SL: %.*f\n", prec, plan.StopLoss)
	}
	if plan.Reason != "" {
		fmt.Fprintf(&b, "%s\n", plan.Reason)
	}
	fmt.Fprintf(&b, "Valid until %s", plan.ExpiresAt.Format("15:04 UTC Jan 2"))
	return b.String()
}
