// Package metrics reduces a completed equity curve and trade log to
// risk/return statistics. All metrics are computed from the full curve
// in one pass; degenerate inputs yield sentinel zeros, never errors,
// so callers always get a report.
package metrics

import (
	"math"

	"stockml-engine/internal/models"
)

// TradingDaysPerYear is the annualization constant for daily bars.
const TradingDaysPerYear = 252

// EmptyReport returns the degenerate report used when a run had no
// data to simulate: every figure is its sentinel zero.
func EmptyReport() models.PerformanceReport {
	return models.PerformanceReport{}
}

// Compute derives a performance report from a chronological equity
// curve and trade log.
func Compute(curve []models.PortfolioState, trades []models.Trade) models.PerformanceReport {
	report := models.PerformanceReport{
		TradeCount: len(trades),
		WinRate:    winRate(trades),
	}

	if len(curve) == 0 {
		return report
	}

	first := curve[0].Equity
	last := curve[len(curve)-1].Equity
	report.FinalEquity = last

	if first > 0 {
		report.TotalReturn = last/first - 1
	}

	n := float64(len(curve))
	if n > 0 && 1+report.TotalReturn > 0 {
		report.AnnualizedReturn = math.Pow(1+report.TotalReturn, TradingDaysPerYear/n) - 1
	}

	report.MaxDrawdown = maxDrawdown(curve)
	report.SharpeRatio = sharpeRatio(curve)

	return report
}

// maxDrawdown is the worst peak-to-trough decline, a value <= 0.
// Zero exactly when equity never falls below a prior peak.
func maxDrawdown(curve []models.PortfolioState) float64 {
	var worst float64
	runningMax := curve[0].Equity
	for _, state := range curve {
		if state.Equity > runningMax {
			runningMax = state.Equity
		}
		if runningMax > 0 {
			dd := state.Equity/runningMax - 1
			if dd < worst {
				worst = dd
			}
		}
	}
	return worst
}

// sharpeRatio annualizes mean daily return over its standard
// deviation. A flat curve has zero volatility and is defined as 0
// rather than an undefined value.
func sharpeRatio(curve []models.PortfolioState) float64 {
	if len(curve) < 2 {
		return 0
	}

	returns := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Equity
		if prev <= 0 {
			return 0
		}
		returns = append(returns, curve[i].Equity/prev-1)
	}

	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns))
	stdev := math.Sqrt(variance)

	if stdev == 0 {
		return 0
	}
	return mean / stdev * math.Sqrt(TradingDaysPerYear)
}

// winRate is the share of closed trades that exited above entry.
// Defined as 0 when there are no closed trades.
func winRate(trades []models.Trade) float64 {
	var closed, wins int
	for i := range trades {
		if trades[i].Closed() {
			closed++
			if trades[i].Won() {
				wins++
			}
		}
	}
	if closed == 0 {
		return 0
	}
	return float64(wins) / float64(closed)
}
