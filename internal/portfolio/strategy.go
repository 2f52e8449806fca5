package portfolio

import (
	"stockml-engine/internal/models"
)

// BuyHoldSignals produces the baseline comparison strategy: enter
// fully at the first date, never exit. Run through the same simulator
// over the same bars and commission as the ML strategy so the two
// equity curves are directly comparable.
func BuyHoldSignals(instrument string, bars []models.Bar) []models.Signal {
	if len(bars) == 0 {
		return nil
	}
	signals := make([]models.Signal, len(bars))
	for i, bar := range bars {
		action := models.ActionHold
		if i == 0 {
			action = models.ActionBuy
		}
		signals[i] = models.Signal{
			Date:       bar.Date,
			Instrument: instrument,
			Action:     action,
			Confidence: 1,
		}
	}
	return signals
}

// SMACrossSignals produces a moving-average crossover strategy: buy on
// the fast average crossing above the slow one, sell on the cross back
// down. Supplementary comparison only; reports pit the ML strategy
// against buy-and-hold.
func SMACrossSignals(instrument string, bars []models.Bar, fastPeriod, slowPeriod int) []models.Signal {
	if fastPeriod < 1 || slowPeriod <= fastPeriod || len(bars) == 0 {
		return nil
	}

	signals := make([]models.Signal, 0, len(bars))
	for i := range bars {
		action := models.ActionHold
		if i >= slowPeriod {
			fast := sma(bars, i, fastPeriod)
			slow := sma(bars, i, slowPeriod)
			prevFast := sma(bars, i-1, fastPeriod)
			prevSlow := sma(bars, i-1, slowPeriod)

			if prevFast <= prevSlow && fast > slow {
				action = models.ActionBuy
			} else if prevFast >= prevSlow && fast < slow {
				action = models.ActionSell
			}
		}
		signals = append(signals, models.Signal{
			Date:       bars[i].Date,
			Instrument: instrument,
			Action:     action,
			Confidence: 1,
		})
	}
	return signals
}

// sma averages closes over the period ending at index.
func sma(bars []models.Bar, index, period int) float64 {
	if index < period-1 {
		return 0
	}
	var sum float64
	for i := index - period + 1; i <= index; i++ {
		sum += bars[i].Close
	}
	return sum / float64(period)
}

// Default SMA crossover periods.
const (
	DefaultFastPeriod = 5
	DefaultSlowPeriod = 20
)
