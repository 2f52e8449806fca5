// Package portfolio simulates single-instrument portfolio state under
// transaction costs. A simulation is a state machine advanced exactly
// once per trading date, in date order; it must never be parallelized
// internally.
package portfolio

import (
	"math"
	"time"

	"stockml-engine/internal/errors"
	"stockml-engine/internal/models"
	"stockml-engine/pkg/utils"
)

// Config holds simulation parameters.
type Config struct {
	Instrument  string
	InitialCash float64
	// Commission is a proportional rate applied to the notional value
	// of every buy and every sell, deducted from cash at execution.
	Commission float64
}

// Result holds the outcome of one simulation run: the equity curve,
// the trade log, and the recoverable anomalies encountered.
type Result struct {
	Curve  []models.PortfolioState `json:"equity_curve"`
	Trades []models.Trade          `json:"trades"`
	// MissedDates are signal dates with no price bar; the date is
	// skipped and the position carried forward unchanged.
	MissedDates []time.Time `json:"missed_dates,omitempty"`
	// SkippedBuys are BUY signals that could not afford a single
	// whole share. Reported, not fatal.
	SkippedBuys []time.Time `json:"skipped_buys,omitempty"`
}

// FinalEquity returns the last equity value, or the initial cash when
// nothing was simulated.
func (r *Result) FinalEquity(initialCash float64) float64 {
	if len(r.Curve) == 0 {
		return initialCash
	}
	return r.Curve[len(r.Curve)-1].Equity
}

// position is the simulator's internal long state.
type position struct {
	qty      int
	avgPrice float64
}

// Simulate advances the portfolio through bars in order, applying the
// signal for each bar's date (HOLD when no signal exists for a date).
// States: FLAT (qty 0) and LONG (qty > 0); there is no short side.
//
// Transitions:
//   - FLAT + BUY: buy the largest whole-share quantity affordable at
//     the close net of commission; below one share the signal is
//     skipped and recorded.
//   - LONG + SELL: close the open trade at the close, credit proceeds
//     net of commission.
//   - everything else: no state change.
//
// A position still open at the final bar is marked to market but the
// trade stays open in the log. Cash never goes negative.
func Simulate(cfg Config, bars []models.Bar, signals []models.Signal) (*Result, error) {
	if cfg.InitialCash <= 0 {
		return nil, errors.NewConfigError("cash", cfg.InitialCash, "must be positive")
	}
	if cfg.Commission < 0 || cfg.Commission >= 1 {
		return nil, errors.NewConfigError("commission", cfg.Commission, "must be in [0, 1)")
	}
	if err := validateBars(cfg.Instrument, bars); err != nil {
		return nil, err
	}

	sigByDate := make(map[time.Time]models.Signal, len(signals))
	for _, s := range signals {
		sigByDate[utils.Day(s.Date)] = s
	}

	barDates := make(map[time.Time]struct{}, len(bars))
	for _, b := range bars {
		barDates[utils.Day(b.Date)] = struct{}{}
	}

	result := &Result{
		Curve:  make([]models.PortfolioState, 0, len(bars)),
		Trades: make([]models.Trade, 0),
	}

	// Signal dates without bars are gaps: skipped, position carried.
	for _, s := range signals {
		if _, ok := barDates[utils.Day(s.Date)]; !ok {
			result.MissedDates = append(result.MissedDates, utils.Day(s.Date))
		}
	}

	cash := cfg.InitialCash
	var pos position
	var open *models.Trade

	for _, bar := range bars {
		date := utils.Day(bar.Date)
		price := bar.Close

		action := models.ActionHold
		if s, ok := sigByDate[date]; ok {
			action = s.Action
		}

		switch {
		case pos.qty == 0 && action == models.ActionBuy:
			qty := affordableQuantity(cash, price, cfg.Commission)
			if qty < 1 {
				result.SkippedBuys = append(result.SkippedBuys, date)
				break
			}
			commission := price * float64(qty) * cfg.Commission
			cash -= price*float64(qty) + commission
			pos = position{qty: qty, avgPrice: price}
			result.Trades = append(result.Trades, models.Trade{
				EntryDate:      date,
				Instrument:     cfg.Instrument,
				Quantity:       qty,
				EntryPrice:     price,
				CommissionPaid: commission,
			})
			open = &result.Trades[len(result.Trades)-1]

		case pos.qty > 0 && action == models.ActionSell:
			proceeds := price * float64(pos.qty)
			commission := proceeds * cfg.Commission
			cash += proceeds - commission
			exitDate := date
			exitPrice := price
			open.ExitDate = &exitDate
			open.ExitPrice = &exitPrice
			open.CommissionPaid += commission
			pos = position{}
			open = nil
		}

		equity := cash + float64(pos.qty)*price
		result.Curve = append(result.Curve, models.PortfolioState{
			Date:             date,
			Cash:             cash,
			PositionQty:      pos.qty,
			PositionAvgPrice: pos.avgPrice,
			Equity:           equity,
		})
	}

	return result, nil
}

// affordableQuantity returns the largest whole-share count payable
// from cash at the given price including commission.
func affordableQuantity(cash, price, commission float64) int {
	perShare := price * (1 + commission)
	if perShare <= 0 {
		return 0
	}
	return int(math.Floor(cash / perShare))
}

// validateBars rejects corrupt price data and out-of-order dates.
// Corrupt input aborts the instrument's run; other instruments in a
// batch continue.
func validateBars(instrument string, bars []models.Bar) error {
	var prev time.Time
	for i, bar := range bars {
		if !finitePositive(bar.Close) || !finitePositive(bar.Open) ||
			!finitePositive(bar.High) || !finitePositive(bar.Low) {
			return errors.NewDataError(instrument,
				"non-finite or non-positive price at "+utils.FormatDate(bar.Date), nil)
		}
		date := utils.Day(bar.Date)
		if i > 0 && !date.After(prev) {
			return errors.NewDataError(instrument,
				"bar dates not strictly increasing at "+utils.FormatDate(bar.Date), nil)
		}
		prev = date
	}
	return nil
}

func finitePositive(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > 0
}
