// Package signal turns predicted probabilities into discrete trading
// decisions. Generation is a pure function: deterministic, no side
// effects, so replaying a backtest always yields the same signals.
package signal

import (
	"math"

	"stockml-engine/internal/errors"
	"stockml-engine/internal/models"
)

// ValidateThreshold checks that an ML threshold is usable. Thresholds
// below 0.5 would emit BUY and SELL for the same probability.
func ValidateThreshold(threshold float64) error {
	if math.IsNaN(threshold) || threshold < 0.5 || threshold > 1.0 {
		return errors.NewConfigError("ml_threshold", threshold, "must be in [0.5, 1.0]")
	}
	return nil
}

// Confidence maps a probability to distance from indifference,
// rescaled to [0, 1].
func Confidence(probUp float64) float64 {
	return math.Abs(probUp-0.5) * 2
}

// Generate maps one prediction to a signal.
//
// BUY when probability >= threshold, SELL when probability
// <= 1 - threshold, HOLD otherwise.
func Generate(pred models.Prediction, threshold float64) (models.Signal, error) {
	if err := ValidateThreshold(threshold); err != nil {
		return models.Signal{}, err
	}
	if math.IsNaN(pred.ProbUp) || pred.ProbUp < 0 || pred.ProbUp > 1 {
		return models.Signal{}, errors.NewDataError(pred.Instrument, "probability out of [0, 1]", nil)
	}

	action := models.ActionHold
	switch {
	case pred.ProbUp >= threshold:
		action = models.ActionBuy
	case pred.ProbUp <= 1-threshold:
		action = models.ActionSell
	}

	return models.Signal{
		Date:       pred.Date,
		Instrument: pred.Instrument,
		Action:     action,
		Confidence: Confidence(pred.ProbUp),
	}, nil
}

// GenerateSeries maps a chronological prediction sequence to signals.
// The threshold is validated once; a malformed probability aborts the
// series since it indicates corrupt upstream data.
func GenerateSeries(preds []models.Prediction, threshold float64) ([]models.Signal, error) {
	if err := ValidateThreshold(threshold); err != nil {
		return nil, err
	}

	signals := make([]models.Signal, 0, len(preds))
	for _, pred := range preds {
		sig, err := Generate(pred, threshold)
		if err != nil {
			return nil, err
		}
		signals = append(signals, sig)
	}
	return signals, nil
}

// Count tallies signal actions, used by validation records.
type Count struct {
	Buy  int `json:"buy"`
	Sell int `json:"sell"`
	Hold int `json:"hold"`
}

// Total returns the number of counted signals.
func (c Count) Total() int {
	return c.Buy + c.Sell + c.Hold
}

// CountActions tallies the actions in a signal series.
func CountActions(signals []models.Signal) Count {
	var c Count
	for _, s := range signals {
		switch s.Action {
		case models.ActionBuy:
			c.Buy++
		case models.ActionSell:
			c.Sell++
		default:
			c.Hold++
		}
	}
	return c
}
