// Package models provides domain models for the backtest engine.
package models

import (
	"time"
)

// Action represents a discrete trading decision.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// Bar represents one daily OHLCV price bar for an instrument.
// Bars for an instrument are strictly increasing by date with no
// duplicates; gaps from missing trading days are tolerated, never
// interpolated.
type Bar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// FeatureVector holds the per-date named numeric features an upstream
// feature builder produced for an instrument. Dates match the bar dates.
type FeatureVector struct {
	Date   time.Time          `json:"date"`
	Values map[string]float64 `json:"values"`
}

// Clone returns a deep copy. The future projector mutates feature
// state while extrapolating and must never touch the stored vector.
func (fv FeatureVector) Clone() FeatureVector {
	values := make(map[string]float64, len(fv.Values))
	for k, v := range fv.Values {
		values[k] = v
	}
	return FeatureVector{Date: fv.Date, Values: values}
}

// Prediction is a per-date predicted probability that the instrument
// closes up, produced strictly from data with timestamp <= Date.
type Prediction struct {
	Date       time.Time `json:"date"`
	Instrument string    `json:"instrument"`
	ProbUp     float64   `json:"probability_up"`
}

// Signal is a discrete trading decision derived from a prediction.
type Signal struct {
	Date       time.Time `json:"date"`
	Instrument string    `json:"instrument"`
	Action     Action    `json:"action"`
	Confidence float64   `json:"confidence"`
}

// ModelMetadata describes a frozen model artifact. It is used for
// reporting and the temporal-leakage check, never for decision logic.
type ModelMetadata struct {
	Instrument     string    `json:"instrument"`
	TrainingDate   time.Time `json:"training_date"`
	TrainingCutoff time.Time `json:"training_cutoff"`
	FeatureNames   []string  `json:"feature_names"`
	FeatureCount   int       `json:"feature_count"`
	CVAccuracy     float64   `json:"cv_accuracy"`
}
