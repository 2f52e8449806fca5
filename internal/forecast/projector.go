// Package forecast projects model signals a few trading days ahead of
// the latest stored features. Each projected day feeds a synthetically
// advanced feature vector back into the model, so uncertainty compounds
// quickly and the horizon is capped short.
package forecast

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"stockml-engine/internal/batch"
	"stockml-engine/internal/config"
	apperrors "stockml-engine/internal/errors"
	"stockml-engine/internal/model"
	"stockml-engine/internal/models"
	"stockml-engine/internal/signal"
	"stockml-engine/internal/store"
	"stockml-engine/pkg/utils"
)

// Projector produces short-horizon signal forecasts.
type Projector struct {
	store    store.DataStore
	registry *model.Registry
	cfg      config.EngineConfig
	logger   zerolog.Logger
}

// NewProjector creates a projector.
func NewProjector(st store.DataStore, registry *model.Registry, cfg config.EngineConfig, logger zerolog.Logger) *Projector {
	return &Projector{
		store:    st,
		registry: registry,
		cfg:      cfg,
		logger:   logger.With().Str("component", "forecast").Logger(),
	}
}

// DayForecast is the projection for one future trading day. A low
// confidence flag is advisory: the action still stands, the caller
// decides how much to trust it.
type DayForecast struct {
	Date          time.Time     `json:"date"`
	Prediction    int           `json:"prediction"`
	ProbUp        float64       `json:"prob_up"`
	Action        models.Action `json:"action"`
	Confidence    float64       `json:"confidence"`
	LowConfidence bool          `json:"low_confidence,omitempty"`
}

// Forecast is the full projection for one instrument.
type Forecast struct {
	Instrument  string        `json:"instrument"`
	BaseDate    time.Time     `json:"base_date"`
	GeneratedAt time.Time     `json:"generated_at"`
	Days        []DayForecast `json:"days"`
}

// Project forecasts the next horizon trading days for one instrument,
// starting from its latest stored feature vector. The horizon must be
// between 1 and the configured maximum. A negative confidenceThreshold
// falls back to the configured default; values in [0, 1] are honored.
func (p *Projector) Project(ctx context.Context, instrument string, horizon int, confidenceThreshold float64) (*Forecast, error) {
	if instrument == "" {
		return nil, &apperrors.ConfigError{Field: "instrument", Value: "", Message: "must not be empty"}
	}
	confidenceThreshold, err := p.resolveParams(horizon, confidenceThreshold)
	if err != nil {
		return nil, err
	}

	artifact, err := p.registry.Artifact(instrument)
	if err != nil {
		return nil, &apperrors.RunError{Instrument: instrument, Stage: "model", Err: err}
	}

	latest, err := p.store.LatestFeatures(ctx, instrument)
	if err != nil {
		return nil, &apperrors.RunError{Instrument: instrument, Stage: "load_features", Err: err}
	}

	forecast := &Forecast{
		Instrument:  instrument,
		BaseDate:    utils.Day(latest.Date),
		GeneratedAt: time.Now().UTC(),
		Days:        make([]DayForecast, 0, horizon),
	}

	fv := latest.Clone()
	for _, day := range utils.NextTradingDays(latest.Date, horizon) {
		prob, err := artifact.PredictProbability(fv)
		if err != nil {
			return nil, &apperrors.RunError{Instrument: instrument, Stage: "predict", Err: err}
		}

		sig, err := signal.Generate(models.Prediction{
			Date:       day,
			Instrument: instrument,
			ProbUp:     prob,
		}, p.cfg.MLThreshold)
		if err != nil {
			return nil, &apperrors.RunError{Instrument: instrument, Stage: "signal", Err: err}
		}

		predicted := 0
		if prob >= 0.5 {
			predicted = 1
		}
		forecast.Days = append(forecast.Days, DayForecast{
			Date:          day,
			Prediction:    predicted,
			ProbUp:        prob,
			Action:        sig.Action,
			Confidence:    sig.Confidence,
			LowConfidence: sig.Confidence < confidenceThreshold,
		})

		fv = advance(fv, day, prob)
	}

	p.persist(ctx, forecast)

	p.logger.Info().
		Str("instrument", instrument).
		Int("horizon", horizon).
		Msg("forecast complete")

	return forecast, nil
}

// resolveParams validates the horizon and resolves the confidence
// threshold, substituting the configured default for a negative one.
func (p *Projector) resolveParams(horizon int, confidenceThreshold float64) (float64, error) {
	if horizon < 1 || horizon > p.cfg.MaxHorizonDays {
		return 0, &apperrors.ConfigError{
			Field:   "horizon",
			Value:   fmt.Sprintf("%d", horizon),
			Message: fmt.Sprintf("must be between 1 and %d", p.cfg.MaxHorizonDays),
		}
	}
	if confidenceThreshold < 0 {
		confidenceThreshold = p.cfg.ConfidenceThreshold
	}
	if confidenceThreshold > 1 {
		return 0, &apperrors.ConfigError{
			Field:   "confidence_threshold",
			Value:   fmt.Sprintf("%g", confidenceThreshold),
			Message: "must be in [0, 1]",
		}
	}
	return confidenceThreshold, nil
}

// ProjectBatch forecasts every instrument independently; one failure
// never stops the others. Bad shared parameters fail the whole batch
// before any instrument is scheduled.
func (p *Projector) ProjectBatch(ctx context.Context, instruments []string, horizon int, confidenceThreshold float64) (map[string]*Forecast, map[string]string, error) {
	confidenceThreshold, err := p.resolveParams(horizon, confidenceThreshold)
	if err != nil {
		return nil, nil, err
	}

	outcomes := batch.Run(ctx, p.cfg.Concurrency, instruments, func(ctx context.Context, instrument string) (*Forecast, error) {
		return p.Project(ctx, instrument, horizon, confidenceThreshold)
	})

	forecasts := make(map[string]*Forecast, len(instruments))
	errors := make(map[string]string)
	for _, o := range outcomes {
		if o.Err != nil {
			errors[o.Key] = o.Err.Error()
			p.logger.Error().Str("instrument", o.Key).Err(o.Err).Msg("forecast failed")
			continue
		}
		forecasts[o.Key] = o.Result
	}
	return forecasts, errors, nil
}

// advance synthesizes the next day's feature vector from the current
// one and the model's probability. Momentum-style features get bespoke
// updates; everything price-derived drifts in the predicted direction,
// more strongly the more confident the model is.
func advance(fv models.FeatureVector, day time.Time, prob float64) models.FeatureVector {
	up := prob >= 0.5
	drift := 0.01 + prob*0.02
	factor := 1 + drift
	if !up {
		factor = 1 - drift
	}

	next := models.FeatureVector{Date: day, Values: make(map[string]float64, len(fv.Values))}
	for name, value := range fv.Values {
		switch {
		case isRSI(name):
			if up {
				value += 5
			} else {
				value -= 5
			}
			next.Values[name] = clamp(value, 30, 70)
		case isMACD(name):
			if up {
				next.Values[name] = value * 1.1
			} else {
				next.Values[name] = value * 0.9
			}
		default:
			next.Values[name] = value * factor
		}
	}
	return next
}

func isRSI(name string) bool {
	return strings.HasPrefix(strings.ToLower(name), "rsi")
}

func isMACD(name string) bool {
	return strings.HasPrefix(strings.ToLower(name), "macd")
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func (p *Projector) persist(ctx context.Context, forecast *Forecast) {
	payload, err := json.Marshal(forecast)
	if err != nil {
		return
	}
	err = p.store.SaveReport(ctx, &store.RunRecord{
		Instrument: forecast.Instrument,
		Kind:       store.RunKindForecast,
		Payload:    payload,
	})
	if err != nil {
		p.logger.Warn().Str("instrument", forecast.Instrument).Err(err).
			Msg("failed to persist forecast")
	}
}
