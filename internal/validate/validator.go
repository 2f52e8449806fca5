// Package validate replays trained models over held-out history. A
// validation window must start strictly after the model's training
// cutoff so the model is never scored on data it has already seen.
package validate

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"stockml-engine/internal/backtest"
	"stockml-engine/internal/batch"
	"stockml-engine/internal/config"
	apperrors "stockml-engine/internal/errors"
	"stockml-engine/internal/model"
	"stockml-engine/internal/models"
	"stockml-engine/internal/signal"
	"stockml-engine/internal/store"
	"stockml-engine/pkg/utils"
)

// Validator scores models on out-of-sample history.
type Validator struct {
	store    store.DataStore
	registry *model.Registry
	engine   *backtest.Engine
	cfg      config.EngineConfig
	logger   zerolog.Logger
}

// NewValidator creates a validator sharing the backtest engine's data
// store and model registry.
func NewValidator(st store.DataStore, registry *model.Registry, engine *backtest.Engine, cfg config.EngineConfig, logger zerolog.Logger) *Validator {
	return &Validator{
		store:    st,
		registry: registry,
		engine:   engine,
		cfg:      cfg,
		logger:   logger.With().Str("component", "validate").Logger(),
	}
}

// Period is a closed validation date range.
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Record is the outcome of validating one instrument.
type Record struct {
	Instrument       string                   `json:"instrument"`
	Success          bool                     `json:"success"`
	Samples          int                      `json:"samples"`
	Signals          signal.Count             `json:"signals"`
	ValidationPeriod Period                   `json:"validation_period"`
	Report           models.PerformanceReport `json:"report"`
	Baseline         models.PerformanceReport `json:"baseline_report"`
	TrainingCutoff   time.Time                `json:"training_cutoff"`
	InsufficientData bool                     `json:"insufficient_data,omitempty"`
	Error            string                   `json:"error,omitempty"`
}

// RunConfig describes one validation run. A zero Start defaults to the
// first trading day after the model's training cutoff; a zero End
// defaults to the latest stored bar.
type RunConfig struct {
	Instrument string    `json:"instrument"`
	Start      time.Time `json:"start,omitempty"`
	End        time.Time `json:"end,omitempty"`
}

// Run validates one instrument. A window starting on or before the
// training cutoff is rejected with a temporal leakage error.
func (v *Validator) Run(ctx context.Context, cfg RunConfig) (*Record, error) {
	if cfg.Instrument == "" {
		return nil, &apperrors.ConfigError{Field: "instrument", Value: "", Message: "must not be empty"}
	}

	artifact, err := v.registry.Artifact(cfg.Instrument)
	if err != nil {
		return nil, &apperrors.RunError{Instrument: cfg.Instrument, Stage: "model", Err: err}
	}
	cutoff := utils.Day(artifact.Metadata().TrainingCutoff)

	start := cfg.Start
	if start.IsZero() {
		days := utils.NextTradingDays(cutoff, 1)
		start = days[0]
	}
	if !utils.Day(start).After(cutoff) {
		return nil, apperrors.NewLeakageError(cfg.Instrument,
			utils.FormatDate(start), utils.FormatDate(cutoff))
	}

	end := cfg.End
	if end.IsZero() {
		status, err := v.store.InstrumentStatus(ctx, cfg.Instrument)
		if err != nil {
			return nil, &apperrors.RunError{Instrument: cfg.Instrument, Stage: "status", Err: err}
		}
		end = status.LastDate
	}

	record := &Record{
		Instrument:       cfg.Instrument,
		ValidationPeriod: Period{Start: start, End: end},
		TrainingCutoff:   cutoff,
	}

	// The engine needs a strict start < end window, so a single
	// out-of-sample day is reported as no data, not simulated.
	if end.IsZero() || !end.After(start) {
		record.InsufficientData = true
		record.Success = true
		v.persist(ctx, record)
		return record, nil
	}

	result, err := v.engine.Run(ctx, backtest.RunConfig{
		Instrument: cfg.Instrument,
		Start:      start,
		End:        end,
	})
	if err != nil {
		return nil, err
	}

	record.Success = true
	record.Samples = result.Data.BarCount
	record.Signals = result.Data.Signals
	record.Report = result.MLStrategy.Report
	record.Baseline = result.Baseline.Report
	record.InsufficientData = result.InsufficientData
	v.persist(ctx, record)

	v.logger.Info().
		Str("instrument", cfg.Instrument).
		Int("samples", record.Samples).
		Float64("return", record.Report.TotalReturn).
		Msg("validation complete")

	return record, nil
}

// RunBatch validates every instrument independently over the shared
// window in cfg (cfg.Instrument is ignored). Failures become records
// with Success false rather than aborting the batch.
func (v *Validator) RunBatch(ctx context.Context, instruments []string, cfg RunConfig) map[string]*Record {
	outcomes := batch.Run(ctx, v.cfg.Concurrency, instruments, func(ctx context.Context, instrument string) (*Record, error) {
		runCfg := cfg
		runCfg.Instrument = instrument
		return v.Run(ctx, runCfg)
	})

	records := make(map[string]*Record, len(instruments))
	for _, o := range outcomes {
		if o.Err != nil {
			records[o.Key] = &Record{Instrument: o.Key, Success: false, Error: o.Err.Error()}
			v.logger.Error().Str("instrument", o.Key).Err(o.Err).Msg("validation failed")
			continue
		}
		records[o.Key] = o.Result
	}
	return records
}

func (v *Validator) persist(ctx context.Context, record *Record) {
	payload, err := json.Marshal(record)
	if err != nil {
		return
	}
	err = v.store.SaveReport(ctx, &store.RunRecord{
		Instrument: record.Instrument,
		Kind:       store.RunKindValidation,
		Payload:    payload,
	})
	if err != nil {
		v.logger.Warn().Str("instrument", record.Instrument).Err(err).
			Msg("failed to persist validation record")
	}
}
