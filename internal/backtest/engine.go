// Package backtest orchestrates historical simulation runs: it loads
// stored bars and features, turns model probabilities into signals,
// replays them through the portfolio simulator, and reports performance
// for both the model strategy and a buy-and-hold baseline.
package backtest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"stockml-engine/internal/config"
	apperrors "stockml-engine/internal/errors"
	"stockml-engine/internal/logging"
	"stockml-engine/internal/metrics"
	"stockml-engine/internal/model"
	"stockml-engine/internal/models"
	"stockml-engine/internal/portfolio"
	"stockml-engine/internal/signal"
	"stockml-engine/internal/store"
	"stockml-engine/pkg/utils"
)

// Engine runs backtests against a data store and a model registry.
type Engine struct {
	store    store.DataStore
	registry *model.Registry
	cfg      config.EngineConfig
	logger   zerolog.Logger
}

// NewEngine creates a backtest engine.
func NewEngine(st store.DataStore, registry *model.Registry, cfg config.EngineConfig, logger zerolog.Logger) *Engine {
	return &Engine{
		store:    st,
		registry: registry,
		cfg:      cfg,
		logger:   logger.With().Str("component", "backtest").Logger(),
	}
}

// RunConfig describes one backtest run. Zero-valued Cash and Threshold
// fall back to the engine defaults; a negative Commission does too, so
// an explicit zero commission is honored.
type RunConfig struct {
	Instrument string    `json:"instrument"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	Cash       float64   `json:"cash,omitempty"`
	Commission float64   `json:"commission,omitempty"`
	Threshold  float64   `json:"threshold,omitempty"`
}

// StrategyResult holds one strategy's simulated outcome.
type StrategyResult struct {
	Report models.PerformanceReport `json:"report"`
	Trades []models.Trade           `json:"trades"`
	Curve  []models.PortfolioState  `json:"equity_curve,omitempty"`
}

// DataInfo summarizes the data that backed a run.
type DataInfo struct {
	Start           time.Time    `json:"start"`
	End             time.Time    `json:"end"`
	BarCount        int          `json:"bar_count"`
	FeatureCount    int          `json:"feature_count"`
	MissingFeatures int          `json:"missing_features"`
	Signals         signal.Count `json:"signals"`
}

// InstrumentResult is the outcome of one backtest run.
type InstrumentResult struct {
	Instrument       string               `json:"instrument"`
	MLStrategy       StrategyResult       `json:"ml_strategy"`
	Baseline         StrategyResult       `json:"baseline_strategy"`
	Data             DataInfo             `json:"data"`
	InsufficientData bool                 `json:"insufficient_data,omitempty"`
	Model            models.ModelMetadata `json:"model"`
}

func (e *Engine) normalize(cfg RunConfig) (RunConfig, error) {
	if cfg.Instrument == "" {
		return cfg, &apperrors.ConfigError{Field: "instrument", Value: "", Message: "must not be empty"}
	}
	return e.normalizeShared(cfg)
}

// normalizeShared validates and defaults every parameter that does not
// depend on the instrument. RunBatch calls it directly so a bad shared
// configuration fails once, before any instrument is scheduled.
func (e *Engine) normalizeShared(cfg RunConfig) (RunConfig, error) {
	if cfg.Start.IsZero() || cfg.End.IsZero() {
		return cfg, &apperrors.ConfigError{Field: "date_range", Value: "", Message: "start and end are required"}
	}
	if !cfg.End.After(cfg.Start) {
		return cfg, &apperrors.ConfigError{
			Field:   "date_range",
			Value:   utils.FormatDate(cfg.Start) + ".." + utils.FormatDate(cfg.End),
			Message: "end must be after start",
		}
	}
	if cfg.Cash < 0 {
		return cfg, &apperrors.ConfigError{
			Field:   "cash",
			Value:   fmt.Sprintf("%g", cfg.Cash),
			Message: "must not be negative",
		}
	}
	if cfg.Cash == 0 {
		cfg.Cash = e.cfg.Cash
	}
	if cfg.Commission < 0 {
		cfg.Commission = e.cfg.Commission
	}
	if cfg.Threshold == 0 {
		cfg.Threshold = e.cfg.MLThreshold
	}
	if err := signal.ValidateThreshold(cfg.Threshold); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Run executes one backtest. Too few bars in the window is not an
// error: the result comes back flagged InsufficientData with empty
// reports so batch callers can tell "no data" from "failed".
func (e *Engine) Run(ctx context.Context, cfg RunConfig) (*InstrumentResult, error) {
	cfg, err := e.normalize(cfg)
	if err != nil {
		return nil, err
	}

	log := logging.WithInstrument(e.logger, cfg.Instrument)
	started := time.Now()

	artifact, err := e.registry.Artifact(cfg.Instrument)
	if err != nil {
		return nil, &apperrors.RunError{Instrument: cfg.Instrument, Stage: "model", Err: err}
	}
	meta := artifact.Metadata()

	bars, err := e.store.GetBars(ctx, cfg.Instrument, cfg.Start, cfg.End)
	if err != nil {
		return nil, &apperrors.RunError{Instrument: cfg.Instrument, Stage: "load_bars", Err: err}
	}

	result := &InstrumentResult{
		Instrument: cfg.Instrument,
		Model:      meta,
		Data: DataInfo{
			Start:    cfg.Start,
			End:      cfg.End,
			BarCount: len(bars),
		},
	}

	if len(bars) < e.cfg.MinBars {
		log.Warn().Int("bars", len(bars)).Int("min_bars", e.cfg.MinBars).
			Msg("insufficient data for backtest")
		result.InsufficientData = true
		result.MLStrategy.Report = metrics.EmptyReport()
		result.Baseline.Report = metrics.EmptyReport()
		return result, nil
	}

	features, err := e.store.GetFeatures(ctx, cfg.Instrument, cfg.Start, cfg.End)
	if err != nil {
		return nil, &apperrors.RunError{Instrument: cfg.Instrument, Stage: "load_features", Err: err}
	}
	result.Data.FeatureCount = len(features)

	featuresByDay := make(map[time.Time]models.FeatureVector, len(features))
	for _, f := range features {
		featuresByDay[utils.Day(f.Date)] = f
	}

	var signals []models.Signal
	for _, bar := range bars {
		fv, ok := featuresByDay[utils.Day(bar.Date)]
		if !ok {
			result.Data.MissingFeatures++
			continue
		}

		p, err := artifact.PredictProbability(fv)
		if err != nil {
			return nil, &apperrors.RunError{Instrument: cfg.Instrument, Stage: "predict", Err: err}
		}

		sig, err := signal.Generate(models.Prediction{
			Date:       bar.Date,
			Instrument: cfg.Instrument,
			ProbUp:     p,
		}, cfg.Threshold)
		if err != nil {
			return nil, &apperrors.RunError{Instrument: cfg.Instrument, Stage: "signal", Err: err}
		}
		signals = append(signals, sig)
	}
	result.Data.Signals = signal.CountActions(signals)

	simCfg := portfolio.Config{
		Instrument:  cfg.Instrument,
		InitialCash: cfg.Cash,
		Commission:  cfg.Commission,
	}

	mlResult, err := portfolio.Simulate(simCfg, bars, signals)
	if err != nil {
		return nil, &apperrors.RunError{Instrument: cfg.Instrument, Stage: "simulate_ml", Err: err}
	}
	result.MLStrategy = StrategyResult{
		Report: metrics.Compute(mlResult.Curve, mlResult.Trades),
		Trades: mlResult.Trades,
		Curve:  mlResult.Curve,
	}

	baseResult, err := portfolio.Simulate(simCfg, bars, portfolio.BuyHoldSignals(cfg.Instrument, bars))
	if err != nil {
		return nil, &apperrors.RunError{Instrument: cfg.Instrument, Stage: "simulate_baseline", Err: err}
	}
	result.Baseline = StrategyResult{
		Report: metrics.Compute(baseResult.Curve, baseResult.Trades),
		Trades: baseResult.Trades,
		Curve:  baseResult.Curve,
	}

	if err := e.persist(ctx, result); err != nil {
		log.Warn().Err(err).Msg("failed to persist backtest report")
	}

	log.Info().
		Int("bars", len(bars)).
		Int("trades", result.MLStrategy.Report.TradeCount).
		Float64("ml_return", result.MLStrategy.Report.TotalReturn).
		Float64("baseline_return", result.Baseline.Report.TotalReturn).
		Dur("elapsed", time.Since(started)).
		Msg("backtest complete")

	return result, nil
}

// ExcessReturn returns the model strategy's total return minus the
// baseline's.
func (r *InstrumentResult) ExcessReturn() float64 {
	return r.MLStrategy.Report.TotalReturn - r.Baseline.Report.TotalReturn
}

func (e *Engine) persist(ctx context.Context, result *InstrumentResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return e.store.SaveReport(ctx, &store.RunRecord{
		Instrument: result.Instrument,
		Kind:       store.RunKindBacktest,
		Payload:    payload,
	})
}
