package backtest

import (
	"context"
	"math"
	"time"

	"stockml-engine/internal/batch"
	"stockml-engine/internal/logging"
)

// BatchResult aggregates per-instrument outcomes from a batch run.
// Instruments that failed appear only in Errors; the rest of the batch
// is unaffected by their failure.
type BatchResult struct {
	Results   map[string]*InstrumentResult `json:"results"`
	Errors    map[string]string            `json:"errors,omitempty"`
	Succeeded int                          `json:"succeeded"`
	Failed    int                          `json:"failed"`
	Summary   *ExcessSummary               `json:"summary,omitempty"`
}

// ExcessSummary describes how the model strategy fared against
// buy-and-hold across a batch. Instruments flagged for insufficient
// data are excluded, since their sentinel reports would poison the
// averages.
type ExcessSummary struct {
	Instruments    int     `json:"instruments"`
	MeanExcess     float64 `json:"mean_excess"`
	StdExcess      float64 `json:"std_excess"`
	Outperformed   int     `json:"outperformed"`
	Underperformed int     `json:"underperformed"`
}

func summarize(results map[string]*InstrumentResult) *ExcessSummary {
	s := &ExcessSummary{}
	var excesses []float64
	for _, r := range results {
		if r.InsufficientData {
			continue
		}
		excess := r.ExcessReturn()
		excesses = append(excesses, excess)
		s.Instruments++
		if excess > 0 {
			s.Outperformed++
		} else if excess < 0 {
			s.Underperformed++
		}
	}
	if s.Instruments == 0 {
		return nil
	}

	var sum float64
	for _, x := range excesses {
		sum += x
	}
	s.MeanExcess = sum / float64(s.Instruments)

	var sq float64
	for _, x := range excesses {
		d := x - s.MeanExcess
		sq += d * d
	}
	s.StdExcess = math.Sqrt(sq / float64(s.Instruments))
	return s
}

// RunBatch backtests every instrument with the same window and
// parameters, bounded by the configured concurrency. A bad shared
// configuration fails the whole batch before any instrument is
// scheduled. Context cancellation stops scheduling new instruments;
// work already started runs to completion and is reported.
func (e *Engine) RunBatch(ctx context.Context, instruments []string, cfg RunConfig) (*BatchResult, error) {
	cfg, err := e.normalizeShared(cfg)
	if err != nil {
		return nil, err
	}
	started := time.Now()

	outcomes := batch.Run(ctx, e.cfg.Concurrency, instruments, func(ctx context.Context, instrument string) (*InstrumentResult, error) {
		runCfg := cfg
		runCfg.Instrument = instrument
		return e.Run(ctx, runCfg)
	})

	result := &BatchResult{
		Results: make(map[string]*InstrumentResult, len(instruments)),
		Errors:  make(map[string]string),
	}

	for _, o := range outcomes {
		if o.Err != nil {
			result.Errors[o.Key] = o.Err.Error()
			result.Failed++
			logging.LogRunError(e.logger, o.Key, o.Err)
			continue
		}
		result.Results[o.Key] = o.Result
		result.Succeeded++
	}
	result.Summary = summarize(result.Results)

	e.logger.Info().
		Int("succeeded", result.Succeeded).
		Int("failed", result.Failed).
		Dur("elapsed", time.Since(started)).
		Msg("batch backtest complete")

	return result, nil
}
