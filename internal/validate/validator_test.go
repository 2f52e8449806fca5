package validate

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"stockml-engine/internal/backtest"
	"stockml-engine/internal/config"
	apperrors "stockml-engine/internal/errors"
	"stockml-engine/internal/model"
	"stockml-engine/internal/models"
	"stockml-engine/internal/store"
)

const testCutoff = "2023-12-29"

func writeTestModel(t *testing.T, dir, instrument string) {
	t.Helper()
	artifact := map[string]interface{}{
		"instrument":      instrument,
		"training_date":   "2024-01-05",
		"training_cutoff": testCutoff,
		"feature_names":   []string{"close"},
		"weights":         []float64{4.0},
		"intercept":       0.0,
		"scaler_mean":     []float64{100.0},
		"scaler_std":      []float64{10.0},
		"cv_accuracy":     0.58,
	}
	data, err := json.Marshal(artifact)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, instrument+".json"), data, 0644); err != nil {
		t.Fatal(err)
	}
}

func seedBars(t *testing.T, st store.DataStore, instrument string, closes []float64) {
	t.Helper()
	start := time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)
	bars := make([]models.Bar, len(closes))
	features := make([]models.FeatureVector, len(closes))
	for i, c := range closes {
		date := start.AddDate(0, 0, i)
		bars[i] = models.Bar{Date: date, Open: c, High: c, Low: c, Close: c, Volume: 1000}
		features[i] = models.FeatureVector{Date: date, Values: map[string]float64{"close": c}}
	}
	if err := st.SaveBars(context.Background(), instrument, bars); err != nil {
		t.Fatal(err)
	}
	if err := st.SaveFeatures(context.Background(), instrument, features); err != nil {
		t.Fatal(err)
	}
}

func newTestValidator(t *testing.T, st store.DataStore, instruments ...string) *Validator {
	t.Helper()
	dir := t.TempDir()
	for _, instrument := range instruments {
		writeTestModel(t, dir, instrument)
	}
	registry := model.NewRegistry(dir)
	cfg := config.Defaults().Engine
	cfg.Concurrency = 2
	engine := backtest.NewEngine(st, registry, cfg, zerolog.Nop())
	return NewValidator(st, registry, engine, cfg, zerolog.Nop())
}

func TestRunRejectsWindowInsideTrainingPeriod(t *testing.T) {
	st := store.NewMemoryStore()
	seedBars(t, st, "TCS", []float64{105, 110, 115})
	validator := newTestValidator(t, st, "TCS")

	cutoff := time.Date(2023, 12, 29, 0, 0, 0, 0, time.UTC)

	// Starting exactly on the cutoff leaks training data.
	_, err := validator.Run(context.Background(), RunConfig{Instrument: "TCS", Start: cutoff})
	if !apperrors.Is(err, apperrors.ErrTemporalLeakage) {
		t.Errorf("start == cutoff should be temporal leakage, got %v", err)
	}

	_, err = validator.Run(context.Background(), RunConfig{
		Instrument: "TCS",
		Start:      cutoff.AddDate(0, 0, -10),
	})
	if !apperrors.Is(err, apperrors.ErrTemporalLeakage) {
		t.Errorf("start before cutoff should be temporal leakage, got %v", err)
	}
}

func TestRunDefaultsToOutOfSampleWindow(t *testing.T) {
	st := store.NewMemoryStore()
	seedBars(t, st, "TCS", []float64{105, 110, 115, 120})
	validator := newTestValidator(t, st, "TCS")

	record, err := validator.Run(context.Background(), RunConfig{Instrument: "TCS"})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if !record.Success {
		t.Fatalf("record not successful: %s", record.Error)
	}
	cutoff := time.Date(2023, 12, 29, 0, 0, 0, 0, time.UTC)
	if !record.ValidationPeriod.Start.After(cutoff) {
		t.Errorf("default start %v should be after cutoff %v",
			record.ValidationPeriod.Start, cutoff)
	}
	if record.Samples != 4 {
		t.Errorf("Samples = %d, want 4", record.Samples)
	}
	if record.Signals.Total() == 0 {
		t.Error("expected signals over the validation window")
	}

	records, err := st.GetReports(context.Background(), "TCS", store.RunKindValidation, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Errorf("persisted validation records = %d, want 1", len(records))
	}
}

func TestRunNoOutOfSampleData(t *testing.T) {
	st := store.NewMemoryStore()
	validator := newTestValidator(t, st, "TCS")

	record, err := validator.Run(context.Background(), RunConfig{Instrument: "TCS"})
	if err != nil {
		t.Fatalf("empty store should not error: %v", err)
	}
	if !record.InsufficientData {
		t.Error("no stored bars should flag InsufficientData")
	}
	if !record.Success {
		t.Error("an empty out-of-sample window is still a successful validation")
	}
}

func TestRunBatchIsolatesFailures(t *testing.T) {
	st := store.NewMemoryStore()
	seedBars(t, st, "TCS", []float64{105, 110, 115})
	seedBars(t, st, "GHOST", []float64{100, 101, 102})
	// GHOST has no model artifact.
	validator := newTestValidator(t, st, "TCS")

	records := validator.RunBatch(context.Background(), []string{"TCS", "GHOST"}, RunConfig{})

	if len(records) != 2 {
		t.Fatalf("record count = %d, want 2", len(records))
	}
	if !records["TCS"].Success {
		t.Errorf("TCS should succeed: %s", records["TCS"].Error)
	}
	if records["GHOST"].Success {
		t.Error("GHOST should fail without a model artifact")
	}
	if records["GHOST"].Error == "" {
		t.Error("failed record should carry an error message")
	}
}

func TestRunBatchSharedWindow(t *testing.T) {
	st := store.NewMemoryStore()
	seedBars(t, st, "TCS", []float64{105, 110, 115, 120, 125})
	seedBars(t, st, "INFY", []float64{95, 96, 97, 98, 99})
	validator := newTestValidator(t, st, "TCS", "INFY")

	// Bars run Jan 8 through Jan 12; validate only the first three days.
	start := time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 2)
	records := validator.RunBatch(context.Background(), []string{"TCS", "INFY"},
		RunConfig{Start: start, End: end})

	for _, symbol := range []string{"TCS", "INFY"} {
		record := records[symbol]
		if !record.Success {
			t.Fatalf("%s failed: %s", symbol, record.Error)
		}
		if record.Samples != 3 {
			t.Errorf("%s samples = %d, want 3", symbol, record.Samples)
		}
		if !record.ValidationPeriod.Start.Equal(start) || !record.ValidationPeriod.End.Equal(end) {
			t.Errorf("%s window = %v..%v, want %v..%v", symbol,
				record.ValidationPeriod.Start, record.ValidationPeriod.End, start, end)
		}
	}
}
