// Package model loads frozen classifier artifacts and exposes
// prediction without any training capability. An artifact is read-only
// after load and safe to share across concurrent runs.
package model

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"stockml-engine/internal/errors"
	"stockml-engine/internal/models"
	"stockml-engine/pkg/utils"
)

// Artifact is a frozen classifier: features in, up-probability out.
// Metadata is for reporting and leakage checks only.
type Artifact interface {
	PredictProbability(fv models.FeatureVector) (float64, error)
	Metadata() models.ModelMetadata
}

// artifactFile is the on-disk JSON shape of a frozen model, exported
// by the training pipeline: logistic weights plus the standard scaler
// fitted on the training window.
type artifactFile struct {
	Instrument     string    `json:"instrument"`
	TrainingDate   string    `json:"training_date"`
	TrainingCutoff string    `json:"training_cutoff"`
	FeatureNames   []string  `json:"feature_names"`
	Weights        []float64 `json:"weights"`
	Intercept      float64   `json:"intercept"`
	ScalerMean     []float64 `json:"scaler_mean"`
	ScalerStd      []float64 `json:"scaler_std"`
	CVAccuracy     float64   `json:"cv_accuracy"`
}

// Logistic is a frozen logistic classifier over standardized features.
type Logistic struct {
	meta       models.ModelMetadata
	weights    []float64
	intercept  float64
	scalerMean []float64
	scalerStd  []float64
}

// LoadArtifact reads a frozen model artifact from a JSON file.
func LoadArtifact(path string) (*Logistic, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(errors.ErrModelNotFound, "reading %s", path)
		}
		return nil, fmt.Errorf("reading artifact %s: %w", path, err)
	}

	var file artifactFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing artifact %s: %w", path, err)
	}

	return newLogistic(file)
}

func newLogistic(file artifactFile) (*Logistic, error) {
	n := len(file.FeatureNames)
	if n == 0 {
		return nil, fmt.Errorf("artifact for %s has no features", file.Instrument)
	}
	if len(file.Weights) != n || len(file.ScalerMean) != n || len(file.ScalerStd) != n {
		return nil, fmt.Errorf("artifact for %s has mismatched feature/weight/scaler lengths",
			file.Instrument)
	}

	trainingDate, err := utils.ParseDate(file.TrainingDate)
	if err != nil {
		return nil, fmt.Errorf("artifact for %s: training_date: %w", file.Instrument, err)
	}
	cutoff, err := utils.ParseDate(file.TrainingCutoff)
	if err != nil {
		return nil, fmt.Errorf("artifact for %s: training_cutoff: %w", file.Instrument, err)
	}

	return &Logistic{
		meta: models.ModelMetadata{
			Instrument:     file.Instrument,
			TrainingDate:   trainingDate,
			TrainingCutoff: cutoff,
			FeatureNames:   file.FeatureNames,
			FeatureCount:   n,
			CVAccuracy:     file.CVAccuracy,
		},
		weights:    file.Weights,
		intercept:  file.Intercept,
		scalerMean: file.ScalerMean,
		scalerStd:  file.ScalerStd,
	}, nil
}

// PredictProbability standardizes the named features and applies the
// logistic. A missing or non-finite feature value is corrupt input.
func (l *Logistic) PredictProbability(fv models.FeatureVector) (float64, error) {
	z := l.intercept
	for i, name := range l.meta.FeatureNames {
		raw, ok := fv.Values[name]
		if !ok {
			return 0, errors.NewDataError(l.meta.Instrument,
				"feature vector missing "+name, nil)
		}
		if math.IsNaN(raw) || math.IsInf(raw, 0) {
			return 0, errors.NewDataError(l.meta.Instrument,
				"non-finite feature value for "+name, nil)
		}
		scaled := raw - l.scalerMean[i]
		if l.scalerStd[i] != 0 {
			scaled /= l.scalerStd[i]
		}
		z += l.weights[i] * scaled
	}
	return 1 / (1 + math.Exp(-z)), nil
}

// Metadata returns the frozen training metadata.
func (l *Logistic) Metadata() models.ModelMetadata {
	return l.meta
}

// Registry resolves instruments to their frozen artifacts on disk.
// Artifacts are cached after first load. Loaded artifacts are
// read-only and shared across concurrent runs without locking; the
// cache map itself is guarded.
type Registry struct {
	dir   string
	mu    sync.RWMutex
	cache map[string]*Logistic
}

// NewRegistry creates a registry over a directory of
// <instrument>.json artifact files.
func NewRegistry(dir string) *Registry {
	return &Registry{dir: dir, cache: make(map[string]*Logistic)}
}

// Artifact returns the frozen artifact for an instrument.
func (r *Registry) Artifact(instrument string) (Artifact, error) {
	r.mu.RLock()
	a, ok := r.cache[instrument]
	r.mu.RUnlock()
	if ok {
		return a, nil
	}

	a, err := LoadArtifact(filepath.Join(r.dir, instrument+".json"))
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.cache[instrument] = a
	r.mu.Unlock()
	return a, nil
}

// Available reports which of the given instruments have artifacts.
func (r *Registry) Available(instruments []string) map[string]bool {
	out := make(map[string]bool, len(instruments))
	for _, instrument := range instruments {
		_, err := r.Artifact(instrument)
		out[instrument] = err == nil
	}
	return out
}

// Status is an immutable snapshot of one instrument's model artifact,
// served by status queries.
type Status struct {
	Instrument   string    `json:"instrument"`
	Available    bool      `json:"available"`
	TrainingDate time.Time `json:"training_date,omitempty"`
	FeatureCount int       `json:"feature_count,omitempty"`
	CVAccuracy   float64   `json:"cv_accuracy,omitempty"`
}

// Statuses lists a status snapshot for every artifact file in the
// registry's directory.
func (r *Registry) Statuses() []Status {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil
	}

	var statuses []Status
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		instrument := strings.TrimSuffix(entry.Name(), ".json")
		statuses = append(statuses, r.StatusFor(instrument))
	}
	return statuses
}

// StatusFor builds a model status snapshot for an instrument.
func (r *Registry) StatusFor(instrument string) Status {
	a, err := r.Artifact(instrument)
	if err != nil {
		return Status{Instrument: instrument}
	}
	meta := a.Metadata()
	return Status{
		Instrument:   instrument,
		Available:    true,
		TrainingDate: meta.TrainingDate,
		FeatureCount: meta.FeatureCount,
		CVAccuracy:   meta.CVAccuracy,
	}
}
