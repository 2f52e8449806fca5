// Package store provides data persistence interfaces and implementations.
//
// Price bars and feature vectors are produced once by upstream
// collaborators (data acquisition, feature construction) and read here
// as immutable inputs; the engine only writes run reports.
package store

import (
	"context"
	"encoding/json"
	"time"

	"stockml-engine/internal/models"
)

// RunKind distinguishes persisted report types.
type RunKind string

const (
	RunKindBacktest   RunKind = "backtest"
	RunKindValidation RunKind = "validation"
	RunKindForecast   RunKind = "forecast"
)

// RunRecord is one persisted engine result, stored verbatim as JSON.
type RunRecord struct {
	ID         int64           `json:"id"`
	Instrument string          `json:"instrument"`
	Kind       RunKind         `json:"kind"`
	CreatedAt  time.Time       `json:"created_at"`
	Payload    json.RawMessage `json:"payload"`
}

// InstrumentStatus is an immutable snapshot of one instrument's stored
// data, returned by status queries.
type InstrumentStatus struct {
	Instrument   string    `json:"instrument"`
	BarCount     int       `json:"bar_count"`
	FeatureCount int       `json:"feature_count"`
	FirstDate    time.Time `json:"first_date,omitempty"`
	LastDate     time.Time `json:"last_date,omitempty"`
}

// DataStore defines the interface for data persistence.
type DataStore interface {
	// Price bars
	SaveBars(ctx context.Context, instrument string, bars []models.Bar) error
	GetBars(ctx context.Context, instrument string, from, to time.Time) ([]models.Bar, error)

	// Feature vectors
	SaveFeatures(ctx context.Context, instrument string, features []models.FeatureVector) error
	GetFeatures(ctx context.Context, instrument string, from, to time.Time) ([]models.FeatureVector, error)
	LatestFeatures(ctx context.Context, instrument string) (*models.FeatureVector, error)

	// Status snapshots
	ListInstruments(ctx context.Context) ([]string, error)
	InstrumentStatus(ctx context.Context, instrument string) (*InstrumentStatus, error)

	// Run reports
	SaveReport(ctx context.Context, record *RunRecord) error
	GetReports(ctx context.Context, instrument string, kind RunKind, limit int) ([]RunRecord, error)

	// Lifecycle
	Close() error
}
