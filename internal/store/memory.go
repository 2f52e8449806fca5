package store

import (
	"context"
	"sort"
	"sync"
	"time"

	apperrors "stockml-engine/internal/errors"
	"stockml-engine/internal/models"
	"stockml-engine/pkg/utils"
)

// MemoryStore implements DataStore in memory. Used by tests and for
// one-shot runs that feed data from files instead of the database.
type MemoryStore struct {
	mu       sync.RWMutex
	bars     map[string]map[time.Time]models.Bar
	features map[string]map[time.Time]models.FeatureVector
	reports  []RunRecord
	nextID   int64
}

// NewMemoryStore creates an empty in-memory data store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		bars:     make(map[string]map[time.Time]models.Bar),
		features: make(map[string]map[time.Time]models.FeatureVector),
		nextID:   1,
	}
}

func (s *MemoryStore) SaveBars(_ context.Context, instrument string, bars []models.Bar) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.bars[instrument] == nil {
		s.bars[instrument] = make(map[time.Time]models.Bar)
	}
	for _, b := range bars {
		s.bars[instrument][utils.Day(b.Date)] = b
	}
	return nil
}

func (s *MemoryStore) GetBars(_ context.Context, instrument string, from, to time.Time) ([]models.Bar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var bars []models.Bar
	for day, b := range s.bars[instrument] {
		if day.Before(utils.Day(from)) || day.After(utils.Day(to)) {
			continue
		}
		bars = append(bars, b)
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	return bars, nil
}

func (s *MemoryStore) SaveFeatures(_ context.Context, instrument string, features []models.FeatureVector) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.features[instrument] == nil {
		s.features[instrument] = make(map[time.Time]models.FeatureVector)
	}
	for _, f := range features {
		s.features[instrument][utils.Day(f.Date)] = f.Clone()
	}
	return nil
}

func (s *MemoryStore) GetFeatures(_ context.Context, instrument string, from, to time.Time) ([]models.FeatureVector, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var features []models.FeatureVector
	for day, f := range s.features[instrument] {
		if day.Before(utils.Day(from)) || day.After(utils.Day(to)) {
			continue
		}
		features = append(features, f.Clone())
	}
	sort.Slice(features, func(i, j int) bool { return features[i].Date.Before(features[j].Date) })
	return features, nil
}

func (s *MemoryStore) LatestFeatures(_ context.Context, instrument string) (*models.FeatureVector, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *models.FeatureVector
	for _, f := range s.features[instrument] {
		f := f
		if latest == nil || f.Date.After(latest.Date) {
			latest = &f
		}
	}
	if latest == nil {
		return nil, &apperrors.DataError{Instrument: instrument, Message: "no feature vectors stored", Err: apperrors.ErrDataNotFound}
	}
	clone := latest.Clone()
	return &clone, nil
}

func (s *MemoryStore) ListInstruments(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	instruments := make([]string, 0, len(s.bars))
	for instrument := range s.bars {
		instruments = append(instruments, instrument)
	}
	sort.Strings(instruments)
	return instruments, nil
}

func (s *MemoryStore) InstrumentStatus(_ context.Context, instrument string) (*InstrumentStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := &InstrumentStatus{Instrument: instrument}
	for day := range s.bars[instrument] {
		status.BarCount++
		if status.FirstDate.IsZero() || day.Before(status.FirstDate) {
			status.FirstDate = day
		}
		if day.After(status.LastDate) {
			status.LastDate = day
		}
	}
	status.FeatureCount = len(s.features[instrument])
	return status, nil
}

func (s *MemoryStore) SaveReport(_ context.Context, record *RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	record.ID = s.nextID
	s.nextID++
	s.reports = append(s.reports, *record)
	return nil
}

func (s *MemoryStore) GetReports(_ context.Context, instrument string, kind RunKind, limit int) ([]RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var records []RunRecord
	for i := len(s.reports) - 1; i >= 0; i-- {
		r := s.reports[i]
		if instrument != "" && r.Instrument != instrument {
			continue
		}
		if kind != "" && r.Kind != kind {
			continue
		}
		records = append(records, r)
		if limit > 0 && len(records) >= limit {
			break
		}
	}
	return records, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
