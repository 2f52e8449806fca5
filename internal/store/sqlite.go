package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	apperrors "stockml-engine/internal/errors"
	"stockml-engine/internal/models"
	"stockml-engine/pkg/utils"
)

// SQLiteStore implements DataStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) an SQLite-backed data store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", apperrors.ErrDatabaseError, dbPath, err)
	}

	// Configure connection pool for concurrent batch runs
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Daily OHLCV bars
	CREATE TABLE IF NOT EXISTS bars (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		instrument TEXT NOT NULL,
		date DATE NOT NULL,
		open REAL NOT NULL,
		high REAL NOT NULL,
		low REAL NOT NULL,
		close REAL NOT NULL,
		volume INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(instrument, date)
	);

	-- Precomputed feature vectors, one JSON object per trading day
	CREATE TABLE IF NOT EXISTS features (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		instrument TEXT NOT NULL,
		date DATE NOT NULL,
		values_json TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(instrument, date)
	);

	-- Persisted run reports (backtest, validation, forecast)
	CREATE TABLE IF NOT EXISTS reports (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		instrument TEXT NOT NULL,
		kind TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		payload TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_bars_instrument ON bars(instrument);
	CREATE INDEX IF NOT EXISTS idx_bars_date ON bars(date);
	CREATE INDEX IF NOT EXISTS idx_features_instrument ON features(instrument);
	CREATE INDEX IF NOT EXISTS idx_reports_instrument_kind ON reports(instrument, kind);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveBars inserts or replaces bars for an instrument.
func (s *SQLiteStore) SaveBars(ctx context.Context, instrument string, bars []models.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &apperrors.DataError{Instrument: instrument, Message: "begin transaction", Err: err}
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO bars (instrument, date, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return &apperrors.DataError{Instrument: instrument, Message: "prepare statement", Err: err}
	}
	defer stmt.Close()

	for _, b := range bars {
		_, err := stmt.ExecContext(ctx, instrument, utils.FormatDate(b.Date), b.Open, b.High, b.Low, b.Close, b.Volume)
		if err != nil {
			return &apperrors.DataError{Instrument: instrument, Message: "insert bar", Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &apperrors.DataError{Instrument: instrument, Message: "commit transaction", Err: err}
	}

	return nil
}

// GetBars retrieves bars for an instrument in [from, to], ordered by date.
func (s *SQLiteStore) GetBars(ctx context.Context, instrument string, from, to time.Time) ([]models.Bar, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date, open, high, low, close, volume
		FROM bars
		WHERE instrument = ? AND date >= ? AND date <= ?
		ORDER BY date ASC
	`, instrument, utils.FormatDate(from), utils.FormatDate(to))
	if err != nil {
		return nil, &apperrors.DataError{Instrument: instrument, Message: "query bars", Err: err}
	}
	defer rows.Close()

	var bars []models.Bar
	for rows.Next() {
		var b models.Bar
		var dateStr string
		if err := rows.Scan(&dateStr, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, &apperrors.DataError{Instrument: instrument, Message: "scan bar", Err: err}
		}
		b.Date, err = utils.ParseDate(dateStr)
		if err != nil {
			return nil, &apperrors.DataError{Instrument: instrument, Message: "parse bar date", Err: err}
		}
		bars = append(bars, b)
	}

	if err := rows.Err(); err != nil {
		return nil, &apperrors.DataError{Instrument: instrument, Message: "iterate bars", Err: err}
	}

	return bars, nil
}

// SaveFeatures inserts or replaces feature vectors for an instrument.
func (s *SQLiteStore) SaveFeatures(ctx context.Context, instrument string, features []models.FeatureVector) error {
	if len(features) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &apperrors.DataError{Instrument: instrument, Message: "begin transaction", Err: err}
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO features (instrument, date, values_json)
		VALUES (?, ?, ?)
	`)
	if err != nil {
		return &apperrors.DataError{Instrument: instrument, Message: "prepare statement", Err: err}
	}
	defer stmt.Close()

	for _, f := range features {
		values, err := json.Marshal(f.Values)
		if err != nil {
			return &apperrors.DataError{Instrument: instrument, Message: "marshal feature values", Err: err}
		}
		if _, err := stmt.ExecContext(ctx, instrument, utils.FormatDate(f.Date), string(values)); err != nil {
			return &apperrors.DataError{Instrument: instrument, Message: "insert features", Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &apperrors.DataError{Instrument: instrument, Message: "commit transaction", Err: err}
	}

	return nil
}

// GetFeatures retrieves feature vectors for an instrument in [from, to], ordered by date.
func (s *SQLiteStore) GetFeatures(ctx context.Context, instrument string, from, to time.Time) ([]models.FeatureVector, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date, values_json
		FROM features
		WHERE instrument = ? AND date >= ? AND date <= ?
		ORDER BY date ASC
	`, instrument, utils.FormatDate(from), utils.FormatDate(to))
	if err != nil {
		return nil, &apperrors.DataError{Instrument: instrument, Message: "query features", Err: err}
	}
	defer rows.Close()

	var features []models.FeatureVector
	for rows.Next() {
		fv, err := scanFeatureRow(rows, instrument)
		if err != nil {
			return nil, err
		}
		features = append(features, *fv)
	}

	if err := rows.Err(); err != nil {
		return nil, &apperrors.DataError{Instrument: instrument, Message: "iterate features", Err: err}
	}

	return features, nil
}

// LatestFeatures returns the most recent feature vector for an instrument,
// or ErrDataNotFound when none is stored.
func (s *SQLiteStore) LatestFeatures(ctx context.Context, instrument string) (*models.FeatureVector, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT date, values_json
		FROM features
		WHERE instrument = ?
		ORDER BY date DESC
		LIMIT 1
	`, instrument)

	var dateStr, valuesJSON string
	err := row.Scan(&dateStr, &valuesJSON)
	if err == sql.ErrNoRows {
		return nil, &apperrors.DataError{Instrument: instrument, Message: "no feature vectors stored", Err: apperrors.ErrDataNotFound}
	}
	if err != nil {
		return nil, &apperrors.DataError{Instrument: instrument, Message: "query latest features", Err: err}
	}

	return buildFeatureVector(instrument, dateStr, valuesJSON)
}

func scanFeatureRow(rows *sql.Rows, instrument string) (*models.FeatureVector, error) {
	var dateStr, valuesJSON string
	if err := rows.Scan(&dateStr, &valuesJSON); err != nil {
		return nil, &apperrors.DataError{Instrument: instrument, Message: "scan features", Err: err}
	}
	return buildFeatureVector(instrument, dateStr, valuesJSON)
}

func buildFeatureVector(instrument, dateStr, valuesJSON string) (*models.FeatureVector, error) {
	date, err := utils.ParseDate(dateStr)
	if err != nil {
		return nil, &apperrors.DataError{Instrument: instrument, Message: "parse feature date", Err: err}
	}
	fv := &models.FeatureVector{Date: date, Values: make(map[string]float64)}
	if err := json.Unmarshal([]byte(valuesJSON), &fv.Values); err != nil {
		return nil, &apperrors.DataError{Instrument: instrument, Message: "unmarshal feature values", Err: err}
	}
	return fv, nil
}

// ListInstruments returns all instruments with stored bars.
func (s *SQLiteStore) ListInstruments(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT instrument FROM bars ORDER BY instrument ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list instruments: %w", err)
	}
	defer rows.Close()

	var instruments []string
	for rows.Next() {
		var instrument string
		if err := rows.Scan(&instrument); err != nil {
			return nil, fmt.Errorf("failed to scan instrument: %w", err)
		}
		instruments = append(instruments, instrument)
	}

	return instruments, rows.Err()
}

// InstrumentStatus returns a snapshot of stored data for one instrument.
func (s *SQLiteStore) InstrumentStatus(ctx context.Context, instrument string) (*InstrumentStatus, error) {
	status := &InstrumentStatus{Instrument: instrument}

	var first, last sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), MIN(date), MAX(date) FROM bars WHERE instrument = ?
	`, instrument).Scan(&status.BarCount, &first, &last)
	if err != nil {
		return nil, &apperrors.DataError{Instrument: instrument, Message: "query bar stats", Err: err}
	}

	if first.Valid {
		if status.FirstDate, err = utils.ParseDate(first.String); err != nil {
			return nil, &apperrors.DataError{Instrument: instrument, Message: "parse first date", Err: err}
		}
	}
	if last.Valid {
		if status.LastDate, err = utils.ParseDate(last.String); err != nil {
			return nil, &apperrors.DataError{Instrument: instrument, Message: "parse last date", Err: err}
		}
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM features WHERE instrument = ?
	`, instrument).Scan(&status.FeatureCount)
	if err != nil {
		return nil, &apperrors.DataError{Instrument: instrument, Message: "query feature stats", Err: err}
	}

	return status, nil
}

// SaveReport persists one run record and fills in its assigned ID.
func (s *SQLiteStore) SaveReport(ctx context.Context, record *RunRecord) error {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO reports (instrument, kind, created_at, payload)
		VALUES (?, ?, ?, ?)
	`, record.Instrument, string(record.Kind), record.CreatedAt, string(record.Payload))
	if err != nil {
		return &apperrors.DataError{Instrument: record.Instrument, Message: "save report", Err: err}
	}

	record.ID, _ = result.LastInsertId()
	return nil
}

// GetReports retrieves persisted run records, newest first. Empty
// instrument or kind matches everything.
func (s *SQLiteStore) GetReports(ctx context.Context, instrument string, kind RunKind, limit int) ([]RunRecord, error) {
	query := "SELECT id, instrument, kind, created_at, payload FROM reports WHERE 1=1"
	args := []interface{}{}

	if instrument != "" {
		query += " AND instrument = ?"
		args = append(args, instrument)
	}
	if kind != "" {
		query += " AND kind = ?"
		args = append(args, string(kind))
	}

	query += " ORDER BY created_at DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		var r RunRecord
		var kindStr, payload string
		if err := rows.Scan(&r.ID, &r.Instrument, &kindStr, &r.CreatedAt, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		r.Kind = RunKind(kindStr)
		r.Payload = json.RawMessage(payload)
		records = append(records, r)
	}

	return records, rows.Err()
}
