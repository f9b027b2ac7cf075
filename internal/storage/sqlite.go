package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"montecarlo/internal/model"

	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("sqlite path is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return err
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}

	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

func (s *SQLiteStore) SaveProjection(ctx context.Context, series model.ProjectionSeries) error {
	if err := validateProjection(series); err != nil {
		return err
	}
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeProjection(cloneProjection(series))
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO projections (metric, schema_version, codec_version, payload)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(metric) DO UPDATE SET
			schema_version = excluded.schema_version,
			codec_version = excluded.codec_version,
			payload = excluded.payload
	`, series.Metric, series.SchemaVersion, series.CodecVersion, payload)
	return err
}

func (s *SQLiteStore) GetProjection(ctx context.Context, metric string) (model.ProjectionSeries, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return model.ProjectionSeries{}, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM projections WHERE metric = ?`, metric).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.ProjectionSeries{}, false, nil
		}
		return model.ProjectionSeries{}, false, err
	}

	series, err := DecodeProjection(payload)
	if err != nil {
		return model.ProjectionSeries{}, false, fmt.Errorf("decode projection %s: %w", metric, err)
	}
	return series, true, nil
}

func (s *SQLiteStore) ProjectionRange(ctx context.Context, metric string, from, to time.Time) ([]float64, error) {
	series, ok, err := s.GetProjection(ctx, metric)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMetricNotFound, metric)
	}
	return valuesInRange(series.Points, from, to), nil
}

func (s *SQLiteStore) ListProjectionMetrics(ctx context.Context) ([]string, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT metric FROM projections ORDER BY metric`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var metrics []string
	for rows.Next() {
		var metric string
		if err := rows.Scan(&metric); err != nil {
			return nil, err
		}
		metrics = append(metrics, metric)
	}
	return metrics, rows.Err()
}

func (s *SQLiteStore) SaveCommunitySamples(ctx context.Context, samples model.CommunitySamples) error {
	if err := validateCommunity(samples); err != nil {
		return err
	}
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeCommunitySamples(samples)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO community_samples (question_id, schema_version, codec_version, payload)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(question_id) DO UPDATE SET
			schema_version = excluded.schema_version,
			codec_version = excluded.codec_version,
			payload = excluded.payload
	`, samples.QuestionID, samples.SchemaVersion, samples.CodecVersion, payload)
	return err
}

func (s *SQLiteStore) GetCommunitySamples(ctx context.Context, questionID string) (model.CommunitySamples, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return model.CommunitySamples{}, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM community_samples WHERE question_id = ?`, questionID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.CommunitySamples{}, false, nil
		}
		return model.CommunitySamples{}, false, err
	}

	samples, err := DecodeCommunitySamples(payload)
	if err != nil {
		return model.CommunitySamples{}, false, fmt.Errorf("decode community samples %s: %w", questionID, err)
	}
	return samples, true, nil
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	return s.db, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS projections (
			metric TEXT PRIMARY KEY,
			schema_version INTEGER NOT NULL,
			codec_version INTEGER NOT NULL,
			payload BLOB NOT NULL
		);
		CREATE TABLE IF NOT EXISTS community_samples (
			question_id TEXT PRIMARY KEY,
			schema_version INTEGER NOT NULL,
			codec_version INTEGER NOT NULL,
			payload BLOB NOT NULL
		);
	`)
	return err
}
