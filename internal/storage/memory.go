package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"montecarlo/internal/model"
)

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	projections map[string]model.ProjectionSeries
	community   map[string]model.CommunitySamples
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return nil
	}
	s.initialized = true
	s.projections = make(map[string]model.ProjectionSeries)
	s.community = make(map[string]model.CommunitySamples)
	return nil
}

func (s *MemoryStore) ready() error {
	if !s.initialized {
		return errors.New("store is not initialized")
	}
	return nil
}

func (s *MemoryStore) SaveProjection(_ context.Context, series model.ProjectionSeries) error {
	if err := validateProjection(series); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ready(); err != nil {
		return err
	}
	s.projections[series.Metric] = cloneProjection(series)
	return nil
}

func (s *MemoryStore) GetProjection(_ context.Context, metric string) (model.ProjectionSeries, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.ready(); err != nil {
		return model.ProjectionSeries{}, false, err
	}
	series, ok := s.projections[metric]
	if !ok {
		return model.ProjectionSeries{}, false, nil
	}
	return cloneProjection(series), true, nil
}

func (s *MemoryStore) ProjectionRange(_ context.Context, metric string, from, to time.Time) ([]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.ready(); err != nil {
		return nil, err
	}
	series, ok := s.projections[metric]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMetricNotFound, metric)
	}
	return valuesInRange(series.Points, from, to), nil
}

func (s *MemoryStore) ListProjectionMetrics(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.ready(); err != nil {
		return nil, err
	}
	metrics := make([]string, 0, len(s.projections))
	for metric := range s.projections {
		metrics = append(metrics, metric)
	}
	sort.Strings(metrics)
	return metrics, nil
}

func (s *MemoryStore) SaveCommunitySamples(_ context.Context, samples model.CommunitySamples) error {
	if err := validateCommunity(samples); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ready(); err != nil {
		return err
	}
	s.community[samples.QuestionID] = cloneCommunity(samples)
	return nil
}

func (s *MemoryStore) GetCommunitySamples(_ context.Context, questionID string) (model.CommunitySamples, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.ready(); err != nil {
		return model.CommunitySamples{}, false, err
	}
	samples, ok := s.community[questionID]
	if !ok {
		return model.CommunitySamples{}, false, nil
	}
	return cloneCommunity(samples), true, nil
}
