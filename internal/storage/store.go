package storage

import (
	"context"
	"errors"
	"sort"
	"time"

	"montecarlo/internal/model"
)

var ErrMetricNotFound = errors.New("projection metric not found")

// Store persists the inputs supplied by external collaborators: projection
// series and community sample sets.
type Store interface {
	Init(ctx context.Context) error
	SaveProjection(ctx context.Context, series model.ProjectionSeries) error
	GetProjection(ctx context.Context, metric string) (model.ProjectionSeries, bool, error)
	// ProjectionRange returns the values dated within [from, to) in date order.
	ProjectionRange(ctx context.Context, metric string, from, to time.Time) ([]float64, error)
	ListProjectionMetrics(ctx context.Context) ([]string, error)
	SaveCommunitySamples(ctx context.Context, samples model.CommunitySamples) error
	GetCommunitySamples(ctx context.Context, questionID string) (model.CommunitySamples, bool, error)
}

func CurrentVersion() model.VersionedRecord {
	return model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion}
}

func validateProjection(series model.ProjectionSeries) error {
	if series.Metric == "" {
		return errors.New("projection metric is required")
	}
	return nil
}

func validateCommunity(samples model.CommunitySamples) error {
	if samples.QuestionID == "" {
		return errors.New("community question id is required")
	}
	if len(samples.Samples) == 0 {
		return errors.New("community samples are empty")
	}
	return nil
}

func cloneProjection(series model.ProjectionSeries) model.ProjectionSeries {
	series.Points = append([]model.ProjectionPoint(nil), series.Points...)
	sort.SliceStable(series.Points, func(i, j int) bool {
		return series.Points[i].Date.Before(series.Points[j].Date)
	})
	return series
}

func cloneCommunity(samples model.CommunitySamples) model.CommunitySamples {
	samples.Samples = append([]float64(nil), samples.Samples...)
	return samples
}

func valuesInRange(points []model.ProjectionPoint, from, to time.Time) []float64 {
	var out []float64
	for _, point := range points {
		if point.Date.Before(from) || !point.Date.Before(to) {
			continue
		}
		out = append(out, point.Value)
	}
	return out
}
