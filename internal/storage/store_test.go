package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"montecarlo/internal/model"
)

func day(d int) time.Time {
	return time.Date(2020, 4, d, 0, 0, 0, 0, time.UTC)
}

// exerciseStore runs the behaviour every backend must share.
func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	series := model.ProjectionSeries{
		VersionedRecord: CurrentVersion(),
		Metric:          "beds",
		Points: []model.ProjectionPoint{
			{Date: day(3), Value: 30},
			{Date: day(1), Value: 10},
			{Date: day(2), Value: 20},
			{Date: day(4), Value: 40},
		},
	}
	if err := store.SaveProjection(ctx, series); err != nil {
		t.Fatalf("save projection: %v", err)
	}
	if err := store.SaveProjection(ctx, model.ProjectionSeries{VersionedRecord: CurrentVersion(), Metric: "icu"}); err != nil {
		t.Fatalf("save projection: %v", err)
	}
	if err := store.SaveProjection(ctx, model.ProjectionSeries{}); err == nil {
		t.Fatal("expected missing metric error")
	}

	loaded, ok, err := store.GetProjection(ctx, "beds")
	if err != nil || !ok {
		t.Fatalf("get projection: ok=%v err=%v", ok, err)
	}
	if len(loaded.Points) != 4 || loaded.Points[0].Value != 10 || loaded.Points[3].Value != 40 {
		t.Fatalf("expected points sorted by date, got %+v", loaded.Points)
	}
	if _, ok, err := store.GetProjection(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected missing projection, ok=%v err=%v", ok, err)
	}

	values, err := store.ProjectionRange(ctx, "beds", day(2), day(4))
	if err != nil {
		t.Fatalf("projection range: %v", err)
	}
	if len(values) != 2 || values[0] != 20 || values[1] != 30 {
		t.Fatalf("expected half-open range [20 30], got %v", values)
	}
	if _, err := store.ProjectionRange(ctx, "missing", day(1), day(2)); !errors.Is(err, ErrMetricNotFound) {
		t.Fatalf("expected ErrMetricNotFound, got %v", err)
	}

	metrics, err := store.ListProjectionMetrics(ctx)
	if err != nil {
		t.Fatalf("list metrics: %v", err)
	}
	if len(metrics) != 2 || metrics[0] != "beds" || metrics[1] != "icu" {
		t.Fatalf("unexpected metrics: %v", metrics)
	}

	community := model.CommunitySamples{
		VersionedRecord: CurrentVersion(),
		QuestionID:      "q1",
		Samples:         []float64{1, 2, 3},
	}
	if err := store.SaveCommunitySamples(ctx, community); err != nil {
		t.Fatalf("save community: %v", err)
	}
	community.Samples[0] = 99
	got, ok, err := store.GetCommunitySamples(ctx, "q1")
	if err != nil || !ok {
		t.Fatalf("get community: ok=%v err=%v", ok, err)
	}
	if len(got.Samples) != 3 || got.Samples[0] != 1 {
		t.Fatalf("expected stored copy, got %+v", got.Samples)
	}
	if err := store.SaveCommunitySamples(ctx, model.CommunitySamples{QuestionID: "q2"}); err == nil {
		t.Fatal("expected empty samples error")
	}
	if _, ok, err := store.GetCommunitySamples(ctx, "q2"); err != nil || ok {
		t.Fatalf("expected missing community, ok=%v err=%v", ok, err)
	}
}
