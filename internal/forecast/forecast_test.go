package forecast

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"montecarlo/internal/dist"
	"montecarlo/internal/model"
	"montecarlo/internal/runner"
	"montecarlo/internal/sampler"
	"montecarlo/internal/storage"
)

func run(t *testing.T, m Model, step string, samples int, trace bool) runner.Result {
	t.Helper()
	result, err := m.Run(context.Background(), step, runner.Config{Samples: samples, Seed: 11, Trace: trace})
	if err != nil {
		t.Fatalf("run %s: %v", step, err)
	}
	return result
}

func baseModel() Model {
	return NewModel("el-paso").
		WithStep("frac", Const(0.5)).
		WithStep("icu", Const(10)).
		WithStep("need", Combine(sampler.Mul, "frac", "icu"))
}

func TestWithStepPropagatesWithoutMutatingReceiver(t *testing.T) {
	base := baseModel()
	updated := base.WithStep("icu", Const(20))

	if got := run(t, base, "need", 3, false).Samples[0]; got != 5 {
		t.Fatalf("base need=%v want 5", got)
	}
	if got := run(t, updated, "need", 3, false).Samples[0]; got != 10 {
		t.Fatalf("updated need=%v want 10", got)
	}
	if steps := updated.Steps(); len(steps) != 3 || steps[2] != "need" {
		t.Fatalf("replacing a step should keep order, got %v", steps)
	}
	extended := base.WithStep("beds", Const(1))
	if base.Has("beds") || !extended.Has("beds") {
		t.Fatal("expected WithStep to leave the receiver unchanged")
	}
}

func TestBuildSharesStepValueWithinDraw(t *testing.T) {
	m := NewModel("m").
		WithStep("x", Dist(dist.LognormalInterval{Low: 1, High: 10, Mass: dist.DefaultMass})).
		WithStep("zero", Binary(sampler.Sub, "x", "x"))
	result := run(t, m, "zero", 200, false)
	for i, v := range result.Samples {
		if v != 0 {
			t.Fatalf("draw %d: x - x = %v, expected one x value per draw", i, v)
		}
	}
	xs := run(t, m, "x", 200, false).Samples
	if xs[0] == xs[1] {
		t.Fatal("expected x to be redrawn across draws")
	}
}

func TestBuildTracesStepNames(t *testing.T) {
	result := run(t, baseModel(), "need", 4, true)
	labels := result.Trace.Labels
	if len(labels) != 3 || labels[0] != "need" || labels[1] != "frac" || labels[2] != "icu" {
		t.Fatalf("unexpected trace labels %v", labels)
	}
}

func TestBuildErrors(t *testing.T) {
	cyclic := NewModel("c").
		WithStep("a", Combine(sampler.Add, "b")).
		WithStep("b", Combine(sampler.Add, "a"))
	if _, err := cyclic.Build("a"); !errors.Is(err, ErrCycle) {
		t.Fatalf("expected ErrCycle, got %v", err)
	}
	if _, err := baseModel().Build("missing"); !errors.Is(err, ErrUnknownStep) {
		t.Fatalf("expected ErrUnknownStep, got %v", err)
	}
	broken := baseModel().WithStep("icu", Combine(sampler.Add, "nowhere"))
	if _, err := broken.Build("need"); !errors.Is(err, ErrUnknownStep) {
		t.Fatalf("expected ErrUnknownStep from dependency, got %v", err)
	}
	invalid := baseModel().WithStep("icu", Dist(dist.LognormalInterval{Low: 10, High: 5, Mass: 0.9}))
	if _, err := invalid.Build("need"); !errors.Is(err, dist.ErrInvalidParameter) {
		t.Fatalf("expected ErrInvalidParameter, got %v", err)
	}
}

func TestBuildAllUsesOneBuild(t *testing.T) {
	built, err := baseModel().BuildAll()
	if err != nil {
		t.Fatalf("build all: %v", err)
	}
	if len(built) != 3 || built["need"] == nil {
		t.Fatalf("unexpected build %v", built)
	}
}

func TestMixtureOfSteps(t *testing.T) {
	m := baseModel().WithStep("either", MixtureOf(0.5, "frac", "icu"))
	result := run(t, m, "either", 2000, true)
	low := 0
	for i, v := range result.Samples {
		if v == 0.5 {
			low++
			if result.Trace.Invoked(i, "icu") {
				t.Fatalf("draw %d: icu branch evaluated for frac outcome", i)
			}
		}
	}
	if math.Abs(float64(low)/2000-0.5) > 0.05 {
		t.Fatalf("unbalanced mixture: %d/2000", low)
	}
	if _, err := baseModel().WithStep("bad", MixtureOf(2, "frac", "icu")).Build("bad"); !errors.Is(err, dist.ErrInvalidParameter) {
		t.Fatalf("expected ErrInvalidParameter, got %v", err)
	}
}

func TestQuestionBlendsCommunity(t *testing.T) {
	community, err := NewEmpiricalCommunity("q", []float64{100, 200})
	if err != nil {
		t.Fatalf("community: %v", err)
	}
	cases := []struct {
		weight  float64
		wantMin float64
		wantMax float64
	}{
		{weight: 0, wantMin: 0, wantMax: 0},
		{weight: 1, wantMin: 1, wantMax: 1},
		{weight: 0.3, wantMin: 0.25, wantMax: 0.35},
	}
	for _, tc := range cases {
		m := baseModel().WithStep("question", QuestionStep("need", community, tc.weight))
		result := run(t, m, "question", 4000, false)
		fromCommunity := 0
		for _, v := range result.Samples {
			switch v {
			case 100, 200:
				fromCommunity++
			case 5:
			default:
				t.Fatalf("weight %v: unexpected value %v", tc.weight, v)
			}
		}
		share := float64(fromCommunity) / 4000
		if share < tc.wantMin || share > tc.wantMax {
			t.Fatalf("weight %v: community share %v outside [%v, %v]", tc.weight, share, tc.wantMin, tc.wantMax)
		}
	}
}

func TestQuestionValidation(t *testing.T) {
	if _, err := Question("q", sampler.Const(1), nil, 0.5); !errors.Is(err, dist.ErrInvalidParameter) {
		t.Fatalf("expected missing community error, got %v", err)
	}
	if _, err := Question("q", sampler.Const(1), nil, 1.5); !errors.Is(err, dist.ErrInvalidParameter) {
		t.Fatalf("expected bad weight error, got %v", err)
	}
	if _, err := Question("q", sampler.Const(1), nil, 0); err != nil {
		t.Fatalf("model-only question: %v", err)
	}
	if _, err := NewEmpiricalCommunity("q", nil); !errors.Is(err, dist.ErrInvalidParameter) {
		t.Fatalf("expected empty community error, got %v", err)
	}
}

func newStore(t *testing.T) *storage.MemoryStore {
	t.Helper()
	store := storage.NewMemoryStore()
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	return store
}

func TestLoadCommunity(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	err := store.SaveCommunitySamples(ctx, model.CommunitySamples{
		VersionedRecord: storage.CurrentVersion(),
		QuestionID:      "3997",
		Samples:         []float64{1, 2, 3},
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	community, err := LoadCommunity(ctx, store, "3997")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if community.Len() != 3 || community.QuestionID() != "3997" {
		t.Fatalf("unexpected community %+v", community)
	}
	if _, err := LoadCommunity(ctx, store, "missing"); !errors.Is(err, ErrUnknownQuestion) {
		t.Fatalf("expected ErrUnknownQuestion, got %v", err)
	}
}

func TestPeakProjection(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	day := func(d int) time.Time { return time.Date(2020, 4, d, 0, 0, 0, 0, time.UTC) }
	err := store.SaveProjection(ctx, model.ProjectionSeries{
		VersionedRecord: storage.CurrentVersion(),
		Metric:          "InvVen_mean",
		Points: []model.ProjectionPoint{
			{Date: day(1), Value: 12},
			{Date: day(2), Value: 30},
			{Date: day(3), Value: 25},
			{Date: day(4), Value: 90},
		},
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	peak, err := PeakProjection(ctx, store, "InvVen_mean", day(1), day(4))
	if err != nil {
		t.Fatalf("peak: %v", err)
	}
	if peak != 30 {
		t.Fatalf("peak=%v want 30", peak)
	}
	if _, err := PeakProjection(ctx, store, "InvVen_mean", day(10), day(20)); !errors.Is(err, ErrEmptyProjection) {
		t.Fatalf("expected ErrEmptyProjection, got %v", err)
	}
	if _, err := PeakProjection(ctx, store, "missing", day(1), day(4)); !errors.Is(err, storage.ErrMetricNotFound) {
		t.Fatalf("expected ErrMetricNotFound, got %v", err)
	}
}

func TestCompareUsesPairedStreams(t *testing.T) {
	prev := NewModel("v1").
		WithStep("frac", Dist(dist.BetaHits{Hits: 1, Total: 3})).
		WithStep("icu", Dist(dist.LognormalInterval{Low: 5, High: 200, Mass: dist.DefaultMass})).
		WithStep("need", Combine(sampler.Mul, "frac", "icu"))
	cfg := runner.Config{Samples: 500, Seed: 3, Workers: 3}

	same, err := Compare(context.Background(), prev, prev.Rename("v1-copy"), "need", cfg)
	if err != nil {
		t.Fatalf("compare: %v", err)
	}
	for i, d := range same.Differences {
		if d != 0 {
			t.Fatalf("draw %d: identical models differ by %v", i, d)
		}
	}

	// Doubling the interval bounds doubles icu for the same normal draw.
	cur := prev.WithStep("icu", Dist(dist.LognormalInterval{Low: 10, High: 400, Mass: dist.DefaultMass}))
	cmp, err := Compare(context.Background(), prev, cur, "need", cfg)
	if err != nil {
		t.Fatalf("compare: %v", err)
	}
	if cmp.CurrentSummary.Mean <= cmp.PreviousSummary.Mean {
		t.Fatalf("expected wider interval to raise the mean: prev=%v cur=%v", cmp.PreviousSummary.Mean, cmp.CurrentSummary.Mean)
	}
	for i, d := range cmp.Differences {
		want := cmp.Previous.Samples[i]
		if math.Abs(d-want) > 1e-9*math.Max(1, want) {
			t.Fatalf("draw %d: paired difference %v, want %v", i, d, want)
		}
	}
	if cmp.Step != "need" || len(cmp.Differences) != 500 {
		t.Fatalf("unexpected comparison %+v", cmp.Step)
	}
}
