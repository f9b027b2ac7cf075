package dist

import (
	"errors"
	"math"
	"sort"
	"testing"

	"montecarlo/internal/rng"
)

func drawMany(t *testing.T, d Distribution, n int, seed uint64) []float64 {
	t.Helper()
	if err := d.Validate(); err != nil {
		t.Fatalf("validate %T: %v", d, err)
	}
	src := rng.New(seed)
	out := make([]float64, n)
	for i := range out {
		out[i] = d.Rand(src)
	}
	return out
}

func percentile(values []float64, p float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	return sorted[idx]
}

func meanVar(values []float64) (float64, float64) {
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	variance := 0.0
	for _, v := range values {
		diff := v - mean
		variance += diff * diff
	}
	return mean, variance / float64(len(values)-1)
}

func TestValidateRejectsInvalidParameters(t *testing.T) {
	tests := []struct {
		name string
		dist Distribution
	}{
		{"lognormal zero low", LognormalInterval{Low: 0, High: 10, Mass: DefaultMass}},
		{"lognormal negative low", LognormalInterval{Low: -1, High: 10, Mass: DefaultMass}},
		{"lognormal high equals low", LognormalInterval{Low: 5, High: 5, Mass: DefaultMass}},
		{"lognormal high below low", LognormalInterval{Low: 5, High: 2, Mass: DefaultMass}},
		{"lognormal mass zero", LognormalInterval{Low: 1, High: 2, Mass: 0}},
		{"lognormal mass one", LognormalInterval{Low: 1, High: 2, Mass: 1}},
		{"lognormal infinite high", LognormalInterval{Low: 1, High: math.Inf(1), Mass: DefaultMass}},
		{"lognormal nan low", LognormalInterval{Low: math.NaN(), High: 2, Mass: DefaultMass}},
		{"normal inverted", NormalInterval{Low: 3, High: -3, Mass: DefaultMass}},
		{"half-normal zero high", HalfNormalInterval{High: 0, Mass: DefaultMass}},
		{"beta negative hits", BetaHits{Hits: -1, Total: 3}},
		{"beta zero total", BetaHits{Hits: 0, Total: 0}},
		{"beta hits above total", BetaHits{Hits: 4, Total: 3}},
		{"uniform empty", Uniform{Min: 1, Max: 1}},
		{"integer inverted", RandomInteger{Min: 3, Max: 2}},
		{"bernoulli below zero", Bernoulli{P: -0.01}},
		{"bernoulli above one", Bernoulli{P: 1.01}},
		{"bernoulli nan", Bernoulli{P: math.NaN()}},
		{"constant nan", Constant{Value: math.NaN()}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.dist.Validate()
			if !errors.Is(err, ErrInvalidParameter) {
				t.Fatalf("expected ErrInvalidParameter, got %v", err)
			}
		})
	}
}

func TestValidateAcceptsFractionalPseudoCounts(t *testing.T) {
	if err := (BetaHits{Hits: 110.25, Total: 220.6}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := (BetaHits{Hits: 0, Total: 0.5}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLognormalParams(t *testing.T) {
	mu, sigma := LognormalInterval{Low: 5, High: 200, Mass: DefaultMass}.Params()
	wantMu := (math.Log(5) + math.Log(200)) / 2
	if math.Abs(mu-wantMu) > 1e-12 {
		t.Fatalf("mu=%v want %v", mu, wantMu)
	}
	wantSigma := (math.Log(200) - math.Log(5)) / (2 * 1.6448536269514722)
	if math.Abs(sigma-wantSigma) > 1e-9 {
		t.Fatalf("sigma=%v want %v", sigma, wantSigma)
	}
}

func TestLognormalFromIntervalReproducesPercentiles(t *testing.T) {
	samples := drawMany(t, LognormalInterval{Low: 5, High: 200, Mass: DefaultMass}, 20000, 1)
	p05 := percentile(samples, 0.05)
	p95 := percentile(samples, 0.95)
	if math.Abs(p05-5)/5 > 0.1 {
		t.Fatalf("5th percentile %v not within 10%% of 5", p05)
	}
	if math.Abs(p95-200)/200 > 0.1 {
		t.Fatalf("95th percentile %v not within 10%% of 200", p95)
	}
}

func TestLognormalMassControlsInterval(t *testing.T) {
	samples := drawMany(t, LognormalInterval{Low: 10, High: 20, Mass: 0.5}, 20000, 2)
	p25 := percentile(samples, 0.25)
	p75 := percentile(samples, 0.75)
	if math.Abs(p25-10)/10 > 0.05 || math.Abs(p75-20)/20 > 0.05 {
		t.Fatalf("quartiles [%v, %v] do not match [10, 20]", p25, p75)
	}
}

func TestNormalFromIntervalReproducesPercentiles(t *testing.T) {
	samples := drawMany(t, NormalInterval{Low: -10, High: 30, Mass: DefaultMass}, 20000, 3)
	if p := percentile(samples, 0.05); math.Abs(p+10) > 1.5 {
		t.Fatalf("5th percentile %v not near -10", p)
	}
	if p := percentile(samples, 0.95); math.Abs(p-30) > 1.5 {
		t.Fatalf("95th percentile %v not near 30", p)
	}
}

func TestHalfNormalFromIntervalIsNonNegative(t *testing.T) {
	samples := drawMany(t, HalfNormalInterval{High: 8, Mass: DefaultMass}, 20000, 4)
	for _, v := range samples {
		if v < 0 {
			t.Fatalf("negative half-normal draw %v", v)
		}
	}
	if p := percentile(samples, 0.9); math.Abs(p-8)/8 > 0.05 {
		t.Fatalf("90th percentile %v not near 8", p)
	}
}

func TestBetaFromHitsMeanTracksRatio(t *testing.T) {
	tests := []struct {
		hits, total float64
	}{
		{30, 100},
		{110.25, 220.6},
		{900, 1000},
	}
	for _, tc := range tests {
		samples := drawMany(t, BetaHits{Hits: tc.hits, Total: tc.total}, 20000, 5)
		mean, _ := meanVar(samples)
		if math.Abs(mean-tc.hits/tc.total) > 0.02 {
			t.Fatalf("mean %v too far from %v for %v/%v", mean, tc.hits/tc.total, tc.hits, tc.total)
		}
		for _, v := range samples {
			if v < 0 || v > 1 {
				t.Fatalf("beta draw out of [0,1]: %v", v)
			}
		}
	}
}

func TestBetaFromHitsVarianceShrinksWithTotal(t *testing.T) {
	prev := math.Inf(1)
	for i, total := range []float64{10, 100, 1000} {
		samples := drawMany(t, BetaHits{Hits: 0.3 * total, Total: total}, 20000, uint64(10+i))
		_, variance := meanVar(samples)
		if variance >= prev {
			t.Fatalf("variance %v at total %v did not decrease from %v", variance, total, prev)
		}
		prev = variance
	}
}

func TestFlipFrequency(t *testing.T) {
	src := rng.New(6)
	for _, p := range []float64{0.1, 0.5, 0.85} {
		hits := 0
		const n = 20000
		for i := 0; i < n; i++ {
			ok, err := Flip(src, p)
			if err != nil {
				t.Fatalf("flip: %v", err)
			}
			if ok {
				hits++
			}
		}
		if freq := float64(hits) / n; math.Abs(freq-p) > 0.02 {
			t.Fatalf("flip(%v) frequency %v", p, freq)
		}
	}
}

func TestFlipExtremes(t *testing.T) {
	src := rng.New(7)
	for i := 0; i < 50000; i++ {
		never, err := Flip(src, 0)
		if err != nil {
			t.Fatalf("flip(0): %v", err)
		}
		if never {
			t.Fatal("flip(0) returned true")
		}
		always, err := Flip(src, 1)
		if err != nil {
			t.Fatalf("flip(1): %v", err)
		}
		if !always {
			t.Fatal("flip(1) returned false")
		}
	}
}

func TestFlipRejectsOutOfRange(t *testing.T) {
	if _, err := Flip(rng.New(1), 1.5); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("expected ErrInvalidParameter, got %v", err)
	}
}

func TestConvenienceConstructorsValidate(t *testing.T) {
	src := rng.New(8)
	if _, err := LognormalFromInterval(src, 0, 1); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("lognormal: expected ErrInvalidParameter, got %v", err)
	}
	if _, err := LognormalFromIntervalMass(src, 1, 2, 1.2); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("lognormal mass: expected ErrInvalidParameter, got %v", err)
	}
	if _, err := BetaFromHits(src, 5, 3); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("beta: expected ErrInvalidParameter, got %v", err)
	}
	if _, err := NormalFromInterval(src, 1, 1); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("normal: expected ErrInvalidParameter, got %v", err)
	}
	v, err := LognormalFromInterval(src, 1, 2)
	if err != nil || v <= 0 {
		t.Fatalf("lognormal draw=%v err=%v", v, err)
	}
}

func TestRandomIntegerCoversInclusiveRange(t *testing.T) {
	samples := drawMany(t, RandomInteger{Min: -2, Max: 2}, 5000, 9)
	seen := map[float64]bool{}
	for _, v := range samples {
		if v < -2 || v > 2 || v != math.Trunc(v) {
			t.Fatalf("unexpected integer draw %v", v)
		}
		seen[v] = true
	}
	if len(seen) != 5 {
		t.Fatalf("expected all 5 integers, saw %v", seen)
	}
}

func TestUniformWithinBounds(t *testing.T) {
	for _, v := range drawMany(t, Uniform{Min: 2, Max: 3}, 5000, 10) {
		if v < 2 || v >= 3 {
			t.Fatalf("uniform draw out of range: %v", v)
		}
	}
}
