// Package stats summarises empirical sample sets.
package stats

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

var ErrEmpty = errors.New("no samples")

// Summary mirrors a describe() table row.
type Summary struct {
	Count int     `json:"count"`
	Mean  float64 `json:"mean"`
	Std   float64 `json:"std"`
	Min   float64 `json:"min"`
	P25   float64 `json:"p25"`
	P50   float64 `json:"p50"`
	P75   float64 `json:"p75"`
	Max   float64 `json:"max"`
}

// quantileSorted interpolates between closest ranks, matching numpy's
// default "linear" method.
func quantileSorted(sorted []float64, p float64) float64 {
	pos := p * float64(len(sorted)-1)
	lo := math.Floor(pos)
	i := int(lo)
	if i+1 >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	return sorted[i] + (pos-lo)*(sorted[i+1]-sorted[i])
}

func sortedCopy(values []float64) []float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	return sorted
}

// Summarize describes values. Std is the sample standard deviation and is 0
// for a single value.
func Summarize(values []float64) (Summary, error) {
	if len(values) == 0 {
		return Summary{}, ErrEmpty
	}
	sorted := sortedCopy(values)
	summary := Summary{
		Count: len(sorted),
		Min:   sorted[0],
		Max:   sorted[len(sorted)-1],
		P25:   quantileSorted(sorted, 0.25),
		P50:   quantileSorted(sorted, 0.5),
		P75:   quantileSorted(sorted, 0.75),
	}
	if len(sorted) == 1 {
		summary.Mean = sorted[0]
		return summary, nil
	}
	summary.Mean, summary.Std = stat.MeanStdDev(sorted, nil)
	return summary, nil
}

func Mean(values []float64) (float64, error) {
	if len(values) == 0 {
		return 0, ErrEmpty
	}
	return stat.Mean(values, nil), nil
}

// Variance returns the unbiased sample variance.
func Variance(values []float64) (float64, error) {
	if len(values) < 2 {
		return 0, fmt.Errorf("%w: variance needs at least 2 samples, got %d", ErrEmpty, len(values))
	}
	return stat.Variance(values, nil), nil
}

func checkProbability(p float64) error {
	if !(p >= 0 && p <= 1) {
		return fmt.Errorf("quantile must be in [0, 1], got %v", p)
	}
	return nil
}

// Quantile returns the linearly interpolated p-quantile of values.
func Quantile(values []float64, p float64) (float64, error) {
	qs, err := Quantiles(values, p)
	if err != nil {
		return 0, err
	}
	return qs[0], nil
}

func Quantiles(values []float64, ps ...float64) ([]float64, error) {
	if len(values) == 0 {
		return nil, ErrEmpty
	}
	sorted := sortedCopy(values)
	out := make([]float64, len(ps))
	for i, p := range ps {
		if err := checkProbability(p); err != nil {
			return nil, err
		}
		out[i] = quantileSorted(sorted, p)
	}
	return out, nil
}

// Trim keeps the values within the [lo, hi] quantile band, preserving order.
// It is used to drop extreme draws before fitting or display.
func Trim(values []float64, lo, hi float64) ([]float64, error) {
	if err := checkProbability(lo); err != nil {
		return nil, err
	}
	if err := checkProbability(hi); err != nil {
		return nil, err
	}
	if hi < lo {
		return nil, fmt.Errorf("trim band is inverted: [%v, %v]", lo, hi)
	}
	bounds, err := Quantiles(values, lo, hi)
	if err != nil {
		return nil, err
	}
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if v >= bounds[0] && v <= bounds[1] {
			out = append(out, v)
		}
	}
	return out, nil
}

// IntervalProbability is the fraction of values in [min, max].
func IntervalProbability(values []float64, min, max float64) (float64, error) {
	if len(values) == 0 {
		return 0, ErrEmpty
	}
	if max < min {
		return 0, fmt.Errorf("interval is inverted: [%v, %v]", min, max)
	}
	inside := 0
	for _, v := range values {
		if v >= min && v <= max {
			inside++
		}
	}
	return float64(inside) / float64(len(values)), nil
}

// TrueFrequency is the fraction of true values.
func TrueFrequency(values []bool) (float64, error) {
	if len(values) == 0 {
		return 0, ErrEmpty
	}
	hits := 0
	for _, v := range values {
		if v {
			hits++
		}
	}
	return float64(hits) / float64(len(values)), nil
}

// DescribeColumns summarises each column, skipping NaN cells that mark draws
// where a sampler was not invoked. Columns with no values are omitted.
func DescribeColumns(columns map[string][]float64) map[string]Summary {
	out := make(map[string]Summary, len(columns))
	for label, column := range columns {
		present := make([]float64, 0, len(column))
		for _, v := range column {
			if !math.IsNaN(v) {
				present = append(present, v)
			}
		}
		summary, err := Summarize(present)
		if err != nil {
			continue
		}
		out[label] = summary
	}
	return out
}

// ColumnSource is satisfied by a run trace.
type ColumnSource interface {
	Columns() map[string][]float64
}

func DescribeTrace(trace ColumnSource) map[string]Summary {
	if trace == nil {
		return map[string]Summary{}
	}
	return DescribeColumns(trace.Columns())
}
