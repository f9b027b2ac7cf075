package forecast

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

var ErrEmptyProjection = errors.New("projection has no values in range")

// ProjectionSource returns dated projection values in [from, to).
type ProjectionSource interface {
	ProjectionRange(ctx context.Context, metric string, from, to time.Time) ([]float64, error)
}

// PeakProjection is the largest projected value of metric in [from, to).
func PeakProjection(ctx context.Context, source ProjectionSource, metric string, from, to time.Time) (float64, error) {
	values, err := source.ProjectionRange(ctx, metric, from, to)
	if err != nil {
		return 0, fmt.Errorf("projection %s: %w", metric, err)
	}
	if len(values) == 0 {
		return 0, fmt.Errorf("%w: %s [%s, %s)", ErrEmptyProjection, metric, from.Format(time.DateOnly), to.Format(time.DateOnly))
	}
	peak := math.Inf(-1)
	for _, v := range values {
		peak = math.Max(peak, v)
	}
	return peak, nil
}
