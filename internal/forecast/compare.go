package forecast

import (
	"context"
	"fmt"

	"montecarlo/internal/runner"
	"montecarlo/internal/stats"
)

// Comparison holds paired batches of one step under two model versions.
// Draw i of both batches used the same random stream.
type Comparison struct {
	Step            string
	Previous        runner.Result
	Current         runner.Result
	PreviousSummary stats.Summary
	CurrentSummary  stats.Summary
	// Differences is Current minus Previous per draw.
	Differences []float64
}

// Compare runs step of prev and cur with the same configuration and seed.
func Compare(ctx context.Context, prev, cur Model, step string, cfg runner.Config) (Comparison, error) {
	previous, err := prev.Run(ctx, step, cfg)
	if err != nil {
		return Comparison{}, fmt.Errorf("previous: %w", err)
	}
	current, err := cur.Run(ctx, step, cfg)
	if err != nil {
		return Comparison{}, fmt.Errorf("current: %w", err)
	}
	out := Comparison{
		Step:        step,
		Previous:    previous,
		Current:     current,
		Differences: make([]float64, len(current.Samples)),
	}
	for i := range current.Samples {
		out.Differences[i] = current.Samples[i] - previous.Samples[i]
	}
	if out.PreviousSummary, err = stats.Summarize(previous.Samples); err != nil {
		return Comparison{}, err
	}
	if out.CurrentSummary, err = stats.Summarize(current.Samples); err != nil {
		return Comparison{}, err
	}
	return out, nil
}
