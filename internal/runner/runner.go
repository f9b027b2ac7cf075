// Package runner evaluates a sampler many times into an empirical sample set.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"montecarlo/internal/dist"
	"montecarlo/internal/rng"
	"montecarlo/internal/sampler"
)

var ErrSamplingFailure = errors.New("sampling failure")

// SamplingFailure reports the draw that aborted a batch and the innermost
// named sampler that failed in it.
type SamplingFailure struct {
	Draw    int
	Sampler string
	Err     error
}

func (f *SamplingFailure) Error() string {
	return fmt.Sprintf("draw %d: sampler %q failed: %v", f.Draw, f.Sampler, f.Err)
}

func (f *SamplingFailure) Unwrap() []error {
	return []error{ErrSamplingFailure, f.Err}
}

type Config struct {
	Samples int
	// Seed selects the batch's streams. Draw i always uses the stream derived
	// from (Seed, i), so equal seeds give paired draws across samplers and
	// worker counts.
	Seed uint64
	// Workers evaluates draws concurrently when > 1. Failures report the
	// lowest failing draw whatever the worker count.
	Workers int
	Trace   bool
	Logger  *zap.Logger
	Metrics *Metrics
}

type Result struct {
	Label   string
	Seed    uint64
	Samples []float64
	Trace   *Trace
}

// Run draws cfg.Samples values from s. Any failing draw aborts the batch and
// no partial result is returned.
func Run(ctx context.Context, s *sampler.Sampler, cfg Config) (Result, error) {
	if s == nil {
		return Result{}, fmt.Errorf("%w: sampler is required", dist.ErrInvalidParameter)
	}
	if cfg.Samples <= 0 {
		return Result{}, fmt.Errorf("%w: samples must be > 0, got %d", dist.ErrInvalidParameter, cfg.Samples)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Workers > cfg.Samples {
		cfg.Workers = cfg.Samples
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("sampler", s.Label()), zap.Uint64("seed", cfg.Seed))

	b := &batch{
		sampler: s,
		seed:    cfg.Seed,
		samples: make([]float64, cfg.Samples),
	}
	if cfg.Trace {
		b.rows = make([]Row, cfg.Samples)
	}

	logger.Debug("batch started", zap.Int("samples", cfg.Samples), zap.Int("workers", cfg.Workers))
	start := time.Now()
	var err error
	if cfg.Workers == 1 {
		err = b.runSequential(ctx)
	} else {
		err = b.runParallel(ctx, cfg.Workers)
	}
	elapsed := time.Since(start)
	cfg.Metrics.observe(cfg.Samples, elapsed, err)
	if err != nil {
		logger.Error("batch failed", zap.Duration("elapsed", elapsed), zap.Error(err))
		return Result{}, err
	}
	logger.Debug("batch finished", zap.Int("samples", cfg.Samples), zap.Duration("elapsed", elapsed))

	result := Result{Label: s.Label(), Seed: cfg.Seed, Samples: b.samples}
	if cfg.Trace {
		result.Trace = newTrace(s.Label(), b.rows)
	}
	return result, nil
}

type batch struct {
	sampler *sampler.Sampler
	seed    uint64
	samples []float64
	rows    []Row
}

func (b *batch) runSequential(ctx context.Context) error {
	src := rng.New(b.seed)
	for i := range b.samples {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := b.draw(src, i); err != nil {
			return err
		}
	}
	return nil
}

// runParallel fans draw indexes out to workers. Each worker owns one
// generator and reseeds it per draw, so no state is shared between draws.
// After a failure only lower indexes are still evaluated, so the reported
// failure is the lowest failing draw, as in a sequential run.
func (b *batch) runParallel(ctx context.Context, workers int) error {
	g, gctx := errgroup.WithContext(ctx)
	jobs := make(chan int)
	var first lowestFailure

	g.Go(func() error {
		defer close(jobs)
		for i := range b.samples {
			if !first.before(i) {
				return nil
			}
			select {
			case jobs <- i:
			case <-gctx.Done():
				return nil
			}
		}
		return nil
	})
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			src := rng.New(b.seed)
			for i := range jobs {
				if err := gctx.Err(); err != nil {
					return err
				}
				if !first.before(i) {
					continue
				}
				if err := b.draw(src, i); err != nil {
					first.record(err)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if first.failure != nil {
		return first.failure
	}
	return nil
}

type lowestFailure struct {
	mu      sync.Mutex
	failure *SamplingFailure
}

func (f *lowestFailure) before(index int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failure == nil || index < f.failure.Draw
}

func (f *lowestFailure) record(failure *SamplingFailure) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failure == nil || failure.Draw < f.failure.Draw {
		f.failure = failure
	}
}

func (b *batch) draw(src rng.Source, index int) *SamplingFailure {
	src.Seed(rng.DeriveSeed(b.seed, index))
	d := sampler.NewDraw(index, src, b.rows != nil)
	v, err := d.Sample(b.sampler)
	if err != nil {
		return newFailure(index, b.sampler, err)
	}
	b.samples[index] = v
	if b.rows != nil {
		row := Row(d.Trace())
		row[b.sampler.Label()] = v
		b.rows[index] = row
	}
	return nil
}

func newFailure(index int, s *sampler.Sampler, err error) *SamplingFailure {
	label := s.Label()
	var attributed *sampler.Error
	if errors.As(err, &attributed) {
		label = attributed.Label
	}
	return &SamplingFailure{Draw: index, Sampler: label, Err: err}
}
