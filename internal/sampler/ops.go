package sampler

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"montecarlo/internal/dist"
	"montecarlo/internal/rng"
)

var ErrConditionUnsatisfied = errors.New("condition unsatisfied")

// Const always yields v.
func Const(v float64) *Sampler {
	return anonymous(strconv.FormatFloat(v, 'g', -1, 64), func(*Draw) (float64, error) {
		return v, nil
	})
}

func joinLabels(op string, xs []*Sampler) string {
	labels := make([]string, len(xs))
	for i, x := range xs {
		labels[i] = x.label
	}
	return "(" + strings.Join(labels, " "+op+" ") + ")"
}

func callLabel(name string, xs []*Sampler) string {
	labels := make([]string, len(xs))
	for i, x := range xs {
		labels[i] = x.label
	}
	return name + "(" + strings.Join(labels, ", ") + ")"
}

func fold(op string, xs []*Sampler, combine func(acc, v float64) float64) *Sampler {
	operands := append([]*Sampler(nil), xs...)
	return anonymous(joinLabels(op, operands), func(d *Draw) (float64, error) {
		if len(operands) == 0 {
			return 0, fmt.Errorf("%w: operator %s needs at least one operand", dist.ErrInvalidParameter, op)
		}
		acc, err := d.Sample(operands[0])
		if err != nil {
			return 0, err
		}
		for _, x := range operands[1:] {
			v, err := d.Sample(x)
			if err != nil {
				return 0, err
			}
			acc = combine(acc, v)
		}
		return acc, nil
	})
}

func Add(xs ...*Sampler) *Sampler {
	return fold("+", xs, func(a, b float64) float64 { return a + b })
}

func Sub(a, b *Sampler) *Sampler {
	return fold("-", []*Sampler{a, b}, func(a, b float64) float64 { return a - b })
}

func Mul(xs ...*Sampler) *Sampler {
	return fold("*", xs, func(a, b float64) float64 { return a * b })
}

// Div divides draws of a by draws of b. A zero divisor follows IEEE-754 and
// yields ±Inf or NaN rather than an error.
func Div(a, b *Sampler) *Sampler {
	return fold("/", []*Sampler{a, b}, func(a, b float64) float64 { return a / b })
}

func Max(xs ...*Sampler) *Sampler {
	s := fold("max", xs, math.Max)
	s.label = callLabel("max", xs)
	return s
}

func Min(xs ...*Sampler) *Sampler {
	s := fold("min", xs, math.Min)
	s.label = callLabel("min", xs)
	return s
}

// Map applies f to each draw of s.
func Map(label string, s *Sampler, f func(float64) float64) *Sampler {
	return anonymous(label+"("+s.label+")", func(d *Draw) (float64, error) {
		v, err := d.Sample(s)
		if err != nil {
			return 0, err
		}
		return f(v), nil
	})
}

// Clip bounds draws of s to [lo, hi].
func Clip(s *Sampler, lo, hi float64) *Sampler {
	return Map("clip", s, func(v float64) float64 {
		return math.Min(math.Max(v, lo), hi)
	})
}

// ClipMin raises draws of s below lo to lo.
func ClipMin(s *Sampler, lo float64) *Sampler {
	return Map("clipmin", s, func(v float64) float64 {
		return math.Max(v, lo)
	})
}

// Mixture flips a coin with probability p and draws from a on heads, b on
// tails. The other branch is not evaluated.
func Mixture(p float64, a, b *Sampler) *Sampler {
	label := fmt.Sprintf("mixture(%g, %s, %s)", p, a.label, b.label)
	return anonymous(label, func(d *Draw) (float64, error) {
		heads, err := d.Flip(p)
		if err != nil {
			return 0, err
		}
		if heads {
			return d.Sample(a)
		}
		return d.Sample(b)
	})
}

// Choice draws from one of xs picked uniformly at random.
func Choice(xs ...*Sampler) *Sampler {
	options := append([]*Sampler(nil), xs...)
	return anonymous(callLabel("choice", options), func(d *Draw) (float64, error) {
		if len(options) == 0 {
			return 0, fmt.Errorf("%w: choice needs at least one option", dist.ErrInvalidParameter)
		}
		return d.Sample(options[rng.IntN(d.src, len(options))])
	})
}

// Weighted draws from xs[i] with probability weights[i]/sum(weights).
func Weighted(weights []float64, xs []*Sampler) (*Sampler, error) {
	if len(weights) != len(xs) || len(xs) == 0 {
		return nil, fmt.Errorf("%w: weighted mixture needs one weight per option, got %d weights for %d options",
			dist.ErrInvalidParameter, len(weights), len(xs))
	}
	cumulative := make([]float64, len(weights))
	total := 0.0
	for i, w := range weights {
		if !(w >= 0) || math.IsInf(w, 0) {
			return nil, fmt.Errorf("%w: weight %d must be finite and >= 0, got %v", dist.ErrInvalidParameter, i, w)
		}
		total += w
		cumulative[i] = total
	}
	if total <= 0 {
		return nil, fmt.Errorf("%w: weighted mixture requires a positive weight", dist.ErrInvalidParameter)
	}
	options := append([]*Sampler(nil), xs...)
	return anonymous(callLabel("weighted", options), func(d *Draw) (float64, error) {
		u := rng.Float64(d.src) * total
		for i, edge := range cumulative {
			if u < edge {
				return d.Sample(options[i])
			}
		}
		return d.Sample(options[len(options)-1])
	}), nil
}

// Condition re-draws s until accept holds, giving up after maxAttempts.
func Condition(s *Sampler, accept func(float64) bool, maxAttempts int) *Sampler {
	return anonymous("condition("+s.label+")", func(d *Draw) (float64, error) {
		if maxAttempts <= 0 {
			return 0, fmt.Errorf("%w: max attempts must be > 0, got %d", dist.ErrInvalidParameter, maxAttempts)
		}
		for attempt := 0; attempt < maxAttempts; attempt++ {
			v, err := d.Sample(s)
			if err != nil {
				return 0, err
			}
			if accept(v) {
				return v, nil
			}
		}
		return 0, fmt.Errorf("%w: %s rejected %d draws", ErrConditionUnsatisfied, s.label, maxAttempts)
	})
}
