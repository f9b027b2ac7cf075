// Package sampler represents scalar random variables as labelled rules that
// produce one value per draw, and combines them with elementwise arithmetic.
//
// Every evaluation of a composite sampler re-invokes each operand, so two
// references to independent samplers never share a value. Mem opts a sampler
// into sharing its value within a single draw.
package sampler

import (
	"errors"
	"fmt"

	"montecarlo/internal/dist"
	"montecarlo/internal/rng"
)

// Func produces one value for the current draw.
type Func func(d *Draw) (float64, error)

// Sampler is an immutable labelled rule. Named samplers are recorded in the
// draw trace; samplers produced by operators only carry a display label.
type Sampler struct {
	label string
	named bool
	fn    Func
}

// New returns a named sampler. An empty label yields an anonymous sampler that
// is never traced.
func New(label string, fn Func) *Sampler {
	return &Sampler{label: label, named: label != "", fn: fn}
}

func anonymous(label string, fn Func) *Sampler {
	return &Sampler{label: label, fn: fn}
}

func (s *Sampler) Label() string { return s.label }

// Named reports whether the sampler is recorded in traces.
func (s *Sampler) Named() bool { return s.named }

func (s *Sampler) String() string { return s.label }

// Error attributes a failure to the innermost named sampler that produced it.
type Error struct {
	Label string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("sampler %q: %v", e.Label, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Draw carries the state of one top-level evaluation: its random source, the
// optional trace of named values and the per-draw memo table.
type Draw struct {
	index int
	src   rng.Source
	trace map[string]float64
	memo  map[*Sampler]float64
}

// NewDraw prepares evaluation number index on src. When trace is true every
// named sampler invoked during the draw is recorded.
func NewDraw(index int, src rng.Source, trace bool) *Draw {
	d := &Draw{index: index, src: src}
	if trace {
		d.trace = make(map[string]float64)
	}
	return d
}

func (d *Draw) Index() int { return d.index }

func (d *Draw) Source() rng.Source { return d.src }

// Trace returns the values recorded so far, or nil when tracing is off. A
// sampler invoked more than once in the same draw keeps its last value.
func (d *Draw) Trace() map[string]float64 { return d.trace }

// Sample evaluates s within this draw.
func (d *Draw) Sample(s *Sampler) (float64, error) {
	v, err := s.fn(d)
	if err != nil {
		var attributed *Error
		if errors.As(err, &attributed) || !s.named {
			return 0, err
		}
		return 0, &Error{Label: s.label, Err: err}
	}
	if s.named && d.trace != nil {
		d.trace[s.label] = v
	}
	return v, nil
}

func (d *Draw) LognormalFromInterval(low, high float64) (float64, error) {
	return dist.LognormalFromInterval(d.src, low, high)
}

func (d *Draw) NormalFromInterval(low, high float64) (float64, error) {
	return dist.NormalFromInterval(d.src, low, high)
}

func (d *Draw) BetaFromHits(hits, total float64) (float64, error) {
	return dist.BetaFromHits(d.src, hits, total)
}

func (d *Draw) Flip(p float64) (bool, error) {
	return dist.Flip(d.src, p)
}

// Distribution draws once from dd after validating it.
func (d *Draw) Distribution(dd dist.Distribution) (float64, error) {
	return dist.Sample(d.src, dd)
}

// FromDistribution returns a named sampler over dd. Parameters are validated
// here so malformed inputs fail before any batch starts.
func FromDistribution(label string, dd dist.Distribution) (*Sampler, error) {
	if err := dd.Validate(); err != nil {
		return nil, fmt.Errorf("sampler %q: %w", label, err)
	}
	return New(label, func(d *Draw) (float64, error) {
		return dd.Rand(d.src), nil
	}), nil
}

func LognormalFromInterval(label string, low, high float64) (*Sampler, error) {
	return FromDistribution(label, dist.LognormalInterval{Low: low, High: high, Mass: dist.DefaultMass})
}

func BetaFromHits(label string, hits, total float64) (*Sampler, error) {
	return FromDistribution(label, dist.BetaHits{Hits: hits, Total: total})
}

// Bernoulli yields 1 with probability p and 0 otherwise.
func Bernoulli(label string, p float64) (*Sampler, error) {
	return FromDistribution(label, dist.Bernoulli{P: p})
}

// Named gives s an identity so its values appear in traces under label.
func Named(label string, s *Sampler) *Sampler {
	return New(label, func(d *Draw) (float64, error) {
		return d.Sample(s)
	})
}

// Mem shares one value of s across every reference within a draw. The value
// is discarded when the draw ends.
func Mem(s *Sampler) *Sampler {
	m := anonymous(s.label, nil)
	m.fn = func(d *Draw) (float64, error) {
		if v, ok := d.memo[m]; ok {
			return v, nil
		}
		v, err := d.Sample(s)
		if err != nil {
			return 0, err
		}
		if d.memo == nil {
			d.memo = make(map[*Sampler]float64)
		}
		d.memo[m] = v
		return v, nil
	}
	return m
}
