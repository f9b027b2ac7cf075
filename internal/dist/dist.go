// Package dist draws from named distributions parameterised by intuitive
// inputs: a central interval, a hit count, a probability.
package dist

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"montecarlo/internal/rng"
)

// DefaultMass is the central probability covered by an interval when the
// caller does not choose one. low/high then act as 5th/95th percentiles.
const DefaultMass = 0.9

var ErrInvalidParameter = errors.New("invalid parameter")

// Distribution is a validated parameter set that can produce draws.
type Distribution interface {
	Validate() error
	Rand(src rng.Source) float64
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidParameter, fmt.Sprintf(format, args...))
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func validateMass(mass float64) error {
	if !(mass > 0 && mass < 1) {
		return invalid("mass must be in (0, 1), got %v", mass)
	}
	return nil
}

// intervalZ is the standard normal quantile bounding a central interval that
// holds mass probability (1.645 for 0.9).
func intervalZ(mass float64) float64 {
	return distuv.UnitNormal.Quantile((1 + mass) / 2)
}

// LognormalInterval is the lognormal whose central Mass interval is
// [Low, High].
type LognormalInterval struct {
	Low  float64
	High float64
	Mass float64
}

func (d LognormalInterval) Validate() error {
	switch {
	case !finite(d.Low) || !finite(d.High):
		return invalid("lognormal interval bounds must be finite, got [%v, %v]", d.Low, d.High)
	case d.Low <= 0:
		return invalid("lognormal low must be > 0, got %v", d.Low)
	case d.High <= d.Low:
		return invalid("lognormal high must be > low, got [%v, %v]", d.Low, d.High)
	}
	return validateMass(d.Mass)
}

// Params returns mu and sigma of the underlying normal in log space.
func (d LognormalInterval) Params() (mu, sigma float64) {
	lo, hi := math.Log(d.Low), math.Log(d.High)
	return (lo + hi) / 2, (hi - lo) / (2 * intervalZ(d.Mass))
}

func (d LognormalInterval) Rand(src rng.Source) float64 {
	mu, sigma := d.Params()
	return distuv.LogNormal{Mu: mu, Sigma: sigma, Src: src}.Rand()
}

// NormalInterval is the normal whose central Mass interval is [Low, High].
type NormalInterval struct {
	Low  float64
	High float64
	Mass float64
}

func (d NormalInterval) Validate() error {
	switch {
	case !finite(d.Low) || !finite(d.High):
		return invalid("normal interval bounds must be finite, got [%v, %v]", d.Low, d.High)
	case d.High <= d.Low:
		return invalid("normal high must be > low, got [%v, %v]", d.Low, d.High)
	}
	return validateMass(d.Mass)
}

func (d NormalInterval) Params() (mu, sigma float64) {
	return (d.Low + d.High) / 2, (d.High - d.Low) / (2 * intervalZ(d.Mass))
}

func (d NormalInterval) Rand(src rng.Source) float64 {
	mu, sigma := d.Params()
	return distuv.Normal{Mu: mu, Sigma: sigma, Src: src}.Rand()
}

// HalfNormalInterval is the half-normal on [0, inf) with Mass probability
// below High.
type HalfNormalInterval struct {
	High float64
	Mass float64
}

func (d HalfNormalInterval) Validate() error {
	if !finite(d.High) || d.High <= 0 {
		return invalid("half-normal high must be finite and > 0, got %v", d.High)
	}
	return validateMass(d.Mass)
}

func (d HalfNormalInterval) Rand(src rng.Source) float64 {
	sigma := d.High / intervalZ(d.Mass)
	return math.Abs(distuv.Normal{Mu: 0, Sigma: sigma, Src: src}.Rand())
}

// BetaHits is the posterior over a success rate after Hits successes in Total
// trials under a uniform prior: Beta(Hits+1, Total-Hits+1). Hits and Total may
// be fractional pseudo-counts.
type BetaHits struct {
	Hits  float64
	Total float64
}

func (d BetaHits) Validate() error {
	switch {
	case !finite(d.Hits) || !finite(d.Total):
		return invalid("beta hits and total must be finite, got %v/%v", d.Hits, d.Total)
	case d.Hits < 0:
		return invalid("beta hits must be >= 0, got %v", d.Hits)
	case d.Total <= 0:
		return invalid("beta total must be > 0, got %v", d.Total)
	case d.Hits > d.Total:
		return invalid("beta hits must be <= total, got %v/%v", d.Hits, d.Total)
	}
	return nil
}

// Shape returns the Beta shape parameters.
func (d BetaHits) Shape() (alpha, beta float64) {
	return d.Hits + 1, d.Total - d.Hits + 1
}

func (d BetaHits) Rand(src rng.Source) float64 {
	alpha, beta := d.Shape()
	return distuv.Beta{Alpha: alpha, Beta: beta, Src: src}.Rand()
}

// Uniform is the continuous uniform on [Min, Max).
type Uniform struct {
	Min float64
	Max float64
}

func (d Uniform) Validate() error {
	if !finite(d.Min) || !finite(d.Max) || d.Max <= d.Min {
		return invalid("uniform requires finite min < max, got [%v, %v]", d.Min, d.Max)
	}
	return nil
}

func (d Uniform) Rand(src rng.Source) float64 {
	return distuv.Uniform{Min: d.Min, Max: d.Max, Src: src}.Rand()
}

// RandomInteger is uniform over the integers of [Min, Max].
type RandomInteger struct {
	Min int
	Max int
}

func (d RandomInteger) Validate() error {
	if d.Max < d.Min {
		return invalid("random integer requires min <= max, got [%d, %d]", d.Min, d.Max)
	}
	return nil
}

func (d RandomInteger) Rand(src rng.Source) float64 {
	return float64(d.Min + rng.IntN(src, d.Max-d.Min+1))
}

// Bernoulli yields 1 with probability P and 0 otherwise.
type Bernoulli struct {
	P float64
}

func (d Bernoulli) Validate() error {
	if !(d.P >= 0 && d.P <= 1) {
		return invalid("probability must be in [0, 1], got %v", d.P)
	}
	return nil
}

func (d Bernoulli) Rand(src rng.Source) float64 {
	return distuv.Bernoulli{P: d.P, Src: src}.Rand()
}

// Constant always yields Value.
type Constant struct {
	Value float64
}

func (d Constant) Validate() error {
	if math.IsNaN(d.Value) {
		return invalid("constant must not be NaN")
	}
	return nil
}

func (d Constant) Rand(rng.Source) float64 {
	return d.Value
}

// Sample validates d and draws once.
func Sample(src rng.Source, d Distribution) (float64, error) {
	if err := d.Validate(); err != nil {
		return 0, err
	}
	return d.Rand(src), nil
}

// LognormalFromInterval draws from the lognormal with [low, high] as its
// 5th/95th percentiles.
func LognormalFromInterval(src rng.Source, low, high float64) (float64, error) {
	return Sample(src, LognormalInterval{Low: low, High: high, Mass: DefaultMass})
}

// LognormalFromIntervalMass is LognormalFromInterval with an explicit central
// mass.
func LognormalFromIntervalMass(src rng.Source, low, high, mass float64) (float64, error) {
	return Sample(src, LognormalInterval{Low: low, High: high, Mass: mass})
}

func NormalFromInterval(src rng.Source, low, high float64) (float64, error) {
	return Sample(src, NormalInterval{Low: low, High: high, Mass: DefaultMass})
}

func BetaFromHits(src rng.Source, hits, total float64) (float64, error) {
	return Sample(src, BetaHits{Hits: hits, Total: total})
}

// Flip returns true with probability p using one uniform draw.
func Flip(src rng.Source, p float64) (bool, error) {
	v, err := Sample(src, Bernoulli{P: p})
	if err != nil {
		return false, err
	}
	return v == 1, nil
}
