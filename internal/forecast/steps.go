package forecast

import (
	"montecarlo/internal/dist"
	"montecarlo/internal/sampler"
)

// Dist builds a step drawing from dd under the step's name.
func Dist(dd dist.Distribution) Step {
	return func(deps Deps) (*sampler.Sampler, error) {
		return sampler.FromDistribution(deps.Name(), dd)
	}
}

func Const(v float64) Step {
	return func(Deps) (*sampler.Sampler, error) {
		return sampler.Const(v), nil
	}
}

// Fixed binds a prebuilt sampler. It cannot see other steps.
func Fixed(s *sampler.Sampler) Step {
	return func(Deps) (*sampler.Sampler, error) {
		return s, nil
	}
}

// Combine applies a variadic operator such as sampler.Mul to the named steps.
func Combine(op func(...*sampler.Sampler) *sampler.Sampler, names ...string) Step {
	return func(deps Deps) (*sampler.Sampler, error) {
		operands, err := deps.Steps(names...)
		if err != nil {
			return nil, err
		}
		return op(operands...), nil
	}
}

// Binary applies a two-operand operator such as sampler.Div.
func Binary(op func(a, b *sampler.Sampler) *sampler.Sampler, a, b string) Step {
	return func(deps Deps) (*sampler.Sampler, error) {
		operands, err := deps.Steps(a, b)
		if err != nil {
			return nil, err
		}
		return op(operands[0], operands[1]), nil
	}
}

// MixtureOf draws from step a with probability p and from step b otherwise.
func MixtureOf(p float64, a, b string) Step {
	return func(deps Deps) (*sampler.Sampler, error) {
		if err := (dist.Bernoulli{P: p}).Validate(); err != nil {
			return nil, err
		}
		return Binary(func(x, y *sampler.Sampler) *sampler.Sampler {
			return sampler.Mixture(p, x, y)
		}, a, b)(deps)
	}
}
