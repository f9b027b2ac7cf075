package modelspec

import (
	"fmt"
	"math"
	"time"

	"gopkg.in/yaml.v3"

	"montecarlo/internal/dist"
	"montecarlo/internal/forecast"
	"montecarlo/internal/sampler"
)

const dateLayout = "2006-01-02"

// builder produces the sampler of a node. label names samplers the node
// creates itself; references ignore it.
type builder func(deps forecast.Deps, label string) (*sampler.Sampler, error)

type compiler struct {
	env  Env
	refs []*yaml.Node
}

// operand compiles a step name, a number or an inline node.
func (c *compiler) operand(node *yaml.Node) (builder, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		if tag := node.ShortTag(); tag == "!!int" || tag == "!!float" {
			v, err := number(node, "operand")
			if err != nil {
				return nil, err
			}
			return constant(v), nil
		}
		name := node.Value
		c.refs = append(c.refs, node)
		return func(deps forecast.Deps, _ string) (*sampler.Sampler, error) {
			return deps.Step(name)
		}, nil
	case yaml.MappingNode:
		return c.node(node)
	default:
		return nil, invalidAt(node, "operand must be a step name, a number or a step node")
	}
}

func (c *compiler) operands(node *yaml.Node, kind string, min, max int) ([]builder, error) {
	if node.Kind != yaml.SequenceNode {
		return nil, invalidAt(node, "%s expects a list of operands", kind)
	}
	n := len(node.Content)
	if n < min || (max > 0 && n > max) {
		if min == max {
			return nil, invalidAt(node, "%s expects %d operands, got %d", kind, min, n)
		}
		return nil, invalidAt(node, "%s expects at least %d operands, got %d", kind, min, n)
	}
	out := make([]builder, n)
	for i, operand := range node.Content {
		b, err := c.operand(operand)
		if err != nil {
			return nil, err
		}
		out[i] = b
	}
	return out, nil
}

// node compiles a single-key mapping whose key is the step kind.
func (c *compiler) node(node *yaml.Node) (builder, error) {
	if len(node.Content) != 2 {
		return nil, invalidAt(node, "step node must have exactly one kind, got %d", len(node.Content)/2)
	}
	kind, body := node.Content[0], node.Content[1]
	switch kind.Value {
	case "constant":
		v, err := number(body, kind.Value)
		if err != nil {
			return nil, err
		}
		return distribution(body, dist.Constant{Value: v})
	case "lognormal_from_interval", "normal_from_interval":
		f, err := fields(body, kind.Value, "low", "high", "mass")
		if err != nil {
			return nil, err
		}
		low, high, mass, err := interval(body, f)
		if err != nil {
			return nil, err
		}
		if kind.Value == "normal_from_interval" {
			return distribution(body, dist.NormalInterval{Low: low, High: high, Mass: mass})
		}
		return distribution(body, dist.LognormalInterval{Low: low, High: high, Mass: mass})
	case "half_normal_from_interval":
		f, err := fields(body, kind.Value, "high", "mass")
		if err != nil {
			return nil, err
		}
		high, err := requiredNumber(body, f, "high")
		if err != nil {
			return nil, err
		}
		mass, err := optionalNumber(f, "mass", dist.DefaultMass)
		if err != nil {
			return nil, err
		}
		return distribution(body, dist.HalfNormalInterval{High: high, Mass: mass})
	case "random_integer":
		f, err := fields(body, kind.Value, "min", "max")
		if err != nil {
			return nil, err
		}
		bounds := make([]int, 2)
		for i, name := range []string{"min", "max"} {
			node, ok := f[name]
			if !ok {
				return nil, invalidAt(body, "missing field %q", name)
			}
			if err := node.Decode(&bounds[i]); err != nil {
				return nil, invalidAt(node, "%s must be an integer, got %q", name, node.Value)
			}
		}
		return distribution(body, dist.RandomInteger{Min: bounds[0], Max: bounds[1]})
	case "beta_from_hits":
		f, err := fields(body, kind.Value, "hits", "total")
		if err != nil {
			return nil, err
		}
		hits, err := requiredNumber(body, f, "hits")
		if err != nil {
			return nil, err
		}
		total, err := requiredNumber(body, f, "total")
		if err != nil {
			return nil, err
		}
		return distribution(body, dist.BetaHits{Hits: hits, Total: total})
	case "flip":
		p, err := c.probability(body, kind.Value)
		if err != nil {
			return nil, err
		}
		return distribution(body, dist.Bernoulli{P: p})
	case "uniform":
		f, err := fields(body, kind.Value, "min", "max")
		if err != nil {
			return nil, err
		}
		lo, err := requiredNumber(body, f, "min")
		if err != nil {
			return nil, err
		}
		hi, err := requiredNumber(body, f, "max")
		if err != nil {
			return nil, err
		}
		return distribution(body, dist.Uniform{Min: lo, Max: hi})
	case "sum":
		return c.variadic(body, kind.Value, sampler.Add)
	case "product":
		return c.variadic(body, kind.Value, sampler.Mul)
	case "max":
		return c.variadic(body, kind.Value, sampler.Max)
	case "min":
		return c.variadic(body, kind.Value, sampler.Min)
	case "choice":
		return c.variadic(body, kind.Value, sampler.Choice)
	case "difference":
		return c.binary(body, kind.Value, sampler.Sub)
	case "quotient":
		return c.binary(body, kind.Value, sampler.Div)
	case "mixture":
		return c.mixture(body)
	case "clip":
		return c.clip(body)
	case "weighted":
		return c.weighted(body)
	case "condition":
		return c.condition(body)
	case "community":
		return c.community(body)
	case "projection_peak":
		return c.projectionPeak(body)
	default:
		return nil, invalidAt(kind, "unknown step kind %q", kind.Value)
	}
}

func constant(v float64) builder {
	return func(forecast.Deps, string) (*sampler.Sampler, error) {
		return sampler.Const(v), nil
	}
}

func distribution(node *yaml.Node, dd dist.Distribution) (builder, error) {
	if err := dd.Validate(); err != nil {
		return nil, fmt.Errorf("line %d: %w", node.Line, err)
	}
	return func(_ forecast.Deps, label string) (*sampler.Sampler, error) {
		return sampler.FromDistribution(label, dd)
	}, nil
}

func number(node *yaml.Node, what string) (float64, error) {
	if node.Kind != yaml.ScalarNode {
		return 0, invalidAt(node, "%s must be a number", what)
	}
	var v float64
	if err := node.Decode(&v); err != nil {
		return 0, invalidAt(node, "%s must be a number, got %q", what, node.Value)
	}
	return v, nil
}

func requiredNumber(parent *yaml.Node, f map[string]*yaml.Node, name string) (float64, error) {
	node, ok := f[name]
	if !ok {
		return 0, invalidAt(parent, "missing field %q", name)
	}
	return number(node, name)
}

func optionalNumber(f map[string]*yaml.Node, name string, fallback float64) (float64, error) {
	node, ok := f[name]
	if !ok {
		return fallback, nil
	}
	return number(node, name)
}

func interval(body *yaml.Node, f map[string]*yaml.Node) (low, high, mass float64, err error) {
	if low, err = requiredNumber(body, f, "low"); err != nil {
		return 0, 0, 0, err
	}
	if high, err = requiredNumber(body, f, "high"); err != nil {
		return 0, 0, 0, err
	}
	if mass, err = optionalNumber(f, "mass", dist.DefaultMass); err != nil {
		return 0, 0, 0, err
	}
	return low, high, mass, nil
}

// probability accepts either a bare number or {p: number}.
func (c *compiler) probability(body *yaml.Node, what string) (float64, error) {
	if body.Kind == yaml.ScalarNode {
		return number(body, what)
	}
	f, err := fields(body, what, "p")
	if err != nil {
		return 0, err
	}
	return requiredNumber(body, f, "p")
}

func (c *compiler) variadic(body *yaml.Node, kind string, op func(...*sampler.Sampler) *sampler.Sampler) (builder, error) {
	operands, err := c.operands(body, kind, 1, 0)
	if err != nil {
		return nil, err
	}
	return func(deps forecast.Deps, label string) (*sampler.Sampler, error) {
		xs, err := buildAll(deps, label, operands)
		if err != nil {
			return nil, err
		}
		return op(xs...), nil
	}, nil
}

func (c *compiler) binary(body *yaml.Node, kind string, op func(a, b *sampler.Sampler) *sampler.Sampler) (builder, error) {
	operands, err := c.operands(body, kind, 2, 2)
	if err != nil {
		return nil, err
	}
	return func(deps forecast.Deps, label string) (*sampler.Sampler, error) {
		xs, err := buildAll(deps, label, operands)
		if err != nil {
			return nil, err
		}
		return op(xs[0], xs[1]), nil
	}, nil
}

// buildAll builds operands, labelling inline ones after their position.
func buildAll(deps forecast.Deps, label string, operands []builder) ([]*sampler.Sampler, error) {
	out := make([]*sampler.Sampler, len(operands))
	for i, b := range operands {
		s, err := b(deps, fmt.Sprintf("%s.%d", label, i))
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

func (c *compiler) mixture(body *yaml.Node) (builder, error) {
	f, err := fields(body, "mixture", "p", "a", "b")
	if err != nil {
		return nil, err
	}
	p, err := requiredNumber(body, f, "p")
	if err != nil {
		return nil, err
	}
	if err := (dist.Bernoulli{P: p}).Validate(); err != nil {
		return nil, fmt.Errorf("line %d: %w", body.Line, err)
	}
	branches := make([]builder, 2)
	for i, key := range []string{"a", "b"} {
		node, ok := f[key]
		if !ok {
			return nil, invalidAt(body, "mixture: missing field %q", key)
		}
		if branches[i], err = c.operand(node); err != nil {
			return nil, err
		}
	}
	return func(deps forecast.Deps, label string) (*sampler.Sampler, error) {
		a, err := branches[0](deps, label+".a")
		if err != nil {
			return nil, err
		}
		b, err := branches[1](deps, label+".b")
		if err != nil {
			return nil, err
		}
		return sampler.Mixture(p, a, b), nil
	}, nil
}

func (c *compiler) clip(body *yaml.Node) (builder, error) {
	f, err := fields(body, "clip", "of", "min", "max")
	if err != nil {
		return nil, err
	}
	of, ok := f["of"]
	if !ok {
		return nil, invalidAt(body, "clip: missing field %q", "of")
	}
	inner, err := c.operand(of)
	if err != nil {
		return nil, err
	}
	lo, err := optionalNumber(f, "min", math.Inf(-1))
	if err != nil {
		return nil, err
	}
	hi, err := optionalNumber(f, "max", math.Inf(1))
	if err != nil {
		return nil, err
	}
	if hi < lo {
		return nil, invalidAt(body, "clip: max %v is below min %v", hi, lo)
	}
	return func(deps forecast.Deps, label string) (*sampler.Sampler, error) {
		s, err := inner(deps, label+".of")
		if err != nil {
			return nil, err
		}
		if math.IsInf(hi, 1) {
			return sampler.ClipMin(s, lo), nil
		}
		return sampler.Clip(s, lo, hi), nil
	}, nil
}

func (c *compiler) weighted(body *yaml.Node) (builder, error) {
	f, err := fields(body, "weighted", "weights", "of")
	if err != nil {
		return nil, err
	}
	weightsNode, ok := f["weights"]
	if !ok {
		return nil, invalidAt(body, "weighted: missing field %q", "weights")
	}
	if weightsNode.Kind != yaml.SequenceNode {
		return nil, invalidAt(weightsNode, "weighted: weights must be a list of numbers")
	}
	weights := make([]float64, len(weightsNode.Content))
	for i, w := range weightsNode.Content {
		if weights[i], err = number(w, "weight"); err != nil {
			return nil, err
		}
	}
	of, ok := f["of"]
	if !ok {
		return nil, invalidAt(body, "weighted: missing field %q", "of")
	}
	options, err := c.operands(of, "weighted", 1, 0)
	if err != nil {
		return nil, err
	}
	placeholders := make([]*sampler.Sampler, len(options))
	for i := range placeholders {
		placeholders[i] = sampler.Const(0)
	}
	if _, err := sampler.Weighted(weights, placeholders); err != nil {
		return nil, fmt.Errorf("line %d: %w", body.Line, err)
	}
	return func(deps forecast.Deps, label string) (*sampler.Sampler, error) {
		xs, err := buildAll(deps, label, options)
		if err != nil {
			return nil, err
		}
		return sampler.Weighted(weights, xs)
	}, nil
}

const defaultConditionAttempts = 1000

// condition keeps draws of its operand within [min, max], re-drawing
// rejected ones.
func (c *compiler) condition(body *yaml.Node) (builder, error) {
	f, err := fields(body, "condition", "of", "min", "max", "attempts")
	if err != nil {
		return nil, err
	}
	of, ok := f["of"]
	if !ok {
		return nil, invalidAt(body, "condition: missing field %q", "of")
	}
	inner, err := c.operand(of)
	if err != nil {
		return nil, err
	}
	_, hasMin := f["min"]
	_, hasMax := f["max"]
	if !hasMin && !hasMax {
		return nil, invalidAt(body, "condition: needs min, max or both")
	}
	lo, err := optionalNumber(f, "min", math.Inf(-1))
	if err != nil {
		return nil, err
	}
	hi, err := optionalNumber(f, "max", math.Inf(1))
	if err != nil {
		return nil, err
	}
	if hi < lo {
		return nil, invalidAt(body, "condition: max %v is below min %v", hi, lo)
	}
	attempts := defaultConditionAttempts
	if node, ok := f["attempts"]; ok {
		if err := node.Decode(&attempts); err != nil || attempts <= 0 {
			return nil, invalidAt(node, "condition: attempts must be a positive integer, got %q", node.Value)
		}
	}
	accept := func(v float64) bool { return v >= lo && v <= hi }
	return func(deps forecast.Deps, label string) (*sampler.Sampler, error) {
		s, err := inner(deps, label+".of")
		if err != nil {
			return nil, err
		}
		return sampler.Condition(s, accept, attempts), nil
	}, nil
}

func (c *compiler) community(body *yaml.Node) (builder, error) {
	f, err := fields(body, "community", "question", "weight", "of")
	if err != nil {
		return nil, err
	}
	questionNode, ok := f["question"]
	if !ok {
		return nil, invalidAt(body, "community: missing field %q", "question")
	}
	var question string
	if err := questionNode.Decode(&question); err != nil || question == "" {
		return nil, invalidAt(questionNode, "community: question must be a non-empty string")
	}
	weight, err := requiredNumber(body, f, "weight")
	if err != nil {
		return nil, err
	}
	of, ok := f["of"]
	if !ok {
		return nil, invalidAt(body, "community: missing field %q", "of")
	}
	inner, err := c.operand(of)
	if err != nil {
		return nil, err
	}
	if c.env.Communities == nil {
		return nil, invalidAt(body, "community: no community store configured")
	}
	crowd, err := forecast.LoadCommunity(c.env.context(), c.env.Communities, question)
	if err != nil {
		return nil, fmt.Errorf("line %d: %w", body.Line, err)
	}
	if err := (dist.Bernoulli{P: weight}).Validate(); err != nil {
		return nil, fmt.Errorf("line %d: community weight: %w", body.Line, err)
	}
	return func(deps forecast.Deps, label string) (*sampler.Sampler, error) {
		s, err := inner(deps, label+".of")
		if err != nil {
			return nil, err
		}
		return forecast.Question(label, s, crowd, weight)
	}, nil
}

func (c *compiler) projectionPeak(body *yaml.Node) (builder, error) {
	f, err := fields(body, "projection_peak", "metric", "from", "to")
	if err != nil {
		return nil, err
	}
	var metric string
	if node, ok := f["metric"]; !ok {
		return nil, invalidAt(body, "projection_peak: missing field %q", "metric")
	} else if err := node.Decode(&metric); err != nil || metric == "" {
		return nil, invalidAt(node, "projection_peak: metric must be a non-empty string")
	}
	from, err := date(body, f, "from")
	if err != nil {
		return nil, err
	}
	to, err := date(body, f, "to")
	if err != nil {
		return nil, err
	}
	if !from.Before(to) {
		return nil, invalidAt(body, "projection_peak: from must be before to")
	}
	if c.env.Projections == nil {
		return nil, invalidAt(body, "projection_peak: no projection source configured")
	}
	peak, err := forecast.PeakProjection(c.env.context(), c.env.Projections, metric, from, to)
	if err != nil {
		return nil, fmt.Errorf("line %d: %w", body.Line, err)
	}
	return distribution(body, dist.Constant{Value: peak})
}

func date(parent *yaml.Node, f map[string]*yaml.Node, name string) (time.Time, error) {
	node, ok := f[name]
	if !ok {
		return time.Time{}, invalidAt(parent, "missing field %q", name)
	}
	t, err := time.Parse(dateLayout, node.Value)
	if err != nil {
		return time.Time{}, invalidAt(node, "%s must be a date like 2020-04-01, got %q", name, node.Value)
	}
	return t, nil
}
