// Package modelspec compiles YAML model documents into forecast models.
//
// A document names its steps; each step is a single-key mapping whose key is
// the step kind:
//
//	name: el-paso
//	steps:
//	  frac_icu_ventilation:
//	    beta_from_hits: {hits: 110.2, total: 220.6}
//	  icu_patients:
//	    lognormal_from_interval: {low: 5, high: 200}
//	  vent_need:
//	    product: [frac_icu_ventilation, icu_patients]
//
// Operands are step names, numbers or inline step nodes.
package modelspec

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"montecarlo/internal/forecast"
	"montecarlo/internal/sampler"
)

var ErrInvalidDocument = errors.New("invalid model document")

// Env supplies the collaborators that community and projection steps read
// while a document is compiled.
type Env struct {
	Context     context.Context
	Projections forecast.ProjectionSource
	Communities forecast.CommunityStore
}

func (e Env) context() context.Context {
	if e.Context == nil {
		return context.Background()
	}
	return e.Context
}

func invalidAt(node *yaml.Node, format string, args ...any) error {
	return fmt.Errorf("%w: line %d: %s", ErrInvalidDocument, node.Line, fmt.Sprintf(format, args...))
}

func Load(path string, env Env) (forecast.Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return forecast.Model{}, fmt.Errorf("read model %s: %w", path, err)
	}
	m, err := Parse(data, env)
	if err != nil {
		return forecast.Model{}, fmt.Errorf("model %s: %w", path, err)
	}
	return m, nil
}

// Parse compiles data into a model. Distribution parameters, step references
// and collaborator lookups are checked here.
func Parse(data []byte, env Env) (forecast.Model, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return forecast.Model{}, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if len(root.Content) == 0 {
		return forecast.Model{}, fmt.Errorf("%w: empty document", ErrInvalidDocument)
	}
	doc, err := fields(root.Content[0], "document", "name", "steps")
	if err != nil {
		return forecast.Model{}, err
	}

	var name string
	if node, ok := doc["name"]; ok {
		if err := node.Decode(&name); err != nil {
			return forecast.Model{}, invalidAt(node, "name: %v", err)
		}
	}
	stepsNode, ok := doc["steps"]
	if !ok {
		return forecast.Model{}, invalidAt(root.Content[0], "steps are required")
	}
	if stepsNode.Kind != yaml.MappingNode || len(stepsNode.Content) == 0 {
		return forecast.Model{}, invalidAt(stepsNode, "steps must be a non-empty mapping")
	}

	c := &compiler{env: env}
	m := forecast.NewModel(name)
	for i := 0; i < len(stepsNode.Content); i += 2 {
		key, value := stepsNode.Content[i], stepsNode.Content[i+1]
		if key.Value == "" {
			return forecast.Model{}, invalidAt(key, "step name is required")
		}
		if m.Has(key.Value) {
			return forecast.Model{}, invalidAt(key, "duplicate step %q", key.Value)
		}
		b, err := c.operand(value)
		if err != nil {
			return forecast.Model{}, fmt.Errorf("step %q: %w", key.Value, err)
		}
		m = m.WithStep(key.Value, func(deps forecast.Deps) (*sampler.Sampler, error) {
			return b(deps, deps.Name())
		})
	}
	for _, ref := range c.refs {
		if !m.Has(ref.Value) {
			return forecast.Model{}, fmt.Errorf("%w: line %d: %w: %q", ErrInvalidDocument, ref.Line, forecast.ErrUnknownStep, ref.Value)
		}
	}
	return m, nil
}

// fields returns the values of a mapping node keyed by name, rejecting keys
// outside allowed.
func fields(node *yaml.Node, what string, allowed ...string) (map[string]*yaml.Node, error) {
	if node.Kind != yaml.MappingNode {
		return nil, invalidAt(node, "%s must be a mapping", what)
	}
	out := make(map[string]*yaml.Node, len(node.Content)/2)
	for i := 0; i < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		known := false
		for _, a := range allowed {
			if key.Value == a {
				known = true
				break
			}
		}
		if !known {
			return nil, invalidAt(key, "%s: unknown field %q", what, key.Value)
		}
		if _, dup := out[key.Value]; dup {
			return nil, invalidAt(key, "%s: duplicate field %q", what, key.Value)
		}
		out[key.Value] = value
	}
	return out, nil
}
