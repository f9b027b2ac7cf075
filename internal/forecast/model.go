// Package forecast composes named samplers into models whose steps can be
// replaced one at a time.
package forecast

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"montecarlo/internal/runner"
	"montecarlo/internal/sampler"
)

var (
	ErrUnknownStep = errors.New("unknown step")
	ErrCycle       = errors.New("step dependency cycle")
)

// Step builds the sampler for one model entry. Dependencies are looked up
// through deps, so replacing a step changes every step that refers to it.
type Step func(deps Deps) (*sampler.Sampler, error)

// Model is an immutable set of named steps.
type Model struct {
	name  string
	order []string
	steps map[string]Step
}

func NewModel(name string) Model {
	return Model{name: name, steps: map[string]Step{}}
}

func (m Model) Name() string { return m.name }

// Steps lists step names in the order they were first added.
func (m Model) Steps() []string {
	return append([]string(nil), m.order...)
}

func (m Model) Has(name string) bool {
	_, ok := m.steps[name]
	return ok
}

// WithStep returns a copy of m with name bound to step. The receiver is not
// modified.
func (m Model) WithStep(name string, step Step) Model {
	steps := make(map[string]Step, len(m.steps)+1)
	for k, v := range m.steps {
		steps[k] = v
	}
	order := m.order
	if _, ok := steps[name]; !ok {
		order = append(append([]string(nil), m.order...), name)
	}
	steps[name] = step
	return Model{name: m.name, order: order, steps: steps}
}

// Rename returns a copy of m under a different name.
func (m Model) Rename(name string) Model {
	m.name = name
	return m
}

// Build resolves name and everything it depends on. Within one build each
// step is a single memoised sampler, so every reference to it in a draw
// sees the same value.
func (m Model) Build(name string) (*sampler.Sampler, error) {
	return newBuild(m).resolve(name)
}

// BuildAll builds every step in a single build.
func (m Model) BuildAll() (map[string]*sampler.Sampler, error) {
	b := newBuild(m)
	out := make(map[string]*sampler.Sampler, len(m.order))
	for _, name := range m.order {
		s, err := b.resolve(name)
		if err != nil {
			return nil, err
		}
		out[name] = s
	}
	return out, nil
}

// Run builds step and evaluates it as one batch.
func (m Model) Run(ctx context.Context, step string, cfg runner.Config) (runner.Result, error) {
	s, err := m.Build(step)
	if err != nil {
		return runner.Result{}, fmt.Errorf("model %s: %w", m.name, err)
	}
	return runner.Run(ctx, s, cfg)
}

type build struct {
	model    Model
	built    map[string]*sampler.Sampler
	visiting []string
}

func newBuild(m Model) *build {
	return &build{model: m, built: map[string]*sampler.Sampler{}}
}

func (b *build) resolve(name string) (*sampler.Sampler, error) {
	if s, ok := b.built[name]; ok {
		return s, nil
	}
	for i, v := range b.visiting {
		if v == name {
			path := append(append([]string(nil), b.visiting[i:]...), name)
			return nil, fmt.Errorf("%w: %s", ErrCycle, strings.Join(path, " -> "))
		}
	}
	step, ok := b.model.steps[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStep, name)
	}
	if step == nil {
		return nil, fmt.Errorf("step %q has no builder", name)
	}

	b.visiting = append(b.visiting, name)
	s, err := step(Deps{build: b, name: name})
	b.visiting = b.visiting[:len(b.visiting)-1]
	if err != nil {
		return nil, fmt.Errorf("step %q: %w", name, err)
	}
	if s == nil {
		return nil, fmt.Errorf("step %q built no sampler", name)
	}
	if !s.Named() || s.Label() != name {
		s = sampler.Named(name, s)
	}
	s = sampler.Mem(s)
	b.built[name] = s
	return s, nil
}

// Deps gives a step access to the other steps of the model being built.
type Deps struct {
	build *build
	name  string
}

// Name is the name of the step being built.
func (d Deps) Name() string { return d.name }

func (d Deps) Step(name string) (*sampler.Sampler, error) {
	return d.build.resolve(name)
}

func (d Deps) Steps(names ...string) ([]*sampler.Sampler, error) {
	out := make([]*sampler.Sampler, len(names))
	for i, name := range names {
		s, err := d.Step(name)
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}
