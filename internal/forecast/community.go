package forecast

import (
	"context"
	"errors"
	"fmt"

	"montecarlo/internal/dist"
	"montecarlo/internal/model"
	"montecarlo/internal/rng"
	"montecarlo/internal/sampler"
)

var ErrUnknownQuestion = errors.New("unknown community question")

// Community supplies draws from a crowd prediction for one question.
type Community interface {
	SampleCommunity(src rng.Source) (float64, error)
}

// CommunityStore is the read side of storage.Store used for crowd samples.
type CommunityStore interface {
	GetCommunitySamples(ctx context.Context, questionID string) (model.CommunitySamples, bool, error)
}

// EmpiricalCommunity resamples a fixed set of crowd samples uniformly.
// Values are returned as stored; callers clip them when a ratio needs it.
type EmpiricalCommunity struct {
	questionID string
	samples    []float64
}

func NewEmpiricalCommunity(questionID string, samples []float64) (*EmpiricalCommunity, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: community %q has no samples", dist.ErrInvalidParameter, questionID)
	}
	return &EmpiricalCommunity{
		questionID: questionID,
		samples:    append([]float64(nil), samples...),
	}, nil
}

func (c *EmpiricalCommunity) QuestionID() string { return c.questionID }

func (c *EmpiricalCommunity) Len() int { return len(c.samples) }

func (c *EmpiricalCommunity) SampleCommunity(src rng.Source) (float64, error) {
	return c.samples[rng.IntN(src, len(c.samples))], nil
}

// LoadCommunity reads the stored samples of questionID.
func LoadCommunity(ctx context.Context, store CommunityStore, questionID string) (*EmpiricalCommunity, error) {
	record, ok, err := store.GetCommunitySamples(ctx, questionID)
	if err != nil {
		return nil, fmt.Errorf("load community %s: %w", questionID, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownQuestion, questionID)
	}
	return NewEmpiricalCommunity(questionID, record.Samples)
}

// Question blends a model with the community: each draw uses a community
// sample with probability weight and the model otherwise.
func Question(label string, modelSampler *sampler.Sampler, community Community, weight float64) (*sampler.Sampler, error) {
	if err := (dist.Bernoulli{P: weight}).Validate(); err != nil {
		return nil, fmt.Errorf("question %q community weight: %w", label, err)
	}
	if modelSampler == nil {
		return nil, fmt.Errorf("%w: question %q needs a model sampler", dist.ErrInvalidParameter, label)
	}
	if community == nil && weight > 0 {
		return nil, fmt.Errorf("%w: question %q has community weight %v but no community", dist.ErrInvalidParameter, label, weight)
	}
	return sampler.New(label, func(d *sampler.Draw) (float64, error) {
		useCommunity, err := d.Flip(weight)
		if err != nil {
			return 0, err
		}
		if useCommunity {
			return community.SampleCommunity(d.Source())
		}
		return d.Sample(modelSampler)
	}), nil
}

// QuestionStep wraps step modelStep as a question under the step's name.
func QuestionStep(modelStep string, community Community, weight float64) Step {
	return func(deps Deps) (*sampler.Sampler, error) {
		s, err := deps.Step(modelStep)
		if err != nil {
			return nil, err
		}
		return Question(deps.Name(), s, community, weight)
	}
}
