// Package montecarlo is the public entry point: it owns the collaborator
// store, compiles model documents and runs batches against them.
package montecarlo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"montecarlo/internal/config"
	"montecarlo/internal/dataextract"
	"montecarlo/internal/forecast"
	"montecarlo/internal/logging"
	"montecarlo/internal/model"
	"montecarlo/internal/modelspec"
	"montecarlo/internal/runner"
	"montecarlo/internal/stats"
	"montecarlo/internal/storage"
)

var ErrUnknownModel = errors.New("unknown model")

type Options struct {
	StoreKind string
	DBPath    string
	// Defaults fills zero fields of run and compare requests.
	Defaults config.Settings
	Logger   *zap.Logger
	// Registerer receives batch metrics when set.
	Registerer       prometheus.Registerer
	MetricsNamespace string
}

type Client struct {
	store    storage.Store
	logger   *zap.Logger
	metrics  *runner.Metrics
	defaults config.Settings

	mu     sync.RWMutex
	models map[string]forecast.Model
}

type RunRequest struct {
	Model   string
	Step    string
	Samples int
	// Seed overrides the configured seed when set, including to 0.
	Seed    *uint64
	Workers int
	Trace   bool
	// Interval asks for the probability mass of [Min, Max].
	Interval *Interval
	// Trim asks for a summary of the samples within the [Low, High]
	// quantile band.
	Trim *TrimBand
}

type Interval struct {
	Min float64
	Max float64
}

type TrimBand struct {
	Low  float64
	High float64
}

type RunSummary struct {
	Result  runner.Result
	Summary stats.Summary
	// Steps describes every traced step, present when tracing was requested.
	Steps map[string]stats.Summary
	// IntervalProbability is set when the request had an Interval.
	IntervalProbability *float64
	// Trimmed is set when the request had a Trim band.
	Trimmed *stats.Summary
	// TrueFrequency is set when every sample is 0 or 1, as for a flip step.
	TrueFrequency *float64
}

type CompareRequest struct {
	Previous string
	Current  string
	Step     string
	Samples  int
	Seed     *uint64
	Workers  int
}

// Seed returns a pointer for the Seed fields of requests.
func Seed(v uint64) *uint64 { return &v }

func New(opts Options) (*Client, error) {
	defaults := opts.Defaults
	if defaults == (config.Settings{}) {
		defaults = config.Default()
	}
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = defaults.Store
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaults.DBPath
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	var metrics *runner.Metrics
	if opts.Registerer != nil {
		namespace := opts.MetricsNamespace
		if namespace == "" {
			namespace = defaults.MetricsNamespace
		}
		metrics, err = runner.NewMetrics(namespace, opts.Registerer)
		if err != nil {
			_ = storage.CloseIfSupported(store)
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}

	return &Client{
		store:    store,
		logger:   logger,
		metrics:  metrics,
		defaults: defaults,
		models:   map[string]forecast.Model{},
	}, nil
}

// NewFromSettings builds a client from loaded settings, logging to stderr.
func NewFromSettings(s config.Settings, registerer prometheus.Registerer) (*Client, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return New(Options{
		StoreKind:        s.Store,
		DBPath:           s.DBPath,
		Defaults:         s,
		Logger:           logging.New(s.LogLevel, os.Stderr),
		Registerer:       registerer,
		MetricsNamespace: s.MetricsNamespace,
	})
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	return c.store.Init(ctx)
}

func (c *Client) ImportProjection(ctx context.Context, metric, source string, points []model.ProjectionPoint) error {
	err := c.store.SaveProjection(ctx, model.ProjectionSeries{
		VersionedRecord: storage.CurrentVersion(),
		Metric:          metric,
		Source:          source,
		Points:          points,
	})
	if err != nil {
		return fmt.Errorf("import projection %s: %w", metric, err)
	}
	c.logger.Debug("projection imported", zap.String("metric", metric), zap.Int("points", len(points)))
	return nil
}

func (c *Client) ImportCommunity(ctx context.Context, questionID, title string, samples []float64) error {
	err := c.store.SaveCommunitySamples(ctx, model.CommunitySamples{
		VersionedRecord: storage.CurrentVersion(),
		QuestionID:      questionID,
		Title:           title,
		Samples:         samples,
	})
	if err != nil {
		return fmt.Errorf("import community %s: %w", questionID, err)
	}
	c.logger.Debug("community imported", zap.String("question", questionID), zap.Int("samples", len(samples)))
	return nil
}

// ImportProjectionCSV stores one series per metric column of a dated table
// and returns the imported metric names.
func (c *Client) ImportProjectionCSV(ctx context.Context, in io.Reader, opts dataextract.ProjectionOptions) ([]string, error) {
	series, err := dataextract.ReadProjectionCSV(in, opts)
	if err != nil {
		return nil, err
	}
	metrics := make([]string, 0, len(series))
	for _, s := range series {
		if err := c.ImportProjection(ctx, s.Metric, s.Source, s.Points); err != nil {
			return nil, err
		}
		metrics = append(metrics, s.Metric)
	}
	return metrics, nil
}

func (c *Client) ImportCommunityCSV(ctx context.Context, questionID, title string, in io.Reader, opts dataextract.CommunityOptions) error {
	samples, err := dataextract.ReadCommunityCSV(in, opts)
	if err != nil {
		return fmt.Errorf("import community %s: %w", questionID, err)
	}
	return c.ImportCommunity(ctx, questionID, title, samples)
}

func (c *Client) ProjectionMetrics(ctx context.Context) ([]string, error) {
	return c.store.ListProjectionMetrics(ctx)
}

func (c *Client) Community(ctx context.Context, questionID string) (*forecast.EmpiricalCommunity, error) {
	return forecast.LoadCommunity(ctx, c.store, questionID)
}

// LoadModel compiles a YAML model document and registers it under its name.
// Loading a document with an existing name replaces the earlier model.
func (c *Client) LoadModel(ctx context.Context, data []byte) (forecast.Model, error) {
	m, err := modelspec.Parse(data, modelspec.Env{
		Context:     ctx,
		Projections: c.store,
		Communities: c.store,
	})
	if err != nil {
		return forecast.Model{}, err
	}
	if m.Name() == "" {
		return forecast.Model{}, fmt.Errorf("%w: model name is required", modelspec.ErrInvalidDocument)
	}
	c.RegisterModel(m)
	c.logger.Info("model loaded", zap.String("model", m.Name()), zap.Strings("steps", m.Steps()))
	return m, nil
}

// RegisterModel makes a model built in code available to Run and Compare.
func (c *Client) RegisterModel(m forecast.Model) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.models[m.Name()] = m
}

func (c *Client) Model(name string) (forecast.Model, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.models[name]
	return m, ok
}

func (c *Client) lookup(name string) (forecast.Model, error) {
	m, ok := c.Model(name)
	if !ok {
		return forecast.Model{}, fmt.Errorf("%w: %q", ErrUnknownModel, name)
	}
	return m, nil
}

func (c *Client) runnerConfig(samples int, seed *uint64, workers int, trace bool) runner.Config {
	cfg := c.defaults.RunnerConfig(c.logger, c.metrics)
	if samples != 0 {
		cfg.Samples = samples
	}
	if seed != nil {
		cfg.Seed = *seed
	}
	if workers != 0 {
		cfg.Workers = workers
	}
	cfg.Trace = cfg.Trace || trace
	return cfg
}

func (c *Client) Run(ctx context.Context, req RunRequest) (RunSummary, error) {
	m, err := c.lookup(req.Model)
	if err != nil {
		return RunSummary{}, err
	}
	result, err := m.Run(ctx, req.Step, c.runnerConfig(req.Samples, req.Seed, req.Workers, req.Trace))
	if err != nil {
		return RunSummary{}, err
	}
	summary, err := stats.Summarize(result.Samples)
	if err != nil {
		return RunSummary{}, err
	}
	out := RunSummary{Result: result, Summary: summary}
	if result.Trace != nil {
		out.Steps = stats.DescribeTrace(result.Trace)
	}
	if req.Interval != nil {
		p, err := stats.IntervalProbability(result.Samples, req.Interval.Min, req.Interval.Max)
		if err != nil {
			return RunSummary{}, err
		}
		out.IntervalProbability = &p
	}
	if req.Trim != nil {
		trimmed, err := stats.Trim(result.Samples, req.Trim.Low, req.Trim.High)
		if err != nil {
			return RunSummary{}, err
		}
		trimmedSummary, err := stats.Summarize(trimmed)
		if err != nil {
			return RunSummary{}, err
		}
		out.Trimmed = &trimmedSummary
	}
	if outcomes, ok := binaryOutcomes(result.Samples); ok {
		freq, err := stats.TrueFrequency(outcomes)
		if err != nil {
			return RunSummary{}, err
		}
		out.TrueFrequency = &freq
	}
	return out, nil
}

func binaryOutcomes(samples []float64) ([]bool, bool) {
	outcomes := make([]bool, len(samples))
	for i, v := range samples {
		switch v {
		case 0:
		case 1:
			outcomes[i] = true
		default:
			return nil, false
		}
	}
	return outcomes, true
}

// Compare runs one step of two registered models on paired streams.
func (c *Client) Compare(ctx context.Context, req CompareRequest) (forecast.Comparison, error) {
	prev, err := c.lookup(req.Previous)
	if err != nil {
		return forecast.Comparison{}, err
	}
	cur, err := c.lookup(req.Current)
	if err != nil {
		return forecast.Comparison{}, err
	}
	return forecast.Compare(ctx, prev, cur, req.Step, c.runnerConfig(req.Samples, req.Seed, req.Workers, false))
}
