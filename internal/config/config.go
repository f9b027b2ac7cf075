// Package config loads run settings from an optional file and MONTECARLO_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"montecarlo/internal/logging"
	"montecarlo/internal/runner"
	"montecarlo/internal/storage"
)

const EnvPrefix = "MONTECARLO"

const (
	SamplesKey          = "samples"
	SeedKey             = "seed"
	WorkersKey          = "workers"
	TraceKey            = "trace"
	LogLevelKey         = "log_level"
	StoreKey            = "store"
	DBPathKey           = "db_path"
	MetricsNamespaceKey = "metrics_namespace"
)

var errInvalidSettings = errors.New("invalid settings")

type Settings struct {
	Samples          int
	Seed             uint64
	Workers          int
	Trace            bool
	LogLevel         string
	Store            string
	DBPath           string
	MetricsNamespace string
}

func Default() Settings {
	return Settings{
		Samples:          1000,
		Seed:             0,
		Workers:          1,
		LogLevel:         "info",
		Store:            storage.DefaultStoreKind,
		DBPath:           storage.DefaultDBPath,
		MetricsNamespace: "montecarlo",
	}
}

func newViper() *viper.Viper {
	d := Default()
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	v.SetDefault(SamplesKey, d.Samples)
	v.SetDefault(SeedKey, d.Seed)
	v.SetDefault(WorkersKey, d.Workers)
	v.SetDefault(TraceKey, d.Trace)
	v.SetDefault(LogLevelKey, d.LogLevel)
	v.SetDefault(StoreKey, d.Store)
	v.SetDefault(DBPathKey, d.DBPath)
	v.SetDefault(MetricsNamespaceKey, d.MetricsNamespace)
	return v
}

// Load reads settings from path, if given, with environment overrides on top.
func Load(path string) (Settings, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(os.ExpandEnv(path))
		if err := v.ReadInConfig(); err != nil {
			return Settings{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	s := Settings{
		Samples:          v.GetInt(SamplesKey),
		Seed:             v.GetUint64(SeedKey),
		Workers:          v.GetInt(WorkersKey),
		Trace:            v.GetBool(TraceKey),
		LogLevel:         v.GetString(LogLevelKey),
		Store:            v.GetString(StoreKey),
		DBPath:           os.ExpandEnv(v.GetString(DBPathKey)),
		MetricsNamespace: v.GetString(MetricsNamespaceKey),
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func (s Settings) Validate() error {
	switch {
	case s.Samples <= 0:
		return fmt.Errorf("%w: %s must be > 0, got %d", errInvalidSettings, SamplesKey, s.Samples)
	case s.Workers < 0:
		return fmt.Errorf("%w: %s must be >= 0, got %d", errInvalidSettings, WorkersKey, s.Workers)
	}
	switch s.Store {
	case "memory":
	case "sqlite":
		if s.DBPath == "" {
			return fmt.Errorf("%w: %s is required for the sqlite store", errInvalidSettings, DBPathKey)
		}
	default:
		return fmt.Errorf("%w: unsupported %s %q", errInvalidSettings, StoreKey, s.Store)
	}
	if _, err := logging.ParseLevel(s.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", errInvalidSettings, err)
	}
	return nil
}

// RunnerConfig maps the batch settings onto a runner configuration.
func (s Settings) RunnerConfig(logger *zap.Logger, metrics *runner.Metrics) runner.Config {
	return runner.Config{
		Samples: s.Samples,
		Seed:    s.Seed,
		Workers: s.Workers,
		Trace:   s.Trace,
		Logger:  logger,
		Metrics: metrics,
	}
}
