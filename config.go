package corochan

import (
	"bytes"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/sirupsen/logrus"

	"github.com/baxromumarov/corochan/reactor"
)

// Config is the file form of the runtime options.
//
//	name = "ingest"
//	log_level = "debug"
//	waker = "eventfd"
//	defer_budget = 1024
//	panic_as_error = true
//
//	[metrics]
//	namespace = "ingest"
type Config struct {
	Name         string        `toml:"name"`
	LogLevel     string        `toml:"log_level"`
	Waker        string        `toml:"waker"`
	DeferBudget  int           `toml:"defer_budget"`
	PanicAsError bool          `toml:"panic_as_error"`
	Metrics      MetricsConfig `toml:"metrics"`
}

// MetricsConfig holds the metrics section of [Config].
type MetricsConfig struct {
	Namespace string `toml:"namespace"`
}

// LoadConfig reads and validates a TOML config file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes and validates TOML config data. Unknown keys are
// rejected.
func ParseConfig(data []byte) (Config, error) {
	var cfg Config
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field values.
func (c Config) Validate() error {
	if c.LogLevel != "" {
		if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
			return fmt.Errorf("invalid log_level: %w", err)
		}
	}
	switch c.Waker {
	case "", reactor.WakerAuto, reactor.WakerEventfd, reactor.WakerPipe, reactor.WakerChan:
	default:
		return fmt.Errorf("invalid waker %q", c.Waker)
	}
	if c.DeferBudget < 0 {
		return fmt.Errorf("invalid defer_budget %d: must be non-negative", c.DeferBudget)
	}
	return nil
}

// Options converts the config into runtime options. Zero fields keep the
// defaults.
func (c Config) Options() []Option {
	var opts []Option
	if c.Name != "" {
		opts = append(opts, WithName(c.Name))
	}
	if c.LogLevel != "" {
		if lvl, err := logrus.ParseLevel(c.LogLevel); err == nil {
			opts = append(opts, WithLogLevel(lvl))
		}
	}
	if c.Waker != "" {
		opts = append(opts, WithWaker(c.Waker))
	}
	if c.DeferBudget > 0 {
		opts = append(opts, WithDeferBudget(c.DeferBudget))
	}
	if c.PanicAsError {
		opts = append(opts, WithPanicAsError())
	}
	if c.Metrics.Namespace != "" {
		opts = append(opts, WithMetricsNamespace(c.Metrics.Namespace))
	}
	return opts
}
