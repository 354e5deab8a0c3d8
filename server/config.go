package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/invopop/jsonschema"
	"gopkg.in/yaml.v3"

	"github.com/randalmurphal/fedkit/common"
)

// ErrInvalidConfig indicates a Config failed validation.
var ErrInvalidConfig = errors.New("invalid server config")

// Config controls rounds, client sampling and the config sent to clients.
type Config struct {
	// NumRounds is the number of fit/evaluate rounds to run.
	NumRounds int `json:"num_rounds" yaml:"num_rounds" toml:"num_rounds" jsonschema:"minimum=1"`

	// RoundTimeout bounds each fit or evaluate fan-out. 0 means no limit.
	RoundTimeout Duration `json:"round_timeout,omitempty" yaml:"round_timeout,omitempty" toml:"round_timeout,omitempty"`

	// WaitTimeout bounds how long Run waits for MinAvailableClients.
	// 0 means wait until the context ends.
	WaitTimeout Duration `json:"wait_timeout,omitempty" yaml:"wait_timeout,omitempty" toml:"wait_timeout,omitempty"`

	// MaxConcurrency caps in-flight client calls per round. 0 means no cap.
	MaxConcurrency int `json:"max_concurrency,omitempty" yaml:"max_concurrency,omitempty" toml:"max_concurrency,omitempty" jsonschema:"minimum=0"`

	// MinAvailableClients is the number of registered clients required
	// before any round starts.
	MinAvailableClients int `json:"min_available_clients" yaml:"min_available_clients" toml:"min_available_clients" jsonschema:"minimum=1"`

	// FractionFit is the share of available clients sampled for training.
	FractionFit float64 `json:"fraction_fit" yaml:"fraction_fit" toml:"fraction_fit" jsonschema:"minimum=0,maximum=1"`

	// FractionEvaluate is the share sampled for evaluation. 0 disables evaluation.
	FractionEvaluate float64 `json:"fraction_evaluate" yaml:"fraction_evaluate" toml:"fraction_evaluate" jsonschema:"minimum=0,maximum=1"`

	// MinFitClients is the lower bound on clients sampled for training.
	MinFitClients int `json:"min_fit_clients" yaml:"min_fit_clients" toml:"min_fit_clients" jsonschema:"minimum=1"`

	// MinEvaluateClients is the lower bound on clients sampled for evaluation.
	MinEvaluateClients int `json:"min_evaluate_clients" yaml:"min_evaluate_clients" toml:"min_evaluate_clients" jsonschema:"minimum=0"`

	// AcceptFailures lets a round aggregate even if some clients failed.
	AcceptFailures bool `json:"accept_failures" yaml:"accept_failures" toml:"accept_failures"`

	// FitConfig is sent to every client in FitIns.Config. The server adds "round".
	FitConfig common.Config `json:"fit_config,omitempty" yaml:"fit_config,omitempty" toml:"fit_config,omitempty"`

	// EvaluateConfig is sent to every client in EvaluateIns.Config. The server adds "round".
	EvaluateConfig common.Config `json:"evaluate_config,omitempty" yaml:"evaluate_config,omitempty" toml:"evaluate_config,omitempty"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		NumRounds:           3,
		MinAvailableClients: 2,
		FractionFit:         1.0,
		FractionEvaluate:    1.0,
		MinFitClients:       2,
		MinEvaluateClients:  2,
		AcceptFailures:      true,
	}
}

// WithDefaults returns a copy of the config with defaults applied for unset
// counts. Fractions and booleans are taken as given.
func (c Config) WithDefaults() Config {
	defaults := DefaultConfig()

	if c.NumRounds == 0 {
		c.NumRounds = defaults.NumRounds
	}
	if c.MinAvailableClients == 0 {
		c.MinAvailableClients = defaults.MinAvailableClients
	}
	if c.MinFitClients == 0 {
		c.MinFitClients = defaults.MinFitClients
	}
	return c
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.NumRounds < 1 {
		return fmt.Errorf("%w: num_rounds must be >= 1, got %d", ErrInvalidConfig, c.NumRounds)
	}
	if c.RoundTimeout < 0 || c.WaitTimeout < 0 {
		return fmt.Errorf("%w: timeouts must be >= 0", ErrInvalidConfig)
	}
	if c.MaxConcurrency < 0 {
		return fmt.Errorf("%w: max_concurrency must be >= 0, got %d", ErrInvalidConfig, c.MaxConcurrency)
	}
	if c.FractionFit < 0 || c.FractionFit > 1 {
		return fmt.Errorf("%w: fraction_fit must be within [0, 1], got %v", ErrInvalidConfig, c.FractionFit)
	}
	if c.FractionEvaluate < 0 || c.FractionEvaluate > 1 {
		return fmt.Errorf("%w: fraction_evaluate must be within [0, 1], got %v", ErrInvalidConfig, c.FractionEvaluate)
	}
	if c.MinFitClients < 1 {
		return fmt.Errorf("%w: min_fit_clients must be >= 1, got %d", ErrInvalidConfig, c.MinFitClients)
	}
	if c.MinEvaluateClients < 0 {
		return fmt.Errorf("%w: min_evaluate_clients must be >= 0, got %d", ErrInvalidConfig, c.MinEvaluateClients)
	}
	if c.MinAvailableClients < c.MinFitClients || c.MinAvailableClients < c.MinEvaluateClients {
		return fmt.Errorf("%w: min_available_clients (%d) must cover min_fit_clients (%d) and min_evaluate_clients (%d)",
			ErrInvalidConfig, c.MinAvailableClients, c.MinFitClients, c.MinEvaluateClients)
	}
	return nil
}

// LoadFromEnv overrides fields from environment variables.
//
// Supported variables:
//   - FEDKIT_NUM_ROUNDS
//   - FEDKIT_ROUND_TIMEOUT (e.g., "2m")
//   - FEDKIT_MIN_AVAILABLE_CLIENTS
//   - FEDKIT_MAX_CONCURRENCY
func (c *Config) LoadFromEnv() {
	if v := os.Getenv("FEDKIT_NUM_ROUNDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.NumRounds = n
		}
	}
	if v := os.Getenv("FEDKIT_ROUND_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.RoundTimeout = Duration(d)
		}
	}
	if v := os.Getenv("FEDKIT_MIN_AVAILABLE_CLIENTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MinAvailableClients = n
		}
	}
	if v := os.Getenv("FEDKIT_MAX_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxConcurrency = n
		}
	}
}

// LoadConfig reads a config file, picking the decoder from the extension
// (.yaml, .yml, .toml or .json). Unset fields take defaults, environment
// variables override the file, and the result is validated.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	cfg, err := ParseConfig(data, filepath.Ext(path))
	if err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.LoadFromEnv()
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ParseConfig decodes data in the format named by ext. Starting values are
// DefaultConfig, so fields absent from data keep their defaults.
func ParseConfig(data []byte, ext string) (Config, error) {
	cfg := DefaultConfig()

	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, err
		}
	case ".toml":
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return Config{}, err
		}
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return Config{}, err
		}
	default:
		return Config{}, fmt.Errorf("unsupported config format %q", ext)
	}
	return cfg, nil
}

// ConfigSchema returns the JSON Schema of the config file format.
func ConfigSchema() ([]byte, error) {
	r := &jsonschema.Reflector{
		ExpandedStruct: true,
		DoNotReference: true,
	}
	schema := r.Reflect(&Config{})
	schema.Title = "fedkit server config"
	return json.MarshalIndent(schema, "", "  ")
}

// Duration is a time.Duration written as a Go duration string ("90s", "5m")
// in config files.
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// String implements fmt.Stringer.
func (d Duration) String() string {
	return time.Duration(d).String()
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler (JSON and TOML).
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.UnmarshalText([]byte(node.Value))
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// JSONSchema describes Duration as a duration string.
func (Duration) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:        "string",
		Pattern:     `^([0-9]+(\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$`,
		Description: "Go duration string, e.g. \"90s\" or \"5m\"",
	}
}
