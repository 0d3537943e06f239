// Package config loads docgap project configuration from YAML or TOML.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/jward/docgap/internal/gaps"
	"github.com/jward/docgap/internal/generate"
	"github.com/jward/docgap/internal/model"
)

// FileNames are the project config files Discover looks for, in order.
var FileNames = []string{".docgap.yaml", ".docgap.yml", ".docgap.toml"}

// Environment variables that override generation settings.
const (
	EnvAPIKey  = "DOCGAP_API_KEY"
	EnvModel   = "DOCGAP_MODEL"
	EnvBaseURL = "DOCGAP_BASE_URL"
)

// Config is the complete docgap configuration.
type Config struct {
	Include     []string `yaml:"include" toml:"include"`
	Exclude     []string `yaml:"exclude" toml:"exclude"`
	MinSeverity string   `yaml:"min_severity" toml:"min_severity"`
	// Style is the preferred documentation style. "auto" follows whatever
	// style the entity's existing documentation uses.
	Style       string `yaml:"style" toml:"style"`
	Incremental bool   `yaml:"incremental" toml:"incremental"`
	GitListing  bool   `yaml:"git_listing" toml:"git_listing"`
	// ParallelAnalysis is the analysis worker count. Zero analyzes serially.
	ParallelAnalysis int    `yaml:"parallel_analysis" toml:"parallel_analysis"`
	RulesDir         string `yaml:"rules_dir" toml:"rules_dir"`

	Gaps       gaps.Config      `yaml:"gaps" toml:"gaps"`
	Generation GenerationConfig `yaml:"generation" toml:"generation"`
}

// GenerationConfig configures documentation generation.
type GenerationConfig struct {
	Enabled     bool    `yaml:"enabled" toml:"enabled"`
	Model       string  `yaml:"model" toml:"model"`
	BaseURL     string  `yaml:"base_url" toml:"base_url"`
	APIKey      string  `yaml:"api_key" toml:"api_key"`
	Temperature float64 `yaml:"temperature" toml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens" toml:"max_tokens"`

	MaxConcurrent int `yaml:"max_concurrent" toml:"max_concurrent"`
	// RequestsPerSecond limits attempt starts. Zero is unlimited.
	RequestsPerSecond float64       `yaml:"requests_per_second" toml:"requests_per_second"`
	Timeout           time.Duration `yaml:"timeout" toml:"timeout"`
	// CacheTTL of zero keeps generations until the cache is cleared.
	CacheTTL          time.Duration `yaml:"cache_ttl" toml:"cache_ttl"`

	MaxAttempts       int           `yaml:"max_attempts" toml:"max_attempts"`
	BackoffBase       time.Duration `yaml:"backoff_base" toml:"backoff_base"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier" toml:"backoff_multiplier"`
	MaxBackoff        time.Duration `yaml:"max_backoff" toml:"max_backoff"`
}

// ConfigError reports an invalid configuration field.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Default returns the built-in configuration.
func Default() *Config {
	retry := generate.DefaultRetryConfig()
	batch := generate.DefaultBatchConfig()
	return &Config{
		Include: []string{"**/*.py", "**/*.go", "**/*.js", "**/*.ts", "**/*.jsx", "**/*.tsx"},
		Exclude: []string{
			"**/__pycache__/**", "**/node_modules/**", "**/.git/**", "**/venv/**",
			"**/env/**", "**/build/**", "**/dist/**", "**/vendor/**",
		},
		MinSeverity: string(model.SeverityLow),
		Style:       string(model.StyleGoogle),
		Incremental: true,
		Gaps:        gaps.DefaultConfig(),
		Generation: GenerationConfig{
			Model:             generate.DefaultModel,
			Temperature:       0.3,
			MaxTokens:         generate.DefaultMaxTokens,
			MaxConcurrent:     batch.MaxConcurrent,
			Timeout:           batch.Timeout,
			CacheTTL:          batch.TTL,
			MaxAttempts:       retry.MaxAttempts,
			BackoffBase:       retry.BackoffBase,
			BackoffMultiplier: retry.BackoffMultiplier,
			MaxBackoff:        retry.MaxBackoff,
		},
	}
}

// Load reads the file at path over the defaults. The decoder is chosen by
// extension: .toml for TOML, anything else as YAML.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}
	return cfg, nil
}

// Discover returns the first project config file found in root, or "".
func Discover(root string) string {
	for _, name := range FileNames {
		p := filepath.Join(root, name)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}
	}
	return ""
}

// LoadProject loads the discovered config for root, or the defaults when
// the project has none.
func LoadProject(root string) (*Config, error) {
	if p := Discover(root); p != "" {
		return Load(p)
	}
	return Default(), nil
}

// ApplyEnv overrides generation settings from the environment.
func (c *Config) ApplyEnv() {
	if v, ok := os.LookupEnv(EnvAPIKey); ok && v != "" {
		c.Generation.APIKey = v
	}
	if v, ok := os.LookupEnv(EnvModel); ok && v != "" {
		c.Generation.Model = v
	}
	if v, ok := os.LookupEnv(EnvBaseURL); ok && v != "" {
		c.Generation.BaseURL = v
	}
}

// Validate checks the configuration before any file is walked.
func (c *Config) Validate() error {
	for _, p := range c.Include {
		if !doublestar.ValidatePattern(p) {
			return &ConfigError{Field: "include", Err: fmt.Errorf("invalid glob %q", p)}
		}
	}
	for _, p := range c.Exclude {
		if !doublestar.ValidatePattern(p) {
			return &ConfigError{Field: "exclude", Err: fmt.Errorf("invalid glob %q", p)}
		}
	}
	if len(c.Include) == 0 {
		return &ConfigError{Field: "include", Err: errors.New("at least one pattern is required")}
	}
	if _, err := model.ParseSeverity(c.MinSeverity); err != nil {
		return &ConfigError{Field: "min_severity", Err: err}
	}
	if _, err := model.ParseDocStyle(c.Style); err != nil {
		return &ConfigError{Field: "style", Err: err}
	}
	if c.ParallelAnalysis < 0 {
		return &ConfigError{Field: "parallel_analysis", Err: fmt.Errorf("must be >= 0, got %d", c.ParallelAnalysis)}
	}
	if err := c.Gaps.Validate(); err != nil {
		return &ConfigError{Field: "gaps", Err: err}
	}
	return c.Generation.validate()
}

func (g GenerationConfig) validate() error {
	field := func(name string, err error) error {
		return &ConfigError{Field: "generation." + name, Err: err}
	}
	switch {
	case g.Model == "":
		return field("model", errors.New("is required"))
	case g.Temperature < 0 || g.Temperature > 2:
		return field("temperature", fmt.Errorf("must be between 0 and 2, got %g", g.Temperature))
	case g.MaxTokens <= 0:
		return field("max_tokens", fmt.Errorf("must be positive, got %d", g.MaxTokens))
	case g.MaxConcurrent <= 0:
		return field("max_concurrent", fmt.Errorf("must be positive, got %d", g.MaxConcurrent))
	case g.RequestsPerSecond < 0:
		return field("requests_per_second", fmt.Errorf("must be >= 0, got %g", g.RequestsPerSecond))
	case g.Timeout < 0:
		return field("timeout", fmt.Errorf("must be >= 0, got %s", g.Timeout))
	case g.CacheTTL < 0:
		return field("cache_ttl", fmt.Errorf("must be >= 0 (0 never expires), got %s", g.CacheTTL))
	case g.MaxAttempts <= 0:
		return field("max_attempts", fmt.Errorf("must be positive, got %d", g.MaxAttempts))
	case g.BackoffBase < 0:
		return field("backoff_base", fmt.Errorf("must be >= 0, got %s", g.BackoffBase))
	case g.BackoffMultiplier < 1:
		return field("backoff_multiplier", fmt.Errorf("must be >= 1, got %g", g.BackoffMultiplier))
	}
	return nil
}

// Retry returns the retry policy for generation calls.
func (g GenerationConfig) Retry() generate.RetryConfig {
	return generate.RetryConfig{
		MaxAttempts:       g.MaxAttempts,
		BackoffBase:       g.BackoffBase,
		BackoffMultiplier: g.BackoffMultiplier,
		MaxBackoff:        g.MaxBackoff,
	}
}

// Batch returns the batch settings for generation. The caller supplies the
// cache and logger.
func (g GenerationConfig) Batch() generate.BatchConfig {
	return generate.BatchConfig{
		MaxConcurrent:     g.MaxConcurrent,
		RequestsPerSecond: g.RequestsPerSecond,
		Timeout:           g.Timeout,
		Retry:             g.Retry(),
		TTL:               g.CacheTTL,
	}
}

// OpenAI returns the client settings for an OpenAI-compatible endpoint.
func (g GenerationConfig) OpenAI() generate.OpenAIConfig {
	return generate.OpenAIConfig{
		APIKey:      g.APIKey,
		BaseURL:     g.BaseURL,
		Model:       g.Model,
		Temperature: g.Temperature,
		MaxTokens:   g.MaxTokens,
	}
}
