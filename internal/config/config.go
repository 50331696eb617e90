// Package config provides configuration loading and validation for the CLI and worker.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the pipeline configuration, loaded from a JSON or YAML file.
// All fields are optional; missing values are filled by MergeWithDefaults.
type Config struct {
	DatabaseURL    string `json:"database_url,omitempty" yaml:"database_url,omitempty"`
	CredentialsKey string `json:"credentials_key,omitempty" yaml:"credentials_key,omitempty" validate:"omitempty,len=64,hexadecimal"` // hex-encoded 32-byte key

	// LLM
	DefaultProvider string `json:"default_provider,omitempty" yaml:"default_provider,omitempty" validate:"omitempty,oneof=gemini openai anthropic"`
	DefaultModel    string `json:"default_model,omitempty" yaml:"default_model,omitempty"`

	// Retrieval
	MaxGapIterations  int  `json:"max_gap_iterations,omitempty" yaml:"max_gap_iterations,omitempty" validate:"gte=0,lte=5"`
	ExtractionDelayMS int  `json:"extraction_delay_ms,omitempty" yaml:"extraction_delay_ms,omitempty" validate:"gte=0"`
	AnalysisDelayMS   int  `json:"analysis_delay_ms,omitempty" yaml:"analysis_delay_ms,omitempty" validate:"gte=0"`
	UseBrowser        bool `json:"use_browser,omitempty" yaml:"use_browser,omitempty"`

	// Deep-research delegate
	DelegatePollIntervalS int `json:"delegate_poll_interval_s,omitempty" yaml:"delegate_poll_interval_s,omitempty" validate:"gte=0"`
	DelegateMaxAttempts   int `json:"delegate_max_attempts,omitempty" yaml:"delegate_max_attempts,omitempty" validate:"gte=0"`

	// Cache windows
	QueryCacheTTLH int `json:"query_cache_ttl_h,omitempty" yaml:"query_cache_ttl_h,omitempty" validate:"gte=0"`
	URLCacheTTLH   int `json:"url_cache_ttl_h,omitempty" yaml:"url_cache_ttl_h,omitempty" validate:"gte=0"`

	Verbose bool `json:"verbose,omitempty" yaml:"verbose,omitempty"`
}

// Defaults returns the production defaults.
func Defaults() Config {
	return Config{
		DefaultProvider:       "gemini",
		MaxGapIterations:      2,
		ExtractionDelayMS:     1000,
		AnalysisDelayMS:       2000,
		DelegatePollIntervalS: 30,
		DelegateMaxAttempts:   60,
		QueryCacheTTLH:        24,
		URLCacheTTLH:          168,
	}
}

// LoadConfig loads configuration from a JSON or YAML file, chosen by extension.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	}

	return &cfg, nil
}

// Validate checks field ranges and formats.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	return nil
}

// MergeWithDefaults returns a new Config with zero-valued fields filled from defaults.
// Bools cannot distinguish unset from false and are not merged.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	if result.DatabaseURL == "" {
		result.DatabaseURL = defaults.DatabaseURL
	}
	if result.CredentialsKey == "" {
		result.CredentialsKey = defaults.CredentialsKey
	}
	if result.DefaultProvider == "" {
		result.DefaultProvider = defaults.DefaultProvider
	}
	if result.DefaultModel == "" {
		result.DefaultModel = defaults.DefaultModel
	}
	if result.MaxGapIterations == 0 {
		result.MaxGapIterations = defaults.MaxGapIterations
	}
	if result.ExtractionDelayMS == 0 {
		result.ExtractionDelayMS = defaults.ExtractionDelayMS
	}
	if result.AnalysisDelayMS == 0 {
		result.AnalysisDelayMS = defaults.AnalysisDelayMS
	}
	if result.DelegatePollIntervalS == 0 {
		result.DelegatePollIntervalS = defaults.DelegatePollIntervalS
	}
	if result.DelegateMaxAttempts == 0 {
		result.DelegateMaxAttempts = defaults.DelegateMaxAttempts
	}
	if result.QueryCacheTTLH == 0 {
		result.QueryCacheTTLH = defaults.QueryCacheTTLH
	}
	if result.URLCacheTTLH == 0 {
		result.URLCacheTTLH = defaults.URLCacheTTLH
	}

	return result
}

// ApplyEnv fills empty secrets and connection strings from the environment.
func (c *Config) ApplyEnv() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if c.CredentialsKey == "" {
		c.CredentialsKey = os.Getenv("CREDENTIALS_KEY")
	}
	if c.DefaultProvider == "" {
		c.DefaultProvider = os.Getenv("LLM_PROVIDER")
	}
	if c.DefaultModel == "" {
		c.DefaultModel = os.Getenv("LLM_MODEL")
	}
}

// ExtractionDelay is the pause between sequential page extractions.
func (c *Config) ExtractionDelay() time.Duration {
	return time.Duration(c.ExtractionDelayMS) * time.Millisecond
}

// AnalysisDelay is the pause between analyzer passes.
func (c *Config) AnalysisDelay() time.Duration {
	return time.Duration(c.AnalysisDelayMS) * time.Millisecond
}

// DelegatePollInterval is the sleep between delegate status checks.
func (c *Config) DelegatePollInterval() time.Duration {
	return time.Duration(c.DelegatePollIntervalS) * time.Second
}

// QueryCacheTTL is the query-level cache window.
func (c *Config) QueryCacheTTL() time.Duration {
	return time.Duration(c.QueryCacheTTLH) * time.Hour
}

// URLCacheTTL is the URL-level cache window.
func (c *Config) URLCacheTTL() time.Duration {
	return time.Duration(c.URLCacheTTLH) * time.Hour
}
