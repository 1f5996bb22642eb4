// Package config loads ragrev configuration from a YAML file, layered
// over defaults. A missing file is not an error.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// LLM holds settings for the model endpoint. The API key is read from
// the environment, never from the config file.
type LLM struct {
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	EmbedModel string `yaml:"embed_model"`
	APIKeyEnv  string `yaml:"api_key_env"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

// RateLimit bounds how often a single PR may be reviewed.
type RateLimit struct {
	MaxRuns   int `yaml:"max_runs"`
	WindowMin int `yaml:"window_min"`
}

// Config is the full configuration surface.
type Config struct {
	TopK                 int     `yaml:"top_k"`
	SimilarityThreshold  float64 `yaml:"similarity_threshold"`
	RAGEnabled           bool    `yaml:"rag_enabled"`
	MaxDiffSize          int     `yaml:"max_diff_size"`
	MinAutoFixConfidence float64 `yaml:"min_auto_fix_confidence"`
	ToolTimeoutSec       int     `yaml:"tool_timeout_sec"`
	Workers              int     `yaml:"workers"`
	FocusFileLimit       int     `yaml:"focus_file_limit"`

	IndexPath   string   `yaml:"index_path"`
	IgnoreGlobs []string `yaml:"ignore_globs"`

	// Rule IDs whose warnings are demoted to nice_to_have.
	LowPriorityRules []string `yaml:"low_priority_rules"`

	// Doublestar globs marking files that always warrant review.
	HighRiskPatterns []string `yaml:"high_risk_patterns"`

	SkipLabels []string `yaml:"skip_labels"`

	LLM       LLM       `yaml:"llm"`
	RateLimit RateLimit `yaml:"rate_limit"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		TopK:                 5,
		SimilarityThreshold:  0.7,
		RAGEnabled:           true,
		MaxDiffSize:          1000,
		MinAutoFixConfidence: 0.8,
		ToolTimeoutSec:       60,
		Workers:              4,
		FocusFileLimit:       10,
		IndexPath:            ".ragrev/index.db",
		IgnoreGlobs: []string{
			"**/vendor/**",
			"**/node_modules/**",
			"**/testdata/**",
			"**/*.min.js",
		},
		LowPriorityRules: []string{"gofmt", "whitespace", "lll", "godot"},
		HighRiskPatterns: []string{
			"**/*auth*",
			"**/auth/**",
			"**/*token*",
			"**/*secret*",
			"**/*crypt*",
			"**/*password*",
			"**/payment/**",
			"**/payments/**",
			"**/infra/**",
			"**/migrations/**",
		},
		SkipLabels: []string{"draft", "wip", "skip-review", "do-not-review"},
		LLM: LLM{
			BaseURL:    "https://api.openai.com/v1",
			Model:      "gpt-4o-mini",
			EmbedModel: "text-embedding-3-small",
			APIKeyEnv:  "RAGREV_API_KEY",
			TimeoutSec: 60,
		},
		RateLimit: RateLimit{MaxRuns: 10, WindowMin: 60},
	}
}

// Load reads the YAML file at path over the defaults. An empty path or
// a missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// ToolTimeout returns the per-tool timeout as a duration.
func (c *Config) ToolTimeout() time.Duration {
	if c.ToolTimeoutSec <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.ToolTimeoutSec) * time.Second
}

// LLMTimeout returns the model-call timeout as a duration.
func (c *Config) LLMTimeout() time.Duration {
	if c.LLM.TimeoutSec <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.LLM.TimeoutSec) * time.Second
}

// RateWindow returns the rate-limit rolling window as a duration.
func (c *Config) RateWindow() time.Duration {
	if c.RateLimit.WindowMin <= 0 {
		return time.Hour
	}
	return time.Duration(c.RateLimit.WindowMin) * time.Minute
}
