// Package config loads and validates ScenePilot configuration.
// Configuration lives in a YAML file (default .pilot/pilot.yaml) with
// environment-variable overrides for secrets and deployment paths.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all ScenePilot configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Completion-service configuration
	LLM LLMConfig `yaml:"llm"`

	// Confidence tuning knobs
	Tuning TuningConfig `yaml:"tuning"`

	// Session state limits
	Session SessionConfig `yaml:"session"`

	// Scene bounds used for camera boundary warnings
	Scene SceneConfig `yaml:"scene"`

	// Access control
	Permissions  []string `yaml:"permissions"`  // granted permission strings
	Capabilities []string `yaml:"capabilities"` // enabled tool capability flags

	// Persistence
	Store StoreConfig `yaml:"store"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the completion-service client.
type LLMConfig struct {
	Provider string `yaml:"provider"` // openai, anthropic
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	Timeout  string `yaml:"timeout"`
}

// TuningConfig holds the calibratable confidence constants.
// The defaults are carried over from observed production behavior and are
// candidates for recalibration against real usage data.
type TuningConfig struct {
	// ConfidenceThreshold is the minimum parser confidence to accept an intent.
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`

	// CompoundPenalty is subtracted per extra clause in a compound command.
	CompoundPenalty float64 `yaml:"compound_penalty"`

	// Validation confidence multipliers.
	ErrorMultiplier   float64 `yaml:"error_multiplier"`
	WarningMultiplier float64 `yaml:"warning_multiplier"`
	SuggestionBoost   float64 `yaml:"suggestion_boost"`

	// RoutingThreshold is the minimum intent-agent confidence to skip
	// the clarification agent.
	RoutingThreshold float64 `yaml:"routing_threshold"`

	// MaxIterations bounds agent-internal tool-call loops.
	MaxIterations int `yaml:"max_iterations"`

	// HistoryWindow is how many dialog turns accompany agent prompts.
	HistoryWindow int `yaml:"history_window"`
}

// SessionConfig configures session state retention.
type SessionConfig struct {
	HistoryCap     int `yaml:"history_cap"`      // dialog turns kept
	QueryRecordCap int `yaml:"query_record_cap"` // retrieval query records kept
	SuccessWindow  int `yaml:"success_window"`   // turns in the rolling success rate
}

// SceneConfig describes the navigable scene envelope.
type SceneConfig struct {
	North float64 `yaml:"north"`
	South float64 `yaml:"south"`
	East  float64 `yaml:"east"`
	West  float64 `yaml:"west"`

	// EdgeMarginDegrees: camera targets closer than this to the envelope
	// edge produce a validation warning.
	EdgeMarginDegrees float64 `yaml:"edge_margin_degrees"`
}

// StoreConfig configures SQLite persistence.
type StoreConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "ScenePilot",
		Version: "1.2.0",

		LLM: LLMConfig{
			Provider: "openai",
			Model:    "gpt-4o-mini",
			BaseURL:  "https://api.openai.com/v1",
			Timeout:  "120s",
		},

		Tuning: TuningConfig{
			ConfidenceThreshold: 0.4,
			CompoundPenalty:     0.1,
			ErrorMultiplier:     0.5,
			WarningMultiplier:   0.8,
			SuggestionBoost:     1.1,
			RoutingThreshold:    0.8,
			MaxIterations:       5,
			HistoryWindow:       6,
		},

		Session: SessionConfig{
			HistoryCap:     100,
			QueryRecordCap: 20,
			SuccessWindow:  10,
		},

		Scene: SceneConfig{
			North:             90,
			South:             -90,
			East:              180,
			West:              -180,
			EdgeMarginDegrees: 0.01,
		},

		Permissions:  []string{"layer_control", "camera_control", "feature_control"},
		Capabilities: []string{"layer_control", "camera_control", "feature_control"},

		Store: StoreConfig{
			DatabasePath: ".pilot/pilot.db",
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file.
// A missing file yields defaults; env overrides apply in both cases.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	// API key from environment (check in priority order)
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "anthropic"
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "openai"
	}
	if key := os.Getenv("PILOT_API_KEY"); key != "" {
		c.LLM.APIKey = key
	}

	if model := os.Getenv("PILOT_MODEL"); model != "" {
		c.LLM.Model = model
	}
	if url := os.Getenv("PILOT_BASE_URL"); url != "" {
		c.LLM.BaseURL = url
	}
	if path := os.Getenv("PILOT_DB"); path != "" {
		c.Store.DatabasePath = path
	}
}

// GetLLMTimeout returns the completion-service timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil {
		return 120 * time.Second
	}
	return d
}

// HasPermission reports whether a permission string is granted.
func (c *Config) HasPermission(perm string) bool {
	for _, p := range c.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}

// HasCapability reports whether a capability flag is enabled.
func (c *Config) HasCapability(cap string) bool {
	for _, p := range c.Capabilities {
		if p == cap {
			return true
		}
	}
	return false
}

// AIEnabled reports whether the agent path can be taken at all.
func (c *Config) AIEnabled() bool {
	return c.LLM.APIKey != ""
}

// ValidProviders lists all supported completion-service providers.
var ValidProviders = []string{"openai", "anthropic"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validProvider := false
	for _, p := range ValidProviders {
		if c.LLM.Provider == p {
			validProvider = true
			break
		}
	}
	if !validProvider {
		return fmt.Errorf("invalid LLM provider: %s (valid: %v)", c.LLM.Provider, ValidProviders)
	}

	if c.Tuning.ConfidenceThreshold < 0 || c.Tuning.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence_threshold must be in [0,1], got %v", c.Tuning.ConfidenceThreshold)
	}
	if c.Tuning.CompoundPenalty < 0 {
		return fmt.Errorf("compound_penalty must be >= 0, got %v", c.Tuning.CompoundPenalty)
	}
	if c.Session.HistoryCap <= 0 {
		return fmt.Errorf("history_cap must be positive, got %d", c.Session.HistoryCap)
	}

	return nil
}
