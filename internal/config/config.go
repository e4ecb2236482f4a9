package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all baziai configuration.
type Config struct {
	// Backend service endpoint and credentials
	Service ServiceConfig `yaml:"service"`

	// Analysis session behavior
	Session SessionConfig `yaml:"session"`

	// Local state (history database, quota file, logs)
	State StateConfig `yaml:"state"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// ServiceConfig configures the backend HTTP client.
type ServiceConfig struct {
	BaseURL   string `yaml:"base_url"`
	AuthToken string `yaml:"auth_token"`
	Language  string `yaml:"language"` // en, zh-TW, zh-CN, ko
	Timeout   string `yaml:"timeout"`  // per-request budget for synchronous endpoints
}

// SessionConfig configures analysis session lifecycle.
type SessionConfig struct {
	MaxDuration     string `yaml:"max_duration"`     // ceiling for one whole session
	ChartTimeout    string `yaml:"chart_timeout"`    // chart-fetch phase budget
	FallbackTimeout string `yaml:"fallback_timeout"` // synchronous replay budget
}

// StateConfig configures where local state lives.
type StateConfig struct {
	Dir         string `yaml:"dir"`
	HistoryPath string `yaml:"history_path"` // defaults to <dir>/history.db
	QuotaPath   string `yaml:"quota_path"`   // defaults to <dir>/quota.json
}

// LoggingConfig configures the categorized debug logger.
type LoggingConfig struct {
	Debug      bool            `yaml:"debug"`
	Level      string          `yaml:"level"` // debug, info, warn, error
	Categories map[string]bool `yaml:"categories"`
}

// ValidLanguages lists the languages the backend renders reports in.
var ValidLanguages = []string{"en", "zh-TW", "zh-CN", "ko"}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			BaseURL:  "http://localhost:8000",
			Language: "en",
			Timeout:  "60s",
		},
		Session: SessionConfig{
			MaxDuration:     "5m",
			ChartTimeout:    "30s",
			FallbackTimeout: "120s",
		},
		State: StateConfig{
			Dir: defaultStateDir(),
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

func defaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".baziai"
	}
	return filepath.Join(home, ".baziai")
}

// Load loads configuration from a YAML file. A missing file yields defaults.
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

// Save writes the configuration to a YAML file.
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
	if url := os.Getenv("BAZIAI_BASE_URL"); url != "" {
		c.Service.BaseURL = url
	}
	if token := os.Getenv("BAZIAI_AUTH_TOKEN"); token != "" {
		c.Service.AuthToken = token
	}
	if lang := os.Getenv("BAZIAI_LANGUAGE"); lang != "" {
		c.Service.Language = lang
	}
	if dir := os.Getenv("BAZIAI_STATE_DIR"); dir != "" {
		c.State.Dir = dir
	}
	switch os.Getenv("BAZIAI_DEBUG") {
	case "1", "true", "yes":
		c.Logging.Debug = true
	}
}

// GetRequestTimeout returns the synchronous-request timeout as a duration.
func (c *Config) GetRequestTimeout() time.Duration {
	d, err := time.ParseDuration(c.Service.Timeout)
	if err != nil {
		return 60 * time.Second
	}
	return d
}

// GetMaxSessionDuration returns the whole-session ceiling as a duration.
func (c *Config) GetMaxSessionDuration() time.Duration {
	d, err := time.ParseDuration(c.Session.MaxDuration)
	if err != nil {
		return 5 * time.Minute
	}
	return d
}

// GetChartTimeout returns the chart-fetch budget as a duration.
func (c *Config) GetChartTimeout() time.Duration {
	d, err := time.ParseDuration(c.Session.ChartTimeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// GetFallbackTimeout returns the synchronous-replay budget as a duration.
func (c *Config) GetFallbackTimeout() time.Duration {
	d, err := time.ParseDuration(c.Session.FallbackTimeout)
	if err != nil {
		return 120 * time.Second
	}
	return d
}

// HistoryPath returns the resolved history database path.
func (c *Config) HistoryPath() string {
	if c.State.HistoryPath != "" {
		return c.State.HistoryPath
	}
	return filepath.Join(c.State.Dir, "history.db")
}

// QuotaPath returns the resolved quota file path.
func (c *Config) QuotaPath() string {
	if c.State.QuotaPath != "" {
		return c.State.QuotaPath
	}
	return filepath.Join(c.State.Dir, "quota.json")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Service.BaseURL == "" {
		return fmt.Errorf("service base_url not configured (set BAZIAI_BASE_URL or service.base_url)")
	}

	validLang := false
	for _, l := range ValidLanguages {
		if c.Service.Language == l {
			validLang = true
			break
		}
	}
	if !validLang {
		return fmt.Errorf("invalid language: %s (valid: %v)", c.Service.Language, ValidLanguages)
	}

	return nil
}
