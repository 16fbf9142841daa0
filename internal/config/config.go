package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	ErrNoConfig           = errors.New("config file not found")
	ErrNoAPIKey           = errors.New("api_key not set in config")
	ErrInvalidJSON        = errors.New("invalid config JSON")
	ErrInvalidYAML        = errors.New("invalid config YAML")
	ErrInvalidDisplayMode = errors.New("display_mode must be \"description\" or \"minimal\"")
	ErrInvalidRetry       = errors.New("retry settings must be non-negative and max_delay_ms >= base_delay_ms")
)

const (
	DisplayDescription = "description"
	DisplayMinimal     = "minimal"
)

// Config holds the global t4n configuration.
type Config struct {
	APIBaseURL       string       `json:"api_base_url" yaml:"api_base_url"`
	APIKey           string       `json:"api_key" yaml:"api_key"`
	RequestTimeoutMS int          `json:"request_timeout_ms" yaml:"request_timeout_ms"` // non-streaming calls only
	DisplayMode      string       `json:"display_mode" yaml:"display_mode"`             // "description" or "minimal"
	MaxCodeContext   int          `json:"max_code_context" yaml:"max_code_context"`     // characters of canvas code sent as context
	Retry            *RetryConfig `json:"retry" yaml:"retry"`
}

// RetryConfig bounds the transport-level retry decorator.
type RetryConfig struct {
	MaxRetries        *int  `json:"max_retries" yaml:"max_retries"`
	BaseDelayMS       int   `json:"base_delay_ms" yaml:"base_delay_ms"`
	MaxDelayMS        int   `json:"max_delay_ms" yaml:"max_delay_ms"`
	RetryableStatuses []int `json:"retryable_statuses" yaml:"retryable_statuses"`
}

// RequestTimeout returns the non-streaming request timeout.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMS) * time.Millisecond
}

// Default returns a config with every default applied and no API key.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads the config from ~/.config/t4n/config.json, falling back to
// config.yaml and config.yml in the same directory.
func Load() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	dir := filepath.Join(homeDir, ".config", "t4n")
	for _, name := range []string{"config.json", "config.yaml", "config.yml"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return LoadFrom(path)
		}
	}
	return LoadFrom(filepath.Join(dir, "config.json"))
}

// LoadFrom reads the config from a specific path. Files ending in .yaml or
// .yml are decoded as YAML, everything else as JSON.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoConfig
		}
		return nil, err
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, ErrInvalidYAML
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, ErrInvalidJSON
		}
	}

	applyEnv(&cfg)
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}

	applyDefaults(&cfg)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("T4N_API_BASE_URL")); v != "" {
		cfg.APIBaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("T4N_API_KEY")); v != "" {
		cfg.APIKey = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = "http://127.0.0.1:3001"
	}
	cfg.APIBaseURL = strings.TrimSuffix(cfg.APIBaseURL, "/")
	if cfg.RequestTimeoutMS == 0 {
		cfg.RequestTimeoutMS = 25000
	}
	if cfg.DisplayMode == "" {
		cfg.DisplayMode = DisplayDescription
	}
	if cfg.MaxCodeContext == 0 {
		cfg.MaxCodeContext = 120000
	}
	if cfg.Retry == nil {
		cfg.Retry = &RetryConfig{}
	}
	if cfg.Retry.MaxRetries == nil {
		n := 2
		cfg.Retry.MaxRetries = &n
	}
	if cfg.Retry.BaseDelayMS == 0 {
		cfg.Retry.BaseDelayMS = 500
	}
	if cfg.Retry.MaxDelayMS == 0 {
		cfg.Retry.MaxDelayMS = 8000
	}
	if len(cfg.Retry.RetryableStatuses) == 0 {
		cfg.Retry.RetryableStatuses = []int{429, 502, 503, 504}
	}
}

func (c *Config) validate() error {
	switch c.DisplayMode {
	case DisplayDescription, DisplayMinimal:
		// valid
	default:
		return ErrInvalidDisplayMode
	}
	r := c.Retry
	if *r.MaxRetries < 0 || r.BaseDelayMS < 0 || r.MaxDelayMS < r.BaseDelayMS {
		return ErrInvalidRetry
	}
	return nil
}
