package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFrom(t *testing.T) {
	t.Setenv("T4N_API_KEY", "")
	t.Setenv("T4N_API_BASE_URL", "")

	t.Run("valid config", func(t *testing.T) {
		path := writeConfig(t, "config.json", `{
			"api_key": "dev-key-123",
			"api_base_url": "https://api.example.com/",
			"display_mode": "minimal"
		}`)

		cfg, err := LoadFrom(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.APIKey != "dev-key-123" {
			t.Errorf("APIKey = %q, want %q", cfg.APIKey, "dev-key-123")
		}
		if cfg.APIBaseURL != "https://api.example.com" {
			t.Errorf("APIBaseURL = %q, want trailing slash trimmed", cfg.APIBaseURL)
		}
		if cfg.DisplayMode != DisplayMinimal {
			t.Errorf("DisplayMode = %q, want %q", cfg.DisplayMode, DisplayMinimal)
		}
	})

	t.Run("defaults applied", func(t *testing.T) {
		path := writeConfig(t, "config.json", `{"api_key": "k"}`)
		cfg, err := LoadFrom(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.APIBaseURL != "http://127.0.0.1:3001" {
			t.Errorf("APIBaseURL = %q, want default", cfg.APIBaseURL)
		}
		if cfg.RequestTimeoutMS != 25000 {
			t.Errorf("RequestTimeoutMS = %d, want 25000", cfg.RequestTimeoutMS)
		}
		if cfg.DisplayMode != DisplayDescription {
			t.Errorf("DisplayMode = %q, want %q", cfg.DisplayMode, DisplayDescription)
		}
		if cfg.MaxCodeContext != 120000 {
			t.Errorf("MaxCodeContext = %d, want 120000", cfg.MaxCodeContext)
		}
		if *cfg.Retry.MaxRetries != 2 || cfg.Retry.BaseDelayMS != 500 || cfg.Retry.MaxDelayMS != 8000 {
			t.Errorf("Retry defaults = %+v", cfg.Retry)
		}
		if len(cfg.Retry.RetryableStatuses) != 4 {
			t.Errorf("RetryableStatuses = %v", cfg.Retry.RetryableStatuses)
		}
	})

	t.Run("explicit zero retries kept", func(t *testing.T) {
		path := writeConfig(t, "config.json", `{"api_key": "k", "retry": {"max_retries": 0}}`)
		cfg, err := LoadFrom(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if *cfg.Retry.MaxRetries != 0 {
			t.Errorf("MaxRetries = %d, want 0", *cfg.Retry.MaxRetries)
		}
	})

	t.Run("yaml config", func(t *testing.T) {
		path := writeConfig(t, "config.yaml", "api_key: yaml-key\nretry:\n  max_retries: 4\n  retryable_statuses: [503]\n")
		cfg, err := LoadFrom(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.APIKey != "yaml-key" {
			t.Errorf("APIKey = %q", cfg.APIKey)
		}
		if *cfg.Retry.MaxRetries != 4 {
			t.Errorf("MaxRetries = %d, want 4", *cfg.Retry.MaxRetries)
		}
		if len(cfg.Retry.RetryableStatuses) != 1 || cfg.Retry.RetryableStatuses[0] != 503 {
			t.Errorf("RetryableStatuses = %v", cfg.Retry.RetryableStatuses)
		}
	})

	t.Run("env overrides", func(t *testing.T) {
		t.Setenv("T4N_API_KEY", "env-key")
		t.Setenv("T4N_API_BASE_URL", "http://localhost:9999")
		path := writeConfig(t, "config.json", `{}`)
		cfg, err := LoadFrom(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.APIKey != "env-key" || cfg.APIBaseURL != "http://localhost:9999" {
			t.Errorf("env overrides not applied: %+v", cfg)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadFrom(filepath.Join(t.TempDir(), "nope.json"))
		if !errors.Is(err, ErrNoConfig) {
			t.Errorf("err = %v, want ErrNoConfig", err)
		}
	})

	t.Run("missing api key", func(t *testing.T) {
		_, err := LoadFrom(writeConfig(t, "config.json", `{"api_base_url": "http://x"}`))
		if !errors.Is(err, ErrNoAPIKey) {
			t.Errorf("err = %v, want ErrNoAPIKey", err)
		}
	})

	t.Run("invalid json", func(t *testing.T) {
		_, err := LoadFrom(writeConfig(t, "config.json", `{not json`))
		if !errors.Is(err, ErrInvalidJSON) {
			t.Errorf("err = %v, want ErrInvalidJSON", err)
		}
	})

	t.Run("invalid yaml", func(t *testing.T) {
		_, err := LoadFrom(writeConfig(t, "config.yml", "api_key: [unclosed"))
		if !errors.Is(err, ErrInvalidYAML) {
			t.Errorf("err = %v, want ErrInvalidYAML", err)
		}
	})

	t.Run("invalid display mode", func(t *testing.T) {
		_, err := LoadFrom(writeConfig(t, "config.json", `{"api_key": "k", "display_mode": "loud"}`))
		if !errors.Is(err, ErrInvalidDisplayMode) {
			t.Errorf("err = %v, want ErrInvalidDisplayMode", err)
		}
	})

	t.Run("invalid retry", func(t *testing.T) {
		_, err := LoadFrom(writeConfig(t, "config.json", `{"api_key": "k", "retry": {"base_delay_ms": 9000, "max_delay_ms": 100}}`))
		if !errors.Is(err, ErrInvalidRetry) {
			t.Errorf("err = %v, want ErrInvalidRetry", err)
		}
	})
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.APIKey != "" {
		t.Errorf("Default should not carry an API key")
	}
	if cfg.RequestTimeout().Seconds() != 25 {
		t.Errorf("RequestTimeout = %v, want 25s", cfg.RequestTimeout())
	}
}
