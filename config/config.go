// Package config loads transaction-core settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds core configuration loaded from the environment.
type Config struct {
	AppEnv          string
	BackendURL      string
	BackendToken    string
	BackendTimeout  time.Duration
	MaxAttempts     int
	PollInterval    time.Duration
	PollMinSpacing  time.Duration
	LogFormat       string
	LogLevel        string
	MetricNamespace string
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:          valueOrDefault(k.String("APP_ENV"), "development"),
		BackendURL:      strings.TrimSpace(k.String("POS_BACKEND_URL")),
		BackendToken:    strings.TrimSpace(k.String("POS_BACKEND_TOKEN")),
		BackendTimeout:  parseDuration(k.String("POS_BACKEND_TIMEOUT"), "10s"),
		MaxAttempts:     parseInt(k.String("POS_BACKEND_MAX_ATTEMPTS"), 3),
		PollInterval:    parseDuration(k.String("POS_POLL_INTERVAL"), "10s"),
		PollMinSpacing:  parseDuration(k.String("POS_POLL_MIN_SPACING"), "2s"),
		LogFormat:       valueOrDefault(k.String("POS_LOG_FORMAT"), "json"),
		LogLevel:        valueOrDefault(k.String("POS_LOG_LEVEL"), "info"),
		MetricNamespace: valueOrDefault(k.String("POS_METRIC_NAMESPACE"), "pos"),
	}

	if cfg.BackendURL == "" {
		return nil, errors.New("POS_BACKEND_URL is required")
	}
	if cfg.PollMinSpacing > cfg.PollInterval {
		return nil, errors.New("POS_POLL_MIN_SPACING must not exceed POS_POLL_INTERVAL")
	}

	return cfg, nil
}

// MustLoad behaves like Load but panics on error. Useful for entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt(value string, fallback int) int {
	var n int
	if _, err := fmt.Sscanf(strings.TrimSpace(value), "%d", &n); err != nil || n <= 0 {
		return fallback
	}
	return n
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
