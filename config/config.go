// Package config loads and validates the fetcher configuration from YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"fedreg-fetcher/retry"
)

// Config holds all application configuration.
type Config struct {
	Agencies      []string `yaml:"agencies"`
	BaseURL       string   `yaml:"base_url"`
	PageSize      int      `yaml:"page_size"`
	DocumentLimit int      `yaml:"document_limit"`

	RequestRate     float64 `yaml:"request_rate"`
	RequestBurst    int     `yaml:"request_burst"`
	FetchTimeoutSec int     `yaml:"fetch_timeout_secs"`

	RetryMaxAttempts   int     `yaml:"retry_max_attempts"`
	RetryBaseDelaySec  float64 `yaml:"retry_base_delay_secs"`
	RetryMaxDelaySec   float64 `yaml:"retry_max_delay_secs"`
	RetryBackoffFactor float64 `yaml:"retry_backoff_factor"`
	RetryJitter        bool    `yaml:"retry_jitter"`

	MinContentChars int  `yaml:"min_content_chars"`
	MaxContentChars int  `yaml:"max_content_chars"`
	HTMLFallback    bool `yaml:"html_fallback"`

	Workers      int    `yaml:"workers"`
	DBPath       string `yaml:"db_path"`
	LogLevel     string `yaml:"log_level"`
	ScheduleTime string `yaml:"schedule_time"`
	Timezone     string `yaml:"timezone"`
	UserAgent    string `yaml:"user_agent"`
}

// Defaults returns a Config with all default values set.
func Defaults() Config {
	return Config{
		BaseURL:            "https://www.federalregister.gov/api/v1",
		PageSize:           100,
		RequestRate:        2,
		RequestBurst:       4,
		FetchTimeoutSec:    30,
		RetryMaxAttempts:   3,
		RetryBaseDelaySec:  1,
		RetryMaxDelaySec:   60,
		RetryBackoffFactor: 2,
		RetryJitter:        true,
		MinContentChars:    50,
		MaxContentChars:    1_000_000,
		HTMLFallback:       true,
		Workers:            2,
		DBPath:             "./fedreg.db",
		LogLevel:           "info",
		Timezone:           "UTC",
		UserAgent:          "fedreg-fetcher/1.0",
	}
}

// Load reads a YAML config file and returns a validated Config.
// Environment variables FEDREG_CONFIG and FEDREG_DB can override the file
// path and db path.
func Load(path string) (Config, error) {
	if envPath := os.Getenv("FEDREG_CONFIG"); envPath != "" {
		path = envPath
	}

	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config file: %w", err)
	}

	if envDB := os.Getenv("FEDREG_DB"); envDB != "" {
		cfg.DBPath = envDB
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks that required fields are present and values are valid.
func (c *Config) Validate() error {
	if len(c.Agencies) == 0 {
		return fmt.Errorf("agencies is required: list at least one agency slug")
	}
	for _, a := range c.Agencies {
		if a == "" {
			return fmt.Errorf("agencies contains an empty slug")
		}
	}
	if c.PageSize < 1 || c.PageSize > 1000 {
		return fmt.Errorf("page_size must be between 1 and 1000, got %d", c.PageSize)
	}
	if c.DocumentLimit < 0 {
		return fmt.Errorf("document_limit must not be negative, got %d", c.DocumentLimit)
	}
	if c.RequestRate <= 0 {
		return fmt.Errorf("request_rate must be positive, got %g", c.RequestRate)
	}
	if c.FetchTimeoutSec <= 0 {
		return fmt.Errorf("fetch_timeout_secs must be positive, got %d", c.FetchTimeoutSec)
	}
	if c.MinContentChars < 0 {
		return fmt.Errorf("min_content_chars must not be negative, got %d", c.MinContentChars)
	}
	if c.MaxContentChars > 0 && c.MaxContentChars < c.MinContentChars {
		return fmt.Errorf("max_content_chars %d is below min_content_chars %d",
			c.MaxContentChars, c.MinContentChars)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}

	if err := c.RetryConfig().Validate(); err != nil {
		return err
	}

	if c.ScheduleTime != "" {
		if err := ValidateTime(c.ScheduleTime); err != nil {
			return err
		}
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}

	return nil
}

// RetryConfig converts the retry fields into a retry.Config.
func (c *Config) RetryConfig() retry.Config {
	return retry.Config{
		MaxAttempts: c.RetryMaxAttempts,
		BaseDelay:   time.Duration(c.RetryBaseDelaySec * float64(time.Second)),
		MaxDelay:    time.Duration(c.RetryMaxDelaySec * float64(time.Second)),
		Multiplier:  c.RetryBackoffFactor,
		Jitter:      c.RetryJitter,
	}
}

// FetchTimeout returns the per-request timeout as a Duration.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSec) * time.Second
}

// ValidateTime checks that a time string is in valid HH:MM 24-hour format.
func ValidateTime(t string) error {
	if len(t) != 5 || t[2] != ':' {
		return fmt.Errorf("invalid time format %q: must be HH:MM", t)
	}

	if t[0] < '0' || t[0] > '9' || t[1] < '0' || t[1] > '9' ||
		t[3] < '0' || t[3] > '9' || t[4] < '0' || t[4] > '9' {
		return fmt.Errorf("invalid time format %q: must be HH:MM", t)
	}

	hour := (int(t[0]-'0') * 10) + int(t[1]-'0')
	minute := (int(t[3]-'0') * 10) + int(t[4]-'0')

	if hour > 23 {
		return fmt.Errorf("invalid time %q: hour must be 0-23", t)
	}
	if minute > 59 {
		return fmt.Errorf("invalid time %q: minute must be 0-59", t)
	}

	return nil
}
