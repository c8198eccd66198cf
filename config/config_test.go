package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

const minimalConfig = `
agencies:
  - environmental-protection-agency
`

func TestDefaults(t *testing.T) {
	d := Defaults()
	if d.BaseURL != "https://www.federalregister.gov/api/v1" {
		t.Errorf("unexpected default base_url %s", d.BaseURL)
	}
	if d.PageSize != 100 {
		t.Errorf("expected default page size 100, got %d", d.PageSize)
	}
	if d.RetryMaxAttempts != 3 {
		t.Errorf("expected default retry attempts 3, got %d", d.RetryMaxAttempts)
	}
	if d.MinContentChars != 50 {
		t.Errorf("expected default min content 50, got %d", d.MinContentChars)
	}
	if d.MaxContentChars != 1_000_000 {
		t.Errorf("expected default max content 1000000, got %d", d.MaxContentChars)
	}
	if !d.HTMLFallback {
		t.Error("expected html fallback enabled by default")
	}
	if d.Timezone != "UTC" {
		t.Errorf("expected default timezone UTC, got %s", d.Timezone)
	}
	if d.ScheduleTime != "" {
		t.Errorf("expected one-shot by default, got schedule %q", d.ScheduleTime)
	}
	if d.LogLevel != "info" {
		t.Errorf("expected default log level info, got %s", d.LogLevel)
	}
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
agencies:
  - environmental-protection-agency
  - food-and-drug-administration
page_size: 250
document_limit: 500
request_rate: 1.5
schedule_time: "06:30"
timezone: "America/New_York"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Agencies) != 2 {
		t.Errorf("expected 2 agencies, got %v", cfg.Agencies)
	}
	if cfg.PageSize != 250 {
		t.Errorf("expected page_size 250, got %d", cfg.PageSize)
	}
	if cfg.DocumentLimit != 500 {
		t.Errorf("expected document_limit 500, got %d", cfg.DocumentLimit)
	}
	if cfg.RequestRate != 1.5 {
		t.Errorf("expected request_rate 1.5, got %g", cfg.RequestRate)
	}
	if cfg.ScheduleTime != "06:30" {
		t.Errorf("expected schedule_time 06:30, got %s", cfg.ScheduleTime)
	}
	// Defaults should be preserved for unset fields
	if cfg.RetryBackoffFactor != 2 {
		t.Errorf("expected default backoff factor, got %g", cfg.RetryBackoffFactor)
	}
	if cfg.DBPath != "./fedreg.db" {
		t.Errorf("expected default db path, got %s", cfg.DBPath)
	}
}

func TestLoad_MissingAgencies(t *testing.T) {
	path := writeConfig(t, `
page_size: 100
`)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for missing agencies")
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantSub string
	}{
		{"page size zero", "page_size: 0", "page_size"},
		{"page size above cap", "page_size: 2000", "page_size"},
		{"negative limit", "document_limit: -1", "document_limit"},
		{"zero rate", "request_rate: 0", "request_rate"},
		{"zero timeout", "fetch_timeout_secs: 0", "fetch_timeout_secs"},
		{"max below min content", "min_content_chars: 100\nmax_content_chars: 10", "max_content_chars"},
		{"zero workers", "workers: 0", "workers"},
		{"zero retry attempts", "retry_max_attempts: 0", "attempts"},
		{"retry max below base", "retry_base_delay_secs: 10\nretry_max_delay_secs: 1", "delay"},
		{"bad schedule time", `schedule_time: "25:00"`, "time"},
		{"bad timezone", `timezone: "Invalid/Zone"`, "timezone"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, minimalConfig+tt.yaml+"\n")
			_, err := Load(path)
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("error %q does not mention %q", err, tt.wantSub)
			}
		})
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, `
agencies: "not
  invalid: yaml: [
`)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestLoad_EnvConfigPath(t *testing.T) {
	path := writeConfig(t, `
agencies:
  - federal-aviation-administration
`)
	t.Setenv("FEDREG_CONFIG", path)
	cfg, err := Load("wrong-path.yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Agencies) != 1 || cfg.Agencies[0] != "federal-aviation-administration" {
		t.Errorf("expected env config to win, got %v", cfg.Agencies)
	}
}

func TestLoad_EnvDBPath(t *testing.T) {
	path := writeConfig(t, minimalConfig)
	t.Setenv("FEDREG_DB", "/custom/db.sqlite")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DBPath != "/custom/db.sqlite" {
		t.Errorf("expected /custom/db.sqlite, got %s", cfg.DBPath)
	}
}

func TestRetryConfig(t *testing.T) {
	cfg := Defaults()
	cfg.RetryBaseDelaySec = 0.5
	cfg.RetryMaxDelaySec = 30
	rc := cfg.RetryConfig()
	if rc.BaseDelay != 500*time.Millisecond {
		t.Errorf("BaseDelay = %s, want 500ms", rc.BaseDelay)
	}
	if rc.MaxDelay != 30*time.Second {
		t.Errorf("MaxDelay = %s, want 30s", rc.MaxDelay)
	}
	if rc.MaxAttempts != 3 || rc.Multiplier != 2 || !rc.Jitter {
		t.Errorf("RetryConfig() = %+v", rc)
	}
}

func TestValidateTime(t *testing.T) {
	tests := []struct {
		input string
		valid bool
	}{
		{"00:00", true},
		{"09:00", true},
		{"23:59", true},
		{"12:30", true},
		{"24:00", false},
		{"23:60", false},
		{"9:00", false},
		{"abc", false},
		{"12:0a", false},
		{"", false},
	}

	for _, tt := range tests {
		err := ValidateTime(tt.input)
		if tt.valid && err != nil {
			t.Errorf("ValidateTime(%q) returned unexpected error: %v", tt.input, err)
		}
		if !tt.valid && err == nil {
			t.Errorf("ValidateTime(%q) expected error, got nil", tt.input)
		}
	}
}
