package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jllopis/ad4mlang/pkg/errors"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Language.Name != "my-ad4m-language" {
		t.Errorf("expected default name my-ad4m-language, got %s", cfg.Language.Name)
	}
	if cfg.Language.AddressScheme != "random" {
		t.Errorf("expected default scheme random, got %s", cfg.Language.AddressScheme)
	}
	if cfg.Agent.DID != "did:key:test" {
		t.Errorf("expected default did did:key:test, got %s", cfg.Agent.DID)
	}
	if cfg.Storage.Driver != "memory" || cfg.Neighbourhood.Driver != "none" {
		t.Errorf("unexpected default drivers: %s/%s", cfg.Storage.Driver, cfg.Neighbourhood.Driver)
	}
	if cfg.Neighbourhood.Retry.InitialDelay != 100*time.Millisecond {
		t.Errorf("expected 100ms retry delay, got %v", cfg.Neighbourhood.Retry.InitialDelay)
	}
	if cfg.Neighbourhood.Breaker.Timeout != 30*time.Second {
		t.Errorf("expected 30s breaker timeout, got %v", cfg.Neighbourhood.Breaker.Timeout)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("AD4M_STORAGE_DRIVER", "sqlite")
	t.Setenv("AD4M_LANGUAGE_ADDRESS_SCHEME", "content")
	t.Setenv("AD4M_NEIGHBOURHOOD_RETRY_MAX_ATTEMPTS", "7")
	t.Setenv("AD4M_NEIGHBOURHOOD_SYNC_INTERVAL", "2s")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Storage.Driver != "sqlite" {
		t.Errorf("expected storage driver sqlite from env, got %s", cfg.Storage.Driver)
	}
	if cfg.Language.AddressScheme != "content" {
		t.Errorf("expected address scheme content from env, got %s", cfg.Language.AddressScheme)
	}
	if cfg.Neighbourhood.Retry.MaxAttempts != 7 {
		t.Errorf("expected nested retry override, got %d", cfg.Neighbourhood.Retry.MaxAttempts)
	}
	if cfg.Neighbourhood.SyncInterval != 2*time.Second {
		t.Errorf("expected sync interval 2s, got %v", cfg.Neighbourhood.SyncInterval)
	}
}

func TestLoadWithProfile(t *testing.T) {
	tmpDir := t.TempDir()

	baseConfig := `
storage:
  driver: "file"
  path: "/var/lib/ad4m"
log:
  level: "info"
`
	basePath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(basePath, []byte(baseConfig), 0644); err != nil {
		t.Fatalf("failed to write base config: %v", err)
	}

	devConfig := `
storage:
  driver: "memory"
log:
  level: "debug"
`
	devPath := filepath.Join(tmpDir, "config.dev.yaml")
	if err := os.WriteFile(devPath, []byte(devConfig), 0644); err != nil {
		t.Fatalf("failed to write dev config: %v", err)
	}

	prodConfig := `
storage:
  driver: "sqlite"
log:
  level: "warn"
`
	prodPath := filepath.Join(tmpDir, "config.prod.yaml")
	if err := os.WriteFile(prodPath, []byte(prodConfig), 0644); err != nil {
		t.Fatalf("failed to write prod config: %v", err)
	}

	tests := []struct {
		name         string
		profile      string
		wantDriver   string
		wantLogLevel string
		wantPath     string // inherited from base when not overridden
	}{
		{"no profile - base only", "", "file", "info", "/var/lib/ad4m"},
		{"dev profile", "dev", "memory", "debug", "/var/lib/ad4m"},
		{"prod profile", "prod", "sqlite", "warn", "/var/lib/ad4m"},
		{"nonexistent profile - falls back to base", "staging", "file", "info", "/var/lib/ad4m"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := LoadWithProfile(basePath, tc.profile)
			if err != nil {
				t.Fatalf("LoadWithProfile failed: %v", err)
			}

			if cfg.Storage.Driver != tc.wantDriver {
				t.Errorf("driver: got %s, want %s", cfg.Storage.Driver, tc.wantDriver)
			}
			if cfg.Log.Level != tc.wantLogLevel {
				t.Errorf("log level: got %s, want %s", cfg.Log.Level, tc.wantLogLevel)
			}
			if cfg.Storage.Path != tc.wantPath {
				t.Errorf("path: got %s, want %s", cfg.Storage.Path, tc.wantPath)
			}
		})
	}
}

func TestLoadProfileFromEnv(t *testing.T) {
	tmpDir := t.TempDir()
	basePath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(basePath, []byte("log:\n  level: info\n"), 0644); err != nil {
		t.Fatalf("write base: %v", err)
	}
	if err := os.WriteFile(filepath.Join(tmpDir, "config.test.yaml"), []byte("log:\n  level: error\n"), 0644); err != nil {
		t.Fatalf("write overlay: %v", err)
	}
	t.Setenv(ProfileEnv, "test")

	cfg, err := Load(basePath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Log.Level != "error" {
		t.Fatalf("expected overlay selected by %s, got %s", ProfileEnv, cfg.Log.Level)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if !errors.IsCode(err, errors.CodeInvalidInput) {
		t.Fatalf("expected INVALID_INPUT for missing file, got %v", err)
	}
}

func TestProfileConfigPath(t *testing.T) {
	tmpDir := t.TempDir()

	devPath := filepath.Join(tmpDir, "config.dev.yaml")
	if err := os.WriteFile(devPath, []byte("test"), 0644); err != nil {
		t.Fatalf("failed to create dev config: %v", err)
	}

	basePath := filepath.Join(tmpDir, "config.yaml")

	tests := []struct {
		name     string
		base     string
		profile  string
		wantPath string
	}{
		{"existing profile", basePath, "dev", devPath},
		{"nonexistent profile", basePath, "prod", ""},
		{"empty profile", basePath, "", ""},
		{"empty base", "", "dev", ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := profileConfigPath(tc.base, tc.profile)
			if got != tc.wantPath {
				t.Errorf("profileConfigPath(%q, %q) = %q, want %q", tc.base, tc.profile, got, tc.wantPath)
			}
		})
	}
}

func TestEnvKey(t *testing.T) {
	known := map[string]string{
		"neighbourhood_retry_max_attempts": "neighbourhood.retry.max_attempts",
		"language_address_scheme":          "language.address_scheme",
	}
	tests := map[string]string{
		"AD4M_NEIGHBOURHOOD_RETRY_MAX_ATTEMPTS": "neighbourhood.retry.max_attempts",
		"AD4M_LANGUAGE_ADDRESS_SCHEME":          "language.address_scheme",
		"AD4M_TELEMETRY_OTLP_HEADERS":           "telemetry.otlp_headers",
		"AD4M_PROFILE":                          "",
	}
	for in, want := range tests {
		if got := envKey(known, in); got != want {
			t.Errorf("envKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestValidate(t *testing.T) {
	base, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"content scheme", func(c *Config) { c.Language.AddressScheme = "content" }, true},
		{"unknown scheme", func(c *Config) { c.Language.AddressScheme = "sha1" }, false},
		{"unknown storage", func(c *Config) { c.Storage.Driver = "redis" }, false},
		{"sqlite without path", func(c *Config) { c.Storage.Driver = "sqlite"; c.Storage.Path = "" }, false},
		{"neighbourhood without id", func(c *Config) { c.Neighbourhood.Driver = "memory" }, false},
		{"relay without addr", func(c *Config) {
			c.Neighbourhood.Driver = "relay"
			c.Neighbourhood.ID = "n1"
		}, false},
		{"relay with addr", func(c *Config) {
			c.Neighbourhood.Driver = "relay"
			c.Neighbourhood.ID = "n1"
			c.Neighbourhood.RelayAddr = "localhost:7443"
		}, true},
		{"bad did", func(c *Config) { c.Agent.DID = "alice" }, false},
		{"bad did with key file", func(c *Config) { c.Agent.DID = "alice"; c.Agent.KeyFile = "/tmp/key" }, true},
		{"bad exporter", func(c *Config) { c.Telemetry.Exporter = "jaeger" }, false},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := *base
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.ok && err != nil {
				t.Fatalf("expected valid config, got %v", err)
			}
			if !tc.ok && !errors.IsCode(err, errors.CodeInvalidInput) {
				t.Fatalf("expected INVALID_INPUT, got %v", err)
			}
		})
	}
}

func TestDerivedPaths(t *testing.T) {
	cfg := &Config{Storage: StorageConfig{Path: "/data"}}
	if got := cfg.NeighbourhoodPath(); got != filepath.Join("/data", "neighbourhood.db") {
		t.Errorf("unexpected neighbourhood path %s", got)
	}
	cfg.Relay.Path = "/srv/relay.db"
	if got := cfg.RelayPath(); got != "/srv/relay.db" {
		t.Errorf("unexpected relay path %s", got)
	}
}
