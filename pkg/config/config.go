// Copyright 2026 © The ad4mlang Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads ad4mlang settings from defaults, files, environment
// and command line overrides.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/jllopis/ad4mlang/pkg/errors"
)

// EnvPrefix is the prefix of environment overrides (AD4M_STORAGE_DRIVER -> storage.driver).
const EnvPrefix = "AD4M_"

// ProfileEnv selects the profile overlay when no explicit profile is given.
const ProfileEnv = "AD4M_PROFILE"

type Config struct {
	Language      LanguageConfig      `koanf:"language"`
	Agent         AgentConfig         `koanf:"agent"`
	Storage       StorageConfig       `koanf:"storage"`
	Neighbourhood NeighbourhoodConfig `koanf:"neighbourhood"`
	Log           LogConfig           `koanf:"log"`
	Telemetry     TelemetryConfig     `koanf:"telemetry"`
	Relay         RelayConfig         `koanf:"relay"`
}

type LanguageConfig struct {
	Name          string `koanf:"name"`
	AddressScheme string `koanf:"address_scheme"` // random, content
}

type AgentConfig struct {
	DID     string `koanf:"did"`
	KeyFile string `koanf:"key_file"` // ed25519 seed; overrides did when set
}

type StorageConfig struct {
	Driver string `koanf:"driver"` // memory, file, sqlite
	Path   string `koanf:"path"`   // directory holding the store files
}

type NeighbourhoodConfig struct {
	Driver       string        `koanf:"driver"` // none, memory, sqlite, relay
	ID           string        `koanf:"id"`
	Path         string        `koanf:"path"` // sqlite log file
	RelayAddr    string        `koanf:"relay_addr"`
	RelayToken   string        `koanf:"relay_token"`
	SyncInterval time.Duration `koanf:"sync_interval"` // 0 disables the background loop
	Retry        RetryConfig   `koanf:"retry"`
	Breaker      BreakerConfig `koanf:"breaker"`
}

type RetryConfig struct {
	MaxAttempts  int           `koanf:"max_attempts"`
	InitialDelay time.Duration `koanf:"initial_delay"`
	MaxDelay     time.Duration `koanf:"max_delay"`
}

type BreakerConfig struct {
	Failures int           `koanf:"failures"`
	Timeout  time.Duration `koanf:"timeout"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, text
}

type TelemetryConfig struct {
	Enabled      bool          `koanf:"enabled"`
	Exporter     string        `koanf:"exporter"` // none, stdout, otlp
	OTLPEndpoint string        `koanf:"otlp_endpoint"`
	OTLPInsecure bool          `koanf:"otlp_insecure"`
	OTLPTimeout  time.Duration `koanf:"otlp_timeout"`
}

type RelayConfig struct {
	ListenAddr string `koanf:"listen_addr"`
	Driver     string `koanf:"driver"` // memory, sqlite
	Path       string `koanf:"path"`
	Token      string `koanf:"token"` // bearer token required from clients
}

// Options selects the sources Load reads on top of the defaults.
type Options struct {
	Path    string
	Profile string
	Set     []string // key=value, value parsed as JSON when possible
}

func defaults() map[string]any {
	return map[string]any{
		"language.name":                     "my-ad4m-language",
		"language.address_scheme":           "random",
		"agent.did":                         "did:key:test",
		"agent.key_file":                    "",
		"storage.driver":                    "memory",
		"storage.path":                      "./data",
		"neighbourhood.driver":              "none",
		"neighbourhood.id":                  "",
		"neighbourhood.path":                "",
		"neighbourhood.relay_addr":          "",
		"neighbourhood.relay_token":         "",
		"neighbourhood.sync_interval":       "0s",
		"neighbourhood.retry.max_attempts":  3,
		"neighbourhood.retry.initial_delay": "100ms",
		"neighbourhood.retry.max_delay":     "5s",
		"neighbourhood.breaker.failures":    5,
		"neighbourhood.breaker.timeout":     "30s",
		"log.level":                         "info",
		"log.format":                        "text",
		"telemetry.enabled":                 false,
		"telemetry.exporter":                "none",
		"telemetry.otlp_endpoint":           "",
		"telemetry.otlp_insecure":           false,
		"telemetry.otlp_timeout":            "10s",
		"relay.listen_addr":                 "127.0.0.1:7443",
		"relay.driver":                      "memory",
		"relay.path":                        "",
		"relay.token":                       "",
	}
}

// Load reads path (optional) with the profile named by AD4M_PROFILE.
func Load(path string) (*Config, error) {
	return LoadWithProfile(path, os.Getenv(ProfileEnv))
}

// LoadWithProfile reads path and, when it exists, the <name>.<profile>.<ext>
// overlay next to it.
func LoadWithProfile(path, profile string) (*Config, error) {
	return LoadOptions(Options{Path: path, Profile: profile})
}

// LoadWithCLI parses --config, --profile (alias --env) and repeated --set
// flags from args. Unrelated arguments are ignored.
func LoadWithCLI(args []string) (*Config, error) {
	opts, err := parseCLIOverrides(args)
	if err != nil {
		return nil, err
	}
	if opts.Profile == "" {
		opts.Profile = os.Getenv(ProfileEnv)
	}
	return LoadOptions(opts)
}

// LoadOptions layers defaults, the config file, its profile overlay,
// AD4M_ environment variables and --set overrides, in that order.
func LoadOptions(opts Options) (*Config, error) {
	k := koanf.New(".")
	for key, value := range defaults() {
		if err := k.Set(key, value); err != nil {
			return nil, err
		}
	}

	if opts.Path != "" {
		if err := k.Load(file.Provider(opts.Path), yaml.Parser()); err != nil {
			return nil, errors.New(errors.CodeInvalidInput, "load config file", err).
				WithContext("path", opts.Path)
		}
		if overlay := profileConfigPath(opts.Path, opts.Profile); overlay != "" {
			if err := k.Load(file.Provider(overlay), yaml.Parser()); err != nil {
				return nil, errors.New(errors.CodeInvalidInput, "load profile config", err).
					WithContext("path", overlay)
			}
		}
	}

	known := make(map[string]string)
	for _, key := range k.Keys() {
		known[strings.ReplaceAll(key, ".", "_")] = key
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return envKey(known, s)
	}), nil); err != nil {
		return nil, err
	}

	for _, kv := range opts.Set {
		key, value, err := parseSet(kv)
		if err != nil {
			return nil, err
		}
		if err := k.Set(key, value); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, errors.New(errors.CodeInvalidInput, "decode config", err)
	}
	return &cfg, nil
}

// envKey maps AD4M_NEIGHBOURHOOD_RETRY_MAX_ATTEMPTS to
// neighbourhood.retry.max_attempts using the known keys, falling back to
// splitting section and key on the first underscore.
func envKey(known map[string]string, name string) string {
	if name == ProfileEnv {
		return ""
	}
	s := strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
	if key, ok := known[s]; ok {
		return key
	}
	section, rest, found := strings.Cut(s, "_")
	if !found {
		return s
	}
	return section + "." + rest
}

// profileConfigPath returns the overlay for profile next to base, or "" when
// there is none on disk.
func profileConfigPath(base, profile string) string {
	candidate := overlayPath(base, profile)
	if candidate == "" {
		return ""
	}
	if _, err := os.Stat(candidate); err != nil {
		return ""
	}
	return candidate
}

func parseCLIOverrides(args []string) (Options, error) {
	var opts Options
	for i := 0; i < len(args); i++ {
		arg := args[i]
		name, value, hasValue := strings.Cut(arg, "=")
		switch name {
		case "--config", "--profile", "--env", "--set":
		default:
			continue
		}
		if !hasValue {
			if i+1 >= len(args) {
				return Options{}, errors.New(errors.CodeInvalidInput, "missing value for "+name, nil)
			}
			i++
			value = args[i]
		}
		switch name {
		case "--config":
			opts.Path = value
		case "--profile", "--env":
			opts.Profile = value
		case "--set":
			if _, _, err := parseSet(value); err != nil {
				return Options{}, err
			}
			opts.Set = append(opts.Set, value)
		}
	}
	return opts, nil
}

func parseSet(kv string) (string, any, error) {
	key, raw, ok := strings.Cut(kv, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return "", nil, errors.New(errors.CodeInvalidInput, fmt.Sprintf("invalid --set %q, want key=value", kv), nil)
	}
	var value any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return key, raw, nil
	}
	return key, value, nil
}

// Validate rejects unknown drivers and settings a driver cannot run without.
func (c *Config) Validate() error {
	invalid := func(field, value string) error {
		return errors.New(errors.CodeInvalidInput, fmt.Sprintf("invalid %s %q", field, value), nil)
	}
	switch c.Language.AddressScheme {
	case "random", "content":
	default:
		return invalid("language.address_scheme", c.Language.AddressScheme)
	}
	if strings.TrimSpace(c.Language.Name) == "" {
		return invalid("language.name", c.Language.Name)
	}
	if c.Agent.KeyFile == "" && !strings.HasPrefix(c.Agent.DID, "did:") {
		return invalid("agent.did", c.Agent.DID)
	}
	switch c.Storage.Driver {
	case "memory":
	case "file", "sqlite":
		if c.Storage.Path == "" {
			return invalid("storage.path", c.Storage.Path)
		}
	default:
		return invalid("storage.driver", c.Storage.Driver)
	}
	switch c.Neighbourhood.Driver {
	case "none":
	case "memory", "sqlite", "relay":
		if c.Neighbourhood.ID == "" {
			return invalid("neighbourhood.id", c.Neighbourhood.ID)
		}
		if c.Neighbourhood.Driver == "relay" && c.Neighbourhood.RelayAddr == "" {
			return invalid("neighbourhood.relay_addr", c.Neighbourhood.RelayAddr)
		}
	default:
		return invalid("neighbourhood.driver", c.Neighbourhood.Driver)
	}
	if c.Neighbourhood.SyncInterval < 0 {
		return invalid("neighbourhood.sync_interval", c.Neighbourhood.SyncInterval.String())
	}
	switch c.Relay.Driver {
	case "memory", "sqlite":
	default:
		return invalid("relay.driver", c.Relay.Driver)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return invalid("log.format", c.Log.Format)
	}
	switch c.Telemetry.Exporter {
	case "none", "stdout", "otlp":
	default:
		return invalid("telemetry.exporter", c.Telemetry.Exporter)
	}
	return nil
}

// NeighbourhoodPath returns the sqlite log file, defaulting to the storage directory.
func (c *Config) NeighbourhoodPath() string {
	if c.Neighbourhood.Path != "" {
		return c.Neighbourhood.Path
	}
	return filepath.Join(c.Storage.Path, "neighbourhood.db")
}

// RelayPath returns the relay sqlite file, defaulting to the storage directory.
func (c *Config) RelayPath() string {
	if c.Relay.Path != "" {
		return c.Relay.Path
	}
	return filepath.Join(c.Storage.Path, "relay.db")
}
