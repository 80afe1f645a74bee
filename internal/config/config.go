// Package config loads the global activityflow configuration from
// ~/.activityflow/config.yaml, a .env file and ACTIVITYFLOW_* variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	aferrors "github.com/felixgeelhaar/activityflow/internal/errors"
	"github.com/felixgeelhaar/activityflow/internal/ld"
	"github.com/felixgeelhaar/activityflow/internal/log"
	"github.com/felixgeelhaar/activityflow/internal/telemetry"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "ACTIVITYFLOW_"

// DirName is the configuration directory under the user's home.
const DirName = ".activityflow"

// Config is the global configuration.
type Config struct {
	Catalog   string          `yaml:"catalog,omitempty"`
	Resolver  ResolverConfig  `yaml:"resolver"`
	Store     StoreConfig     `yaml:"store"`
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Server    ServerConfig    `yaml:"server"`
	Defaults  CommandDefaults `yaml:"defaults,omitempty"`
}

type ResolverConfig struct {
	Timeout   time.Duration `yaml:"timeout"`
	Retries   int           `yaml:"retries"`
	CacheSize int           `yaml:"cache_size"` // 0 disables the document cache
	// InsecureRegistry allows plain-http OCI registries.
	InsecureRegistry bool `yaml:"insecure_registry,omitempty"`
}

type StoreConfig struct {
	DSN string `yaml:"dsn"` // directory, sqlite file or postgres URL
}

type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json", "text"
	File   string `yaml:"file,omitempty"`
}

type TelemetryConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Endpoint   string  `yaml:"endpoint,omitempty"`
	Insecure   bool    `yaml:"insecure,omitempty"`
	SampleRate float64 `yaml:"sample_rate"`
}

type ServerConfig struct {
	Address         string        `yaml:"address"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type CommandDefaults struct {
	Format  string `yaml:"format,omitempty"` // "text", "json", "yaml"
	NoColor bool   `yaml:"no_color,omitempty"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Resolver: ResolverConfig{
			Timeout:   15 * time.Second,
			Retries:   3,
			CacheSize: 128,
		},
		Store: StoreConfig{
			DSN: filepath.Join("~", DirName, "sessions.db"),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			File:   filepath.Join("~", DirName, "activityflow.log"),
		},
		Telemetry: TelemetryConfig{
			SampleRate: 1.0,
		},
		Server: ServerConfig{
			Address:         ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Defaults: CommandDefaults{
			Format: "text",
		},
	}
}

// DefaultPath returns ~/.activityflow/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, DirName, "config.yaml"), nil
}

// Load builds the configuration from defaults, the file at path (or the
// default path when empty), a .env file in the working directory and the
// environment, in that order. A missing file is not an error.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	cfg, err := ReadFile(path)
	if err != nil {
		return nil, err
	}

	// .env never overrides variables already set.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, aferrors.NewFileUnmarshalError(".env", "dotenv", err)
	}
	cfg.ApplyEnv(os.LookupEnv)

	return cfg, nil
}

// ReadFile reads path over the defaults without consulting the environment.
func ReadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, aferrors.Wrap(aferrors.ErrCodeFileReadFailed, fmt.Sprintf("failed to read config: %s", path), err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, aferrors.NewFileUnmarshalError(path, "YAML", err)
	}
	return cfg, nil
}

// Save writes the configuration to path, creating its directory.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return aferrors.Wrap(aferrors.ErrCodeFileWriteFailed, fmt.Sprintf("failed to write config: %s", path), err)
	}
	return nil
}

// ApplyEnv overrides fields from ACTIVITYFLOW_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvPrefix + "LOG_LEVEL"); ok && v != "" {
		c.Logging.Level = v
	}
	if v, ok := lookup(EnvPrefix + "LOG_FORMAT"); ok && v != "" {
		c.Logging.Format = v
	}
	if v, ok := lookup(EnvPrefix + "CATALOG"); ok && v != "" {
		c.Catalog = v
	}
	if v, ok := lookup(EnvPrefix + "STORE_DSN"); ok && v != "" {
		c.Store.DSN = v
	}
	if v, ok := lookup(EnvPrefix + "OTLP_ENDPOINT"); ok && v != "" {
		c.Telemetry.Endpoint = v
		c.Telemetry.Enabled = true
	}
	if v, ok := lookup(EnvPrefix + "SERVER_ADDRESS"); ok && v != "" {
		c.Server.Address = v
	}
}

// Validate reports every invalid value at once.
func (c *Config) Validate() error {
	var problems []string

	if _, err := log.ParseLevel(c.Logging.Level); err != nil {
		problems = append(problems, err.Error())
	}
	if _, err := log.ParseFormat(c.Logging.Format); err != nil {
		problems = append(problems, err.Error())
	}
	if c.Resolver.Timeout <= 0 {
		problems = append(problems, "resolver.timeout must be positive")
	}
	if c.Resolver.Retries < 0 {
		problems = append(problems, "resolver.retries must not be negative")
	}
	if c.Resolver.CacheSize < 0 {
		problems = append(problems, "resolver.cache_size must not be negative")
	}
	if c.Store.DSN == "" {
		problems = append(problems, "store.dsn is required")
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		problems = append(problems, "telemetry.sample_rate must be between 0 and 1")
	}
	if c.Server.Address == "" {
		problems = append(problems, "server.address is required")
	}
	if c.Server.ShutdownTimeout < 0 {
		problems = append(problems, "server.shutdown_timeout must not be negative")
	}
	switch c.Defaults.Format {
	case "", "text", "json", "yaml":
	default:
		problems = append(problems, fmt.Sprintf("defaults.format %q must be text, json or yaml", c.Defaults.Format))
	}

	if len(problems) == 0 {
		return nil
	}
	return aferrors.New(aferrors.ErrCodeConfigInvalid, "invalid configuration: "+strings.Join(problems, "; ")).
		WithSuggestion("Run 'activityflow config view' to inspect the effective values").
		WithSuggestion("Fix the file with 'activityflow config set <key> <value>'")
}

// HTTPConfig returns the remote fetch policy.
func (c *Config) HTTPConfig(userAgent string) ld.HTTPConfig {
	h := ld.DefaultHTTPConfig()
	h.Timeout = c.Resolver.Timeout
	h.RetryMax = c.Resolver.Retries
	if userAgent != "" {
		h.UserAgent = userAgent
	}
	return h
}

// TelemetryConfig returns the tracing configuration.
func (c *Config) TelemetryConfig(version string) telemetry.Config {
	t := telemetry.DefaultConfig()
	t.ServiceVersion = version
	t.Enabled = c.Telemetry.Enabled
	t.Endpoint = c.Telemetry.Endpoint
	t.Insecure = c.Telemetry.Insecure
	t.SampleRate = c.Telemetry.SampleRate
	return t
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") && !strings.HasPrefix(path, "~"+string(filepath.Separator)) {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

// Get returns the value of a dot-notation key.
func (c *Config) Get(key string) (string, error) {
	switch key {
	case "catalog":
		return c.Catalog, nil
	case "resolver.timeout":
		return c.Resolver.Timeout.String(), nil
	case "resolver.retries":
		return strconv.Itoa(c.Resolver.Retries), nil
	case "resolver.cache_size":
		return strconv.Itoa(c.Resolver.CacheSize), nil
	case "resolver.insecure_registry":
		return strconv.FormatBool(c.Resolver.InsecureRegistry), nil
	case "store.dsn":
		return c.Store.DSN, nil
	case "logging.level":
		return c.Logging.Level, nil
	case "logging.format":
		return c.Logging.Format, nil
	case "logging.file":
		return c.Logging.File, nil
	case "telemetry.enabled":
		return strconv.FormatBool(c.Telemetry.Enabled), nil
	case "telemetry.endpoint":
		return c.Telemetry.Endpoint, nil
	case "telemetry.insecure":
		return strconv.FormatBool(c.Telemetry.Insecure), nil
	case "telemetry.sample_rate":
		return strconv.FormatFloat(c.Telemetry.SampleRate, 'f', -1, 64), nil
	case "server.address":
		return c.Server.Address, nil
	case "server.shutdown_timeout":
		return c.Server.ShutdownTimeout.String(), nil
	case "defaults.format":
		return c.Defaults.Format, nil
	case "defaults.no_color":
		return strconv.FormatBool(c.Defaults.NoColor), nil
	default:
		return "", fmt.Errorf("unknown configuration key: %s", key)
	}
}

// Set assigns a dot-notation key from its string form.
func (c *Config) Set(key, value string) error {
	var err error
	switch key {
	case "catalog":
		c.Catalog = value
	case "resolver.timeout":
		c.Resolver.Timeout, err = time.ParseDuration(value)
	case "resolver.retries":
		c.Resolver.Retries, err = strconv.Atoi(value)
	case "resolver.cache_size":
		c.Resolver.CacheSize, err = strconv.Atoi(value)
	case "resolver.insecure_registry":
		c.Resolver.InsecureRegistry = parseBool(value)
	case "store.dsn":
		c.Store.DSN = value
	case "logging.level":
		c.Logging.Level = value
	case "logging.format":
		c.Logging.Format = value
	case "logging.file":
		c.Logging.File = value
	case "telemetry.enabled":
		c.Telemetry.Enabled = parseBool(value)
	case "telemetry.endpoint":
		c.Telemetry.Endpoint = value
	case "telemetry.insecure":
		c.Telemetry.Insecure = parseBool(value)
	case "telemetry.sample_rate":
		c.Telemetry.SampleRate, err = strconv.ParseFloat(value, 64)
	case "server.address":
		c.Server.Address = value
	case "server.shutdown_timeout":
		c.Server.ShutdownTimeout, err = time.ParseDuration(value)
	case "defaults.format":
		c.Defaults.Format = value
	case "defaults.no_color":
		c.Defaults.NoColor = parseBool(value)
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return nil
}

func parseBool(s string) bool {
	s = strings.ToLower(s)
	return s == "true" || s == "yes" || s == "1"
}
