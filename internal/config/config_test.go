package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	aferrors "github.com/felixgeelhaar/activityflow/internal/errors"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}
}

func TestReadFileMissingReturnsDefaults(t *testing.T) {
	cfg, err := ReadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if cfg.Server.Address != ":8080" || cfg.Resolver.Retries != 3 {
		t.Errorf("expected defaults, got %+v", cfg)
	}
}

func TestReadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `catalog: /srv/catalog.yaml
resolver:
  timeout: 3s
  retries: 0
store:
  dsn: postgres://u:p@db/activityflow
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}

	if cfg.Catalog != "/srv/catalog.yaml" {
		t.Errorf("catalog = %q", cfg.Catalog)
	}
	if cfg.Resolver.Timeout != 3*time.Second || cfg.Resolver.Retries != 0 {
		t.Errorf("resolver = %+v", cfg.Resolver)
	}
	if cfg.Resolver.CacheSize != 128 {
		t.Errorf("unset cache_size should keep its default, got %d", cfg.Resolver.CacheSize)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "text" {
		t.Errorf("logging = %+v", cfg.Logging)
	}
}

func TestReadFileInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("resolver: [1, 2"), 0o600); err != nil {
		t.Fatal(err)
	}

	_, err := ReadFile(path)
	if !aferrors.HasCode(err, aferrors.ErrCodeFileUnmarshal) {
		t.Errorf("expected IO-005, got %v", err)
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"ACTIVITYFLOW_LOG_LEVEL":      "warn",
		"ACTIVITYFLOW_LOG_FORMAT":     "json",
		"ACTIVITYFLOW_CATALOG":        "catalog.json",
		"ACTIVITYFLOW_STORE_DSN":      "/tmp/sessions",
		"ACTIVITYFLOW_OTLP_ENDPOINT":  "collector:4318",
		"ACTIVITYFLOW_SERVER_ADDRESS": "127.0.0.1:9000",
	}
	cfg := Default()
	cfg.ApplyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})

	if cfg.Logging.Level != "warn" || cfg.Logging.Format != "json" {
		t.Errorf("logging = %+v", cfg.Logging)
	}
	if cfg.Catalog != "catalog.json" || cfg.Store.DSN != "/tmp/sessions" {
		t.Errorf("catalog/store = %q / %q", cfg.Catalog, cfg.Store.DSN)
	}
	if !cfg.Telemetry.Enabled || cfg.Telemetry.Endpoint != "collector:4318" {
		t.Errorf("an OTLP endpoint should enable telemetry: %+v", cfg.Telemetry)
	}
	if cfg.Server.Address != "127.0.0.1:9000" {
		t.Errorf("server address = %q", cfg.Server.Address)
	}
}

func TestLoadUsesEnvironment(t *testing.T) {
	t.Setenv("ACTIVITYFLOW_STORE_DSN", "/var/lib/activityflow")

	cfg, err := Load(filepath.Join(t.TempDir(), "config.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Store.DSN != "/var/lib/activityflow" {
		t.Errorf("store.dsn = %q", cfg.Store.DSN)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }},
		{"zero timeout", func(c *Config) { c.Resolver.Timeout = 0 }},
		{"negative retries", func(c *Config) { c.Resolver.Retries = -1 }},
		{"negative cache", func(c *Config) { c.Resolver.CacheSize = -5 }},
		{"no dsn", func(c *Config) { c.Store.DSN = "" }},
		{"sample rate", func(c *Config) { c.Telemetry.SampleRate = 1.5 }},
		{"no address", func(c *Config) { c.Server.Address = "" }},
		{"output format", func(c *Config) { c.Defaults.Format = "toml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); !aferrors.HasCode(err, aferrors.ErrCodeConfigInvalid) {
				t.Errorf("expected CONFIG-001, got %v", err)
			}
		})
	}
}

func TestGetSet(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"catalog", "/srv/catalog.yaml"},
		{"resolver.timeout", "2s"},
		{"resolver.retries", "5"},
		{"resolver.cache_size", "0"},
		{"resolver.insecure_registry", "true"},
		{"store.dsn", "sqlite:///tmp/s.db"},
		{"logging.level", "debug"},
		{"logging.format", "json"},
		{"logging.file", "/tmp/af.log"},
		{"telemetry.enabled", "true"},
		{"telemetry.endpoint", "localhost:4318"},
		{"telemetry.insecure", "true"},
		{"telemetry.sample_rate", "0.25"},
		{"server.address", ":9090"},
		{"server.shutdown_timeout", "30s"},
		{"defaults.format", "yaml"},
		{"defaults.no_color", "true"},
	}

	cfg := Default()
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if err := cfg.Set(tt.key, tt.value); err != nil {
				t.Fatalf("Set failed: %v", err)
			}
			got, err := cfg.Get(tt.key)
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if got != tt.value {
				t.Errorf("Get(%s) = %q, want %q", tt.key, got, tt.value)
			}
		})
	}
}

func TestGetSetErrors(t *testing.T) {
	cfg := Default()

	if _, err := cfg.Get("providers.default"); err == nil {
		t.Error("expected error for unknown key")
	}
	if err := cfg.Set("providers.default", "x"); err == nil {
		t.Error("expected error for unknown key")
	}
	if err := cfg.Set("resolver.timeout", "soon"); err == nil {
		t.Error("expected error for a bad duration")
	}
	if err := cfg.Set("resolver.retries", "many"); err == nil {
		t.Error("expected error for a bad integer")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := Default()
	cfg.Catalog = "catalog.yaml"
	cfg.Server.ShutdownTimeout = 3 * time.Second
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("config file mode = %v, want 0600", info.Mode().Perm())
	}

	loaded, err := ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Catalog != "catalog.yaml" || loaded.Server.ShutdownTimeout != 3*time.Second {
		t.Errorf("round trip lost values: %+v", loaded)
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}

	if got := ExpandHome("~/x/y"); got != filepath.Join(home, "x", "y") {
		t.Errorf("ExpandHome = %q", got)
	}
	if got := ExpandHome("/abs/path"); got != "/abs/path" {
		t.Errorf("absolute path changed: %q", got)
	}
	if got := ExpandHome("~user/x"); got != "~user/x" {
		t.Errorf("~user should be left alone, got %q", got)
	}
}

func TestDerivedConfigs(t *testing.T) {
	cfg := Default()
	cfg.Resolver.Timeout = 2 * time.Second
	cfg.Resolver.Retries = 1
	cfg.Telemetry.Enabled = true
	cfg.Telemetry.Endpoint = "collector:4318"

	h := cfg.HTTPConfig("activityflow/1.0")
	if h.Timeout != 2*time.Second || h.RetryMax != 1 || h.UserAgent != "activityflow/1.0" {
		t.Errorf("http config = %+v", h)
	}

	tc := cfg.TelemetryConfig("1.0")
	if !tc.Enabled || tc.Endpoint != "collector:4318" || tc.ServiceVersion != "1.0" || tc.ServiceName != "activityflow" {
		t.Errorf("telemetry config = %+v", tc)
	}
}
