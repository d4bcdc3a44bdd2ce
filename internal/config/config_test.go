package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	old := EnvPaths
	EnvPaths = nil
	defer func() { EnvPaths = old }()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}
	if cfg.Feed.URL != Default().Feed.URL || cfg.Log.Level == "" || cfg.Log.Format == "" {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
	if d, _ := cfg.Feed.Interval(); d != time.Second {
		t.Fatalf("expected 1s poll interval, got %s", d)
	}
}

func TestLoadFileEnvAndDotenv(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "battlecalc.yaml", `
feed:
  url: ws://localhost:9000/feed
  poll_interval: 250ms
dex:
  path: /data/dex.yaml
presets:
  db: /data/presets.db
log:
  level: debug
  format: json
`)
	envFile := writeFile(t, dir, ".env", "BATTLECALC_DEX_PATH=/env/dex.json\nTURSO_DATABASE_URL=libsql://db.example.turso.io\nTURSO_AUTH_TOKEN=secret\n")

	old := EnvPaths
	EnvPaths = []string{filepath.Join(dir, "missing.env"), envFile}
	defer func() { EnvPaths = old }()

	// godotenv.Load sets process variables; clear them afterwards.
	for _, key := range []string{"BATTLECALC_DEX_PATH", "TURSO_DATABASE_URL", "TURSO_AUTH_TOKEN"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	t.Setenv("BATTLECALC_LOG_LEVEL", "warn")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Feed.URL != "ws://localhost:9000/feed" || cfg.Presets.DB != "/data/presets.db" {
		t.Fatalf("expected file values, got %+v", cfg)
	}
	if cfg.Dex.Path != "/env/dex.json" {
		t.Fatalf("expected .env to override the file, got %q", cfg.Dex.Path)
	}
	if cfg.Presets.TursoURL != "libsql://db.example.turso.io" || cfg.Presets.TursoToken != "secret" {
		t.Fatalf("expected turso settings from .env, got %+v", cfg.Presets)
	}
	if cfg.Log.Level != "warn" || cfg.Log.Format != "json" {
		t.Fatalf("expected env level and file format, got %+v", cfg.Log)
	}
	if d, _ := cfg.Feed.Interval(); d != 250*time.Millisecond {
		t.Fatalf("expected 250ms, got %s", d)
	}
}

func TestLoadErrors(t *testing.T) {
	old := EnvPaths
	EnvPaths = nil
	defer func() { EnvPaths = old }()

	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
	bad := writeFile(t, t.TempDir(), "bad.yaml", "feed: [unclosed")
	if _, err := Load(bad); err == nil {
		t.Fatal("expected a parse error")
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"BATTLECALC_FEED_URL":   "wss://host/feed",
		"BATTLECALC_PRESET_DB":  "/tmp/p.db",
		"DATABASE_URL":          "postgres://u:p@localhost/usage",
		"BATTLECALC_LOG_FORMAT": " console ",
	}
	cfg := Default()
	cfg.ApplyEnv(func(k string) string { return env[k] })

	if cfg.Feed.URL != "wss://host/feed" || cfg.Presets.DB != "/tmp/p.db" {
		t.Fatalf("unexpected overlay %+v", cfg)
	}
	if cfg.Presets.DatabaseURL != "postgres://u:p@localhost/usage" || cfg.Log.Format != "console" {
		t.Fatalf("unexpected overlay %+v", cfg)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"http feed url", func(c *Config) { c.Feed.URL = "http://host/feed" }},
		{"ws poll url", func(c *Config) { c.Feed.PollURL = "ws://host/battles" }},
		{"bad interval", func(c *Config) { c.Feed.PollInterval = "soon" }},
		{"negative interval", func(c *Config) { c.Feed.PollInterval = "-1s" }},
		{"turso without token", func(c *Config) { c.Presets.TursoURL = "libsql://x.turso.io" }},
		{"bad dex url", func(c *Config) { c.Dex.URL = "file:///dex.json" }},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
				t.Fatalf("expected ErrInvalid, got %v", err)
			}
		})
	}

	if err := Default().Validate(); err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}
}
