package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var ErrInvalid = errors.New("config: invalid value")

// EnvPaths are the .env locations tried in order; the first one found wins.
var EnvPaths = []string{".env", "../.env", "../../.env"}

// Config holds everything the binaries need to start.
type Config struct {
	Feed    FeedConfig    `yaml:"feed"`
	Dex     DexConfig     `yaml:"dex"`
	Presets PresetsConfig `yaml:"presets"`
	Log     LogConfig     `yaml:"log"`
}

type FeedConfig struct {
	// URL is the host's websocket endpoint.
	URL string `yaml:"url"`
	// PollURL, when set, is polled over HTTP instead of using the websocket.
	PollURL      string `yaml:"poll_url"`
	PollInterval string `yaml:"poll_interval"`
}

// Interval parses PollInterval.
func (f FeedConfig) Interval() (time.Duration, error) {
	if f.PollInterval == "" {
		return time.Second, nil
	}
	d, err := time.ParseDuration(f.PollInterval)
	if err != nil {
		return 0, fmt.Errorf("%v: %w", err, ErrInvalid)
	}
	if d <= 0 {
		return 0, fmt.Errorf("interval must be positive: %w", ErrInvalid)
	}
	return d, nil
}

type DexConfig struct {
	// Path is a YAML or JSON data file; empty uses the built-in seed.
	Path string `yaml:"path"`
	URL  string `yaml:"url"`
}

type PresetsConfig struct {
	DB          string `yaml:"db"`
	ManifestURL string `yaml:"manifest_url"`
	TursoURL    string `yaml:"turso_url"`
	TursoToken  string `yaml:"turso_token"`
	DatabaseURL string `yaml:"database_url"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when nothing else is set.
func Default() Config {
	return Config{
		Feed: FeedConfig{
			URL:          "ws://127.0.0.1:8787/battles",
			PollInterval: "1s",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if
// any), then environment variables, including those from the first .env
// file found.
func Load(path string) (Config, error) {
	LoadEnv()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}
	cfg.ApplyEnv(os.Getenv)
	cfg.fillDefaults()

	return cfg, cfg.Validate()
}

// LoadEnv loads the first .env file found in EnvPaths and returns its path.
// Variables already set in the environment are kept.
func LoadEnv() string {
	for _, path := range EnvPaths {
		if err := godotenv.Load(path); err == nil {
			return path
		}
	}
	return ""
}

// ApplyEnv overlays environment variables read through getenv.
func (c *Config) ApplyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&c.Feed.URL, "BATTLECALC_FEED_URL")
	set(&c.Feed.PollURL, "BATTLECALC_POLL_URL")
	set(&c.Dex.Path, "BATTLECALC_DEX_PATH")
	set(&c.Dex.URL, "BATTLECALC_DEX_URL")
	set(&c.Presets.DB, "BATTLECALC_PRESET_DB")
	set(&c.Presets.ManifestURL, "BATTLECALC_MANIFEST_URL")
	set(&c.Presets.TursoURL, "TURSO_DATABASE_URL")
	set(&c.Presets.TursoToken, "TURSO_AUTH_TOKEN")
	set(&c.Presets.DatabaseURL, "DATABASE_URL")
	set(&c.Log.Level, "BATTLECALC_LOG_LEVEL")
	set(&c.Log.Format, "BATTLECALC_LOG_FORMAT")
}

func (c *Config) fillDefaults() {
	d := Default()
	if c.Feed.URL == "" && c.Feed.PollURL == "" {
		c.Feed.URL = d.Feed.URL
	}
	if c.Feed.PollInterval == "" {
		c.Feed.PollInterval = d.Feed.PollInterval
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}
}

// Validate reports the first malformed value.
func (c Config) Validate() error {
	if c.Feed.URL != "" {
		if err := checkURL(c.Feed.URL, "ws", "wss"); err != nil {
			return fmt.Errorf("feed.url: %w", err)
		}
	}
	if c.Feed.PollURL != "" {
		if err := checkURL(c.Feed.PollURL, "http", "https"); err != nil {
			return fmt.Errorf("feed.poll_url: %w", err)
		}
	}
	if _, err := c.Feed.Interval(); err != nil {
		return fmt.Errorf("feed.poll_interval: %w", err)
	}
	if c.Dex.URL != "" {
		if err := checkURL(c.Dex.URL, "http", "https"); err != nil {
			return fmt.Errorf("dex.url: %w", err)
		}
	}
	if c.Presets.TursoURL != "" && c.Presets.TursoToken == "" {
		return fmt.Errorf("presets.turso_token is required with a turso url: %w", ErrInvalid)
	}
	switch strings.ToLower(c.Log.Level) {
	case "trace", "debug", "info", "warn", "error", "disabled":
	default:
		return fmt.Errorf("log.level %q: %w", c.Log.Level, ErrInvalid)
	}
	switch strings.ToLower(c.Log.Format) {
	case "console", "json":
	default:
		return fmt.Errorf("log.format %q: %w", c.Log.Format, ErrInvalid)
	}
	return nil
}

func checkURL(raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%v: %w", err, ErrInvalid)
	}
	for _, s := range schemes {
		if u.Scheme == s && u.Host != "" {
			return nil
		}
	}
	return fmt.Errorf("%q needs a %s url: %w", raw, strings.Join(schemes, "/"), ErrInvalid)
}
