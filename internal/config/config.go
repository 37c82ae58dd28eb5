// Package config loads eventradar settings from a YAML file, the environment
// and command-line flags.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. EVENTRADAR_STORAGE_DSN.
const EnvPrefix = "EVENTRADAR"

// Config is the resolved application configuration.
type Config struct {
	Storage StorageConfig `mapstructure:"storage"`
	Search  SearchConfig  `mapstructure:"search"`
	Fetch   FetchConfig   `mapstructure:"fetch"`
	AI      AIConfig      `mapstructure:"ai"`
	Weather WeatherConfig `mapstructure:"weather"`
	Brand   BrandConfig   `mapstructure:"brand"`
	Cities  CitiesConfig  `mapstructure:"cities"`
	NATS    NATSConfig    `mapstructure:"nats"`
	Server  ServerConfig  `mapstructure:"server"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Log     LogConfig     `mapstructure:"log"`
}

type StorageConfig struct {
	// Driver is sqlite or postgres.
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type SearchConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	Endpoint    string        `mapstructure:"endpoint"`
	NumResults  int           `mapstructure:"num_results"`
	Concurrency int           `mapstructure:"concurrency"`
	QPS         float64       `mapstructure:"qps"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type FetchConfig struct {
	Timeout      time.Duration `mapstructure:"timeout"`
	Fingerprint  string        `mapstructure:"fingerprint"`
	ProxiesFile  string        `mapstructure:"proxies_file"`
	UserAgents   []string      `mapstructure:"user_agents"`
	RPS          float64       `mapstructure:"rps"`
	Jitter       float64       `mapstructure:"jitter"`
	Concurrency  int           `mapstructure:"concurrency"`
	MaxPages     int           `mapstructure:"max_pages"`
	Render       bool          `mapstructure:"render"`
	RenderSettle time.Duration `mapstructure:"render_settle"`
	ChromePath   string        `mapstructure:"chrome_path"`
	Robots       bool          `mapstructure:"respect_robots"`
}

type AIConfig struct {
	// Provider is anthropic, gemini or none.
	Provider     string        `mapstructure:"provider"`
	AnthropicKey string        `mapstructure:"anthropic_key"`
	GeminiKey    string        `mapstructure:"gemini_key"`
	Model        string        `mapstructure:"model"`
	MaxTokens    int           `mapstructure:"max_tokens"`
	Timeout      time.Duration `mapstructure:"timeout"`
	BaseURL      string        `mapstructure:"base_url"`
}

type WeatherConfig struct {
	ForecastURL  string        `mapstructure:"forecast_url"`
	ArchiveURL   string        `mapstructure:"archive_url"`
	HorizonDays  int           `mapstructure:"horizon_days"`
	HistoryYears int           `mapstructure:"history_years"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

type BrandConfig struct {
	// Keywords is a comma-separated list matched against event text.
	Keywords string `mapstructure:"keywords"`
}

type CitiesConfig struct {
	File string `mapstructure:"file"`
}

type NATSConfig struct {
	// URL enables progress publishing when set.
	URL           string `mapstructure:"url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

type MetricsConfig struct {
	// Port serves /metrics for CLI runs. Zero disables it.
	Port int `mapstructure:"port"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

var defaults = map[string]any{
	"storage.driver":         "sqlite",
	"storage.dsn":            "eventradar.db",
	"search.api_key":         "",
	"search.endpoint":        "https://google.serper.dev/search",
	"search.num_results":     20,
	"search.concurrency":     4,
	"search.qps":             5.0,
	"search.timeout":         15 * time.Second,
	"fetch.timeout":          15 * time.Second,
	"fetch.fingerprint":      "chrome",
	"fetch.proxies_file":     "",
	"fetch.user_agents":      []string{},
	"fetch.rps":              2.0,
	"fetch.jitter":           0.2,
	"fetch.concurrency":      4,
	"fetch.max_pages":        12,
	"fetch.render":           true,
	"fetch.render_settle":    3 * time.Second,
	"fetch.chrome_path":      "",
	"fetch.respect_robots":   true,
	"ai.provider":            "anthropic",
	"ai.anthropic_key":       "",
	"ai.gemini_key":          "",
	"ai.model":               "",
	"ai.max_tokens":          4096,
	"ai.timeout":             60 * time.Second,
	"ai.base_url":            "",
	"weather.forecast_url":   "https://api.open-meteo.com/v1/forecast",
	"weather.archive_url":    "https://archive-api.open-meteo.com/v1/archive",
	"weather.horizon_days":   14,
	"weather.history_years":  10,
	"weather.timeout":        30 * time.Second,
	"brand.keywords":         "",
	"cities.file":            "configs/cities.yaml",
	"nats.url":               "",
	"nats.subject_prefix":    "eventradar.progress",
	"server.addr":            ":8080",
	"metrics.port":           0,
	"log.level":              "info",
	"log.format":             "text",
}

// conventionalEnv maps keys to the unprefixed variables most deployments
// already export.
var conventionalEnv = map[string]string{
	"search.api_key":   "SERPER_API_KEY",
	"ai.anthropic_key": "ANTHROPIC_API_KEY",
	"ai.gemini_key":    "GEMINI_API_KEY",
	"brand.keywords":   "OWN_BRAND_KEYWORDS",
	"nats.url":         "NATS_URL",
}

// New returns a viper instance with defaults and environment bindings
// registered. Flags may be bound to it before Load.
func New() *viper.Viper {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for k, env := range conventionalEnv {
		// The prefixed name wins when both are set.
		_ = v.BindEnv(k, EnvPrefix+"_"+strings.ToUpper(strings.ReplaceAll(k, ".", "_")), env)
	}
	return v
}

// Load reads path (or eventradar.yaml in the working directory when path is
// empty) into v and decodes the result. A missing default file is not an error.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("eventradar")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks enumerated settings.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("config: storage.driver must be sqlite or postgres, got %q", c.Storage.Driver)
	}
	if c.Storage.DSN == "" {
		return errors.New("config: storage.dsn is required")
	}
	switch c.AI.Provider {
	case "anthropic", "gemini", "none":
	default:
		return fmt.Errorf("config: ai.provider must be anthropic, gemini or none, got %q", c.AI.Provider)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config: log.format must be text or json, got %q", c.Log.Format)
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// AIKey returns the API key for the selected provider.
func (c *Config) AIKey() string {
	switch c.AI.Provider {
	case "anthropic":
		return c.AI.AnthropicKey
	case "gemini":
		return c.AI.GeminiKey
	}
	return ""
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("config: log.level: %w", err)
	}
	return l, nil
}

// NewLogger builds the process logger described by c.
func (c LogConfig) NewLogger(w io.Writer) *slog.Logger {
	level, err := ParseLevel(c.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
