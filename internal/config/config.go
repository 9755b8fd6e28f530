package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every key when reading environment variables,
// e.g. http_addr is read from PROTESTMAP_HTTP_ADDR.
const EnvPrefix = "PROTESTMAP"

// Config holds all service settings.
type Config struct {
	HTTPAddr        string
	DataFile        string
	LogLevel        string
	LogFormat       string
	Debug           bool
	ShutdownTimeout time.Duration

	// HTTP surface.
	TemplateDir        string // when set with Debug, the page is re-read from here per request
	CORSAllowedOrigins []string

	// Animation and sessions.
	PlayInterval       time.Duration
	SessionIdleTimeout time.Duration
	MaxSessions        int

	// Mapbox geocoding for rows without coordinates.
	MapboxToken     string
	MapboxEnabled   bool
	MapboxTimeout   time.Duration
	MapboxCacheSize int

	// Kafka sink for session transitions.
	KafkaBrokers []string
	KafkaTopic   string
	KafkaEnabled bool
}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"addr":  "http_addr",
	"data":  "data_file",
	"debug": "debug",
}

// Flags returns the command-line flags understood by Load.
func Flags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("protestmap", pflag.ContinueOnError)
	fs.String("config", "", "path to a config file (yaml, toml or json)")
	fs.String("addr", "", "HTTP listen address")
	fs.String("data", "", "path to the protest dataset CSV")
	fs.Bool("debug", false, "debug logging and template reload")
	return fs
}

// Load reads configuration from defaults, an optional config file, environment
// variables, and changed flags, in increasing order of precedence.
// path may be empty and flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	// No defaults: their presence decides whether the feature was set explicitly.
	_ = v.BindEnv("mapbox_enabled")
	_ = v.BindEnv("kafka_enabled")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	cfg := &Config{
		HTTPAddr:        v.GetString("http_addr"),
		DataFile:        v.GetString("data_file"),
		LogLevel:        v.GetString("log_level"),
		LogFormat:       v.GetString("log_format"),
		Debug:           v.GetBool("debug"),
		MaxSessions:     v.GetInt("max_sessions"),
		MapboxToken:     v.GetString("mapbox_token"),
		MapboxCacheSize: v.GetInt("mapbox_cache_size"),
		KafkaBrokers:    parseList(v.Get("kafka_brokers")),
		KafkaTopic:      v.GetString("kafka_topic"),
	}
	cfg.TemplateDir = v.GetString("template_dir")
	cfg.CORSAllowedOrigins = parseList(v.Get("cors_allowed_origins"))
	if cfg.Debug {
		cfg.LogLevel = "debug"
	}

	var err error
	if cfg.ShutdownTimeout, err = parseDuration(v, "shutdown_timeout"); err != nil {
		return nil, err
	}
	if cfg.PlayInterval, err = parseDuration(v, "play_interval"); err != nil {
		return nil, err
	}
	if cfg.SessionIdleTimeout, err = parseDuration(v, "session_idle_timeout"); err != nil {
		return nil, err
	}
	if cfg.MapboxTimeout, err = parseDuration(v, "mapbox_timeout"); err != nil {
		return nil, err
	}

	cfg.MapboxEnabled = cfg.MapboxToken != ""
	if v.IsSet("mapbox_enabled") {
		cfg.MapboxEnabled = v.GetBool("mapbox_enabled")
	}
	cfg.KafkaEnabled = len(cfg.KafkaBrokers) > 0
	if v.IsSet("kafka_enabled") {
		cfg.KafkaEnabled = v.GetBool("kafka_enabled")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http_addr", ":8050")
	v.SetDefault("data_file", "data/selected_data.csv")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("debug", false)
	v.SetDefault("shutdown_timeout", "10s")
	v.SetDefault("template_dir", "")
	v.SetDefault("cors_allowed_origins", "*")

	v.SetDefault("play_interval", "1s")
	v.SetDefault("session_idle_timeout", "30m")
	v.SetDefault("max_sessions", 1000)

	v.SetDefault("mapbox_token", "")
	v.SetDefault("mapbox_timeout", "5s")
	v.SetDefault("mapbox_cache_size", 1000)

	v.SetDefault("kafka_brokers", "")
	v.SetDefault("kafka_topic", "protest-map-transitions")
}

// Validate checks that all configuration values are usable.
func (c *Config) Validate() error {
	if c.HTTPAddr == "" {
		return errors.New(envName("http_addr") + " is required")
	}
	if c.DataFile == "" {
		return errors.New(envName("data_file") + " is required")
	}
	if c.MaxSessions <= 0 {
		return errors.New(envName("max_sessions") + " must be a positive integer")
	}
	if c.MapboxCacheSize <= 0 {
		return errors.New(envName("mapbox_cache_size") + " must be a positive integer")
	}
	if c.MapboxEnabled && c.MapboxToken == "" {
		return fmt.Errorf("%s is true but %s is not set", envName("mapbox_enabled"), envName("mapbox_token"))
	}
	if c.KafkaEnabled && len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("%s is true but %s is not set", envName("kafka_enabled"), envName("kafka_brokers"))
	}
	if c.KafkaEnabled && c.KafkaTopic == "" {
		return errors.New(envName("kafka_topic") + " is required when Kafka is enabled")
	}
	return nil
}

func parseDuration(v *viper.Viper, key string) (time.Duration, error) {
	d, err := time.ParseDuration(v.GetString(key))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive duration", envName(key))
	}
	return d, nil
}

// parseList accepts a comma-separated string (env vars, flags) or a list
// (config files) and drops blank entries.
func parseList(raw any) []string {
	var parts []string
	switch val := raw.(type) {
	case string:
		parts = strings.Split(val, ",")
	case []string:
		parts = val
	case []any:
		for _, p := range val {
			parts = append(parts, fmt.Sprint(p))
		}
	}
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(key)
}
