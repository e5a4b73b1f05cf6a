// Package config loads service configuration: defaults, then an optional
// YAML file, then environment overrides, validated before use.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Manu-world/flight-tracking-service/errors"
)

// EnvPrefix namespaces every environment override.
const EnvPrefix = "FLIGHTSTREAM"

// Duration decodes YAML durations given either as Go duration strings
// ("30s", "2m") or as bare numbers of seconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		if secs, err := strconv.ParseFloat(s, 64); err == nil {
			*d = Duration(time.Duration(secs * float64(time.Second)))
			return nil
		}
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var secs float64
	if err := value.Decode(&secs); err == nil {
		*d = Duration(time.Duration(secs * float64(time.Second)))
		return nil
	}
	return fmt.Errorf("duration must be a string or number")
}

// Std returns the standard library duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the complete service configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Positions  PositionsConfig  `yaml:"positions"`
	FlightInfo FlightInfoConfig `yaml:"flight_info"`
	Auth       AuthConfig       `yaml:"auth"`
	NATS       NATSConfig       `yaml:"nats"`
	Stream     StreamConfig     `yaml:"stream"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host            string   `yaml:"host"`
	Port            int      `yaml:"port"`
	CORSOrigins     []string `yaml:"cors_origins"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// PositionsConfig holds the position feed settings.
type PositionsConfig struct {
	BaseURL    string `yaml:"base_url"`
	APIKey     string `yaml:"api_key"`
	APIVersion string `yaml:"api_version"`
}

// FlightInfoConfig holds the flight metadata feed settings.
type FlightInfoConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
}

// AuthConfig holds the identity service settings.
type AuthConfig struct {
	VerifyURL string `yaml:"verify_url"`
}

// NATSConfig holds the history store connection settings. History is
// optional: with Enabled false the service runs without persistence.
type NATSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	URL      string `yaml:"url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Token    string `yaml:"token"`
	Bucket   string `yaml:"bucket"`
}

// StreamConfig holds the coordinator intervals.
type StreamConfig struct {
	PositionInterval Duration `yaml:"position_interval"`
	InfoInterval     Duration `yaml:"info_interval"`
	ErrorPause       Duration `yaml:"error_pause"`
}

// RateLimitConfig bounds outbound upstream calls.
type RateLimitConfig struct {
	Requests int      `yaml:"requests"`
	Window   Duration `yaml:"window"`
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "text"
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8000,
			CORSOrigins:     []string{"*"},
			ShutdownTimeout: Duration(15 * time.Second),
		},
		Positions: PositionsConfig{
			BaseURL:    "https://fr24api.flightradar24.com/api",
			APIVersion: "v1",
		},
		FlightInfo: FlightInfoConfig{
			Endpoint: "https://api.aviationstack.com/v1/flights",
		},
		Auth: AuthConfig{
			VerifyURL: "http://localhost:8080/api/v1/auth/verify",
		},
		NATS: NATSConfig{
			URL:    "nats://localhost:4222",
			Bucket: "flight-search-history",
		},
		Stream: StreamConfig{
			PositionInterval: Duration(30 * time.Second),
			InfoInterval:     Duration(120 * time.Second),
			ErrorPause:       Duration(5 * time.Second),
		},
		RateLimit: RateLimitConfig{
			Requests: 100,
			Window:   Duration(time.Minute),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path when
// non-empty, and environment overrides, then validates it.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.WrapFatal(err, "config", "Load", "read config file")
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.WrapFatal(err, "config", "Load", "decode config file")
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	setString := func(key string, dst *string) {
		if v := os.Getenv(EnvPrefix + "_" + key); v != "" {
			*dst = v
		}
	}

	setString("SERVER_HOST", &cfg.Server.Host)
	if v := os.Getenv(EnvPrefix + "_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv(EnvPrefix + "_CORS_ORIGINS"); v != "" {
		cfg.Server.CORSOrigins = strings.Split(v, ",")
	}

	setString("POSITIONS_BASE_URL", &cfg.Positions.BaseURL)
	setString("POSITIONS_API_KEY", &cfg.Positions.APIKey)
	setString("FLIGHT_INFO_ENDPOINT", &cfg.FlightInfo.Endpoint)
	setString("FLIGHT_INFO_ACCESS_KEY", &cfg.FlightInfo.AccessKey)
	setString("AUTH_VERIFY_URL", &cfg.Auth.VerifyURL)

	if v := os.Getenv(EnvPrefix + "_NATS_ENABLED"); v != "" {
		cfg.NATS.Enabled = v == "true" || v == "1"
	}
	setString("NATS_URL", &cfg.NATS.URL)
	setString("NATS_USERNAME", &cfg.NATS.Username)
	setString("NATS_PASSWORD", &cfg.NATS.Password)
	setString("NATS_TOKEN", &cfg.NATS.Token)
	setString("NATS_BUCKET", &cfg.NATS.Bucket)

	setString("LOG_LEVEL", &cfg.Logging.Level)
	setString("LOG_FORMAT", &cfg.Logging.Format)
}

// Validate checks the configuration for use.
func (c *Config) Validate() error {
	fail := func(msg string) error {
		return errors.WrapFatal(
			fmt.Errorf("%w: %s", errors.ErrInvalidConfig, msg),
			"config", "Validate", "validate configuration")
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fail(fmt.Sprintf("server port %d out of range", c.Server.Port))
	}
	if c.Positions.BaseURL == "" {
		return fail("positions base_url is required")
	}
	if c.FlightInfo.Endpoint == "" {
		return fail("flight_info endpoint is required")
	}
	if c.Auth.VerifyURL == "" {
		return fail("auth verify_url is required")
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		return fail("nats url is required when history is enabled")
	}
	if c.NATS.Enabled && c.NATS.Bucket == "" {
		return fail("nats bucket is required when history is enabled")
	}
	if c.Stream.PositionInterval.Std() <= 0 || c.Stream.InfoInterval.Std() <= 0 {
		return fail("stream intervals must be positive")
	}
	if c.RateLimit.Requests <= 0 || c.RateLimit.Window.Std() <= 0 {
		return fail("rate limit requests and window must be positive")
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fail(fmt.Sprintf("unknown log format %q", c.Logging.Format))
	}
	return nil
}

// LogLevel parses the configured level, defaulting to info.
func (c *Config) LogLevel() slog.Level {
	switch strings.ToLower(c.Logging.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
