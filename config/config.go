// Package config provides YAML configuration parsing for feedrelay.
//
// This package enables running the relay as a standalone binary with a
// configuration file, as an alternative to the programmatic SDK approach.
//
// Example configuration:
//
//	feed:
//	  channel_id: ${THINGSPEAK_CHANNEL_ID}
//	  api_key: ${THINGSPEAK_API_KEY}
//
//	poll_interval: 60s
//	min_spacing: 60s
//
//	database:
//	  driver: supabase
//	  url: ${SUPABASE_URL}
//	  api_key: ${SUPABASE_API_KEY}
//	  table: ${SUPABASE_TABLE_NAME:-sensor_data}
//
//	csv:
//	  path: ${CSV_FILE_PATH:-data/readings.csv}
//
//	log:
//	  file: ${LOG_FILE_PATH:-}
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// minPollInterval prevents hammering the feed API with a typo like "60ms".
	minPollInterval = 1 * time.Second

	defaultPollInterval = 60 * time.Second
	defaultMinSpacing   = 60 * time.Second
	defaultCSVPath      = "data/readings.csv"
	defaultClientID     = "feedrelay"
	defaultLogLevel     = "info"

	// DefaultEnvFile is loaded before the YAML file when present.
	DefaultEnvFile = "config/settings.env"

	thingSpeakFeedURL = "https://api.thingspeak.com/channels/%s/feeds.json"
)

// Database drivers accepted by database.driver.
const (
	DriverPostgres = "postgres"
	DriverSupabase = "supabase"
)

// Config is the root configuration structure.
//
// It maps directly to the YAML configuration file structure.
// Use [Load] or [Parse] to create a Config from YAML.
type Config struct {
	// Feed is the ThingSpeak channel to poll.
	Feed FeedConfig `yaml:"feed"`

	// PollInterval is the sleep between two iterations. Defaults to 60s.
	PollInterval Duration `yaml:"poll_interval"`

	// MinSpacing is the minimum time between two accepted readings.
	// Defaults to 60s.
	MinSpacing Duration `yaml:"min_spacing"`

	// Database is the remote database sink. Required.
	Database DatabaseConfig `yaml:"database"`

	// CSV is the local file sink.
	CSV CSVConfig `yaml:"csv"`

	// MQTT is an optional broker sink, enabled when broker is set.
	MQTT MQTTConfig `yaml:"mqtt"`

	// Log configures the process logger.
	Log LogConfig `yaml:"log"`

	// Server configures the optional status server.
	Server ServerConfig `yaml:"server"`
}

// FeedConfig describes the feed endpoint.
type FeedConfig struct {
	// URL is the full feed URL. Takes precedence over ChannelID.
	URL string `yaml:"url"`

	// ChannelID builds the public ThingSpeak feed URL when URL is empty.
	ChannelID string `yaml:"channel_id"`

	// APIKey is the channel read key.
	APIKey string `yaml:"api_key"`

	// Results is the number of entries requested per fetch. Defaults to 1.
	Results int `yaml:"results"`

	// Timeout bounds each fetch. Defaults to 10s.
	Timeout Duration `yaml:"timeout"`
}

// DatabaseConfig describes the database sink.
type DatabaseConfig struct {
	// Driver is "postgres" or "supabase".
	Driver string `yaml:"driver"`

	// DSN is the Postgres connection string (driver: postgres).
	DSN string `yaml:"dsn"`

	// ViaBouncer disables prepared statements for transaction poolers
	// (driver: postgres).
	ViaBouncer bool `yaml:"via_bouncer"`

	// URL is the Supabase project URL (driver: supabase).
	URL string `yaml:"url"`

	// APIKey is the Supabase key (driver: supabase).
	APIKey string `yaml:"api_key"`

	// Table is the target table. Required.
	Table string `yaml:"table"`

	// Timeout bounds each insert. Defaults to 10s.
	Timeout Duration `yaml:"timeout"`
}

// CSVConfig describes the file sink.
type CSVConfig struct {
	// Path is the CSV file. Defaults to data/readings.csv.
	Path string `yaml:"path"`
}

// MQTTConfig describes the optional broker sink.
type MQTTConfig struct {
	Broker   string   `yaml:"broker"`
	Topic    string   `yaml:"topic"`
	ClientID string   `yaml:"client_id"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	Timeout  Duration `yaml:"timeout"`
}

// Enabled reports whether the MQTT sink is configured.
func (m MQTTConfig) Enabled() bool {
	return m.Broker != ""
}

// LogConfig configures logging.
type LogConfig struct {
	// File, when set, receives a copy of every log line.
	File string `yaml:"file"`

	// Level is debug, info, warn or error. Defaults to info.
	Level string `yaml:"level"`
}

// ServerConfig configures the status server.
type ServerConfig struct {
	// Port enables /api/status, /api/sse, /healthz and /metrics.
	// 0 disables the server.
	Port int `yaml:"port"`
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		hasDefault := len(submatches) > 2 && submatches[2] != ""
		defaultVal := ""
		if hasDefault && len(submatches) > 3 {
			defaultVal = submatches[3]
		}

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return defaultVal
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// LoadEnvFile loads KEY=VALUE pairs from a dotenv file into the process
// environment. Variables already set are not overridden.
//
// A missing file is ignored unless required is true.
func LoadEnvFile(path string, required bool) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if !required && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// Load reads and parses a YAML configuration file.
//
// Environment variables in the file are expanded after parsing.
// Returns an error if the file cannot be read, parsed or validated.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data, applies defaults, expands
// environment variables and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := cfg.expand(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// expand replaces environment references in every string setting.
func (c *Config) expand() error {
	fields := []struct {
		key string
		val *string
	}{
		{"feed.url", &c.Feed.URL},
		{"feed.channel_id", &c.Feed.ChannelID},
		{"feed.api_key", &c.Feed.APIKey},
		{"database.driver", &c.Database.Driver},
		{"database.dsn", &c.Database.DSN},
		{"database.url", &c.Database.URL},
		{"database.api_key", &c.Database.APIKey},
		{"database.table", &c.Database.Table},
		{"csv.path", &c.CSV.Path},
		{"mqtt.broker", &c.MQTT.Broker},
		{"mqtt.topic", &c.MQTT.Topic},
		{"mqtt.client_id", &c.MQTT.ClientID},
		{"mqtt.username", &c.MQTT.Username},
		{"mqtt.password", &c.MQTT.Password},
		{"log.file", &c.Log.File},
		{"log.level", &c.Log.Level},
	}

	for _, f := range fields {
		expanded, err := expandEnvVars(*f.val)
		if err != nil {
			return fmt.Errorf("%s: %w", f.key, err)
		}
		*f.val = strings.TrimSpace(expanded)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Feed.URL == "" && c.Feed.ChannelID != "" {
		c.Feed.URL = fmt.Sprintf(thingSpeakFeedURL, url.PathEscape(c.Feed.ChannelID))
	}
	if c.Feed.Results == 0 {
		c.Feed.Results = 1
	}
	if c.PollInterval == 0 {
		c.PollInterval = Duration(defaultPollInterval)
	}
	if c.MinSpacing == 0 {
		c.MinSpacing = Duration(defaultMinSpacing)
	}
	if c.CSV.Path == "" {
		c.CSV.Path = defaultCSVPath
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = defaultClientID
	}
	c.Database.Driver = strings.ToLower(c.Database.Driver)
	c.Log.Level = strings.ToLower(c.Log.Level)
	if c.Log.Level == "" {
		c.Log.Level = defaultLogLevel
	}
}

func (c *Config) validate() error {
	if c.Feed.URL == "" {
		return errors.New("feed.url or feed.channel_id is required")
	}
	if err := validateHTTPURL(c.Feed.URL); err != nil {
		return fmt.Errorf("feed.url: %w", err)
	}
	if c.Feed.Results < 1 || c.Feed.Results > 8000 {
		return fmt.Errorf("feed.results must be between 1 and 8000, got %d", c.Feed.Results)
	}
	if err := validateTimeout("feed.timeout", c.Feed.Timeout); err != nil {
		return err
	}

	if c.PollInterval.Duration() < minPollInterval {
		return fmt.Errorf("poll_interval must be at least %s, got %s", minPollInterval, c.PollInterval.Duration())
	}
	if c.MinSpacing.Duration() < 0 {
		return fmt.Errorf("min_spacing cannot be negative, got %s", c.MinSpacing.Duration())
	}

	if err := c.Database.validate(); err != nil {
		return err
	}

	if c.MQTT.Enabled() {
		if c.MQTT.Topic == "" {
			return errors.New("mqtt.topic is required when mqtt.broker is set")
		}
		if err := validateTimeout("mqtt.timeout", c.MQTT.Timeout); err != nil {
			return err
		}
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 0 and 65535, got %d", c.Server.Port)
	}

	return nil
}

func (d *DatabaseConfig) validate() error {
	switch d.Driver {
	case DriverPostgres:
		if d.DSN == "" {
			return errors.New("database.dsn is required for driver postgres")
		}
	case DriverSupabase:
		if d.URL == "" {
			return errors.New("database.url is required for driver supabase")
		}
		if err := validateHTTPURL(d.URL); err != nil {
			return fmt.Errorf("database.url: %w", err)
		}
		if d.APIKey == "" {
			return errors.New("database.api_key is required for driver supabase")
		}
	case "":
		return errors.New("database.driver is required (postgres or supabase)")
	default:
		return fmt.Errorf("database.driver must be postgres or supabase, got %q", d.Driver)
	}

	if d.Table == "" {
		return errors.New("database.table is required")
	}
	return validateTimeout("database.timeout", d.Timeout)
}

func validateHTTPURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if parsed.Scheme == "" {
		return errors.New("url must have a scheme (http:// or https://)")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("url scheme must be http or https, got %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return errors.New("url must have a host")
	}
	return nil
}

func validateTimeout(key string, d Duration) error {
	if d == 0 {
		return nil
	}
	if d.Duration() < time.Second {
		return fmt.Errorf("%s must be at least 1s if specified, got %s", key, d.Duration())
	}
	return nil
}
