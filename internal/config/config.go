package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the runtime configuration for the application.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
	Costing  CostingConfig  `yaml:"costing"`
	Events   EventsConfig   `yaml:"events"`
}

// ServerConfig configures the HTTP server runtime behavior.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// DatabaseConfig contains the database connection settings.
type DatabaseConfig struct {
	URL             string        `yaml:"url"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
	UseMock         bool          `yaml:"use_mock"`
}

// LoggingConfig controls the global logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// CostingConfig tunes recompute retries and fan-out.
type CostingConfig struct {
	MaxAttempts       int           `yaml:"max_attempts"`
	RetryBackoff      time.Duration `yaml:"retry_backoff"`
	Concurrency       int           `yaml:"concurrency"`
	PrepTimeout       time.Duration `yaml:"prep_timeout"`
	ReconcileInterval time.Duration `yaml:"reconcile_interval"`
}

// EventsConfig controls the PostgreSQL change-notification listener.
type EventsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Channel string `yaml:"channel"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		Server:  ServerConfig{Addr: ":8080"},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Costing: CostingConfig{
			MaxAttempts:       3,
			RetryBackoff:      50 * time.Millisecond,
			Concurrency:       4,
			PrepTimeout:       10 * time.Second,
			ReconcileInterval: 5 * time.Minute,
		},
		Events: EventsConfig{Channel: "ingredient_cost_changed"},
	}
}

// Load builds a Config from defaults, an optional YAML file named by
// CONFIG_FILE, and the environment, in increasing order of precedence.
func Load() (Config, error) {
	cfg := Defaults()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	cfg.Server = ServerConfig{
		Addr: firstNonEmpty(
			os.Getenv("SERVER_ADDR"),
			os.Getenv("ADDR"),
			cfg.Server.Addr,
		),
	}

	cfg.Database = DatabaseConfig{
		URL: firstNonEmpty(
			os.Getenv("DATABASE_URL"),
			os.Getenv("DB_URL"),
			cfg.Database.URL,
		),
		MaxIdleConns:    parseIntWithDefault(os.Getenv("DATABASE_MAX_IDLE_CONNS"), cfg.Database.MaxIdleConns),
		MaxOpenConns:    parseIntWithDefault(os.Getenv("DATABASE_MAX_OPEN_CONNS"), cfg.Database.MaxOpenConns),
		ConnMaxLifetime: parseDurationWithDefault(os.Getenv("DATABASE_CONN_MAX_LIFETIME"), cfg.Database.ConnMaxLifetime),
		ConnMaxIdleTime: parseDurationWithDefault(os.Getenv("DATABASE_CONN_MAX_IDLE_TIME"), cfg.Database.ConnMaxIdleTime),
		UseMock:         parseBoolWithDefault(os.Getenv("DATABASE_USE_MOCK"), cfg.Database.UseMock),
	}

	cfg.Logging = LoggingConfig{
		Level:  firstNonEmpty(os.Getenv("LOG_LEVEL"), cfg.Logging.Level),
		Format: firstNonEmpty(os.Getenv("LOG_FORMAT"), cfg.Logging.Format),
	}

	cfg.Costing = CostingConfig{
		MaxAttempts:       parseIntWithDefault(os.Getenv("COSTING_MAX_ATTEMPTS"), cfg.Costing.MaxAttempts),
		RetryBackoff:      parseDurationWithDefault(os.Getenv("COSTING_RETRY_BACKOFF"), cfg.Costing.RetryBackoff),
		Concurrency:       parseIntWithDefault(os.Getenv("COSTING_CONCURRENCY"), cfg.Costing.Concurrency),
		PrepTimeout:       parseDurationWithDefault(os.Getenv("COSTING_PREP_TIMEOUT"), cfg.Costing.PrepTimeout),
		ReconcileInterval: parseDurationWithDefault(os.Getenv("COSTING_RECONCILE_INTERVAL"), cfg.Costing.ReconcileInterval),
	}

	cfg.Events = EventsConfig{
		Enabled: parseBoolWithDefault(os.Getenv("EVENTS_ENABLED"), cfg.Events.Enabled),
		Channel: firstNonEmpty(os.Getenv("EVENTS_CHANNEL"), cfg.Events.Channel),
	}

	if strings.TrimSpace(cfg.Server.Addr) == "" {
		return Config{}, fmt.Errorf("server address must not be empty")
	}
	if cfg.Costing.MaxAttempts < 1 {
		return Config{}, fmt.Errorf("costing max attempts must be at least 1, got %d", cfg.Costing.MaxAttempts)
	}
	if cfg.Costing.Concurrency < 1 {
		return Config{}, fmt.Errorf("costing concurrency must be at least 1, got %d", cfg.Costing.Concurrency)
	}

	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

func parseIntWithDefault(value string, def int) int {
	if strings.TrimSpace(value) == "" {
		return def
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return def
	}
	return parsed
}

func parseDurationWithDefault(value string, def time.Duration) time.Duration {
	if strings.TrimSpace(value) == "" {
		return def
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return def
	}
	return parsed
}

func parseBoolWithDefault(value string, def bool) bool {
	if strings.TrimSpace(value) == "" {
		return def
	}
	parsed, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return def
	}
	return parsed
}
