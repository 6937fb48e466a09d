package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// ErrMissingDatabaseURL is returned by Validate when no database is
// configured and the in-memory store is not selected.
var ErrMissingDatabaseURL = errors.New("DATABASE_URL is required (or run with -memory)")

// Defaults applied when a setting is absent or invalid.
const (
	DefaultServerPort      = "8080"
	DefaultUserAgent       = "tvdeck/1.0"
	DefaultFetchTimeout    = 30 * time.Second
	DefaultHealthTimeout   = 10 * time.Second
	DefaultHealthBatchSize = 20
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "json"
)

// Config holds application configuration.
type Config struct {
	DatabaseURL string `yaml:"database_url" env:"DATABASE_URL"`
	RedisURL    string `yaml:"redis_url" env:"REDIS_URL"`
	ServerPort  string `yaml:"server_port" env:"SERVER_PORT"`

	// Playlist fetching.
	UserAgent string        `yaml:"user_agent" env:"FETCHER_USER_AGENT"`
	Timeout   time.Duration `yaml:"timeout" env:"FETCHER_TIMEOUT"`

	// Health checks. HealthInterval of zero disables scheduled runs.
	HealthTimeout   time.Duration `yaml:"health_timeout" env:"HEALTH_TIMEOUT"`
	HealthBatchSize int           `yaml:"health_batch_size" env:"HEALTH_BATCH_SIZE"`
	HealthInterval  time.Duration `yaml:"health_interval" env:"HEALTH_INTERVAL"`

	LogLevel  string `yaml:"log_level" env:"LOG_LEVEL"`
	LogFormat string `yaml:"log_format" env:"LOG_FORMAT"`

	// Memory selects the in-process store instead of Postgres.
	Memory bool `yaml:"memory" env:"MEMORY_STORE"`
}

// Load builds config from environment variables.
// If DATABASE_URL is not set, Load tries to load .env.local and .env from
// the current directory and the executable's directory first.
// Call Validate once command-line overrides have been applied.
func Load() *Config {
	if os.Getenv("DATABASE_URL") == "" {
		loadEnvFiles()
	}
	c := &Config{
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		RedisURL:        os.Getenv("REDIS_URL"),
		ServerPort:      os.Getenv("SERVER_PORT"),
		UserAgent:       os.Getenv("FETCHER_USER_AGENT"),
		Timeout:         envDuration("FETCHER_TIMEOUT"),
		HealthTimeout:   envDuration("HEALTH_TIMEOUT"),
		HealthBatchSize: envInt("HEALTH_BATCH_SIZE"),
		HealthInterval:  envDuration("HEALTH_INTERVAL"),
		LogLevel:        os.Getenv("LOG_LEVEL"),
		LogFormat:       os.Getenv("LOG_FORMAT"),
		Memory:          envBool("MEMORY_STORE"),
	}
	c.applyDefaults()
	return c
}

// Validate reports configuration that cannot start the service.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" && !c.Memory {
		return ErrMissingDatabaseURL
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.ServerPort == "" {
		c.ServerPort = DefaultServerPort
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultFetchTimeout
	}
	if c.HealthTimeout <= 0 {
		c.HealthTimeout = DefaultHealthTimeout
	}
	if c.HealthBatchSize <= 0 {
		c.HealthBatchSize = DefaultHealthBatchSize
	}
	if c.HealthInterval < 0 {
		c.HealthInterval = 0
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = DefaultLogFormat
	}
}

// envDuration returns zero for unset or unparsable values so that the
// default applies.
func envDuration(key string) time.Duration {
	d, _ := time.ParseDuration(os.Getenv(key))
	return d
}

func envInt(key string) int {
	n, _ := strconv.Atoi(os.Getenv(key))
	return n
}

func envBool(key string) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes":
		return true
	}
	return false
}
