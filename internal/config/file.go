package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig mirrors Config with durations kept as strings ("30s").
type fileConfig struct {
	DatabaseURL     string `yaml:"database_url"`
	RedisURL        string `yaml:"redis_url"`
	ServerPort      string `yaml:"server_port"`
	UserAgent       string `yaml:"user_agent"`
	Timeout         string `yaml:"timeout"`
	HealthTimeout   string `yaml:"health_timeout"`
	HealthBatchSize int    `yaml:"health_batch_size"`
	HealthInterval  string `yaml:"health_interval"`
	LogLevel        string `yaml:"log_level"`
	LogFormat       string `yaml:"log_format"`
	Memory          bool   `yaml:"memory"`
}

// LoadFromFile loads config from a YAML file. Unlike Load, malformed
// durations are reported rather than defaulted.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f fileConfig
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	c := &Config{
		DatabaseURL:     f.DatabaseURL,
		RedisURL:        f.RedisURL,
		ServerPort:      f.ServerPort,
		UserAgent:       f.UserAgent,
		HealthBatchSize: f.HealthBatchSize,
		LogLevel:        f.LogLevel,
		LogFormat:       f.LogFormat,
		Memory:          f.Memory,
	}
	for _, d := range []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"timeout", f.Timeout, &c.Timeout},
		{"health_timeout", f.HealthTimeout, &c.HealthTimeout},
		{"health_interval", f.HealthInterval, &c.HealthInterval},
	} {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", d.name, err)
		}
		*d.dst = v
	}
	c.applyDefaults()
	return c, nil
}
