// Package config loads application configuration from a YAML file with
// environment-variable overrides for deploy-time values.
package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the scoring engine.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Scoring   ScoringConfig   `yaml:"scoring"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig holds the Postgres connection settings.
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// RedisConfig holds the optional Redis settings for the run lock and the
// latest-score cache. An empty Addr disables Redis; the lock falls back to
// a Postgres advisory lock and the cache is skipped.
type RedisConfig struct {
	Addr         string `yaml:"addr"`
	Password     string `yaml:"password"`
	DB           int    `yaml:"db"`
	CacheTTLMins int    `yaml:"cache_ttl_minutes"`
}

// CacheTTL returns the latest-score cache TTL as a duration.
func (c RedisConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLMins) * time.Minute
}

// ScoringConfig holds run-level parameters.
type ScoringConfig struct {
	// WeightsPath points at the versioned weights YAML document.
	WeightsPath string `yaml:"weights_path"`
	// BucketsPath points at the bucket definition YAML document. Empty
	// uses the built-in recommended set.
	BucketsPath string `yaml:"buckets_path"`
	// Workers bounds the scoring pool; 0 uses all cores.
	Workers int `yaml:"workers"`
	// JitterDays spreads bucket boundaries per contact; 0 disables.
	JitterDays int `yaml:"jitter_days"`
	// SurgeMaxIncrease is the allowed fractional bucket growth under a
	// synchronized timestamp reset, used by config validation.
	SurgeMaxIncrease float64 `yaml:"surge_max_increase"`
}

// SchedulerConfig holds the batch-loop settings for cmd/scorer.
type SchedulerConfig struct {
	IntervalHours int `yaml:"interval_hours"`
}

// Interval returns the run interval as a duration.
func (c SchedulerConfig) Interval() time.Duration {
	return time.Duration(c.IntervalHours) * time.Hour
}

// Load reads and parses the configuration file, applying defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Redis.CacheTTLMins == 0 {
		cfg.Redis.CacheTTLMins = 720
	}
	if cfg.Scoring.WeightsPath == "" {
		cfg.Scoring.WeightsPath = "weights.yaml"
	}
	if cfg.Scoring.JitterDays == 0 {
		cfg.Scoring.JitterDays = 3
	}
	if cfg.Scoring.SurgeMaxIncrease == 0 {
		cfg.Scoring.SurgeMaxIncrease = 0.25
	}
	if cfg.Scheduler.IntervalHours == 0 {
		cfg.Scheduler.IntervalHours = 6
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides. A
// .env file (if present) is read first, so secrets can live in .env
// locally and in real env vars in production.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("WEIGHTS_PATH"); v != "" {
		cfg.Scoring.WeightsPath = v
	}
	if v := os.Getenv("BUCKETS_PATH"); v != "" {
		cfg.Scoring.BucketsPath = v
	}

	return cfg, nil
}
