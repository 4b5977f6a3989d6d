package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, doc string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
database:
  url: postgres://localhost/leadscore
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Host != "localhost" || cfg.Server.Port != 8080 {
		t.Errorf("server defaults = %s:%d", cfg.Server.Host, cfg.Server.Port)
	}
	if cfg.Database.MaxOpenConns != 25 || cfg.Database.MaxIdleConns != 5 {
		t.Errorf("pool defaults = %d/%d", cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)
	}
	if cfg.Scoring.WeightsPath != "weights.yaml" {
		t.Errorf("weights path default = %q", cfg.Scoring.WeightsPath)
	}
	if cfg.Scoring.JitterDays != 3 {
		t.Errorf("jitter default = %d", cfg.Scoring.JitterDays)
	}
	if cfg.Scoring.SurgeMaxIncrease != 0.25 {
		t.Errorf("surge default = %f", cfg.Scoring.SurgeMaxIncrease)
	}
	if cfg.Scheduler.Interval() != 6*time.Hour {
		t.Errorf("scheduler interval = %v", cfg.Scheduler.Interval())
	}
	if cfg.Redis.CacheTTL() != 720*time.Minute {
		t.Errorf("cache ttl = %v", cfg.Redis.CacheTTL())
	}
}

func TestLoadExplicitValues(t *testing.T) {
	path := writeConfig(t, `
server:
  host: 0.0.0.0
  port: 9090
redis:
  addr: redis:6379
  cache_ttl_minutes: 60
scoring:
  weights_path: /etc/leadscore/weights.yaml
  buckets_path: /etc/leadscore/buckets.yaml
  workers: 8
  jitter_days: 5
scheduler:
  interval_hours: 12
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.Redis.Addr != "redis:6379" || cfg.Redis.CacheTTL() != time.Hour {
		t.Errorf("redis = %+v", cfg.Redis)
	}
	if cfg.Scoring.Workers != 8 || cfg.Scoring.JitterDays != 5 {
		t.Errorf("scoring = %+v", cfg.Scoring)
	}
	if cfg.Scheduler.Interval() != 12*time.Hour {
		t.Errorf("interval = %v", cfg.Scheduler.Interval())
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected an error for a missing config file")
	}
}

func TestLoadFromEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
database:
  url: postgres://file-value/leadscore
scoring:
  weights_path: from-file.yaml
`)

	t.Setenv("DATABASE_URL", "postgres://env-value/leadscore")
	t.Setenv("REDIS_ADDR", "envredis:6379")
	t.Setenv("WEIGHTS_PATH", "from-env.yaml")

	cfg, err := LoadFromEnv(path)
	if err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}

	if cfg.Database.URL != "postgres://env-value/leadscore" {
		t.Errorf("database url = %q", cfg.Database.URL)
	}
	if cfg.Redis.Addr != "envredis:6379" {
		t.Errorf("redis addr = %q", cfg.Redis.Addr)
	}
	if cfg.Scoring.WeightsPath != "from-env.yaml" {
		t.Errorf("weights path = %q", cfg.Scoring.WeightsPath)
	}
}
