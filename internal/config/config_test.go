package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
web:
  port: 9091
  api_base: "http://api.internal/api/v1"
redis:
  addr: "redis:6379"
kafka:
  enabled: true
  topic: "venue-results"
leaderboard:
  country_size: 50
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("server port = %d", cfg.Server.Port)
	}
	if cfg.Web.APIBase != "http://api.internal/api/v1" {
		t.Errorf("api base = %q", cfg.Web.APIBase)
	}
	if !cfg.Kafka.Enabled || cfg.Kafka.Topic != "venue-results" {
		t.Errorf("kafka = %+v", cfg.Kafka)
	}
	if cfg.Leaderboard.CountrySize != 50 {
		t.Errorf("country size = %d", cfg.Leaderboard.CountrySize)
	}

	// Unset fields pick up defaults.
	if cfg.Leaderboard.GlobalSize != 20 {
		t.Errorf("global size = %d, want default 20", cfg.Leaderboard.GlobalSize)
	}
	if cfg.Redis.PoolSize != 100 {
		t.Errorf("redis pool size = %d, want default 100", cfg.Redis.PoolSize)
	}
	if cfg.Rebuild.Interval != 30*time.Minute {
		t.Errorf("rebuild interval = %v, want default 30m", cfg.Rebuild.Interval)
	}
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("TEST_REDIS_ADDR", "redis.prod:6379")
	t.Setenv("TEST_PG_PASSWORD", "secret")

	path := writeConfig(t, `
redis:
  addr: "${TEST_REDIS_ADDR}"
postgres:
  password: "${TEST_PG_PASSWORD}"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Redis.Addr != "redis.prod:6379" {
		t.Errorf("redis addr = %q", cfg.Redis.Addr)
	}
	if cfg.Postgres.Password != "secret" {
		t.Errorf("postgres password = %q", cfg.Postgres.Password)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for a missing config file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeConfig(t, "server: [not a map")
	if _, err := Load(path); err == nil {
		t.Error("expected error for invalid yaml")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.Port != 8080 || cfg.Web.Port != 8081 {
		t.Errorf("ports = %d/%d", cfg.Server.Port, cfg.Web.Port)
	}
	if cfg.Web.APIBase != "http://localhost:8080/api/v1" {
		t.Errorf("api base = %q", cfg.Web.APIBase)
	}
	if !cfg.Rebuild.Enabled {
		t.Error("rebuild should be enabled by default")
	}
	if cfg.Kafka.Enabled {
		t.Error("kafka ingest should be opt-in")
	}
	if cfg.Leaderboard.CountrySize != 100 || cfg.Leaderboard.GlobalSize != 20 {
		t.Errorf("board sizes = %d/%d", cfg.Leaderboard.CountrySize, cfg.Leaderboard.GlobalSize)
	}
}

func TestConnectionString(t *testing.T) {
	pg := PostgresConfig{
		Host: "db", Port: 5432, User: "app", Password: "pw", Database: "sprints",
	}
	want := "postgres://app:pw@db:5432/sprints?sslmode=disable"
	if got := pg.ConnectionString(); got != want {
		t.Errorf("ConnectionString() = %q, want %q", got, want)
	}
}
