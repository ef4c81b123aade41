package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Scraper.DetailTimeout)
	assert.Equal(t, 24*time.Hour, cfg.Scraper.FreshnessWindow)
	assert.Equal(t, 8000, cfg.LLM.MaxInputChars)
	assert.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)
}

func TestLoad_YAMLAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlBody := `
server:
  port: 9090
scraper:
  max_per_page: 15
  default_delay: 3s
  request_timeout: 20s
  detail_timeout: 10s
  health_timeout: 5s
scheduler:
  enabled: true
  spec: "@every 12h"
`
	require.NoError(t, os.WriteFile(path, []byte(yamlBody), 0o600))

	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/app")
	t.Setenv("LLM_BACKEND", "gemini")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 15, cfg.Scraper.MaxPerPage)
	assert.Equal(t, 3*time.Second, cfg.Scraper.DefaultDelay)
	assert.Equal(t, "@every 12h", cfg.Scheduler.Spec)
	assert.Equal(t, "gemini", cfg.LLM.DefaultBackend)
	assert.Equal(t, "postgres://u:p@db:5432/app", cfg.Database.Postgres.DSN())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"zero detail timeout", func(c *Config) { c.Scraper.DetailTimeout = 0 }},
		{"unknown backend", func(c *Config) { c.LLM.DefaultBackend = "groq" }},
		{"empty queue", func(c *Config) { c.Queue.Size = 0 }},
		{"scheduler without spec", func(c *Config) { c.Scheduler.Spec = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestPostgresDSN_FromFields(t *testing.T) {
	p := PostgresConfig{
		Host: "localhost", Port: 5432, User: "u", Password: "p",
		Database: "d", SSLMode: "disable", PoolSize: 5,
	}
	assert.Equal(t, "postgres://u:p@localhost:5432/d?sslmode=disable&pool_max_conns=5", p.DSN())
}
