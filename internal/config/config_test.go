package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
server:
  port: "9090"
database:
  driver: postgres
  host: 127.0.0.1
  port: 5432
  dbname: survey
marking:
  batch_concurrency: 8
  content_analysis:
    keyword_weight: 0.75
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0o600))
	return dir
}

func TestLoadConfigMergesFileDefaultsAndEnv(t *testing.T) {
	t.Setenv("DATABASE_HOST", "db.internal")
	dir := writeConfig(t, sampleConfig)

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Server.Mode)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, "disable", cfg.Database.SSLMode)
	assert.Equal(t, 8, cfg.Marking.BatchConcurrency)
	assert.Equal(t, 25, cfg.Marking.ProgressEvery)
	assert.Equal(t, 24*time.Hour, cfg.Marking.BatchStatusTTL())
	assert.Equal(t, 0.5, cfg.Marking.ContentAnalysis.WordCountWeight)
	assert.Equal(t, 0.75, cfg.Marking.ContentAnalysis.KeywordWeight)
	assert.Equal(t, 100, cfg.RateLimit.MaxRequests)
}

func TestLoadConfigWithoutFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Equal(t, 4, cfg.Marking.BatchConcurrency)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Database: DatabaseConfig{Driver: "sqlite"},
			Marking:  MarkingConfig{BatchConcurrency: 1},
		}
	}
	require.NoError(t, valid().Validate())

	cfg := valid()
	cfg.Database.Driver = "oracle"
	assert.ErrorContains(t, cfg.Validate(), "oracle")

	cfg = valid()
	cfg.Marking.BatchConcurrency = 0
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Marking.ContentAnalysis.KeywordWeight = -1
	assert.Error(t, cfg.Validate())

	_, err := LoadConfig(writeConfig(t, "marking:\n  batch_concurrency: -2\n"))
	assert.Error(t, err)
}
