package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noEnv(string) string { return "" }

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := load("", noEnv)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, BackendMemory, cfg.Cache.Backend)
	assert.Equal(t, time.Hour, cfg.Cache.TTL.Duration)
	assert.Equal(t, 30*time.Second, cfg.Cache.WaitTimeout.Duration)
	assert.Equal(t, 2, cfg.Workflow.MaxEnhanceAttempts)
	assert.Equal(t, 100, cfg.Workflow.MaxArticlesLimit)
	assert.Equal(t, 4000, cfg.Summarizer.MaxInputChars)
	assert.Equal(t, 1, cfg.Summarizer.MaxConcurrent)
	assert.Equal(t, 3, cfg.NewsAPI.MaxRetries)
	assert.Equal(t, 7, cfg.NewsAPI.WindowDays)
	assert.Zero(t, cfg.NewsAPI.MinContentLength)
	assert.Equal(t, QualityConfig{MinArticles: 3, MinAvgContentLength: 200, MinDistinctSources: 2}, cfg.Quality)
}

func TestLoadFileKeepsUnsetDefaults(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
server:
  addr: ":9090"
cache:
  ttl: 15m
  waitTimeout: 0s
workflow:
  maxEnhanceAttempts: 4
newsapi:
  windowDays: 1
  minContentLength: 150
scheduler:
  interval: 90m
  warmTopics:
    - topic: climate
      maxArticles: 8
`)

	cfg, err := load(path, noEnv)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 15*time.Minute, cfg.Cache.TTL.Duration)
	assert.Zero(t, cfg.Cache.WaitTimeout.Duration)
	assert.Equal(t, BackendMemory, cfg.Cache.Backend)
	assert.Equal(t, 4, cfg.Workflow.MaxEnhanceAttempts)
	assert.Equal(t, 100, cfg.Workflow.MaxArticlesLimit)
	assert.Equal(t, 1, cfg.NewsAPI.WindowDays)
	assert.Equal(t, 150, cfg.NewsAPI.MinContentLength)
	assert.Equal(t, 3, cfg.NewsAPI.MaxRetries)
	assert.Equal(t, 90*time.Minute, cfg.Scheduler.Interval.Duration)
	require.Len(t, cfg.Scheduler.WarmTopics, 1)
	assert.Equal(t, WarmTopic{Topic: "climate", MaxArticles: 8}, cfg.Scheduler.WarmTopics[0])
}

func TestEnvOverridesFile(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "newsapi:\n  token: from-file\n")
	env := map[string]string{
		"THENEWSAPI_TOKEN":         "from-env",
		"HTTP_ADDR":                ":7000",
		"TELEGRAM_BOT_TOKEN":       "bot",
		"TELEGRAM_CHAT_ID":         "42",
		"NEWSDIGEST_CACHE_BACKEND": "Redis",
		"REDIS_ADDRESS":            "redis:6379",
	}

	cfg, err := load(path, func(k string) string { return env[k] })
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.NewsAPI.Token)
	assert.Equal(t, ":7000", cfg.Server.Addr)
	assert.Equal(t, BackendRedis, cfg.Cache.Backend)
	assert.Equal(t, "redis:6379", cfg.Redis.Address)
	assert.True(t, cfg.Notifications.Telegram.Enabled())
}

func TestLoadRejectsInvalidFiles(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{name: "bad duration", body: "cache:\n  ttl: soon\n"},
		{name: "unknown backend", body: "cache:\n  backend: disk\n"},
		{name: "postgres without dsn", body: "cache:\n  backend: postgres\n"},
		{name: "unknown provider", body: "summarizer:\n  provider: magic\n"},
		{name: "negative window", body: "newsapi:\n  windowDays: -1\n"},
		{name: "empty warm topic", body: "scheduler:\n  warmTopics:\n    - maxArticles: 3\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := load(writeConfig(t, tt.body), noEnv)
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := load(filepath.Join(t.TempDir(), "absent.yaml"), noEnv)
	assert.Error(t, err)
}
