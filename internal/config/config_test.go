package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8000", cfg.Addr)
	assert.Equal(t, "sqlite:///./devblog.db", cfg.DatabaseURL)
	assert.Equal(t, "https://api.telegram.org", cfg.TelegramAPIBase)
	assert.Equal(t, 20, cfg.TelegramRateLimitPerMin)
	assert.Equal(t, 10*time.Second, cfg.TelegramTimeout)
	assert.Equal(t, "gpt-4o-mini", cfg.OpenAIModel)
	assert.Equal(t, 20*time.Second, cfg.OpenAITimeout)
	assert.Equal(t, 24*time.Hour, cfg.DedupeTTL)
	assert.Equal(t, "devblog-payloads", cfg.S3Bucket)
	assert.Empty(t, cfg.RedisURL)
	assert.Empty(t, cfg.DefaultWebhookSecret)
}

func TestLoadEnvOverridesDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	dotenv := "TELEGRAM_RATE_LIMIT_PER_MIN=5\nOPENAI_MODEL=from-file\nTELEGRAM_API_BASE=http://tg.local/\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(dotenv), 0o600))
	t.Setenv("OPENAI_MODEL", "from-env")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.TelegramRateLimitPerMin)
	assert.Equal(t, "from-env", cfg.OpenAIModel)
	assert.Equal(t, "http://tg.local", cfg.TelegramAPIBase)
}

func TestLoadExplicitYAMLFile(t *testing.T) {
	t.Chdir(t.TempDir())
	path := filepath.Join(t.TempDir(), "devblog.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api_addr: \":9000\"\nredis_url: redis://localhost:6379/1\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Addr)
	assert.Equal(t, "redis://localhost:6379/1", cfg.RedisURL)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"TELEGRAM_RATE_LIMIT_PER_MIN": "-1",
		"TELEGRAM_TIMEOUT_SECONDS":    "0",
		"LOG_LEVEL":                   "loud",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Chdir(t.TempDir())
			t.Setenv(key, value)
			_, err := Load("")
			assert.Error(t, err)
		})
	}
}

func TestNewLogger(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("APP_ENV", "prod")

	cfg, err := Load("")
	require.NoError(t, err)
	logger, err := cfg.NewLogger()
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))
}
