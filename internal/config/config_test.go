package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/MimeLyc/dualsub/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func TestNewFromEnv_Defaults(t *testing.T) {
	t.Setenv("LLM_API_KEY", "test-key")
	t.Setenv("DATA_DIR", "")

	cfg, err := NewFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "/app/data", cfg.Store.DataDir)
	assert.Equal(t, filepath.Join("/app/data", "dualsub.db"), cfg.Store.DBPath())
	assert.Equal(t, filepath.Join("/app/data", "settings.json"), cfg.Store.SettingsFile)
	assert.Equal(t, 1200*time.Millisecond, cfg.Cache.MinGap)
	assert.Equal(t, 250*time.Millisecond, cfg.Cache.Debounce)
	assert.Equal(t, 2.5, cfg.Recorder.SeekGap)
	assert.Equal(t, []string{"*"}, cfg.HTTP.AllowedOrigins)
	assert.True(t, cfg.LLM.Configured())
}

func TestNewFromEnv_Overrides(t *testing.T) {
	t.Setenv("LLM_API_KEY", "")
	t.Setenv("CACHE_MIN_GAP_MS", "500")
	t.Setenv("RECORDER_CAPACITY", "10")
	t.Setenv("HTTP_ALLOWED_ORIGINS", "https://a.test, https://b.test,")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	cfg, err := NewFromEnv(WithDataDir("/tmp/dualsub"), WithAPIKey("opt-key"))
	require.NoError(t, err)

	assert.Equal(t, 500*time.Millisecond, cfg.Cache.MinGap)
	assert.Equal(t, 10, cfg.Recorder.Capacity)
	assert.Equal(t, []string{"https://a.test", "https://b.test"}, cfg.HTTP.AllowedOrigins)
	assert.Equal(t, filepath.Join("/tmp/dualsub", "settings.json"), cfg.Store.SettingsFile)
	assert.Equal(t, "opt-key", cfg.LLM.APIKey)
	assert.Equal(t, "localhost:6379", cfg.Store.RedisAddr)
}

func TestNewFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{name: "prune target above capacity", key: "CACHE_PRUNE_TARGET", val: "9000"},
		{name: "zero min chars", key: "CACHE_MIN_CHARS", val: "0"},
		{name: "bad cron", key: "CACHE_MAINTENANCE_CRON", val: "every hour"},
		{name: "zero seek gap", key: "RECORDER_SEEK_GAP", val: "0"},
		{name: "backoff cap below base", key: "TRACK_BACKOFF_CAP_MS", val: "10"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := NewFromEnv()
			require.Error(t, err)
			assert.True(t, apperr.Is(err, apperr.KindConfig))
		})
	}
}

func TestWithKeyringFallback(t *testing.T) {
	keyring.MockInit()
	t.Setenv("LLM_API_KEY", "")

	cfg, err := NewFromEnv(WithKeyringFallback("viewer"))
	require.NoError(t, err)
	assert.False(t, cfg.LLM.Configured())

	require.NoError(t, SaveAPIKey("viewer", "  stored-key "))
	cfg, err = NewFromEnv(WithKeyringFallback("viewer"))
	require.NoError(t, err)
	assert.Equal(t, "stored-key", cfg.LLM.APIKey)

	t.Setenv("LLM_API_KEY", "env-key")
	cfg, err = NewFromEnv(WithKeyringFallback("viewer"))
	require.NoError(t, err)
	assert.Equal(t, "env-key", cfg.LLM.APIKey)
}
