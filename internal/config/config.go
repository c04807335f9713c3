package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/MimeLyc/dualsub/internal/apperr"
	"github.com/MimeLyc/dualsub/pkg/log"
	"github.com/robfig/cron/v3"
)

// Config holds the process configuration. Per-viewer preferences live in
// Settings instead.
//
// Environment Variables:
// LLM Configuration:
// - LLM_API_KEY: API key for the generation provider (falls back to the OS keyring)
// - LLM_API_URL: API endpoint URL (default: https://openrouter.ai/api/v1)
// - LLM_MODEL: Model name (default: openai/gpt-4o-mini)
// - LLM_MAX_TOKENS: Maximum tokens per response (default: 512)
// - LLM_TEMPERATURE: Sampling temperature (default: 0.2)
// - LLM_TIMEOUT: Request timeout in seconds (default: 30)
// - LLM_SITE_URL, LLM_APP_NAME: optional attribution headers
//
// Cache Configuration:
// - CACHE_MIN_CHARS: Shortest text worth translating (default: 2)
// - CACHE_DEBOUNCE_MS: Generation debounce window (default: 250)
// - CACHE_MIN_GAP_MS: Global minimum gap between generation requests (default: 1200)
// - CACHE_LOCAL_CAPACITY: Row limit of the local store (default: 5000)
// - CACHE_PRUNE_TARGET: Row count kept after a quota prune (default: 4000)
// - CACHE_MAINTENANCE_CRON: Compaction schedule (default: "0 * * * *")
//
// Recorder Configuration:
// - RECORDER_MIN_DURATION: Shortest committed interval in seconds (default: 0.3)
// - RECORDER_SEEK_GAP: Tick gap treated as a seek in seconds (default: 2.5)
// - RECORDER_CAPACITY: Ring buffer size (default: 2000)
//
// Track Configuration:
// - TRACK_BACKOFF_BASE_MS, TRACK_BACKOFF_CAP_MS: rate-limit retry delays (default: 1000, 60000)
// - TRACK_URL_TEMPLATE: caption track URL with {video} and {lang} placeholders (optional)
//
// Store Configuration:
// - DATA_DIR: Directory for the SQLite database and settings (default: /app/data)
// - SETTINGS_FILE: Settings JSON path (default: $DATA_DIR/settings.json)
// - REDIS_ADDR: Remote store address; empty disables the remote tier
// - REDIS_PASSWORD, REDIS_DB, REDIS_PREFIX (default: dualsub), REDIS_TIMEOUT_MS (default: 5000)
//
// HTTP Configuration:
// - HTTP_ADDR: Listen address (default: :8080)
// - HTTP_ALLOWED_ORIGINS: Comma separated CORS origins (default: *)
//
// - LOG_LEVEL: debug|info|warn|error (default: info)
type Config struct {
	LLM      LLMConfig      `json:"llm"`
	Cache    CacheConfig    `json:"cache"`
	Recorder RecorderConfig `json:"recorder"`
	Track    TrackConfig    `json:"track"`
	Store    StoreConfig    `json:"store"`
	HTTP     HTTPConfig     `json:"http"`
	Log      LogConfig      `json:"log"`
}

// LLMConfig holds the configuration for the generation client.
// Supports any OpenAI-compatible provider (OpenRouter, OpenAI, Gemini gateway, ...).
type LLMConfig struct {
	APIKey      string  `json:"-"`
	APIURL      string  `json:"api_url"`
	Model       string  `json:"model"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	Timeout     int     `json:"timeout"`
	SiteURL     string  `json:"site_url"`
	AppName     string  `json:"app_name"`
}

// Configured reports whether generation can be attempted at all.
func (c LLMConfig) Configured() bool {
	return strings.TrimSpace(c.APIKey) != "" && strings.TrimSpace(c.APIURL) != ""
}

type CacheConfig struct {
	MinChars        int           `json:"min_chars"`
	Debounce        time.Duration `json:"debounce"`
	MinGap          time.Duration `json:"min_gap"`
	LocalCapacity   int           `json:"local_capacity"`
	PruneTarget     int           `json:"prune_target"`
	MaintenanceCron string        `json:"maintenance_cron"`
}

type RecorderConfig struct {
	MinDuration float64 `json:"min_duration"`
	SeekGap     float64 `json:"seek_gap"`
	Capacity    int     `json:"capacity"`
}

type TrackConfig struct {
	BackoffBase time.Duration `json:"backoff_base"`
	BackoffCap  time.Duration `json:"backoff_cap"`
	URLTemplate string        `json:"url_template"`
}

type StoreConfig struct {
	DataDir       string        `json:"data_dir"`
	SettingsFile  string        `json:"settings_file"`
	RedisAddr     string        `json:"redis_addr"`
	RedisPassword string        `json:"-"`
	RedisDB       int           `json:"redis_db"`
	RedisPrefix   string        `json:"redis_prefix"`
	RedisTimeout  time.Duration `json:"redis_timeout"`
}

// DBPath is the SQLite database location inside DataDir.
func (c StoreConfig) DBPath() string {
	return filepath.Join(c.DataDir, "dualsub.db")
}

type HTTPConfig struct {
	Addr           string   `json:"addr"`
	AllowedOrigins []string `json:"allowed_origins"`
}

type LogConfig struct {
	Level string `json:"level"`
}

// Option is a function type for configuring Config
type Option func(*Config)

// WithDataDir overrides the data directory and the settings file derived from it.
func WithDataDir(dir string) Option {
	return func(c *Config) {
		c.Store.DataDir = dir
		c.Store.SettingsFile = filepath.Join(dir, "settings.json")
	}
}

// WithAPIKey overrides the generation API key.
func WithAPIKey(key string) Option {
	return func(c *Config) {
		c.LLM.APIKey = key
	}
}

// WithKeyringFallback fills an empty API key from the OS keyring.
func WithKeyringFallback(user string) Option {
	return func(c *Config) {
		if strings.TrimSpace(c.LLM.APIKey) != "" {
			return
		}
		key, err := LoadAPIKey(user)
		if err != nil {
			log.Warn("Failed to read API key from keyring: %v", err)
			return
		}
		c.LLM.APIKey = key
	}
}

// NewFromEnv creates a new Config instance with values from environment variables and options
func NewFromEnv(opts ...Option) (*Config, error) {
	dataDir := getEnvString("DATA_DIR", "/app/data")
	config := &Config{
		LLM: LLMConfig{
			APIKey:      getEnvString("LLM_API_KEY", ""),
			APIURL:      getEnvString("LLM_API_URL", "https://openrouter.ai/api/v1"),
			Model:       getEnvString("LLM_MODEL", "openai/gpt-4o-mini"),
			MaxTokens:   getEnvInt("LLM_MAX_TOKENS", 512),
			Temperature: getEnvFloat("LLM_TEMPERATURE", 0.2),
			Timeout:     getEnvInt("LLM_TIMEOUT", 30),
			SiteURL:     getEnvString("LLM_SITE_URL", ""),
			AppName:     getEnvString("LLM_APP_NAME", "dualsub"),
		},
		Cache: CacheConfig{
			MinChars:        getEnvInt("CACHE_MIN_CHARS", 2),
			Debounce:        getEnvMillis("CACHE_DEBOUNCE_MS", 250*time.Millisecond),
			MinGap:          getEnvMillis("CACHE_MIN_GAP_MS", 1200*time.Millisecond),
			LocalCapacity:   getEnvInt("CACHE_LOCAL_CAPACITY", 5000),
			PruneTarget:     getEnvInt("CACHE_PRUNE_TARGET", 4000),
			MaintenanceCron: getEnvString("CACHE_MAINTENANCE_CRON", "0 * * * *"),
		},
		Recorder: RecorderConfig{
			MinDuration: getEnvFloat("RECORDER_MIN_DURATION", 0.3),
			SeekGap:     getEnvFloat("RECORDER_SEEK_GAP", 2.5),
			Capacity:    getEnvInt("RECORDER_CAPACITY", 2000),
		},
		Track: TrackConfig{
			BackoffBase: getEnvMillis("TRACK_BACKOFF_BASE_MS", time.Second),
			BackoffCap:  getEnvMillis("TRACK_BACKOFF_CAP_MS", time.Minute),
			URLTemplate: getEnvString("TRACK_URL_TEMPLATE", ""),
		},
		Store: StoreConfig{
			DataDir:       dataDir,
			SettingsFile:  getEnvString("SETTINGS_FILE", filepath.Join(dataDir, "settings.json")),
			RedisAddr:     getEnvString("REDIS_ADDR", ""),
			RedisPassword: getEnvString("REDIS_PASSWORD", ""),
			RedisDB:       getEnvInt("REDIS_DB", 0),
			RedisPrefix:   getEnvString("REDIS_PREFIX", "dualsub"),
			RedisTimeout:  getEnvMillis("REDIS_TIMEOUT_MS", 5*time.Second),
		},
		HTTP: HTTPConfig{
			Addr:           getEnvString("HTTP_ADDR", ":8080"),
			AllowedOrigins: getEnvList("HTTP_ALLOWED_ORIGINS", []string{"*"}),
		},
		Log: LogConfig{
			Level: getEnvString("LOG_LEVEL", "info"),
		},
	}

	// Apply custom options
	for _, opt := range opts {
		opt(config)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	log.Debug("Config: %s", config)
	return config, nil
}

// validate checks the numeric ranges the engine relies on
func (c *Config) validate() error {
	fail := func(msg string) error {
		return apperr.New(apperr.KindConfig, msg)
	}

	if c.Cache.MinChars < 1 {
		return fail("CACHE_MIN_CHARS must be at least 1")
	}
	if c.Cache.Debounce < 0 || c.Cache.MinGap < 0 {
		return fail("cache delays must not be negative")
	}
	if c.Cache.LocalCapacity < 1 {
		return fail("CACHE_LOCAL_CAPACITY must be positive")
	}
	if c.Cache.PruneTarget < 0 || c.Cache.PruneTarget >= c.Cache.LocalCapacity {
		return fail("CACHE_PRUNE_TARGET must be below CACHE_LOCAL_CAPACITY")
	}
	if _, err := cron.ParseStandard(c.Cache.MaintenanceCron); err != nil {
		return apperr.Wrap(err, apperr.KindConfig, "invalid CACHE_MAINTENANCE_CRON")
	}
	if c.Recorder.MinDuration < 0 || c.Recorder.SeekGap <= 0 {
		return fail("recorder durations out of range")
	}
	if c.Recorder.Capacity < 1 {
		return fail("RECORDER_CAPACITY must be positive")
	}
	if c.Track.BackoffBase <= 0 || c.Track.BackoffCap < c.Track.BackoffBase {
		return fail("track backoff requires 0 < base <= cap")
	}
	if strings.TrimSpace(c.Store.DataDir) == "" {
		return fail("DATA_DIR is required")
	}
	return nil
}

// getEnvString gets a string value from environment variables with default
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer value from environment variables with default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat gets a float value from environment variables with default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvMillis(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if ms, err := strconv.Atoi(value); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var ret []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			ret = append(ret, part)
		}
	}
	if len(ret) == 0 {
		return defaultValue
	}
	return ret
}

func (c *Config) String() string {
	return fmt.Sprintf("Config{llm=%s model=%s redis=%q data=%s http=%s}",
		c.LLM.APIURL, c.LLM.Model, c.Store.RedisAddr, c.Store.DataDir, c.HTTP.Addr)
}
