package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	Addr          string
	AppEnv        string
	LogLevel      string
	DatabaseURL   string
	MigrationsDir string
	RoutesFile    string

	DefaultWebhookSecret string

	TelegramBotToken        string
	TelegramAPIBase         string
	TelegramRateLimitPerMin int
	TelegramTimeout         time.Duration

	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIURL     string
	OpenAITimeout time.Duration

	// Empty selects the in-process limiter and delivery dedupe.
	RedisURL  string
	DedupeTTL time.Duration

	MeiliURL       string
	MeiliMasterKey string

	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Bucket    string
	S3UseSSL    bool
	S3Region    string

	AdminAPIKey string
}

var defaults = map[string]any{
	"api_addr":                      ":8000",
	"app_env":                       "dev",
	"log_level":                     "info",
	"database_url":                  "sqlite:///./devblog.db",
	"migrations_dir":                "",
	"routes_file":                   "",
	"github_webhook_secret_default": "",
	"telegram_bot_token":            "",
	"telegram_api_base":             "https://api.telegram.org",
	"telegram_rate_limit_per_min":   20,
	"telegram_timeout_seconds":      10,
	"openai_api_key":                "",
	"openai_model":                  "gpt-4o-mini",
	"openai_api_url":                "https://api.openai.com/v1/responses",
	"openai_timeout_seconds":        20,
	"redis_url":                     "",
	"delivery_dedupe_ttl_seconds":   86400,
	"meili_url":                     "",
	"meili_master_key":              "",
	"s3_endpoint":                   "",
	"s3_access_key":                 "",
	"s3_secret_key":                 "",
	"s3_bucket":                     "devblog-payloads",
	"s3_use_ssl":                    false,
	"s3_region":                     "us-east-1",
	"admin_api_key":                 "",
}

// Load reads settings from the environment, layered over an optional file.
// An empty path falls back to ./.env when it exists. Environment variables
// win over file values.
func Load(path string) (Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	explicit := strings.TrimSpace(path) != ""
	if !explicit {
		path = ".env"
	}
	if err := readFile(v, path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			err = nil
		}
		if err != nil {
			return Config{}, err
		}
	}

	cfg := Config{
		Addr:                    v.GetString("api_addr"),
		AppEnv:                  v.GetString("app_env"),
		LogLevel:                strings.ToLower(v.GetString("log_level")),
		DatabaseURL:             v.GetString("database_url"),
		MigrationsDir:           v.GetString("migrations_dir"),
		RoutesFile:              v.GetString("routes_file"),
		DefaultWebhookSecret:    v.GetString("github_webhook_secret_default"),
		TelegramBotToken:        v.GetString("telegram_bot_token"),
		TelegramAPIBase:         strings.TrimRight(v.GetString("telegram_api_base"), "/"),
		TelegramRateLimitPerMin: v.GetInt("telegram_rate_limit_per_min"),
		TelegramTimeout:         time.Duration(v.GetInt("telegram_timeout_seconds")) * time.Second,
		OpenAIAPIKey:            v.GetString("openai_api_key"),
		OpenAIModel:             v.GetString("openai_model"),
		OpenAIURL:               v.GetString("openai_api_url"),
		OpenAITimeout:           time.Duration(v.GetInt("openai_timeout_seconds")) * time.Second,
		RedisURL:                v.GetString("redis_url"),
		DedupeTTL:               time.Duration(v.GetInt("delivery_dedupe_ttl_seconds")) * time.Second,
		MeiliURL:                v.GetString("meili_url"),
		MeiliMasterKey:          v.GetString("meili_master_key"),
		S3Endpoint:              v.GetString("s3_endpoint"),
		S3AccessKey:             v.GetString("s3_access_key"),
		S3SecretKey:             v.GetString("s3_secret_key"),
		S3Bucket:                v.GetString("s3_bucket"),
		S3UseSSL:                v.GetBool("s3_use_ssl"),
		S3Region:                v.GetString("s3_region"),
		AdminAPIKey:             v.GetString("admin_api_key"),
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func readFile(v *viper.Viper, path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("config file %s: %w", path, err)
	}
	v.SetConfigFile(path)
	switch strings.TrimPrefix(filepath.Ext(path), ".") {
	case "yaml", "yml", "json", "toml":
	default:
		v.SetConfigType("env")
	}
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	return nil
}

func (c Config) validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return errors.New("DATABASE_URL is required")
	}
	if c.TelegramRateLimitPerMin < 0 {
		return fmt.Errorf("TELEGRAM_RATE_LIMIT_PER_MIN must be >= 0, got %d", c.TelegramRateLimitPerMin)
	}
	if c.TelegramTimeout <= 0 {
		return errors.New("TELEGRAM_TIMEOUT_SECONDS must be positive")
	}
	if c.OpenAITimeout <= 0 {
		return errors.New("OPENAI_TIMEOUT_SECONDS must be positive")
	}
	if c.DedupeTTL <= 0 {
		return errors.New("DELIVERY_DEDUPE_TTL_SECONDS must be positive")
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return nil
}

// NewLogger builds the process logger: JSON with ISO8601 timestamps, or the
// console encoder when APP_ENV is dev.
func (c Config) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}
	logConfig := zap.NewProductionConfig()
	if c.AppEnv == "dev" {
		logConfig.Encoding = "console"
	}
	logConfig.Level = zap.NewAtomicLevelAt(level)
	logConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return logConfig.Build()
}
