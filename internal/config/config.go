// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// DefaultEnvFile は起動時に読み込むローカル環境変数ファイル。
const DefaultEnvFile = ".env"

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string `envconfig:"DATABASE_URL"`

	// Server
	ServerPort      string        `envconfig:"SERVER_PORT" default:"8080"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`

	// Logging
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// OMDb
	OMDbAPIKey     string        `envconfig:"OMDB_API_KEY"`
	OMDbBaseURL    string        `envconfig:"OMDB_BASE_URL" default:"http://www.omdbapi.com/"`
	OMDbTimeout    time.Duration `envconfig:"OMDB_TIMEOUT" default:"10s"`
	OMDbRatePerSec float64       `envconfig:"OMDB_RATE_PER_SEC" default:"5"`

	// Rating refresh
	RefreshInterval    time.Duration `envconfig:"REFRESH_INTERVAL" default:"24h"`
	RefreshBatchSize   int           `envconfig:"REFRESH_BATCH_SIZE" default:"100"`
	RefreshAPIInterval time.Duration `envconfig:"REFRESH_API_INTERVAL" default:"200ms"`

	// Dialogue sessions
	DialogueSessionTTL time.Duration `envconfig:"DIALOGUE_SESSION_TTL" default:"24h"`
	CleanupInterval    time.Duration `envconfig:"CLEANUP_INTERVAL" default:"24h"`

	// Rate Limit（req/min）
	RateLimitGeneral int `envconfig:"RATE_LIMIT_GENERAL" default:"120"`

	// CORS
	CORSAllowedOrigin string `envconfig:"CORS_ALLOWED_ORIGIN" default:"http://localhost:8501"`

	// Worker（空の場合はワーカーの/metricsを公開しない）
	WorkerMetricsPort string `envconfig:"WORKER_METRICS_PORT"`
}

// Load はカレントディレクトリの.envを読み込んだ上で環境変数からConfigを読み込む。
func Load() (*Config, error) {
	return LoadWithEnvFile(DefaultEnvFile)
}

// LoadWithEnvFile はenvFileを読み込んだ上で環境変数からConfigを読み込む。
// envFileが存在しない場合は無視する。既に設定済みの環境変数はファイルの値より優先される。
// 必須環境変数の欠落や不正な値はまとめて1つのエラーとして返す。
func LoadWithEnvFile(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validate は必須項目と値の範囲を検証する。
func (c *Config) validate() error {
	var missing []string
	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	var errs []error
	if len(missing) > 0 {
		errs = append(errs, fmt.Errorf("required environment variables are not set: %v", missing))
	}
	if port, err := strconv.Atoi(c.ServerPort); err != nil || port <= 0 || port > 65535 {
		errs = append(errs, fmt.Errorf("SERVER_PORT must be a valid port number: %q", c.ServerPort))
	}
	if c.WorkerMetricsPort != "" {
		if port, err := strconv.Atoi(c.WorkerMetricsPort); err != nil || port <= 0 || port > 65535 {
			errs = append(errs, fmt.Errorf("WORKER_METRICS_PORT must be a valid port number: %q", c.WorkerMetricsPort))
		}
	}
	if c.OMDbRatePerSec <= 0 {
		errs = append(errs, fmt.Errorf("OMDB_RATE_PER_SEC must be positive: %v", c.OMDbRatePerSec))
	}
	if c.RefreshBatchSize <= 0 {
		errs = append(errs, fmt.Errorf("REFRESH_BATCH_SIZE must be positive: %d", c.RefreshBatchSize))
	}
	if c.RateLimitGeneral <= 0 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_GENERAL must be positive: %d", c.RateLimitGeneral))
	}
	return errors.Join(errs...)
}

// OMDbEnabled は外部プロバイダのAPIキーが設定されているかを返す。
func (c *Config) OMDbEnabled() bool {
	return c.OMDbAPIKey != ""
}
