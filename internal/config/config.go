// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"golang.org/x/crypto/bcrypt"
)

// DefaultEnvFile は起動時に読み込む.envファイルのパス。
const DefaultEnvFile = ".env"

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`

	// Auth
	JWTSecret    string        `envconfig:"JWT_SECRET" required:"true"`
	JWTExpiresIn time.Duration `envconfig:"JWT_EXPIRES_IN" default:"24h"`
	BcryptCost   int           `envconfig:"BCRYPT_COST" default:"10"`

	// Server
	ServerPort         string   `envconfig:"SERVER_PORT" default:"8080"`
	CORSAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`

	// Rate Limit（1分あたりの回数）
	RateLimitGeneral int `envconfig:"RATE_LIMIT_GENERAL" default:"120"`
	RateLimitAuth    int `envconfig:"RATE_LIMIT_AUTH" default:"10"`

	// Logging
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// Worker
	StaleAnalysisAfter time.Duration `envconfig:"STALE_ANALYSIS_AFTER" default:"168h"`
	ReaperSchedule     string        `envconfig:"REAPER_SCHEDULE" default:"@hourly"`
	EnrichSchedule     string        `envconfig:"ENRICH_SCHEDULE" default:"@every 10m"`
	WorkerMetricsPort  string        `envconfig:"WORKER_METRICS_PORT" default:"9091"`

	// YouTube Data API（キー未設定の場合は動画詳細の補完を行わない）
	YouTubeAPIKey      string        `envconfig:"YOUTUBE_API_KEY"`
	YouTubeAPIEndpoint string        `envconfig:"YOUTUBE_API_ENDPOINT" default:"https://www.googleapis.com/youtube/v3/videos"`
	YouTubeAPIInterval time.Duration `envconfig:"YOUTUBE_API_INTERVAL" default:"1s"`
	EnrichBatchSize    int           `envconfig:"ENRICH_BATCH_SIZE" default:"50"`
	EnrichRecheckAfter time.Duration `envconfig:"ENRICH_RECHECK_AFTER" default:"24h"`
}

// EnrichEnabled は動画詳細の補完が有効かを返す。
func (c *Config) EnrichEnabled() bool {
	return c.YouTubeAPIKey != ""
}

// Load は.envファイル（存在する場合）と環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合や値が範囲外の場合はエラーを返す。
func Load() (*Config, error) {
	return LoadFile(DefaultEnvFile)
}

// LoadFile は指定した.envファイルを読み込んでからConfigを生成する。
// ファイルが存在しない場合は環境変数のみを使う。既に設定済みの環境変数は上書きしない。
func LoadFile(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	cfg := &Config{}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var missing []string
	if strings.TrimSpace(c.DatabaseURL) == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if strings.TrimSpace(c.JWTSecret) == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("required environment variables are not set: %v", missing)
	}

	if c.JWTExpiresIn <= 0 {
		return fmt.Errorf("JWT_EXPIRES_IN must be positive: %s", c.JWTExpiresIn)
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("BCRYPT_COST must be between %d and %d: %d", bcrypt.MinCost, bcrypt.MaxCost, c.BcryptCost)
	}
	if c.RateLimitGeneral <= 0 || c.RateLimitAuth <= 0 {
		return fmt.Errorf("RATE_LIMIT_GENERAL and RATE_LIMIT_AUTH must be positive")
	}
	if c.StaleAnalysisAfter <= 0 {
		return fmt.Errorf("STALE_ANALYSIS_AFTER must be positive: %s", c.StaleAnalysisAfter)
	}
	if c.YouTubeAPIInterval <= 0 {
		return fmt.Errorf("YOUTUBE_API_INTERVAL must be positive: %s", c.YouTubeAPIInterval)
	}
	if c.EnrichBatchSize <= 0 {
		return fmt.Errorf("ENRICH_BATCH_SIZE must be positive: %d", c.EnrichBatchSize)
	}
	if c.EnrichRecheckAfter <= 0 {
		return fmt.Errorf("ENRICH_RECHECK_AFTER must be positive: %s", c.EnrichRecheckAfter)
	}
	return nil
}
