// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// 永続化ドライバ
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMongo    = "mongo"
)

// DefaultFirebaseCertsURL はFirebase IDトークンの署名検証用公開鍵（x509証明書）のURL。
const DefaultFirebaseCertsURL = "https://www.googleapis.com/robot/v1/metadata/x509/securetoken@system.gserviceaccount.com"

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL   string `env:"DATABASE_URL,required,notEmpty"`
	StoreDriver   string `env:"STORE_DRIVER" envDefault:"postgres"`
	MongoDatabase string `env:"MONGO_DATABASE" envDefault:"pantryman"`

	// Identity provider (Firebase Authentication)
	FirebaseProjectID string `env:"FIREBASE_PROJECT_ID,required,notEmpty"`
	FirebaseCertsURL  string `env:"FIREBASE_CERTS_URL"`

	// Token cache (Redis)。未設定の場合はキャッシュしない
	RedisURL      string        `env:"REDIS_URL"`
	TokenCacheTTL time.Duration `env:"TOKEN_CACHE_TTL" envDefault:"5m"`

	// Server
	ServerPort        string        `env:"SERVER_PORT" envDefault:"5000"`
	ShutdownTimeout   time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
	CORSAllowedOrigin string        `env:"CORS_ALLOWED_ORIGIN" envDefault:"http://localhost:3000"`

	// Dashboard
	ExpiringSoonDays int `env:"EXPIRING_SOON_DAYS" envDefault:"7"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合や値が不正な場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if cfg.FirebaseCertsURL == "" {
		cfg.FirebaseCertsURL = DefaultFirebaseCertsURL
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate は値の組み合わせを検証する。
func (c *Config) validate() error {
	switch c.StoreDriver {
	case StoreDriverPostgres, StoreDriverMongo:
	default:
		return fmt.Errorf("unsupported STORE_DRIVER: %q (want %q or %q)", c.StoreDriver, StoreDriverPostgres, StoreDriverMongo)
	}

	if c.ExpiringSoonDays < 0 {
		return fmt.Errorf("EXPIRING_SOON_DAYS must not be negative: %d", c.ExpiringSoonDays)
	}

	if c.TokenCacheTTL <= 0 {
		return fmt.Errorf("TOKEN_CACHE_TTL must be positive: %s", c.TokenCacheTTL)
	}

	return nil
}

// TokenCacheEnabled はRedisによる検証済みトークンのキャッシュが有効かどうかを返す。
func (c *Config) TokenCacheEnabled() bool {
	return c.RedisURL != ""
}
