// Package config はアプリケーション全体の設定を環境変数から読み込みます。
package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"ohlcv_backend/internal/platform/db"
	"ohlcv_backend/internal/platform/externalapi/binance"
	"ohlcv_backend/internal/platform/redis"
)

// ストアの種類
const (
	StoreGorm  = "gorm"
	StorePgx   = "pgx"
	StoreRedis = "redis"
)

// スロットルの種類
const (
	ThrottleFixed       = "fixed"
	ThrottleTokenBucket = "token_bucket"
	ThrottleWindow      = "window"
)

// 取引所クライアントの種類
const (
	ClientREST = "rest"
	ClientSDK  = "sdk"
)

// Config はアプリケーションの設定です。
type Config struct {
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	Store   StoreConfig
	DB      db.Config
	Redis   redis.Config
	Binance binance.Config `envPrefix:"BINANCE_"`
	Ingest  IngestConfig   `envPrefix:"INGEST_"`
}

// StoreConfig はローソク足の保存先とキャッシュの設定です。
type StoreConfig struct {
	Driver       string        `env:"STORE_DRIVER" envDefault:"gorm"`
	CacheEnabled bool          `env:"CACHE_ENABLED" envDefault:"true"`
	CacheTTL     time.Duration `env:"CACHE_TTL" envDefault:"5m"`
}

// IngestConfig は取り込み処理のスロットルと並列度の設定です。
type IngestConfig struct {
	Throttle    string        `env:"THROTTLE" envDefault:"fixed"`
	Delay       time.Duration `env:"DELAY" envDefault:"200ms"`
	RPS         float64       `env:"RPS" envDefault:"5"`
	Burst       int           `env:"BURST" envDefault:"1"`
	WindowLimit int           `env:"WINDOW_LIMIT" envDefault:"1200"`
	Window      time.Duration `env:"WINDOW" envDefault:"1m"`
	Concurrency int           `env:"CONCURRENCY" envDefault:"4"`
}

// Load は .env があれば読み込んだうえで環境変数を解析します。
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug(".env not found; using system environment variables")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate は列挙値の設定を検証します。
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case StoreGorm, StorePgx, StoreRedis:
	default:
		return fmt.Errorf("invalid STORE_DRIVER %q", c.Store.Driver)
	}
	switch c.Ingest.Throttle {
	case ThrottleFixed, ThrottleTokenBucket, ThrottleWindow:
	default:
		return fmt.Errorf("invalid INGEST_THROTTLE %q", c.Ingest.Throttle)
	}
	switch c.Binance.Client {
	case ClientREST, ClientSDK:
	default:
		return fmt.Errorf("invalid BINANCE_CLIENT %q", c.Binance.Client)
	}
	if c.Ingest.Concurrency <= 0 {
		return fmt.Errorf("INGEST_CONCURRENCY must be positive, got %d", c.Ingest.Concurrency)
	}
	return nil
}

// SlogLevel は LOG_LEVEL を slog のレベルに変換します。不明な値は info になります。
func (c *Config) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
