// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// MinJWTSecretLength はトークン署名鍵の最小バイト長。
const MinJWTSecretLength = 32

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string `env:"DATABASE_URL"`

	// Token
	JWTSecret     string        `env:"JWT_SECRET,required"`
	TokenLifetime time.Duration `env:"TOKEN_LIFETIME" envDefault:"3h"`
	BcryptCost    int           `env:"BCRYPT_COST" envDefault:"10"`

	// Server
	ServerPort     string   `env:"SERVER_PORT" envDefault:"8080"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envDefault:"http://localhost:3000" envSeparator:","`
	// リバースプロキシの背後でのみtrueにする
	TrustProxyHeaders bool `env:"TRUST_PROXY_HEADERS" envDefault:"false"`

	// WebSocket
	WSHeartbeatInterval time.Duration `env:"WS_HEARTBEAT_INTERVAL" envDefault:"10s"`
	WSOutboundQueue     int           `env:"WS_OUTBOUND_QUEUE" envDefault:"64"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Rate Limit（1分あたりのリクエスト数）
	RateLimitGeneral int `env:"RATE_LIMIT_GENERAL" envDefault:"120"`
	RateLimitLogin   int `env:"RATE_LIMIT_LOGIN" envDefault:"10"`
}

// Load は環境変数からConfigを読み込み、値を検証する。
// DATABASE_URLの要否は起動モードによるため、ここでは検証しない（RequireDatabaseを参照）。
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	origins := cfg.AllowedOrigins[:0]
	for _, o := range cfg.AllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	cfg.AllowedOrigins = origins

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if len(c.JWTSecret) < MinJWTSecretLength {
		errs = append(errs, fmt.Errorf("JWT_SECRET must be at least %d bytes", MinJWTSecretLength))
	}
	if c.TokenLifetime < time.Second {
		errs = append(errs, errors.New("TOKEN_LIFETIME must be at least 1s"))
	}
	if c.WSHeartbeatInterval < 0 {
		errs = append(errs, errors.New("WS_HEARTBEAT_INTERVAL must not be negative"))
	}
	if c.WSOutboundQueue <= 0 {
		errs = append(errs, errors.New("WS_OUTBOUND_QUEUE must be positive"))
	}
	if c.RateLimitGeneral <= 0 || c.RateLimitLogin <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_GENERAL and RATE_LIMIT_LOGIN must be positive"))
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		errs = append(errs, errors.New("BCRYPT_COST must be between 4 and 31"))
	}
	return errors.Join(errs...)
}

// RequireDatabase はPostgreSQLを使う起動モードでDATABASE_URLが設定されていることを検証する。
func (c *Config) RequireDatabase() error {
	if c.DatabaseURL == "" {
		return errors.New("required environment variables are not set: [DATABASE_URL]")
	}
	return nil
}
