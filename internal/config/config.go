// Package config は環境変数ベースのアプリケーション設定を提供する。
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定。起動時に1回読み込み、以後変更しない。
type Config struct {
	// Database
	DatabaseURL string

	// Session
	SessionMaxAge int // セッション有効期間（秒）

	// Auth
	PasswordMinLength    int
	ConfirmationTokenTTL time.Duration

	// Rate Limit
	RateLimitGeneral    int // req/min/user
	RateLimitTaskCreate int // req/min/user

	// Cleanup
	SessionCleanupInterval time.Duration

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string

	// Logging
	LogLevel string
}

// Load は環境変数からConfigを組み立てる。
// DATABASE_URLとBASE_URLは必須で、どちらかが欠けるとエラーになる。
// それ以外は未設定・不正値の場合にデフォルトへフォールバックする。
func Load() (*Config, error) {
	databaseURL := os.Getenv("DATABASE_URL")
	baseURL := os.Getenv("BASE_URL")

	var missing []string
	if databaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if baseURL == "" {
		missing = append(missing, "BASE_URL")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	return &Config{
		DatabaseURL: databaseURL,
		BaseURL:     baseURL,

		SessionMaxAge:        envInt("SESSION_MAX_AGE", 86400),
		PasswordMinLength:    envInt("PASSWORD_MIN_LENGTH", 8),
		ConfirmationTokenTTL: envDuration("CONFIRMATION_TOKEN_TTL", 24*time.Hour),

		RateLimitGeneral:    envInt("RATE_LIMIT_GENERAL", 120),
		RateLimitTaskCreate: envInt("RATE_LIMIT_TASK_CREATE", 30),

		SessionCleanupInterval: envDuration("SESSION_CLEANUP_INTERVAL", 24*time.Hour),

		ServerPort: envString("SERVER_PORT", "8080"),

		// Secure属性は公開URLのスキームから導出する。ローカル開発（http）では
		// Secure Cookieがブラウザに保存されないため。
		CookieSecure: strings.HasPrefix(baseURL, "https://"),
		CookieDomain: envString("COOKIE_DOMAIN", ""),

		CORSAllowedOrigin: envString("CORS_ALLOWED_ORIGIN", "http://localhost:3000"),
		LogLevel:          envString("LOG_LEVEL", "info"),
	}, nil
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	i, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return i
}

func envDuration(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return d
}
