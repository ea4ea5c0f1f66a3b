// Package config はアプリケーション設定の読み込みを提供する。
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/podstats/internal/model"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Tracking
	TrackingSalt string
	DedupMode    model.DedupMode
	DedupWindow  time.Duration

	// Geolocation（DedupModeClientの場合のみ使用）
	GeoIPEndpoint string
	GeoIPTimeout  time.Duration
	GeoIPCacheTTL time.Duration

	// Admin
	AdminToken string

	// Episode import
	FetchTimeout time.Duration
	FetchMaxSize int64

	// Feed discovery
	SiteURL string

	// Tracking proxy
	UpstreamOrigin string

	// Rate Limit
	RateLimitAdmin int

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.TrackingSalt = os.Getenv("TRACKING_SALT")
	if cfg.TrackingSalt == "" {
		missing = append(missing, "TRACKING_SALT")
	}

	cfg.AdminToken = os.Getenv("ADMIN_TOKEN")
	if cfg.AdminToken == "" {
		missing = append(missing, "ADMIN_TOKEN")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// 重複排除モード: platform（30分窓）または client（60分窓 + ジオロケーション）
	mode := model.DedupMode(getEnvString("DEDUP_MODE", string(model.DedupModePlatform)))
	if mode != model.DedupModePlatform && mode != model.DedupModeClient {
		return nil, fmt.Errorf("invalid DEDUP_MODE: %q (allowed: platform, client)", mode)
	}
	cfg.DedupMode = mode
	cfg.DedupWindow = getEnvDuration("DEDUP_WINDOW", mode.DefaultWindow())

	// Optional fields with defaults
	cfg.GeoIPEndpoint = getEnvString("GEOIP_ENDPOINT", "http://ip-api.com/json")
	cfg.GeoIPTimeout = getEnvDuration("GEOIP_TIMEOUT", 3*time.Second)
	cfg.GeoIPCacheTTL = getEnvDuration("GEOIP_CACHE_TTL", 7*24*time.Hour)
	cfg.FetchTimeout = getEnvDuration("FETCH_TIMEOUT", 10*time.Second)
	cfg.FetchMaxSize = getEnvInt64("FETCH_MAX_SIZE", 5242880)
	cfg.SiteURL = getEnvString("SITE_URL", "")
	cfg.UpstreamOrigin = getEnvString("UPSTREAM_ORIGIN", "")
	cfg.RateLimitAdmin = getEnvInt("RATE_LIMIT_ADMIN", 120)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.BaseURL = getEnvString("BASE_URL", "http://localhost:8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
