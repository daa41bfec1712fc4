// Package config loads runtime settings for the fitapp binaries from the
// environment.
package config

import (
	"strings"
	"time"
)

// Config holds runtime settings for the API server.
type Config struct {
	Env      string
	LogLevel string

	HTTPAddr string
	// GRPCAddr enables the gRPC health endpoint when set.
	GRPCAddr string

	// PGDSN selects the Postgres credential store; empty means in-memory.
	PGDSN       string
	AutoMigrate bool

	AccessTokenSecret  string
	RefreshTokenSecret string
	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration
	TokenIssuer        string

	CookieSecure   bool
	AllowedOrigins []string

	RateBurst  int
	RatePerSec float64
	// TrustedProxies are CIDRs or addresses whose X-Forwarded-For is honored
	// when keying the rate limiter. Empty means the peer address is used.
	TrustedProxies []string
	MaxBodyBytes   int
}

// Defaults returns the development defaults.
func Defaults() Config {
	return Config{
		Env:             "development",
		LogLevel:        "info",
		HTTPAddr:        ":3500",
		AccessTokenTTL:  30 * time.Second,
		RefreshTokenTTL: 24 * time.Hour,
		TokenIssuer:     "fitapp",
		CookieSecure:    true,
		AllowedOrigins: []string{
			"http://localhost:3000",
			"http://127.0.0.1:3000",
		},
		RateBurst:    10,
		RatePerSec:   5,
		MaxBodyBytes: 1 << 20,
	}
}

// Load overlays FITAPP_* environment variables on Defaults.
func Load() Config {
	d := Defaults()
	return Config{
		Env:                strings.ToLower(EnvString("FITAPP_ENV", d.Env)),
		LogLevel:           EnvString("FITAPP_LOG_LEVEL", d.LogLevel),
		HTTPAddr:           EnvString("FITAPP_HTTP_ADDR", d.HTTPAddr),
		GRPCAddr:           EnvString("FITAPP_GRPC_ADDR", d.GRPCAddr),
		PGDSN:              EnvString("FITAPP_PG_DSN", d.PGDSN),
		AutoMigrate:        EnvBool("FITAPP_AUTO_MIGRATE", d.AutoMigrate),
		AccessTokenSecret:  EnvString("FITAPP_ACCESS_TOKEN_SECRET", ""),
		RefreshTokenSecret: EnvString("FITAPP_REFRESH_TOKEN_SECRET", ""),
		AccessTokenTTL:     EnvDuration("FITAPP_ACCESS_TOKEN_TTL", d.AccessTokenTTL),
		RefreshTokenTTL:    EnvDuration("FITAPP_REFRESH_TOKEN_TTL", d.RefreshTokenTTL),
		TokenIssuer:        EnvString("FITAPP_TOKEN_ISSUER", d.TokenIssuer),
		CookieSecure:       EnvBool("FITAPP_COOKIE_SECURE", d.CookieSecure),
		AllowedOrigins:     EnvList("FITAPP_ALLOWED_ORIGINS", d.AllowedOrigins),
		RateBurst:          EnvInt("FITAPP_RATE_BURST", d.RateBurst),
		RatePerSec:         EnvFloat("FITAPP_RATE_PER_SEC", d.RatePerSec),
		TrustedProxies:     EnvList("FITAPP_TRUSTED_PROXIES", d.TrustedProxies),
		MaxBodyBytes:       EnvInt("FITAPP_MAX_BODY_BYTES", d.MaxBodyBytes),
	}
}

// MissingSecrets lists the token secrets that are not configured. Startup
// continues without them; token operations then fail.
func (c Config) MissingSecrets() []string {
	var missing []string
	if c.AccessTokenSecret == "" {
		missing = append(missing, "FITAPP_ACCESS_TOKEN_SECRET")
	}
	if c.RefreshTokenSecret == "" {
		missing = append(missing, "FITAPP_REFRESH_TOKEN_SECRET")
	}
	return missing
}

func (c Config) IsDevelopment() bool { return c.Env == "development" }
