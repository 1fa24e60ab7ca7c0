package app

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/quillboard/quillboard/pkg/tokenx"
)

type Config struct {
	// Gate behaviour
	AuthRequired   bool     // AUTH_REQUIRED: gate protected routes (default: true)
	ExcludedRoutes []string // AUTH_EXCLUDED_ROUTES: comma-separated paths exempt from gating
	GateFailClosed bool     // GATE_FAIL_CLOSED: redirect instead of allow on gate errors (default: false)
	LoginPath      string   // LOGIN_PATH: where anonymous browsers are sent (default: /login)

	// Identity backend selection
	AuthBackend string // AUTH_BACKEND: "local" or "remote" (default: local)

	// Credentials
	TokenSecret       string        // AUTH_TOKEN_SECRET: HS256 shared secret (required when gating)
	AccessCookieName  string        // ACCESS_COOKIE_NAME (default: access_token)
	RefreshCookieName string        // REFRESH_COOKIE_NAME (default: refresh_token)
	AccessTokenTTL    time.Duration // ACCESS_TOKEN_TTL (default: 15m)
	RefreshTokenTTL   time.Duration // REFRESH_TOKEN_TTL (default: 168h)

	// Remote identity service (AUTH_BACKEND=remote)
	IdentityBaseURL string        // IDENTITY_BASE_URL: e.g. https://id.internal
	IdentityAppID   string        // IDENTITY_APP_ID: application identifier sent on login
	IdentityTimeout time.Duration // IDENTITY_TIMEOUT (default: 5s)

	// Local identity store (AUTH_BACKEND=local)
	DatabaseFile  string // GATEWAY_DATABASE_FILE (default: gateway.db)
	PepperFile    string // GATEWAY_PEPPER_FILE (default: pepper)
	AdminEmail    string // ADMIN_EMAIL: seed admin account when the store is empty
	AdminPassword string // ADMIN_PASSWORD
	AdminName     string // ADMIN_NAME (default: Administrator)

	Env                 string        // Environment (dev, staging, prod) (default: dev)
	LogLevel            string        // Log level (debug, info, warn, error) (default: info)
	LogFormat           string        // Log format (json, text) (default: json)
	Port                int           // HTTP server port (default: 8080)
	ShutdownGracePeriod time.Duration // Graceful shutdown timeout (default: 10s)
}

func LoadConfig() Config {
	return Config{
		AuthRequired:   getEnvBoolOrDefault("AUTH_REQUIRED", true),
		ExcludedRoutes: getEnvListOrDefault("AUTH_EXCLUDED_ROUTES", nil),
		GateFailClosed: getEnvBoolOrDefault("GATE_FAIL_CLOSED", false),
		LoginPath:      getEnvOrDefault("LOGIN_PATH", "/login"),

		AuthBackend: getEnvOrDefault("AUTH_BACKEND", "local"),

		TokenSecret:       os.Getenv("AUTH_TOKEN_SECRET"),
		AccessCookieName:  getEnvOrDefault("ACCESS_COOKIE_NAME", "access_token"),
		RefreshCookieName: getEnvOrDefault("REFRESH_COOKIE_NAME", "refresh_token"),
		AccessTokenTTL:    getEnvDurationOrDefault("ACCESS_TOKEN_TTL", tokenx.DefaultAccessTTL),
		RefreshTokenTTL:   getEnvDurationOrDefault("REFRESH_TOKEN_TTL", tokenx.DefaultRefreshTTL),

		IdentityBaseURL: os.Getenv("IDENTITY_BASE_URL"),
		IdentityAppID:   os.Getenv("IDENTITY_APP_ID"),
		IdentityTimeout: getEnvDurationOrDefault("IDENTITY_TIMEOUT", 5*time.Second),

		DatabaseFile:  getEnvOrDefault("GATEWAY_DATABASE_FILE", "gateway.db"),
		PepperFile:    getEnvOrDefault("GATEWAY_PEPPER_FILE", "pepper"),
		AdminEmail:    os.Getenv("ADMIN_EMAIL"),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),
		AdminName:     getEnvOrDefault("ADMIN_NAME", "Administrator"),

		Env:                 getEnvOrDefault("ENV", "dev"),
		LogLevel:            getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:           getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod: getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if boolValue, err := strconv.ParseBool(value); err == nil {
		return boolValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Try parsing as integer seconds
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}

	return defaultValue
}

func getEnvListOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var out []string
	for part := range strings.SplitSeq(value, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
