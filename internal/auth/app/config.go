package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Issuer      string // Issuer claim for tokens and otpauth:// URLs
	TokenSecret string // HS256 key; generated ephemerally when unset

	RPID      string   // WebAuthn relying-party id (default: localhost)
	RPName    string   // WebAuthn display name
	RPOrigins []string // Allowed WebAuthn origins

	DatabaseFile     string // Path to SQLite database file (default: ./gatehouse.db)
	ChallengeBackend string // Challenge store backend: sqlite or redis (default: sqlite)
	RedisAddr        string // Redis address, required when ChallengeBackend is redis

	PendingTokenTTL time.Duration // Pending token lifetime (default: 5m)
	AccessTokenTTL  time.Duration // Access token lifetime (default: 60m)
	RefreshTokenTTL time.Duration // Refresh token lifetime (default: 7d)

	Env                 string        // Environment (dev, staging, prod) (default: dev)
	LogLevel            string        // Log level (debug, info, warn, error) (default: info)
	LogFormat           string        // Log format (json, text) (default: json)
	Port                int           // HTTP server port (default: 8080)
	ShutdownGracePeriod time.Duration // Graceful shutdown timeout (default: 10s)
	SweepInterval       time.Duration // Expiry sweep interval (default: 60s)
}

func LoadConfig() Config {
	cfg := Config{
		Issuer:              getEnvOrDefault("GATEHOUSE_ISSUER", "gatehouse"),
		TokenSecret:         os.Getenv("GATEHOUSE_TOKEN_SECRET"),
		RPID:                getEnvOrDefault("GATEHOUSE_RP_ID", "localhost"),
		RPName:              getEnvOrDefault("GATEHOUSE_RP_NAME", "Gatehouse"),
		DatabaseFile:        getEnvOrDefault("GATEHOUSE_DATABASE_FILE", "gatehouse.db"),
		ChallengeBackend:    getEnvOrDefault("GATEHOUSE_CHALLENGE_BACKEND", "sqlite"),
		RedisAddr:           getEnvOrDefault("GATEHOUSE_REDIS_ADDR", "localhost:6379"),
		PendingTokenTTL:     getEnvDurationOrDefault("GATEHOUSE_PENDING_TTL", 0),
		AccessTokenTTL:      getEnvDurationOrDefault("GATEHOUSE_ACCESS_TTL", 0),
		RefreshTokenTTL:     getEnvDurationOrDefault("GATEHOUSE_REFRESH_TTL", 0),
		Env:                 getEnvOrDefault("ENV", "dev"),
		LogLevel:            getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:           getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod: getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		SweepInterval:       getEnvDurationOrDefault("GATEHOUSE_SWEEP_INTERVAL", 60*time.Second),
	}

	origins := os.Getenv("GATEHOUSE_RP_ORIGINS")
	if origins == "" {
		origins = "http://localhost:" + strconv.Itoa(cfg.Port)
	}
	for _, o := range strings.Split(origins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.RPOrigins = append(cfg.RPOrigins, o)
		}
	}

	return cfg
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

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}
	return defaultValue
}
