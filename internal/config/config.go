// Package config provides configuration loading for the tripcue service.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the tripcue service.
type Config struct {
	// Server configuration
	Port          string
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	ShutdownGrace time.Duration

	// Redis configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// TripStore configuration
	TripStoreType string // "memory" or "redis"
	TripStoreTTL  time.Duration
	EventMaxLen   int64

	// Point reconciliation tiers. The quorum relationship
	// (1 <= hardMin <= softMin <= N, soft < hard) is validated by the
	// collector constructor, not here.
	SoftTimeout         time.Duration
	HardTimeout         time.Duration
	SoftMinimum         int
	HardMinimum         int
	MaxConcurrentPoints int

	// Agent retry policy
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	AttemptTimeout time.Duration

	// OIDC configuration
	OIDCIssuer       string
	OIDCClientID     string
	OIDCClientSecret string
	OIDCEnabled      bool

	// CORS configuration
	CORSOrigins []string

	// Rate limiting
	RateLimitRPS   float64
	RateLimitBurst int

	// Trip archive (S3/MinIO); disabled when the bucket is empty
	ArchiveBucket   string
	ArchiveEndpoint string
	ArchiveRegion   string
	ArchivePrefix   string

	// Tracing; disabled when the endpoint is empty
	OTLPEndpoint string

	// Logging
	LogLevel  string
	LogFormat string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		// Server
		Port:          getEnv("PORT", "7080"),
		ReadTimeout: getDuration("READ_TIMEOUT", 30*time.Second),
		// Zero keeps long-lived SSE responses from being cut off.
		WriteTimeout:  getDuration("WRITE_TIMEOUT", 0),
		ShutdownGrace: getDuration("SHUTDOWN_GRACE", 10*time.Second),

		// Redis
		RedisURL:      getEnv("REDIS_URL", "redis://localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getInt("REDIS_DB", 0),

		// TripStore
		TripStoreType: getEnv("TRIPCUE_TRIPSTORE", "memory"), // "memory" or "redis"
		TripStoreTTL:  getDuration("TRIPSTORE_TTL", 7*24*time.Hour),
		EventMaxLen:   getInt64("EVENT_MAX_LEN", 5000),

		// Reconciliation tiers
		SoftTimeout:         getDuration("TRIPCUE_SOFT_TIMEOUT", 5*time.Second),
		HardTimeout:         getDuration("TRIPCUE_HARD_TIMEOUT", 15*time.Second),
		SoftMinimum:         getInt("TRIPCUE_SOFT_MINIMUM", 2),
		HardMinimum:         getInt("TRIPCUE_HARD_MINIMUM", 1),
		MaxConcurrentPoints: getInt("TRIPCUE_MAX_CONCURRENT_POINTS", 4),

		// Agent retries
		MaxRetries:     getInt("AGENT_MAX_RETRIES", 1),
		InitialBackoff: getDuration("AGENT_BACKOFF_INITIAL", 200*time.Millisecond),
		MaxBackoff:     getDuration("AGENT_BACKOFF_MAX", 2*time.Second),
		AttemptTimeout: getDuration("AGENT_ATTEMPT_TIMEOUT", 4*time.Second),

		// OIDC
		OIDCIssuer:       getEnv("OIDC_ISSUER", ""),
		OIDCClientID:     getEnv("OIDC_CLIENT_ID", ""),
		OIDCClientSecret: getEnv("OIDC_CLIENT_SECRET", ""),
		OIDCEnabled:      getBool("OIDC_ENABLED", false),

		// CORS
		CORSOrigins: getStringSlice("CORS_ORIGINS", []string{"http://localhost:5173", "http://localhost:3000"}),

		// Rate limiting
		RateLimitRPS:   getFloat("RATE_LIMIT_RPS", 100.0),
		RateLimitBurst: getInt("RATE_LIMIT_BURST", 200),

		// Archive
		ArchiveBucket:   getEnv("ARCHIVE_BUCKET", ""),
		ArchiveEndpoint: getEnv("ARCHIVE_ENDPOINT", ""),
		ArchiveRegion:   getEnv("ARCHIVE_REGION", "us-east-1"),
		ArchivePrefix:   getEnv("ARCHIVE_PREFIX", "trips"),

		// Tracing
		OTLPEndpoint: getEnv("OTLP_ENDPOINT", ""),

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}
}

// Helper functions for environment variable parsing

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getInt64(key string, defaultVal int64) int64 {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			return i
		}
	}
	return defaultVal
}

func getFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func getStringSlice(key string, defaultVal []string) []string {
	if val := os.Getenv(key); val != "" {
		return strings.Split(val, ",")
	}
	return defaultVal
}
