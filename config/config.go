package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port string // default: 8080

	// Database
	PostgresDSN string

	// Cache
	RedisAddr string

	// Provider definitions
	ProvidersDir string // directory scanned once at startup, default: ./providers

	// Upstream
	UpstreamTimeout time.Duration // default: 60s

	// Observability
	OTELExporterType     string // "stdout" or "otlp"
	OTELExporterEndpoint string // default: "localhost:4317"

	// Rate Limiting
	DefaultRateLimitRPM int64 // requests per minute, default: 300

	// Audit
	AuditEncryptionKey string // hex-encoded 32-byte key; payload capture disabled when empty

	// Reconciliation sweep
	SweepSchedule  string        // cron spec, default: "@every 1m"
	PendingTimeout time.Duration // pending records older than this are refunded, default: 10m
}

func Load() (*Config, error) {
	// Load .env file if present (non-fatal if missing)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                 getEnv("PORT", "8080"),
		PostgresDSN:          os.Getenv("POSTGRES_DSN"),
		RedisAddr:            os.Getenv("REDIS_ADDR"),
		ProvidersDir:         getEnv("PROVIDERS_DIR", "./providers"),
		OTELExporterType:     getEnv("OTEL_EXPORTER_TYPE", "stdout"),
		OTELExporterEndpoint: getEnv("OTEL_EXPORTER_ENDPOINT", "localhost:4317"),
		AuditEncryptionKey:   os.Getenv("AUDIT_ENCRYPTION_KEY"),
		SweepSchedule:        getEnv("SWEEP_SCHEDULE", "@every 1m"),
	}

	timeoutStr := getEnv("UPSTREAM_TIMEOUT", "60s")
	timeout, err := time.ParseDuration(timeoutStr)
	if err != nil {
		return nil, fmt.Errorf("invalid UPSTREAM_TIMEOUT: %w", err)
	}
	cfg.UpstreamTimeout = timeout

	pendingStr := getEnv("PENDING_TIMEOUT", "10m")
	pending, err := time.ParseDuration(pendingStr)
	if err != nil {
		return nil, fmt.Errorf("invalid PENDING_TIMEOUT: %w", err)
	}
	cfg.PendingTimeout = pending

	rpmStr := getEnv("DEFAULT_RATE_LIMIT_RPM", "300")
	rpm, err := strconv.ParseInt(rpmStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid DEFAULT_RATE_LIMIT_RPM: %w", err)
	}
	cfg.DefaultRateLimitRPM = rpm

	// Validation
	if cfg.PostgresDSN == "" {
		return nil, fmt.Errorf("POSTGRES_DSN is required")
	}
	if cfg.RedisAddr == "" {
		return nil, fmt.Errorf("REDIS_ADDR is required")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
