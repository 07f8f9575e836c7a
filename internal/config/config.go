package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	APIPort  string
	LogLevel string
	APIKey   string

	APIRateLimitRPS       float64
	APIRateLimitBurst     int
	APIMaxInflight        int
	APIBackpressureWaitMS int

	PostgresDSN string

	NATSURL                   string
	NATSAttachmentsSubject    string
	NATSGeneratedFilesSubject string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	StoragePath    string
	BlobBaseURL    string
	BlobTTLMinutes int

	AccessURLIssuerURL   string
	AccessURLIssuerPath  string
	AccessURLIssuerToken string
	FetchTimeoutSeconds  int
	FetchMaxBytes        int64

	AttachMaxFileBytes       int64
	AttachArchiveConcurrency int
	AttachFileConcurrency    int
	AttachMaxArchiveDepth    int
	AttachInferMemberTypes   bool

	ResilienceRetryMaxAttempts int
	ResilienceBreakerEnabled   bool

	WorkerMetricsPort string
}

func Load() Config {
	return Config{
		APIPort:  mustEnv("API_PORT", "8080"),
		LogLevel: mustEnv("LOG_LEVEL", "info"),
		APIKey:   mustEnv("API_KEY", ""),

		APIRateLimitRPS:       mustEnvFloat("API_RATE_LIMIT_RPS", 0),
		APIRateLimitBurst:     mustEnvInt("API_RATE_LIMIT_BURST", 20),
		APIMaxInflight:        mustEnvInt("API_MAX_INFLIGHT", 0),
		APIBackpressureWaitMS: mustEnvInt("API_BACKPRESSURE_WAIT_MS", 250),

		PostgresDSN: mustEnv("POSTGRES_DSN", ""),

		NATSURL:                   mustEnv("NATS_URL", ""),
		NATSAttachmentsSubject:    mustEnv("NATS_ATTACHMENTS_SUBJECT", "attachments.decoded"),
		NATSGeneratedFilesSubject: mustEnv("NATS_GENERATED_FILES_SUBJECT", "generated_files.received"),

		RedisAddr:     mustEnv("REDIS_ADDR", ""),
		RedisPassword: mustEnv("REDIS_PASSWORD", ""),
		RedisDB:       mustEnvInt("REDIS_DB", 0),

		StoragePath:    mustEnv("STORAGE_PATH", "./data/blobs"),
		BlobBaseURL:    mustEnv("BLOB_BASE_URL", "/v1/blobs/"),
		BlobTTLMinutes: mustEnvInt("STORAGE_BLOB_TTL_MINUTES", 60),

		AccessURLIssuerURL:   mustEnv("ACCESS_URL_ISSUER_URL", "http://localhost:8000"),
		AccessURLIssuerPath:  mustEnv("ACCESS_URL_ISSUER_PATH", "/api/files/download-url"),
		AccessURLIssuerToken: mustEnv("ACCESS_URL_ISSUER_TOKEN", ""),
		FetchTimeoutSeconds:  mustEnvInt("FETCH_TIMEOUT_SECONDS", 0),
		FetchMaxBytes:        mustEnvInt64("FETCH_MAX_BYTES", 64<<20),

		AttachMaxFileBytes:       mustEnvInt64("ATTACH_MAX_FILE_BYTES", 32<<20),
		AttachArchiveConcurrency: mustEnvInt("ATTACH_ARCHIVE_CONCURRENCY", 8),
		AttachFileConcurrency:    mustEnvInt("ATTACH_FILE_CONCURRENCY", 4),
		AttachMaxArchiveDepth:    mustEnvInt("ATTACH_MAX_ARCHIVE_DEPTH", 0),
		AttachInferMemberTypes:   mustEnvBool("ATTACH_INFER_MEMBER_TYPES", false),

		ResilienceRetryMaxAttempts: mustEnvInt("RESILIENCE_RETRY_MAX_ATTEMPTS", 1),
		ResilienceBreakerEnabled:   mustEnvBool("RESILIENCE_BREAKER_ENABLED", true),

		WorkerMetricsPort: mustEnv("WORKER_METRICS_PORT", "9090"),
	}
}

func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSeconds) * time.Second
}

func (c Config) BackpressureWait() time.Duration {
	return time.Duration(c.APIBackpressureWaitMS) * time.Millisecond
}

func (c Config) BlobTTL() time.Duration {
	return time.Duration(c.BlobTTLMinutes) * time.Minute
}

func mustEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func mustEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}
