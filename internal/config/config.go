// Package config centralizes how CleanOps reads environment variables and
// exposes them as strongly typed Go values.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents runtime configuration shared by the API server, the export
// worker and the operator CLI. Not every binary uses every field.
type Config struct {
	Address     string
	Environment string

	// Backend REST collaborator.
	APIBaseURL   string
	APITimeout   time.Duration
	ServiceToken string

	// Photo attachments.
	PhotoBackend       string
	AssetUploadURL     string
	AssetUploadPreset  string
	MaxPhotoBytes      int64
	AllowedPhotoTypes  []string
	RequiredPhotoSlots []string

	// Local cache store.
	CacheTTL  time.Duration
	CachePath string

	// Export pipeline.
	DatabaseURL     string
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	S3Endpoint      string
	S3AccessKey     string
	S3SecretKey     string
	S3Region        string
	S3UseSSL        bool
	PhotoBucket     string
	ExportBucket    string
	PublicAssetBase string
	SignedURLTTL    time.Duration
	ProcessingPool  int

	FanoutLimit       int
	RateLimitRequests int
	RateLimitWindow   time.Duration

	LogLevel  string
	LogFormat string
}

const (
	envPrefix = "CLEANOPS_"

	defaultAddress       = ":8080"
	defaultAPIBaseURL    = "http://localhost:4000/api"
	defaultAPITimeout    = 15 * time.Second
	defaultPhotoBackend  = "imagehost"
	defaultMaxPhotoBytes = 5 << 20 // 5 MiB
	defaultAllowedTypes  = "image/jpeg,image/png,image/gif"
	defaultRequiredSlots = "before,after"
	defaultCacheTTL      = 12 * time.Hour
	defaultCachePath     = "cleanops-cache.db"
	defaultRedisAddr     = "localhost:6379"
	defaultS3Endpoint    = "localhost:9000"
	defaultS3Region      = "us-east-1"
	defaultPhotoBucket   = "cleanops-photos"
	defaultExportBucket  = "cleanops-exports"
	defaultSignedTTL     = 15 * time.Minute
	defaultWorkerCount   = 2
	defaultFanoutLimit   = 8
	defaultRateRequests  = 100
	defaultRateWindow    = time.Minute
)

// Load reads configuration from environment variables falling back to defaults.
// A .env file in the working directory is applied first when present; variables
// already set in the environment win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Address:     readEnv("ADDRESS", defaultAddress),
		Environment: readEnv("ENVIRONMENT", "development"),

		APIBaseURL:   strings.TrimRight(readEnv("API_BASE_URL", defaultAPIBaseURL), "/"),
		APITimeout:   parseDuration("API_TIMEOUT", defaultAPITimeout),
		ServiceToken: readEnv("SERVICE_TOKEN", ""),

		PhotoBackend:       strings.ToLower(readEnv("PHOTO_BACKEND", defaultPhotoBackend)),
		AssetUploadURL:     readEnv("ASSET_UPLOAD_URL", ""),
		AssetUploadPreset:  readEnv("ASSET_UPLOAD_PRESET", ""),
		MaxPhotoBytes:      parseInt64("MAX_PHOTO_BYTES", defaultMaxPhotoBytes),
		AllowedPhotoTypes:  parseList("ALLOWED_PHOTO_TYPES", defaultAllowedTypes),
		RequiredPhotoSlots: parseList("REQUIRED_PHOTO_SLOTS", defaultRequiredSlots),

		CacheTTL:  parseDuration("CACHE_TTL", defaultCacheTTL),
		CachePath: readEnv("CACHE_PATH", defaultCachePath),

		DatabaseURL:     readEnv("DATABASE_URL", ""),
		RedisAddr:       readEnv("REDIS_ADDR", defaultRedisAddr),
		RedisPassword:   readEnv("REDIS_PASSWORD", ""),
		RedisDB:         parseInt("REDIS_DB", 0),
		S3Endpoint:      readEnv("S3_ENDPOINT", defaultS3Endpoint),
		S3AccessKey:     readEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:     readEnv("S3_SECRET_KEY", ""),
		S3Region:        readEnv("S3_REGION", defaultS3Region),
		S3UseSSL:        parseBool("S3_USE_SSL", false),
		PhotoBucket:     readEnv("PHOTO_BUCKET", defaultPhotoBucket),
		ExportBucket:    readEnv("EXPORT_BUCKET", defaultExportBucket),
		PublicAssetBase: strings.TrimRight(readEnv("PUBLIC_ASSET_BASE", ""), "/"),
		SignedURLTTL:    parseDuration("SIGNED_URL_TTL", defaultSignedTTL),
		ProcessingPool:  parseInt("WORKERS", defaultWorkerCount),

		FanoutLimit:       parseInt("FANOUT_LIMIT", defaultFanoutLimit),
		RateLimitRequests: parseInt("RATE_LIMIT_REQUESTS", defaultRateRequests),
		RateLimitWindow:   parseDuration("RATE_LIMIT_WINDOW", defaultRateWindow),

		LogLevel:  readEnv("LOG_LEVEL", "info"),
		LogFormat: readEnv("LOG_FORMAT", "json"),
	}
	if cfg.ProcessingPool <= 0 {
		cfg.ProcessingPool = defaultWorkerCount
	}
	if cfg.MaxPhotoBytes <= 0 {
		cfg.MaxPhotoBytes = defaultMaxPhotoBytes
	}
	if cfg.SignedURLTTL <= 0 {
		cfg.SignedURLTTL = defaultSignedTTL
	}
	if cfg.FanoutLimit <= 0 {
		cfg.FanoutLimit = defaultFanoutLimit
	}
	if cfg.RateLimitRequests <= 0 {
		cfg.RateLimitRequests = defaultRateRequests
	}
	if cfg.RateLimitWindow <= 0 {
		cfg.RateLimitWindow = defaultRateWindow
	}
	return cfg, nil
}

// IsProduction reports whether the deployment runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func readEnv(key, def string) string {
	if v, ok := os.LookupEnv(envPrefix + key); ok && v != "" {
		return v
	}
	return def
}

func parseList(key, def string) []string {
	val := readEnv(key, def)
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseInt64(key string, def int64) int64 {
	if v := readEnv(key, ""); v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			return parsed
		}
	}
	return def
}

func parseInt(key string, def int) int {
	if v := readEnv(key, ""); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseBool(key string, def bool) bool {
	if v := readEnv(key, ""); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return def
}

// parseDuration understands inputs like "5m" or "30s"; a bare number is read
// as seconds.
func parseDuration(key string, def time.Duration) time.Duration {
	v := readEnv(key, "")
	if v == "" {
		return def
	}
	if parsed, err := time.ParseDuration(v); err == nil {
		return parsed
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return def
}
