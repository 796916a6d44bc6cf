// Package config loads process configuration from the environment.
// In development .env and .env.local are read first; real environment
// variables always take precedence.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"openbadges/internal/credential"
	pstrings "openbadges/pkg/platform/strings"
	"openbadges/pkg/platform/validation"
)

// MasterKeySize is the required length of the envelope master key.
const MasterKeySize = 32

const (
	defaultAddr             = ":8080"
	defaultStatusListLength = 131072
	defaultKeyCacheSize     = 1024
	defaultKeyCacheTTL      = 10 * time.Minute
	defaultStatusCacheTTL   = 30 * time.Second
	defaultStatusRetries    = 5
	defaultAdminIssuer      = "openbadges-admin"
	defaultAdminAudience    = "openbadges"
	defaultMaxBodyBytes     = 8 << 20
	defaultRequestTimeout   = 30 * time.Second
	defaultShutdownTimeout  = 10 * time.Second
	defaultAuditBuffer      = 1024
	defaultCacheFailures    = 5
	defaultCacheCooldown    = 30 * time.Second
)

// DefaultContexts is the JSON-LD context order attached to issued credentials.
var DefaultContexts = credential.DefaultContexts()

// ErrMissingMasterKey is fatal: private keys cannot be stored or loaded without it.
var ErrMissingMasterKey = errors.New("BADGE_MASTER_KEY is required")

// Server captures process level configuration.
type Server struct {
	Addr               string
	LogLevel           string
	MasterKey          []byte
	DatabaseURL        string
	Redis              RedisConfig
	AdminJWTSecret     string
	AdminJWTIssuer     string
	AdminJWTAudience   string
	MaxBodyBytes       int64
	RequestTimeout     time.Duration
	ShutdownTimeout    time.Duration
	StatusListLength   int
	StatusListBaseURL  string
	StatusWriteRetries int
	StatusCacheTTL     time.Duration
	CacheBreaker       BreakerConfig
	AuditBufferSize    int
	KeyCacheSize       int
	KeyCacheTTL        time.Duration
	CredentialContexts []string
}

// RedisConfig holds Redis connection settings for the status list cache.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// BreakerConfig controls when the status cache is bypassed after Redis
// failures and how long before it is retried.
type BreakerConfig struct {
	FailureThreshold int
	Cooldown         time.Duration
}

// Load builds a Server config from environment variables so main stays lean.
func Load() (Server, error) {
	loadDotEnv()

	masterKey, err := parseMasterKey(os.Getenv("BADGE_MASTER_KEY"))
	if err != nil {
		return Server{}, err
	}

	cfg := Server{
		Addr:               envOr("BADGE_ADDR", defaultAddr),
		LogLevel:           envOr("BADGE_LOG_LEVEL", "info"),
		MasterKey:          masterKey,
		DatabaseURL:        os.Getenv("BADGE_DATABASE_URL"),
		AdminJWTSecret:     os.Getenv("BADGE_ADMIN_JWT_SECRET"),
		AdminJWTIssuer:     envOr("BADGE_ADMIN_JWT_ISSUER", defaultAdminIssuer),
		AdminJWTAudience:   envOr("BADGE_ADMIN_JWT_AUDIENCE", defaultAdminAudience),
		MaxBodyBytes:       int64(envInt("BADGE_MAX_BODY_BYTES", defaultMaxBodyBytes)),
		RequestTimeout:     envDuration("BADGE_REQUEST_TIMEOUT", defaultRequestTimeout),
		ShutdownTimeout:    envDuration("BADGE_SHUTDOWN_TIMEOUT", defaultShutdownTimeout),
		StatusListLength:   envInt("BADGE_STATUS_LIST_LENGTH", defaultStatusListLength),
		StatusListBaseURL:  strings.TrimRight(envOr("BADGE_STATUS_LIST_BASE_URL", "http://localhost:8080/v1/status-lists"), "/"),
		StatusWriteRetries: envInt("BADGE_STATUS_RETRIES", defaultStatusRetries),
		StatusCacheTTL:     envDuration("BADGE_STATUS_CACHE_TTL", defaultStatusCacheTTL),
		AuditBufferSize:    envInt("BADGE_AUDIT_BUFFER", defaultAuditBuffer),
		KeyCacheSize:       envInt("BADGE_KEY_CACHE_SIZE", defaultKeyCacheSize),
		KeyCacheTTL:        envDuration("BADGE_KEY_CACHE_TTL", defaultKeyCacheTTL),
		CredentialContexts: envList("BADGE_CREDENTIAL_CONTEXTS", DefaultContexts),
		CacheBreaker: BreakerConfig{
			FailureThreshold: envInt("BADGE_STATUS_CACHE_FAILURES", defaultCacheFailures),
			Cooldown:         envDuration("BADGE_STATUS_CACHE_COOLDOWN", defaultCacheCooldown),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("BADGE_REDIS_URL"),
			PoolSize:     envInt("BADGE_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("BADGE_REDIS_MIN_IDLE", 2),
			DialTimeout:  envDuration("BADGE_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("BADGE_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("BADGE_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
	}

	if err := validation.CheckSliceCount("BADGE_CREDENTIAL_CONTEXTS entries", len(cfg.CredentialContexts), validation.MaxContexts); err != nil {
		return Server{}, err
	}
	if cfg.StatusListLength <= 0 || cfg.StatusListLength%8 != 0 {
		return Server{}, fmt.Errorf("BADGE_STATUS_LIST_LENGTH must be a positive multiple of 8, got %d", cfg.StatusListLength)
	}
	return cfg, nil
}

func loadDotEnv() {
	for _, name := range []string{".env.local", ".env"} {
		if _, err := os.Stat(name); err != nil {
			continue
		}
		// godotenv.Load never overrides variables that are already set
		if err := godotenv.Load(name); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to load %s: %v\n", name, err)
		}
	}
}

func parseMasterKey(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrMissingMasterKey
	}
	key, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("BADGE_MASTER_KEY must be base64: %w", err)
	}
	if len(key) != MasterKeySize {
		return nil, fmt.Errorf("BADGE_MASTER_KEY must decode to %d bytes, got %d", MasterKeySize, len(key))
	}
	return key, nil
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

func envInt(name string, fallback int) int {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(name string, fallback time.Duration) time.Duration {
	if v := os.Getenv(name); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envList(name string, fallback []string) []string {
	if out := pstrings.SplitList(os.Getenv(name)); len(out) > 0 {
		return out
	}
	return append([]string(nil), fallback...)
}
