package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	AWS      AWSConfig
	Platform PlatformConfig
	Sites    SitesConfig
	Pipeline PipelineConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
}

// RedisConfig holds Redis connection settings. Empty Addr disables cross-instance fan-out and the sweep lock.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds the secret used to validate admin/approver tokens.
type JWTConfig struct {
	Secret      string
	ExpireHours int
}

// AWSConfig holds AWS credentials, the artifact bucket and the SSM prefix for site secrets.
type AWSConfig struct {
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	RecordingsBucket     string
	PresignExpireMinutes int
	SSMPrefix            string
}

// PlatformConfig points at the video-meeting platform REST API.
type PlatformConfig struct {
	BaseURL     string
	TokenURL    string
	HTTPTimeout time.Duration
}

// SitesConfig locates the site registry file.
type SitesConfig struct {
	Path  string
	Watch bool
}

// PipelineConfig holds ingestion, retry and live-update tuning.
type PipelineConfig struct {
	TokenSkew               time.Duration
	TranscriptRetryInterval time.Duration
	TranscriptMaxAttempts   int
	SweepConcurrency        int
	SweepItemTimeout        time.Duration
	SweepBatchSize          int
	SweepLockTTL            time.Duration
	WebhookBudget           time.Duration
	ProcessTimeout          time.Duration
	KeepAliveInterval       time.Duration
	SweepSecret             string
	WebhookSecret           string
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 0), // SSE streams are long-lived
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "practicetools"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: getEnvInt("DB_MAX_CONNS", 10),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "change-me-in-production"),
			ExpireHours: getEnvInt("JWT_EXPIRE_HOURS", 24),
		},
		AWS: AWSConfig{
			Region:               getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:          getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey:      getEnv("AWS_SECRET_ACCESS_KEY", ""),
			RecordingsBucket:     getEnv("AWS_S3_RECORDINGS_BUCKET", "practicetools-recordings"),
			PresignExpireMinutes: getEnvInt("AWS_PRESIGN_EXPIRE_MINUTES", 15),
			SSMPrefix:            getEnv("AWS_SSM_PREFIX", "/practicetools"),
		},
		Platform: PlatformConfig{
			BaseURL:     getEnv("PLATFORM_API_BASE_URL", "https://webexapis.com/v1"),
			TokenURL:    getEnv("PLATFORM_TOKEN_URL", "https://webexapis.com/v1/access_token"),
			HTTPTimeout: getEnvDuration("PLATFORM_HTTP_TIMEOUT", 60*time.Second),
		},
		Sites: SitesConfig{
			Path:  getEnv("SITES_CONFIG_PATH", "sites.yaml"),
			Watch: getEnvBool("SITES_CONFIG_WATCH", true),
		},
		Pipeline: PipelineConfig{
			TokenSkew:               getEnvDuration("TOKEN_REFRESH_SKEW", 5*time.Minute),
			TranscriptRetryInterval: getEnvDuration("TRANSCRIPT_RETRY_INTERVAL", 5*time.Minute),
			TranscriptMaxAttempts:   getEnvInt("TRANSCRIPT_MAX_ATTEMPTS", 288),
			SweepConcurrency:        getEnvInt("SWEEP_CONCURRENCY", 5),
			SweepItemTimeout:        getEnvDuration("SWEEP_ITEM_TIMEOUT", 2*time.Minute),
			SweepBatchSize:          getEnvInt("SWEEP_BATCH_SIZE", 200),
			SweepLockTTL:            getEnvDuration("SWEEP_LOCK_TTL", 10*time.Minute),
			WebhookBudget:           getEnvDuration("WEBHOOK_BUDGET", 25*time.Second),
			ProcessTimeout:          getEnvDuration("WEBHOOK_PROCESS_TIMEOUT", 15*time.Minute),
			KeepAliveInterval:       getEnvDuration("SSE_KEEPALIVE_INTERVAL", 30*time.Second),
			SweepSecret:             getEnv("CRON_SECRET", ""),
			WebhookSecret:           getEnv("WEBHOOK_SECRET", ""),
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that values are sane.
func (c *Config) Validate() error {
	if c.Pipeline.TranscriptMaxAttempts <= 0 {
		return fmt.Errorf("TRANSCRIPT_MAX_ATTEMPTS must be > 0")
	}
	if c.Pipeline.TranscriptRetryInterval <= 0 {
		return fmt.Errorf("TRANSCRIPT_RETRY_INTERVAL must be > 0")
	}
	if c.Pipeline.SweepConcurrency <= 0 {
		return fmt.Errorf("SWEEP_CONCURRENCY must be > 0")
	}
	if c.Sites.Path == "" {
		return fmt.Errorf("SITES_CONFIG_PATH is required")
	}
	return nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvDuration accepts Go duration strings ("5m") or plain seconds ("300").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
