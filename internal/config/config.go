package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/kursadbilgin/docdrop/internal/ratelimit"
)

const (
	StorageBackendFilesystem = "filesystem"
	StorageBackendSupabase   = "supabase"
)

type Config struct {
	DatabaseDSN         string `env:"DATABASE_DSN,required=true"`
	RedisURL            string `env:"REDIS_URL,required=true"`
	RabbitMQURL         string `env:"RABBITMQ_URL"`
	StorageBackend      string `env:"STORAGE_BACKEND,default=filesystem"`
	StorageDir          string `env:"STORAGE_DIR,default=./data/objects"`
	StorageBucket       string `env:"STORAGE_BUCKET,default=documents"`
	SupabaseURL         string `env:"SUPABASE_URL"`
	SupabaseServiceKey  string `env:"SUPABASE_SERVICE_KEY"`
	SupabaseAnonKey     string `env:"SUPABASE_ANON_KEY"`
	StaticAuthToken     string `env:"STATIC_AUTH_TOKEN"`
	StaticAuthOwner     string `env:"STATIC_AUTH_OWNER"`
	StorageRateLimit    int    `env:"STORAGE_RATE_LIMIT_PER_SEC,default=100"`
	MetadataRateLimit   int    `env:"METADATA_RATE_LIMIT_PER_SEC,default=200"`
	OwnerRateLimit      int    `env:"OWNER_RATE_LIMIT_PER_SEC,default=25"`
	WorkerConcurrency   int    `env:"WORKER_CONCURRENCY,default=4"`
	MaxFileSizeBytes    int64  `env:"MAX_FILE_SIZE_BYTES,default=52428800"`
	SessionTTLSec       int    `env:"SESSION_TTL,default=3600"`
	OrphanSweepInterval int    `env:"ORPHAN_SWEEP_INTERVAL,default=60"`
	APIPort             int    `env:"API_PORT,default=8080"`
	LogLevel            string `env:"LOG_LEVEL,default=info"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env file: %w", err)
	}

	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLSec) * time.Second
}

func (c *Config) OrphanSweepEvery() time.Duration {
	return time.Duration(c.OrphanSweepInterval) * time.Second
}

// RateBudgets returns the per-second budgets for the shared rate limiter.
func (c *Config) RateBudgets() ratelimit.Budgets {
	return ratelimit.Budgets{
		Storage:  c.StorageRateLimit,
		Metadata: c.MetadataRateLimit,
		PerOwner: c.OwnerRateLimit,
	}
}

func (c *Config) validate() error {
	switch c.StorageBackend {
	case StorageBackendFilesystem:
	case StorageBackendSupabase:
		if c.SupabaseURL == "" || c.SupabaseServiceKey == "" {
			return fmt.Errorf("SUPABASE_URL and SUPABASE_SERVICE_KEY are required for the supabase storage backend")
		}
	default:
		return fmt.Errorf("unsupported STORAGE_BACKEND %q", c.StorageBackend)
	}
	if (c.StaticAuthToken == "") != (c.StaticAuthOwner == "") {
		return fmt.Errorf("STATIC_AUTH_TOKEN and STATIC_AUTH_OWNER must be set together")
	}
	if c.StorageRateLimit <= 0 || c.MetadataRateLimit <= 0 || c.OwnerRateLimit <= 0 {
		return fmt.Errorf("rate limits must be > 0")
	}
	if c.MaxFileSizeBytes < 0 {
		return fmt.Errorf("MAX_FILE_SIZE_BYTES must be >= 0")
	}
	return nil
}
