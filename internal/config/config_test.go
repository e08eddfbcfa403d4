package config

import (
	"os"
	"testing"
	"time"

	"github.com/kursadbilgin/docdrop/internal/ratelimit"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_DSN", "host=localhost user=test password=test dbname=test port=5432 sslmode=disable")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.APIPort != 8080 {
		t.Errorf("APIPort = %d, want 8080", cfg.APIPort)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %s, want info", cfg.LogLevel)
	}
	if got := cfg.RateBudgets(); got != (ratelimit.Budgets{Storage: 100, Metadata: 200, PerOwner: 25}) {
		t.Errorf("RateBudgets() = %+v, want storage 100, metadata 200, owner 25", got)
	}
	if cfg.WorkerConcurrency != 4 {
		t.Errorf("WorkerConcurrency = %d, want 4", cfg.WorkerConcurrency)
	}
	if cfg.StorageBackend != StorageBackendFilesystem {
		t.Errorf("StorageBackend = %s, want filesystem", cfg.StorageBackend)
	}
	if cfg.StorageBucket != "documents" {
		t.Errorf("StorageBucket = %s, want documents", cfg.StorageBucket)
	}
	if cfg.MaxFileSizeBytes != 50*1024*1024 {
		t.Errorf("MaxFileSizeBytes = %d, want 52428800", cfg.MaxFileSizeBytes)
	}
	if cfg.SessionTTL() != time.Hour {
		t.Errorf("SessionTTL() = %s, want 1h", cfg.SessionTTL())
	}
	if cfg.OrphanSweepEvery() != time.Minute {
		t.Errorf("OrphanSweepEvery() = %s, want 1m", cfg.OrphanSweepEvery())
	}
}

func TestLoad_CustomValues(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("API_PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("WORKER_CONCURRENCY", "8")
	t.Setenv("STORAGE_BACKEND", "supabase")
	t.Setenv("SUPABASE_URL", "https://project.supabase.co")
	t.Setenv("SUPABASE_SERVICE_KEY", "service-key")
	t.Setenv("STORAGE_RATE_LIMIT_PER_SEC", "10")
	t.Setenv("METADATA_RATE_LIMIT_PER_SEC", "40")
	t.Setenv("OWNER_RATE_LIMIT_PER_SEC", "5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.APIPort != 9090 {
		t.Errorf("APIPort = %d, want 9090", cfg.APIPort)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %s, want debug", cfg.LogLevel)
	}
	if cfg.WorkerConcurrency != 8 {
		t.Errorf("WorkerConcurrency = %d, want 8", cfg.WorkerConcurrency)
	}
	if cfg.StorageBackend != StorageBackendSupabase {
		t.Errorf("StorageBackend = %s, want supabase", cfg.StorageBackend)
	}
	if got := cfg.RateBudgets(); got != (ratelimit.Budgets{Storage: 10, Metadata: 40, PerOwner: 5}) {
		t.Errorf("RateBudgets() = %+v, want storage 10, metadata 40, owner 5", got)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	t.Setenv("DATABASE_DSN", "host=localhost")
	t.Setenv("REDIS_URL", "")
	os.Unsetenv("REDIS_URL")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for missing required env vars, got nil")
	}
}

func TestLoad_SupabaseBackendRequiresCredentials(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("STORAGE_BACKEND", "supabase")
	t.Setenv("SUPABASE_URL", "")
	t.Setenv("SUPABASE_SERVICE_KEY", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for supabase backend without credentials")
	}
}

func TestLoad_UnknownBackend(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("STORAGE_BACKEND", "tape")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for unsupported storage backend")
	}
}

func TestLoad_StaticAuthMustBePaired(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("STATIC_AUTH_TOKEN", "dev-token")
	t.Setenv("STATIC_AUTH_OWNER", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for static token without owner")
	}

	t.Setenv("STATIC_AUTH_OWNER", "owner-1")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.StaticAuthToken != "dev-token" || cfg.StaticAuthOwner != "owner-1" {
		t.Fatalf("static auth = %q/%q", cfg.StaticAuthToken, cfg.StaticAuthOwner)
	}
}

func TestLoad_RateLimitsMustBePositive(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("OWNER_RATE_LIMIT_PER_SEC", "0")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for zero owner rate limit")
	}
}
