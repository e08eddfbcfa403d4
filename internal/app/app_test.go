package app

import (
	"context"
	"errors"
	"testing"

	"github.com/kursadbilgin/docdrop/internal/config"
	"github.com/kursadbilgin/docdrop/internal/domain"
	"github.com/kursadbilgin/docdrop/internal/identity"
	"github.com/kursadbilgin/docdrop/internal/queue"
	"github.com/kursadbilgin/docdrop/internal/storage"
	"go.uber.org/zap"
)

func TestNewObjectStoreSelectsBackend(t *testing.T) {
	t.Parallel()

	fsStore, err := NewObjectStore(&config.Config{
		StorageBackend: config.StorageBackendFilesystem,
		StorageDir:     t.TempDir(),
	})
	if err != nil {
		t.Fatalf("NewObjectStore(filesystem) error = %v", err)
	}
	if _, ok := fsStore.(*storage.FilesystemStore); !ok {
		t.Fatalf("filesystem backend = %T", fsStore)
	}

	sbStore, err := NewObjectStore(&config.Config{
		StorageBackend:     config.StorageBackendSupabase,
		StorageBucket:      "documents",
		SupabaseURL:        "https://project.supabase.co",
		SupabaseServiceKey: "service-key",
	})
	if err != nil {
		t.Fatalf("NewObjectStore(supabase) error = %v", err)
	}
	if _, ok := sbStore.(*storage.SupabaseStore); !ok {
		t.Fatalf("supabase backend = %T", sbStore)
	}

	if _, err := NewObjectStore(&config.Config{StorageBackend: "tape"}); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestNewResolverSelection(t *testing.T) {
	t.Parallel()

	resolver, err := NewResolver(&config.Config{
		SupabaseURL:     "https://project.supabase.co",
		SupabaseAnonKey: "anon-key",
		StaticAuthToken: "dev-token",
		StaticAuthOwner: "owner-1",
	})
	if err != nil {
		t.Fatalf("NewResolver(supabase) error = %v", err)
	}
	if _, ok := resolver.(*identity.SupabaseResolver); !ok {
		t.Fatalf("resolver = %T, want supabase", resolver)
	}

	resolver, err = NewResolver(&config.Config{StaticAuthToken: "dev-token", StaticAuthOwner: "owner-1"})
	if err != nil {
		t.Fatalf("NewResolver(static) error = %v", err)
	}
	owner, err := resolver.Resolve(context.Background(), "dev-token")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if owner.ID != "owner-1" {
		t.Fatalf("owner = %q, want owner-1", owner.ID)
	}
	if _, err := resolver.Resolve(context.Background(), "other"); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("Resolve(other) error = %v, want ErrUnauthenticated", err)
	}

	if _, err := NewResolver(&config.Config{}); err == nil {
		t.Fatal("expected error without any identity provider")
	}
}

func TestNewPublisherWithoutURLIsNop(t *testing.T) {
	t.Parallel()

	publisher, err := NewPublisher(&config.Config{}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewPublisher() error = %v", err)
	}
	if _, ok := publisher.(queue.NopPublisher); !ok {
		t.Fatalf("publisher = %T, want NopPublisher", publisher)
	}
}

func TestPolicyUsesConfiguredSize(t *testing.T) {
	t.Parallel()

	policy := Policy(&config.Config{MaxFileSizeBytes: 10})
	if policy.MaxFileSize != 10 {
		t.Fatalf("MaxFileSize = %d, want 10", policy.MaxFileSize)
	}
	if len(policy.AllowedExtensions) != len(domain.DefaultAllowedExtensions) {
		t.Fatalf("allowed extensions = %v", policy.AllowedExtensions)
	}

	unlimited := Policy(&config.Config{})
	big := domain.FileHandle{Name: "big.pdf", Size: 1 << 40, Source: domain.NewBytesSource([]byte("x"))}
	if err := unlimited.Check(big); err != nil {
		t.Fatalf("zero size ceiling should disable the check, got %v", err)
	}
}

func TestInfraCloseOnEmpty(t *testing.T) {
	t.Parallel()

	var nilInfra *Infra
	if err := nilInfra.Close(); err != nil {
		t.Fatalf("nil Close() error = %v", err)
	}
	if err := (&Infra{}).Close(); err != nil {
		t.Fatalf("empty Close() error = %v", err)
	}
}

func TestOpenRequiresConfig(t *testing.T) {
	t.Parallel()

	if _, err := Open(nil, zap.NewNop()); err == nil {
		t.Fatal("expected error for nil config")
	}
}
