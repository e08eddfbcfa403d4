package redis

import (
	"context"
	"fmt"
	"strings"

	goredis "github.com/redis/go-redis/v9"
)

const orphanSetKey = "docdrop:orphans"

// OrphanRegistry remembers object paths whose metadata write failed.
// Entries live in a single Redis set so any process can sweep them.
type OrphanRegistry struct {
	client *goredis.Client
	key    string
}

func NewOrphanRegistry(client *goredis.Client) (*OrphanRegistry, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	return &OrphanRegistry{client: client, key: orphanSetKey}, nil
}

func (r *OrphanRegistry) Record(ctx context.Context, objectPath string) error {
	objectPath = strings.TrimSpace(objectPath)
	if objectPath == "" {
		return fmt.Errorf("object path is required")
	}
	if err := r.client.SAdd(ctx, r.key, objectPath).Err(); err != nil {
		return fmt.Errorf("failed to record orphan %q: %w", objectPath, err)
	}
	return nil
}

// List returns up to limit recorded paths. A non-positive limit returns every path.
func (r *OrphanRegistry) List(ctx context.Context, limit int) ([]string, error) {
	var (
		paths []string
		err   error
	)
	if limit > 0 {
		paths, err = r.client.SRandMemberN(ctx, r.key, int64(limit)).Result()
	} else {
		paths, err = r.client.SMembers(ctx, r.key).Result()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list orphans: %w", err)
	}
	return paths, nil
}

func (r *OrphanRegistry) Forget(ctx context.Context, objectPath string) error {
	if err := r.client.SRem(ctx, r.key, objectPath).Err(); err != nil {
		return fmt.Errorf("failed to forget orphan %q: %w", objectPath, err)
	}
	return nil
}

func (r *OrphanRegistry) Count(ctx context.Context) (int64, error) {
	n, err := r.client.SCard(ctx, r.key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count orphans: %w", err)
	}
	return n, nil
}
