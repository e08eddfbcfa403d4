package ratelimit

import "context"

// Backend keys shared by every process writing to the same stores.
const (
	BackendStorage  = "storage"
	BackendMetadata = "metadata"
)

// RateLimiter throttles calls against a named backend on behalf of one owner.
type RateLimiter interface {
	Allow(ctx context.Context, backend, ownerID string) (bool, error)
	Wait(ctx context.Context, backend, ownerID string) error
}

// Budgets are calls per second. PerOwner caps any single owner within each backend.
type Budgets struct {
	Storage  int
	Metadata int
	PerOwner int
}

// Unlimited never throttles. Used by one-shot tooling that runs without Redis.
type Unlimited struct{}

func (Unlimited) Allow(context.Context, string, string) (bool, error) { return true, nil }

func (Unlimited) Wait(ctx context.Context, _, _ string) error {
	if ctx == nil {
		return nil
	}
	return ctx.Err()
}
