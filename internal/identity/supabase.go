package identity

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/kursadbilgin/docdrop/internal/domain"
)

const defaultTimeout = 5 * time.Second

var _ Resolver = (*SupabaseResolver)(nil)

// SupabaseResolver asks the Supabase auth service who owns a session token.
type SupabaseResolver struct {
	client  *resty.Client
	baseURL string
	anonKey string
}

type supabaseUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

func NewSupabaseResolver(baseURL, anonKey string) (*SupabaseResolver, error) {
	client := resty.New()
	client.SetTimeout(defaultTimeout)
	return NewSupabaseResolverWithClient(baseURL, anonKey, client)
}

func NewSupabaseResolverWithClient(baseURL, anonKey string, client *resty.Client) (*SupabaseResolver, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("supabase url is required")
	}
	if strings.TrimSpace(anonKey) == "" {
		return nil, fmt.Errorf("supabase anon key is required")
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	return &SupabaseResolver{
		client:  client,
		baseURL: baseURL,
		anonKey: anonKey,
	}, nil
}

func (r *SupabaseResolver) Resolve(ctx context.Context, token string) (domain.Owner, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.Owner{}, fmt.Errorf("%w: missing token", domain.ErrUnauthenticated)
	}

	var user supabaseUser
	resp, err := r.client.R().
		SetContext(ctx).
		SetHeader("apikey", r.anonKey).
		SetAuthToken(token).
		SetResult(&user).
		Get(r.baseURL + "/auth/v1/user")
	if err != nil {
		return domain.Owner{}, fmt.Errorf("identity lookup failed: %w", err)
	}

	switch code := resp.StatusCode(); {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return domain.Owner{}, fmt.Errorf("%w: token rejected", domain.ErrUnauthenticated)
	case code < 200 || code >= 300:
		return domain.Owner{}, fmt.Errorf("identity lookup failed: status %d: %s", code, strings.TrimSpace(resp.String()))
	}

	owner := domain.Owner{ID: strings.TrimSpace(user.ID), Email: user.Email}
	if !owner.IsAuthenticated() {
		return domain.Owner{}, fmt.Errorf("%w: no user for token", domain.ErrUnauthenticated)
	}
	return owner, nil
}
