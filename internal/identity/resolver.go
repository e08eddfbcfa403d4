package identity

import (
	"context"
	"fmt"
	"strings"

	"github.com/kursadbilgin/docdrop/internal/domain"
)

// Resolver maps a bearer token to the authenticated owner.
type Resolver interface {
	Resolve(ctx context.Context, token string) (domain.Owner, error)
}

// StaticResolver accepts a single pre-shared token (STATIC_AUTH_TOKEN).
type StaticResolver struct {
	Token string
	Owner domain.Owner
}

func (r StaticResolver) Resolve(_ context.Context, token string) (domain.Owner, error) {
	if strings.TrimSpace(token) == "" || token != r.Token || !r.Owner.IsAuthenticated() {
		return domain.Owner{}, fmt.Errorf("%w: invalid token", domain.ErrUnauthenticated)
	}
	return r.Owner, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	const prefix = "bearer "
	header = strings.TrimSpace(header)
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}
