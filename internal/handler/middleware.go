package handler

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/docdrop/internal/domain"
	"github.com/kursadbilgin/docdrop/internal/identity"
	"github.com/kursadbilgin/docdrop/internal/observability"
	"github.com/kursadbilgin/docdrop/internal/transport"
)

const ownerLocalKey = "owner"

// RequestContext copies the request id into the user context so services can log it.
func RequestContext() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if id := requestCorrelationID(c); id != "" {
			c.SetUserContext(observability.WithCorrelationID(c.UserContext(), id))
		}
		return c.Next()
	}
}

// RequireOwner resolves the bearer token to an owner and rejects the request when it cannot.
func RequireOwner(resolver identity.Resolver) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, ok := identity.BearerToken(c.Get(fiber.HeaderAuthorization))
		if !ok {
			return fiber.NewError(fiber.StatusUnauthorized, domain.ErrUnauthenticated.Error()+": missing bearer token")
		}

		owner, err := resolver.Resolve(c.UserContext(), token)
		if err != nil {
			return transport.ToHTTPError(err)
		}

		c.Locals(ownerLocalKey, owner)
		c.SetUserContext(observability.WithOwnerID(c.UserContext(), owner.ID))
		return c.Next()
	}
}

func ownerFromCtx(c *fiber.Ctx) (domain.Owner, error) {
	owner, ok := c.Locals(ownerLocalKey).(domain.Owner)
	if !ok || !owner.IsAuthenticated() {
		return domain.Owner{}, fiber.NewError(fiber.StatusUnauthorized, domain.ErrUnauthenticated.Error())
	}
	return owner, nil
}

func requestCorrelationID(c *fiber.Ctx) string {
	if value := strings.TrimSpace(c.Get(fiber.HeaderXRequestID)); value != "" {
		return value
	}
	if value, ok := c.Locals("requestid").(string); ok {
		return strings.TrimSpace(value)
	}
	return ""
}
