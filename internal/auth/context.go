package auth

import (
	"context"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/crm-access/internal/domain"
)

// TrustedUserHeader carries the verified user id to downstream handlers.
// Only the request gate may set it; any client-supplied value is stripped.
const TrustedUserHeader = "X-User-Id"

const identityKey = "auth_identity"

type ctxKey struct{}

func setIdentity(c *fiber.Ctx, identity domain.Identity) {
	c.Request().Header.Set(TrustedUserHeader, strconv.FormatInt(identity.UserID, 10))
	c.Locals(identityKey, identity)
	c.SetUserContext(ContextWithIdentity(c.UserContext(), identity))
}

// IdentityFromContext retrieves the identity attached by the request gate.
func IdentityFromContext(c *fiber.Ctx) (domain.Identity, bool) {
	identity, ok := c.Locals(identityKey).(domain.Identity)
	return identity, ok
}

// ContextWithIdentity stores a verified identity in ctx.
func ContextWithIdentity(ctx context.Context, identity domain.Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, identity)
}

// IdentityFromCtx extracts the verified identity from ctx.
func IdentityFromCtx(ctx context.Context) (domain.Identity, bool) {
	identity, ok := ctx.Value(ctxKey{}).(domain.Identity)
	return identity, ok
}
