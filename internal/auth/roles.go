package auth

import (
	"context"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/crm-access/internal/domain"
	apperrors "github.com/spec-kit/crm-access/pkg/util/errorutil"
)

// Authorizer answers permission, role and ownership questions for an identity.
type Authorizer interface {
	Authorize(ctx context.Context, identity domain.Identity, permission string, target *domain.ResourceRef) error
	HasAnyRole(ctx context.Context, identity domain.Identity, roles ...string) (bool, error)
}

// RequirePermission ensures the caller holds permission (or an elevated role).
func RequirePermission(authz Authorizer, permission string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		identity, ok := IdentityFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if err := authz.Authorize(c.UserContext(), identity, permission, nil); err != nil {
			return err
		}
		return c.Next()
	}
}

// RequireOwnership ensures the caller holds permission and owns the resource
// whose id is in route parameter param. Elevated roles skip the ownership check.
func RequireOwnership(authz Authorizer, permission string, kind domain.ResourceKind, param string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		identity, ok := IdentityFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		id, err := strconv.ParseInt(c.Params(param), 10, 64)
		if err != nil || id <= 0 {
			return apperrors.NewValidationError("invalid id", map[string]any{"param": param})
		}
		target := &domain.ResourceRef{Kind: kind, ID: id}
		if err := authz.Authorize(c.UserContext(), identity, permission, target); err != nil {
			return err
		}
		return c.Next()
	}
}

// RequireRole ensures the caller holds at least one of the roles.
func RequireRole(authz Authorizer, roles ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		identity, ok := IdentityFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		allowed, err := authz.HasAnyRole(c.UserContext(), identity, roles...)
		if err != nil {
			return err
		}
		if !allowed {
			return apperrors.NewForbidden("forbidden")
		}
		return c.Next()
	}
}
