package handlers

import (
	"fmt"
	"html"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/crm-access/internal/auth"
	apperrors "github.com/spec-kit/crm-access/pkg/util/errorutil"
)

// PagesHandler serves the minimal HTML pages around the session flow.
type PagesHandler struct {
	appName string
}

// NewPagesHandler constructs handler.
func NewPagesHandler(appName string) *PagesHandler {
	return &PagesHandler{appName: appName}
}

// SignIn handles GET /auth/signin.
func (h *PagesHandler) SignIn(c *fiber.Ctx) error {
	c.Type("html", "utf-8")
	return c.SendString(fmt.Sprintf(
		`<!doctype html><title>%s</title><h1>Sign in</h1><p>POST credentials to /api/auth/login.</p>`,
		html.EscapeString(h.appName)))
}

// Dashboard handles GET /dashboard, the landing page after sign-in.
func (h *PagesHandler) Dashboard(c *fiber.Ctx) error {
	identity, ok := auth.IdentityFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	c.Type("html", "utf-8")
	return c.SendString(fmt.Sprintf(
		`<!doctype html><title>%s</title><h1>Dashboard</h1><p>Signed in as user %d.</p>`,
		html.EscapeString(h.appName), identity.UserID))
}
