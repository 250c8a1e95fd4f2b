package handlers

import (
	"context"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/crm-access/internal/api/dto"
	"github.com/spec-kit/crm-access/internal/auth"
	"github.com/spec-kit/crm-access/internal/domain"
	"github.com/spec-kit/crm-access/internal/service"
	apperrors "github.com/spec-kit/crm-access/pkg/util/errorutil"
)

// SessionManager is the session lifecycle used by the auth endpoints.
type SessionManager interface {
	Login(ctx context.Context, email, password string) (*service.LoginResult, error)
	Logout(ctx context.Context, identity *domain.Identity)
	ResolveCurrentUser(ctx context.Context, token string) (*domain.UserView, error)
	Register(ctx context.Context, name, email, password string) (*domain.UserView, error)
}

// AuthHandler exposes login, logout, registration and "who am I".
type AuthHandler struct {
	sessions SessionManager
	verifier auth.Verifier
	cookie   auth.CookieConfig
}

// NewAuthHandler constructs handler.
func NewAuthHandler(sessions SessionManager, verifier auth.Verifier, cookie auth.CookieConfig) *AuthHandler {
	return &AuthHandler{sessions: sessions, verifier: verifier, cookie: cookie}
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Email == "" || req.Password == "" {
		return apperrors.NewValidationError("email and password required", nil)
	}

	result, err := h.sessions.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}

	h.cookie.Set(c, result.Token, result.Identity.ExpiresAt)
	return c.JSON(dto.LoginResponse{
		User:        dto.NewUserResponse(result.User),
		Roles:       result.User.Roles,
		Permissions: result.User.Permissions,
	})
}

// Register handles POST /api/auth/register.
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req dto.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Name == "" || req.Email == "" || req.Password == "" {
		return apperrors.NewValidationError("name, email, password required", nil)
	}

	view, err := h.sessions.Register(c.UserContext(), req.Name, req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(dto.RegisterResponse{User: dto.NewUserResponse(*view)})
}

// Logout handles POST /api/auth/logout. It always clears the cookie.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	var identity *domain.Identity
	if token := c.Cookies(h.cookie.Name); token != "" {
		if verified, err := h.verifier.Verify(token); err == nil {
			identity = &verified
		}
	}
	h.sessions.Logout(c.UserContext(), identity)
	h.cookie.Clear(c)
	return c.JSON(fiber.Map{"success": true})
}

// Me handles GET /api/auth/me.
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	token := c.Cookies(h.cookie.Name)
	view, err := h.sessions.ResolveCurrentUser(c.UserContext(), token)
	if err != nil {
		return err
	}
	if view == nil {
		if token != "" {
			h.cookie.Clear(c)
		}
		return apperrors.NewUnauthorized("invalid session")
	}
	return c.JSON(view)
}
