package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/spec-kit/crm-access/internal/api/http/handlers"
	"github.com/spec-kit/crm-access/internal/auth"
	"github.com/spec-kit/crm-access/internal/config"
	"github.com/spec-kit/crm-access/internal/domain"
	"github.com/spec-kit/crm-access/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health     *handlers.HealthHandler
	Auth       *handlers.AuthHandler
	Pages      *handlers.PagesHandler
	Clients    *handlers.ClientsHandler
	Gate       *auth.RequestGate
	Authorizer auth.Authorizer
	Metrics    *observability.Metrics
	RateLimit  config.RateLimitConfig
}

// RegisterRoutes wires HTTP routes. The request gate runs before every route.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Use(cfg.Gate.Handle)

	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))

	app.Get("/auth/signin", cfg.Pages.SignIn)
	app.Get("/dashboard", cfg.Pages.Dashboard)

	authAPI := app.Group("/api/auth", RateLimit(cfg.RateLimit.AuthPerSecond, cfg.RateLimit.AuthBurst))
	authAPI.Post("/login", cfg.Auth.Login)
	authAPI.Post("/register", cfg.Auth.Register)
	authAPI.Post("/logout", cfg.Auth.Logout)
	authAPI.Get("/me", cfg.Auth.Me)

	api := app.Group("/api")
	api.Get("/clients",
		auth.RequirePermission(cfg.Authorizer, domain.PermClientsRead),
		cfg.Clients.ListClients)
	api.Patch("/clients/:id",
		auth.RequireOwnership(cfg.Authorizer, domain.PermClientsWrite, domain.ResourceClient, "id"),
		cfg.Clients.RenameClient)
	api.Patch("/stakeholders/:id",
		auth.RequireOwnership(cfg.Authorizer, domain.PermStakeholdersWrite, domain.ResourceStakeholder, "id"),
		cfg.Clients.RenameStakeholder)
	api.Get("/sales-reps",
		auth.RequireRole(cfg.Authorizer, domain.RoleAdmin, domain.RoleSalesManager),
		cfg.Clients.ListSalesReps)
	api.Patch("/sales-reps/:id",
		auth.RequireOwnership(cfg.Authorizer, domain.PermSalesRepsWrite, domain.ResourceSalesRep, "id"),
		cfg.Clients.RenameSalesRep)
}
