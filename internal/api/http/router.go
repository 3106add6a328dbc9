package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/storefront-auth/internal/api/http/handlers"
	"github.com/spec-kit/storefront-auth/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health  *handlers.HealthHandler
	Auth    *handlers.AuthHandler
	Catalog *handlers.CatalogHandler
	Admin   *handlers.AdminHandler
	Guard   *auth.Guard
	Policy  *auth.PolicyTable
}

// RegisterRoutes wires HTTP routes. The Guard runs on every request so
// path classification, header stripping and enrichment apply uniformly;
// per-route gates layer the capability checks on top.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Use(cfg.Guard.Handle)

	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	authGroup := app.Group("/api/auth")
	authGroup.Post("/register", cfg.Auth.Register)
	authGroup.Post("/login", cfg.Auth.Login)
	authGroup.Post("/refresh", cfg.Auth.Refresh)
	authGroup.Post("/logout", cfg.Auth.Logout)

	account := app.Group("/api/account")
	account.Get("/me", cfg.Auth.Me)

	catalog := app.Group("/api/catalog")
	catalog.Get("/products",
		auth.RequirePermission(cfg.Policy, auth.PermissionProductsRead, auth.ResourceAny),
		cfg.Catalog.List)
	catalog.Post("/products",
		auth.RequirePermission(cfg.Policy, auth.PermissionProductsWrite, "own"),
		cfg.Catalog.Create)

	admin := app.Group("/api/admin")
	admin.Get("/users", cfg.Admin.ListUsers)
}
