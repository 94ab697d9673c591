// Package router defines how HTTP routes are registered for the API.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/growfi/growfi-server/internal/handler"
	"github.com/growfi/growfi-server/internal/middleware"
	"github.com/growfi/growfi-server/internal/model"
)

// RegisterRoutes registers routes that do not require authentication and
// carry no catalog data.
func RegisterRoutes(e *echo.Echo, h *handler.HealthHandler) {
	e.GET("/healthz", h.Health)
}

// RegisterAuth registers authentication routes.  Register, login, refresh
// and logout live under /v1/auth without a JWT; /v1/me requires one.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)
	g.POST("/logout", a.Logout)

	e.GET("/v1/me", a.Me, middleware.JWTAuth(jwtSecret))
}

// RegisterPublic registers the farm catalog and plant marketplace.  cache
// wraps these routes only; nothing user specific is served through it.
func RegisterPublic(e *echo.Echo, f *handler.FarmHandler, cache echo.MiddlewareFunc) {
	g := e.Group("/v1/farms", cache)
	g.GET("", f.ListFarms)
	g.GET("/:id", f.GetFarm)
	g.GET("/:id/layout", f.GetLayout)

	p := e.Group("/v1/plants", cache)
	p.GET("", f.ListPlants)
	p.GET("/:id", f.GetPlant)
}

// RegisterLedger registers the token authorization and delivery boundary.
func RegisterLedger(e *echo.Echo, m *handler.MPTHandler, jwtSecret string) {
	g := e.Group("/v1/mpt",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleInvestor, model.RoleOperator),
	)
	g.POST("/authorize", m.Authorize)
	g.POST("/purchase", m.Purchase)
}
