package router

import (
	"github.com/labstack/echo/v4"

	"github.com/growfi/growfi-server/internal/handler"
	"github.com/growfi/growfi-server/internal/middleware"
	"github.com/growfi/growfi-server/internal/model"
)

// RegisterOperator registers OPERATOR-scoped endpoints under /v1/ops.
func RegisterOperator(e *echo.Echo, p *handler.PortfolioHandler, jwtSecret string) {
	g := e.Group(
		"/v1/ops",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleOperator),
	)
	g.GET("/farms/:id/ownership", p.FarmOwnership)
}
