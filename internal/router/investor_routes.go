package router

import (
	"github.com/labstack/echo/v4"

	"github.com/growfi/growfi-server/internal/handler"
	"github.com/growfi/growfi-server/internal/middleware"
	"github.com/growfi/growfi-server/internal/model"
)

// RegisterInvestor registers the per-user cart, purchase and portfolio
// endpoints.  Operators may use them too.
func RegisterInvestor(e *echo.Echo, s *handler.SessionHandler, p *handler.PortfolioHandler, jwtSecret string) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleInvestor, model.RoleOperator),
	)

	// ---- Session ----
	g.GET("/farms/:id/session", s.GetSession)
	g.GET("/farms/:id/session/stream", s.Stream)

	// ---- Cart ----
	g.POST("/farms/:id/plots/:plot/toggle", s.TogglePlot)
	g.DELETE("/farms/:id/cart/:plot", s.RemoveFromCart)

	// ---- Wallet and purchase ----
	g.POST("/farms/:id/wallet", s.ConnectWallet)
	g.POST("/farms/:id/purchase", s.ConfirmPurchase)
	g.DELETE("/farms/:id/purchase", s.CancelPurchase)

	g.GET("/portfolio", p.GetPortfolio)
}
