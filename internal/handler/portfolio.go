package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/growfi/growfi-server/internal/catalog"
	"github.com/growfi/growfi-server/internal/portfolio"
	"github.com/growfi/growfi-server/internal/repository"
)

// PortfolioHandler reports owned plots.
type PortfolioHandler struct {
	Catalog   *catalog.Catalog
	Ownership *repository.OwnershipRepo
	Now       func() time.Time
}

func NewPortfolioHandler(cat *catalog.Catalog, repo *repository.OwnershipRepo) *PortfolioHandler {
	return &PortfolioHandler{Catalog: cat, Ownership: repo, Now: time.Now}
}

// GetPortfolio summarizes the caller's plots.  ?holder= narrows the
// summary to one of the caller's wallets.
func (h *PortfolioHandler) GetPortfolio(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	records, err := h.Ownership.ListByUser(ctx, uid)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load ownership failed"})
	}
	if holder := c.QueryParam("holder"); holder != "" {
		kept := records[:0]
		for _, r := range records {
			if r.Holder == holder {
				kept = append(kept, r)
			}
		}
		records = kept
	}
	return c.JSON(http.StatusOK, portfolio.Summarize(records, h.Now()))
}

// FarmOwnership lists every owned plot of a farm for operators.
func (h *PortfolioHandler) FarmOwnership(c echo.Context) error {
	farm, err := h.Catalog.Get(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "farm not found"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	records, err := h.Ownership.ListByFarm(ctx, farm.ID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load ownership failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"farm":    farm,
		"owned":   len(records),
		"records": records,
	})
}
