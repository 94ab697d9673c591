package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/growfi/growfi-server/internal/catalog"
	"github.com/growfi/growfi-server/internal/layout"
)

// FarmHandler serves the public farm catalog and plant marketplace.
type FarmHandler struct {
	Catalog *catalog.Catalog
}

// LayoutLevel is one level of a tower.
type LayoutLevel struct {
	Level int           `json:"level"`
	Plots []layout.Plot `json:"plots"`
}

// LayoutTower is one tower with its levels in ascending order.
type LayoutTower struct {
	Tower  int           `json:"tower"`
	Levels []LayoutLevel `json:"levels"`
}

// LayoutResponse is the generated grid of a farm.
type LayoutResponse struct {
	FarmID   string                `json:"farm_id"`
	Seed     int64                 `json:"seed"`
	Topology layout.Topology       `json:"topology"`
	Counts   map[layout.Status]int `json:"counts"`
	Towers   []LayoutTower         `json:"towers"`
}

// ListFarms returns every farm in the catalog.
func (h *FarmHandler) ListFarms(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"farms": h.Catalog.List()})
}

// GetFarm returns one farm.
func (h *FarmHandler) GetFarm(c echo.Context) error {
	farm, ok := h.farm(c)
	if !ok {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "farm not found"})
	}
	return c.JSON(http.StatusOK, farm)
}

// GetLayout returns the freshly generated layout of a farm grouped by tower
// and level.  Selections are per user and live in the session endpoint.
func (h *FarmHandler) GetLayout(c echo.Context) error {
	farm, ok := h.farm(c)
	if !ok {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "farm not found"})
	}
	return c.JSON(http.StatusOK, buildLayout(farm, layout.Generate(farm.Seed)))
}

// ListPlants returns the marketplace listings filtered by the q, farm and
// type query parameters and ordered by sort, with the market summary.
func (h *FarmHandler) ListPlants(c echo.Context) error {
	plants, err := h.Catalog.Plants(catalog.PlantQuery{
		Search: c.QueryParam("q"),
		FarmID: strings.TrimSpace(c.QueryParam("farm")),
		Type:   strings.ToLower(strings.TrimSpace(c.QueryParam("type"))),
		Sort:   strings.ToLower(strings.TrimSpace(c.QueryParam("sort"))),
	})
	if errors.Is(err, catalog.ErrInvalidQuery) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"plants": plants, "stats": h.Catalog.Stats()})
}

// GetPlant returns one listing.
func (h *FarmHandler) GetPlant(c echo.Context) error {
	plant, err := h.Catalog.Plant(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "plant not found"})
	}
	return c.JSON(http.StatusOK, plant)
}

func (h *FarmHandler) farm(c echo.Context) (catalog.Farm, bool) {
	farm, err := h.Catalog.Get(c.Param("id"))
	return farm, err == nil
}

// buildLayout groups plots, which arrive in tower, level, rack order.
func buildLayout(farm catalog.Farm, plots []layout.Plot) LayoutResponse {
	resp := LayoutResponse{
		FarmID:   farm.ID,
		Seed:     farm.Seed,
		Topology: layout.DefaultTopology,
		Counts:   map[layout.Status]int{},
		Towers:   []LayoutTower{},
	}
	for _, p := range plots {
		resp.Counts[p.Status]++
		n := len(resp.Towers)
		if n == 0 || resp.Towers[n-1].Tower != p.Tower {
			resp.Towers = append(resp.Towers, LayoutTower{Tower: p.Tower})
			n++
		}
		t := &resp.Towers[n-1]
		m := len(t.Levels)
		if m == 0 || t.Levels[m-1].Level != p.Level {
			t.Levels = append(t.Levels, LayoutLevel{Level: p.Level})
			m++
		}
		t.Levels[m-1].Plots = append(t.Levels[m-1].Plots, p)
	}
	return resp
}
