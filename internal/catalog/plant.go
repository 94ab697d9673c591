package catalog

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

// ErrPlantNotFound is returned by Plant for an unknown id.
var ErrPlantNotFound = errors.New("plant not found")

// ErrInvalidQuery is returned by Plants for an unknown type or sort key.
var ErrInvalidQuery = errors.New("invalid plant query")

// Plant types.
const (
	TypeVegetable = "vegetable"
	TypeLeafy     = "leafy"
	TypeHerb      = "herb"
)

// Sort keys accepted by Plants.
const (
	SortYield        = "yield"
	SortPriceLow     = "price-low"
	SortPriceHigh    = "price-high"
	SortAvailability = "availability"
)

// Impact is the environmental estimate attached to a plant.
type Impact struct {
	CO2Saved          float64 `yaml:"co2_saved" json:"co2_saved"`
	WaterSaved        float64 `yaml:"water_saved" json:"water_saved"`
	LocalFoodProduced float64 `yaml:"local_food_produced" json:"local_food_produced"`
}

// Plant is a fractional-ownership listing on a farm.  Values are XRP.
type Plant struct {
	ID                  string  `yaml:"id" json:"id"`
	FarmID              string  `yaml:"farm_id" json:"farm_id"`
	FarmName            string  `yaml:"-" json:"farm_name"`
	Type                string  `yaml:"type" json:"type"`
	Name                string  `yaml:"name" json:"name"`
	Image               string  `yaml:"image" json:"image,omitempty"`
	TotalValue          float64 `yaml:"total_value" json:"total_value"`
	MinInvestment       float64 `yaml:"min_investment" json:"min_investment"`
	MaxInvestment       float64 `yaml:"-" json:"max_investment"`
	SoldPercentage      float64 `yaml:"sold_percentage" json:"sold_percentage"`
	AvailablePercentage float64 `yaml:"-" json:"available_percentage"`
	WeeklyYieldEstimate float64 `yaml:"weekly_yield_estimate" json:"weekly_yield_estimate"`
	HarvestDate         string  `yaml:"harvest_date" json:"harvest_date,omitempty"`
	GrowthStage         string  `yaml:"growth_stage" json:"growth_stage,omitempty"`
	Description         string  `yaml:"description" json:"description,omitempty"`
	Impact              Impact  `yaml:"impact" json:"impact"`
}

// available fills the fields derived from the sold share.  The unsold
// value caps a single investment.
func (p *Plant) available() {
	p.AvailablePercentage = 100 - p.SoldPercentage
	p.MaxInvestment = math.Round(p.TotalValue*p.AvailablePercentage) / 100
}

// PlantQuery narrows and orders Plants.  Empty fields match everything;
// an empty Sort orders by weekly yield.
type PlantQuery struct {
	Search string
	FarmID string
	Type   string
	Sort   string
}

// MarketStats summarises every listed plant.
type MarketStats struct {
	TotalPlants      int     `json:"total_plants"`
	AvgWeeklyYield   float64 `json:"avg_weekly_yield"`
	MinInvestment    float64 `json:"min_investment"`
	TotalMarketValue float64 `json:"total_market_value"`
}

var plantLess = map[string]func(a, b Plant) bool{
	SortYield:        func(a, b Plant) bool { return a.WeeklyYieldEstimate > b.WeeklyYieldEstimate },
	SortPriceLow:     func(a, b Plant) bool { return a.MinInvestment < b.MinInvestment },
	SortPriceHigh:    func(a, b Plant) bool { return a.MinInvestment > b.MinInvestment },
	SortAvailability: func(a, b Plant) bool { return a.AvailablePercentage > b.AvailablePercentage },
}

// Plants returns the listings matching q.  Search is a case-insensitive
// substring match on the plant or farm name.  Ties keep catalog order.
func (c *Catalog) Plants(q PlantQuery) ([]Plant, error) {
	key := q.Sort
	if key == "" {
		key = SortYield
	}
	less, ok := plantLess[key]
	if !ok {
		return nil, fmt.Errorf("%w: sort %q", ErrInvalidQuery, q.Sort)
	}
	switch q.Type {
	case "", TypeVegetable, TypeLeafy, TypeHerb:
	default:
		return nil, fmt.Errorf("%w: type %q", ErrInvalidQuery, q.Type)
	}

	term := strings.ToLower(strings.TrimSpace(q.Search))
	out := make([]Plant, 0, len(c.plants))
	for _, p := range c.plants {
		if q.FarmID != "" && p.FarmID != q.FarmID {
			continue
		}
		if q.Type != "" && p.Type != q.Type {
			continue
		}
		if term != "" && !strings.Contains(strings.ToLower(p.Name), term) &&
			!strings.Contains(strings.ToLower(p.FarmName), term) {
			continue
		}
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out, nil
}

// Plant returns the listing with id.
func (c *Catalog) Plant(id string) (Plant, error) {
	i, ok := c.plant[id]
	if !ok {
		return Plant{}, fmt.Errorf("%w: %s", ErrPlantNotFound, id)
	}
	return c.plants[i], nil
}

// Stats computes the market summary over every plant.
func (c *Catalog) Stats() MarketStats {
	var s MarketStats
	if len(c.plants) == 0 {
		return s
	}
	s.TotalPlants = len(c.plants)
	s.MinInvestment = math.Inf(1)
	var yield float64
	for _, p := range c.plants {
		yield += p.WeeklyYieldEstimate
		s.TotalMarketValue += p.TotalValue
		s.MinInvestment = math.Min(s.MinInvestment, p.MinInvestment)
	}
	s.AvgWeeklyYield = math.Round(yield/float64(len(c.plants))*10) / 10
	return s
}
