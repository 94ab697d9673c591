// Package portfolio summarizes the plots a user owns.
package portfolio

import (
	"math"
	"sort"
	"time"

	"github.com/growfi/growfi-server/internal/model"
)

// Stage is the growth stage of a purchased plot.
type Stage string

const (
	StageSeeding   Stage = "Seeding"
	StageSprouting Stage = "Sprouting"
	StageGrowing   Stage = "Growing"
	StageMaturing  Stage = "Maturing"
	StageHarvest   Stage = "Harvest"
)

// HarvestDays is the number of days from purchase to harvest.
const HarvestDays = 28

var stages = []struct {
	from  int
	stage Stage
}{
	{28, StageHarvest},
	{21, StageMaturing},
	{14, StageGrowing},
	{7, StageSprouting},
	{0, StageSeeding},
}

// StageAt returns the stage reached after days.
func StageAt(days int) Stage {
	for _, s := range stages {
		if days >= s.from {
			return s.stage
		}
	}
	return StageSeeding
}

// DaysSince counts whole or partial days between purchase and now.
func DaysSince(purchasedAt, now time.Time) int {
	d := now.Sub(purchasedAt)
	if d < 0 {
		d = -d
	}
	return int(math.Ceil(float64(d) / float64(24*time.Hour)))
}

// Progress returns the percentage of the growth cycle completed.
func Progress(days int) float64 {
	return math.Min(100, float64(days)/HarvestDays*100)
}

// Holding is one owned plot with its growth state.
type Holding struct {
	model.OwnershipRecord
	Stage       Stage   `json:"stage"`
	Progress    float64 `json:"progress"`
	DaysElapsed int     `json:"days_elapsed"`
}

// FarmTotal aggregates holdings on one farm.
type FarmTotal struct {
	FarmID      string  `json:"farm_id"`
	FarmName    string  `json:"farm_name"`
	Plots       int     `json:"plots"`
	InvestedXRP float64 `json:"invested_xrp"`
	YieldKg     float64 `json:"yield_kg"`
}

// Summary is a user's portfolio.
type Summary struct {
	TotalPlots       int         `json:"total_plots"`
	TotalInvestedXRP float64     `json:"total_invested_xrp"`
	EstimatedYieldKg float64     `json:"estimated_yield_kg"`
	Farms            []FarmTotal `json:"farms"`
	Holdings         []Holding   `json:"holdings"`
}

// Summarize builds a summary of records as of now.  Farms are ordered by
// id and holdings newest first.
func Summarize(records []model.OwnershipRecord, now time.Time) Summary {
	sum := Summary{Farms: []FarmTotal{}, Holdings: make([]Holding, 0, len(records))}
	byFarm := map[string]*FarmTotal{}
	for _, r := range records {
		days := DaysSince(r.PurchasedAt, now)
		sum.Holdings = append(sum.Holdings, Holding{
			OwnershipRecord: r,
			Stage:           StageAt(days),
			Progress:        round1(Progress(days)),
			DaysElapsed:     days,
		})
		sum.TotalPlots++
		sum.TotalInvestedXRP += r.PricePaidXRP
		sum.EstimatedYieldKg += r.EstimatedYieldKg

		ft, ok := byFarm[r.FarmID]
		if !ok {
			ft = &FarmTotal{FarmID: r.FarmID, FarmName: r.FarmName}
			byFarm[r.FarmID] = ft
		}
		ft.Plots++
		ft.InvestedXRP += r.PricePaidXRP
		ft.YieldKg += r.EstimatedYieldKg
	}
	for _, ft := range byFarm {
		ft.InvestedXRP = round1(ft.InvestedXRP)
		ft.YieldKg = round1(ft.YieldKg)
		sum.Farms = append(sum.Farms, *ft)
	}
	sort.Slice(sum.Farms, func(i, j int) bool { return sum.Farms[i].FarmID < sum.Farms[j].FarmID })
	sort.SliceStable(sum.Holdings, func(i, j int) bool {
		a, b := sum.Holdings[i], sum.Holdings[j]
		if !a.PurchasedAt.Equal(b.PurchasedAt) {
			return a.PurchasedAt.After(b.PurchasedAt)
		}
		if a.FarmID != b.FarmID {
			return a.FarmID < b.FarmID
		}
		return a.PlotID < b.PlotID
	})
	sum.TotalInvestedXRP = round1(sum.TotalInvestedXRP)
	sum.EstimatedYieldKg = round1(sum.EstimatedYieldKg)
	return sum
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
