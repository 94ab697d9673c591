package layout

import (
	"fmt"
	"math"
)

// DefaultSeed is the seed used when a farm does not configure its own.
const DefaultSeed int64 = 123456

// Status and pricing policy.  A plot whose status sample reaches
// MaintenanceThreshold is under maintenance, one reaching OccupiedThreshold
// is occupied, every other plot is available.
const (
	OccupiedThreshold    = 0.75
	MaintenanceThreshold = 0.97

	MinPriceXRP  = 10.0
	PriceSpanXRP = 15.0
	MinYieldKg   = 0.5
	YieldSpanKg  = 2.0
)

// Topology describes the fixed shape of a farm.
type Topology struct {
	Towers int `json:"towers"`
	Levels int `json:"levels"`
	Racks  int `json:"racks"`
}

// DefaultTopology is four towers of eight levels with six racks per level.
var DefaultTopology = Topology{Towers: 4, Levels: 8, Racks: 6}

// Size returns the number of plots in the topology.
func (t Topology) Size() int {
	if t.Towers <= 0 || t.Levels <= 0 || t.Racks <= 0 {
		return 0
	}
	return t.Towers * t.Levels * t.Racks
}

// RackLabels returns the rack labels for the topology (A, B, ..., Z, AA, ...).
func (t Topology) RackLabels() []string {
	labels := make([]string, 0, t.Racks)
	for i := 0; i < t.Racks; i++ {
		labels = append(labels, RackLabel(i))
	}
	return labels
}

// PlotID builds the stable identifier of a plot.
func PlotID(tower, level int, rack string) string {
	return fmt.Sprintf("T%d-L%d-%s", tower, level, rack)
}

// RackLabel converts a zero-based rack index to an alphabetical label like A, B or AA.
func RackLabel(i int) string {
	if i < 0 {
		return ""
	}
	res := []rune{}
	for {
		rem := i % 26
		res = append(res, rune('A'+rem))
		i = i/26 - 1
		if i < 0 {
			break
		}
	}
	for j, k := 0, len(res)-1; j < k; j, k = j+1, k-1 {
		res[j], res[k] = res[k], res[j]
	}
	return string(res)
}

// lcg is a 32-bit linear-congruential generator (Numerical Recipes
// constants).  Its output must never change: layouts rendered by different
// processes have to agree bit for bit.
type lcg struct {
	state uint32
}

func newLCG(seed int64) *lcg { return &lcg{state: uint32(seed)} }

// next returns the next sample in [0, 1).
func (g *lcg) next() float64 {
	g.state = g.state*1664525 + 1013904223
	return float64(g.state) / 4294967296.0
}

// Generate returns the default topology generated from seed.
func Generate(seed int64) []Plot {
	return GenerateTopology(DefaultTopology, seed)
}

// GenerateTopology produces every plot of t ordered by tower, level and rack.
// For each plot four samples are drawn from the stream in this order:
// status, crop, price, yield.
func GenerateTopology(t Topology, seed int64) []Plot {
	plots := make([]Plot, 0, t.Size())
	if t.Size() == 0 {
		return plots
	}
	racks := t.RackLabels()
	rng := newLCG(seed)
	for tower := 1; tower <= t.Towers; tower++ {
		for level := 1; level <= t.Levels; level++ {
			for _, rack := range racks {
				status := statusFor(rng.next())
				crop := cropFor(rng.next())
				// explicit conversions keep the compiler from fusing multiply-add
				price := round1(MinPriceXRP + float64(rng.next()*PriceSpanXRP))
				yield := round1(MinYieldKg + float64(rng.next()*YieldSpanKg))
				plots = append(plots, Plot{
					ID:       PlotID(tower, level, rack),
					Tower:    tower,
					Level:    level,
					Rack:     rack,
					Status:   status,
					Crop:     crop,
					Icon:     crop.Icon(),
					PriceXRP: price,
					YieldKg:  yield,
				})
			}
		}
	}
	return plots
}

// Index maps plot IDs to their position in plots.
func Index(plots []Plot) map[string]int {
	idx := make(map[string]int, len(plots))
	for i, p := range plots {
		idx[p.ID] = i
	}
	return idx
}

func statusFor(sample float64) Status {
	switch {
	case sample >= MaintenanceThreshold:
		return StatusMaintenance
	case sample >= OccupiedThreshold:
		return StatusOccupied
	default:
		return StatusAvailable
	}
}

func cropFor(sample float64) Crop {
	i := int(sample * float64(len(Crops)))
	if i >= len(Crops) {
		i = len(Crops) - 1
	}
	return Crops[i]
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
