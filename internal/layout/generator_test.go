package layout

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_IsDeterministic(t *testing.T) {
	for _, seed := range []int64{0, 1, 42, DefaultSeed, -7, 1 << 40} {
		a := Generate(seed)
		b := Generate(seed)
		require.Equal(t, a, b, "seed %d", seed)
	}
}

func TestGenerate_DifferentSeedsDiffer(t *testing.T) {
	assert.NotEqual(t, Generate(1), Generate(2))
}

func TestGenerate_CoversTopologyOnce(t *testing.T) {
	plots := Generate(DefaultSeed)
	require.Len(t, plots, 192)

	seen := make(map[string]bool, len(plots))
	for _, p := range plots {
		key := fmt.Sprintf("%d/%d/%s", p.Tower, p.Level, p.Rack)
		assert.False(t, seen[key], "duplicate triple %s", key)
		seen[key] = true
		assert.Equal(t, PlotID(p.Tower, p.Level, p.Rack), p.ID)
	}
	assert.Len(t, seen, 192)
}

func TestGenerateTopology_Sizes(t *testing.T) {
	cases := []Topology{
		{Towers: 1, Levels: 1, Racks: 1},
		{Towers: 2, Levels: 3, Racks: 4},
		{Towers: 1, Levels: 2, Racks: 30},
		{Towers: 0, Levels: 8, Racks: 6},
	}
	for _, topo := range cases {
		plots := GenerateTopology(topo, 99)
		assert.Len(t, plots, topo.Size())
		assert.Len(t, Index(plots), topo.Size(), "ids must be unique for %+v", topo)
	}
}

func TestGenerate_OrderedByTowerLevelRack(t *testing.T) {
	plots := Generate(DefaultSeed)
	assert.Equal(t, "T1-L1-A", plots[0].ID)
	assert.Equal(t, "T1-L1-F", plots[5].ID)
	assert.Equal(t, "T1-L2-A", plots[6].ID)
	assert.Equal(t, "T4-L8-F", plots[len(plots)-1].ID)
}

func TestGenerate_KnownSeedPrefix(t *testing.T) {
	plots := Generate(DefaultSeed)

	assert.Equal(t, StatusAvailable, plots[0].Status)
	assert.Equal(t, CropBroccoli, plots[0].Crop)
	assert.InDelta(t, 12.5, plots[0].PriceXRP, 0.1001)
	assert.InDelta(t, 1.6, plots[0].YieldKg, 0.1001)

	assert.Equal(t, StatusMaintenance, plots[3].Status)
	assert.Equal(t, CropMicrogreens, plots[3].Crop)
}

func TestGenerate_ValueRangesAndIcons(t *testing.T) {
	for _, p := range Generate(7) {
		assert.GreaterOrEqual(t, p.PriceXRP, MinPriceXRP)
		assert.LessOrEqual(t, p.PriceXRP, MinPriceXRP+PriceSpanXRP)
		assert.GreaterOrEqual(t, p.YieldKg, MinYieldKg)
		assert.LessOrEqual(t, p.YieldKg, MinYieldKg+YieldSpanKg)
		assert.Contains(t, Crops, p.Crop)
		assert.Equal(t, p.Crop.Icon(), p.Icon)
		assert.NotEqual(t, StatusSelected, p.Status, "fresh layouts never contain selections")
	}
}

func TestGenerate_StatusMix(t *testing.T) {
	counts := map[Status]int{}
	for _, p := range Generate(DefaultSeed) {
		counts[p.Status]++
	}
	assert.Equal(t, 150, counts[StatusAvailable])
	assert.Equal(t, 35, counts[StatusOccupied])
	assert.Equal(t, 7, counts[StatusMaintenance])
}

func TestStatusFor_Thresholds(t *testing.T) {
	assert.Equal(t, StatusAvailable, statusFor(0))
	assert.Equal(t, StatusAvailable, statusFor(0.7499))
	assert.Equal(t, StatusOccupied, statusFor(0.75))
	assert.Equal(t, StatusOccupied, statusFor(0.9699))
	assert.Equal(t, StatusMaintenance, statusFor(0.97))
	assert.Equal(t, StatusMaintenance, statusFor(0.9999))
}

func TestRackLabel(t *testing.T) {
	assert.Equal(t, "A", RackLabel(0))
	assert.Equal(t, "F", RackLabel(5))
	assert.Equal(t, "Z", RackLabel(25))
	assert.Equal(t, "AA", RackLabel(26))
	assert.Equal(t, "", RackLabel(-1))
}

func TestStatusSelectable(t *testing.T) {
	assert.True(t, StatusAvailable.Selectable())
	assert.True(t, StatusSelected.Selectable())
	assert.False(t, StatusOccupied.Selectable())
	assert.False(t, StatusMaintenance.Selectable())
}
