package cart

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/growfi/growfi-server/internal/layout"
)

func firstWithStatus(t *testing.T, c *Cart, status layout.Status, skip int) layout.Plot {
	t.Helper()
	for _, p := range c.Plots() {
		if p.Status != status {
			continue
		}
		if skip == 0 {
			return p
		}
		skip--
	}
	t.Fatalf("no plot with status %s", status)
	return layout.Plot{}
}

func TestToggleSelect_AddsAndRemovesEntry(t *testing.T) {
	c := New(layout.DefaultSeed)
	p := firstWithStatus(t, c, layout.StatusAvailable, 0)

	got, changed, err := c.ToggleSelect(p.ID)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, layout.StatusSelected, got.Status)
	require.Len(t, c.Entries(), 1)
	assert.Equal(t, p.ID, c.Entries()[0].PlotID)
	assert.Equal(t, p.PriceXRP, c.Entries()[0].PriceXRP)

	got, changed, err = c.ToggleSelect(p.ID)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, layout.StatusAvailable, got.Status)
	assert.Empty(t, c.Entries())
	assert.Equal(t, c.Plots(), layout.Generate(layout.DefaultSeed), "double toggle is a net no-op")
}

func TestToggleSelect_FixedPlotsAreNoOps(t *testing.T) {
	c := New(layout.DefaultSeed)
	for _, status := range []layout.Status{layout.StatusOccupied, layout.StatusMaintenance} {
		p := firstWithStatus(t, c, status, 0)
		before := c.Snapshot()

		got, changed, err := c.ToggleSelect(p.ID)
		require.NoError(t, err)
		assert.False(t, changed)
		assert.Equal(t, status, got.Status)
		assert.Equal(t, before, c.Snapshot())
	}
}

func TestToggleSelect_UnknownPlot(t *testing.T) {
	c := New(layout.DefaultSeed)
	_, changed, err := c.ToggleSelect("T9-L9-Z")
	assert.ErrorIs(t, err, ErrUnknownPlot)
	assert.False(t, changed)
}

func TestInvariant_HoldsUnderRandomToggles(t *testing.T) {
	c := New(layout.DefaultSeed)
	plots := c.Plots()
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 2000; i++ {
		p := plots[rng.Intn(len(plots))]
		if rng.Intn(4) == 0 {
			_, err := c.RemoveFromCart(p.ID)
			require.NoError(t, err)
		} else {
			_, _, err := c.ToggleSelect(p.ID)
			require.NoError(t, err)
		}
		require.NoError(t, c.CheckInvariant(), "after step %d", i)
	}
}

func TestRemoveFromCart(t *testing.T) {
	c := New(layout.DefaultSeed)
	p := firstWithStatus(t, c, layout.StatusAvailable, 0)

	removed, err := c.RemoveFromCart(p.ID)
	require.NoError(t, err)
	assert.False(t, removed, "removing a plot that is not in the cart is a no-op")
	removed, err = c.RemoveFromCart("does-not-exist")
	require.NoError(t, err)
	assert.False(t, removed)

	_, _, err = c.ToggleSelect(p.ID)
	require.NoError(t, err)
	removed, err = c.RemoveFromCart(p.ID)
	require.NoError(t, err)
	assert.True(t, removed)

	got, ok := c.Plot(p.ID)
	require.True(t, ok)
	assert.Equal(t, layout.StatusAvailable, got.Status)
	assert.Zero(t, c.Len())

	removed, err = c.RemoveFromCart(p.ID)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestComputeTotals(t *testing.T) {
	empty := New(layout.DefaultSeed)
	assert.Equal(t, Totals{}, empty.ComputeTotals())

	plots := []layout.Plot{
		{ID: "a", Status: layout.StatusAvailable, PriceXRP: 10.5, YieldKg: 1.2},
		{ID: "b", Status: layout.StatusAvailable, PriceXRP: 3.2, YieldKg: 0.8},
		{ID: "c", Status: layout.StatusOccupied, PriceXRP: 99, YieldKg: 9},
	}
	c := NewWithPlots(plots, nil)
	for _, id := range []string{"a", "b", "c"} {
		_, _, err := c.ToggleSelect(id)
		require.NoError(t, err)
	}
	totals := c.ComputeTotals()
	assert.Equal(t, 2, totals.Count)
	assert.InDelta(t, 13.7, totals.PriceXRP, 1e-9)
	assert.InDelta(t, 2.0, totals.YieldKg, 1e-9)

	_, err := c.RemoveFromCart("a")
	require.NoError(t, err)
	assert.InDelta(t, 3.2, c.ComputeTotals().PriceXRP, 1e-9, "totals follow every mutation")
}

func TestLock_BlocksMutations(t *testing.T) {
	c := New(layout.DefaultSeed)
	a := firstWithStatus(t, c, layout.StatusAvailable, 0)
	b := firstWithStatus(t, c, layout.StatusAvailable, 1)
	_, _, err := c.ToggleSelect(a.ID)
	require.NoError(t, err)

	entries, err := c.Lock()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	_, err = c.Lock()
	assert.ErrorIs(t, err, ErrCartLocked)

	_, _, err = c.ToggleSelect(b.ID)
	assert.ErrorIs(t, err, ErrCartLocked)
	_, err = c.RemoveFromCart(a.ID)
	assert.ErrorIs(t, err, ErrCartLocked)
	assert.Equal(t, 1, c.Len())

	c.Unlock()
	_, _, err = c.ToggleSelect(b.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Len())
}

func TestReset_RegeneratesLayout(t *testing.T) {
	c := New(layout.DefaultSeed)
	for i := 0; i < 3; i++ {
		p := firstWithStatus(t, c, layout.StatusAvailable, 0)
		_, _, err := c.ToggleSelect(p.ID)
		require.NoError(t, err)
	}
	_, err := c.Lock()
	require.NoError(t, err)

	c.Reset()
	assert.Zero(t, c.Len())
	assert.False(t, c.Locked())
	assert.Equal(t, layout.Generate(layout.DefaultSeed), c.Plots())
	require.NoError(t, c.CheckInvariant())
}

func TestReset_WithoutRegenerator(t *testing.T) {
	c := NewWithPlots([]layout.Plot{{ID: "a", Status: layout.StatusAvailable}}, nil)
	_, _, err := c.ToggleSelect("a")
	require.NoError(t, err)
	c.Reset()
	p, _ := c.Plot("a")
	assert.Equal(t, layout.StatusAvailable, p.Status)
}
