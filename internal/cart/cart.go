// Package cart tracks which plots of a farm a user has selected and the
// pending-purchase entries that mirror those selections.
package cart

import (
	"errors"
	"fmt"
	"sync"

	"github.com/growfi/growfi-server/internal/layout"
)

var (
	// ErrUnknownPlot is returned when an operation names a plot that is not
	// part of the layout.
	ErrUnknownPlot = errors.New("unknown plot")
	// ErrCartLocked is returned by mutating operations while a purchase of
	// the current cart contents is in flight.
	ErrCartLocked = errors.New("cart is locked by a purchase in progress")
)

// Entry is a pending purchase of one selected plot.
type Entry struct {
	PlotID   string      `json:"plot_id"`
	PriceXRP float64     `json:"price_xrp"`
	Crop     layout.Crop `json:"crop"`
	YieldKg  float64     `json:"yield_kg"`
}

// Totals aggregates the entries of a cart.
type Totals struct {
	Count    int     `json:"count"`
	PriceXRP float64 `json:"price_xrp"`
	YieldKg  float64 `json:"yield_kg"`
}

// Cart owns the plots of one farm session together with the entries of the
// selected plots.  Every method is safe for concurrent use; operations are
// applied one at a time in the order they acquire the lock.
type Cart struct {
	mu         sync.Mutex
	plots      []layout.Plot
	index      map[string]int
	entries    map[string]Entry
	order      []string
	locked     bool
	regenerate func() []layout.Plot
}

// New builds a cart over the default layout generated from seed.
func New(seed int64) *Cart {
	return NewWithPlots(layout.Generate(seed), func() []layout.Plot { return layout.Generate(seed) })
}

// NewWithPlots builds a cart over an explicit set of plots.  regenerate is used
// by Reset; when nil, Reset reverts selected plots to available in place.
func NewWithPlots(plots []layout.Plot, regenerate func() []layout.Plot) *Cart {
	c := &Cart{regenerate: regenerate, entries: make(map[string]Entry)}
	c.setPlots(plots)
	return c
}

func (c *Cart) setPlots(plots []layout.Plot) {
	c.plots = make([]layout.Plot, len(plots))
	copy(c.plots, plots)
	c.index = layout.Index(c.plots)
}

// ToggleSelect flips a plot between available and selected and adds or
// removes its entry in the same step.  Occupied and maintenance plots are
// left untouched and reported as unchanged.
func (c *Cart) ToggleSelect(plotID string) (layout.Plot, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	i, ok := c.index[plotID]
	if !ok {
		return layout.Plot{}, false, fmt.Errorf("%w: %s", ErrUnknownPlot, plotID)
	}
	p := c.plots[i]
	if !p.Selectable() {
		return p, false, nil
	}
	if c.locked {
		return p, false, ErrCartLocked
	}
	if p.Status == layout.StatusSelected {
		c.plots[i].Status = layout.StatusAvailable
		c.dropEntry(plotID)
	} else {
		c.plots[i].Status = layout.StatusSelected
		c.entries[plotID] = Entry{PlotID: p.ID, PriceXRP: p.PriceXRP, Crop: p.Crop, YieldKg: p.YieldKg}
		c.order = append(c.order, plotID)
	}
	return c.plots[i], true, nil
}

// RemoveFromCart drops the entry for plotID and resets the plot to
// available.  Removing a plot that is not in the cart is a no-op.
func (c *Cart) RemoveFromCart(plotID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[plotID]; !ok {
		return false, nil
	}
	if c.locked {
		return false, ErrCartLocked
	}
	c.dropEntry(plotID)
	if i, ok := c.index[plotID]; ok {
		c.plots[i].Status = layout.StatusAvailable
	}
	return true, nil
}

// dropEntry must be called with mu held.
func (c *Cart) dropEntry(plotID string) {
	delete(c.entries, plotID)
	for i, id := range c.order {
		if id == plotID {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// ComputeTotals sums the price and yield of the current entries.
func (c *Cart) ComputeTotals() Totals {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalsLocked()
}

func (c *Cart) totalsLocked() Totals {
	t := Totals{Count: len(c.entries)}
	for _, id := range c.order {
		e := c.entries[id]
		t.PriceXRP += e.PriceXRP
		t.YieldKg += e.YieldKg
	}
	return t
}

// Entries returns the entries in selection order.
func (c *Cart) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Entry, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.entries[id])
	}
	return out
}

// Len returns the number of entries.
func (c *Cart) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Plots returns a copy of the current plot states.
func (c *Cart) Plots() []layout.Plot {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]layout.Plot, len(c.plots))
	copy(out, c.plots)
	return out
}

// Plot returns the current state of a single plot.
func (c *Cart) Plot(plotID string) (layout.Plot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i, ok := c.index[plotID]
	if !ok {
		return layout.Plot{}, false
	}
	return c.plots[i], true
}

// Reset clears every entry and regenerates the layout, so selected plots
// return to available.  Reset also releases the purchase lock.
func (c *Cart) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]Entry)
	c.order = nil
	c.locked = false
	if c.regenerate != nil {
		c.setPlots(c.regenerate())
		return
	}
	for i := range c.plots {
		if c.plots[i].Status == layout.StatusSelected {
			c.plots[i].Status = layout.StatusAvailable
		}
	}
}

// Lock freezes the selection while a purchase is in flight and returns the
// entries being purchased.  It fails with ErrCartLocked if already locked.
func (c *Cart) Lock() ([]Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.locked {
		return nil, ErrCartLocked
	}
	c.locked = true
	out := make([]Entry, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.entries[id])
	}
	return out, nil
}

// Unlock releases the purchase lock without touching the entries.
func (c *Cart) Unlock() {
	c.mu.Lock()
	c.locked = false
	c.mu.Unlock()
}

// Locked reports whether a purchase currently holds the cart.
func (c *Cart) Locked() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.locked
}

// CheckInvariant verifies that the selected plots and the entry keys are the
// same set.
func (c *Cart) CheckInvariant() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	selected := 0
	for _, p := range c.plots {
		if p.Status != layout.StatusSelected {
			continue
		}
		selected++
		if _, ok := c.entries[p.ID]; !ok {
			return fmt.Errorf("plot %s is selected but has no cart entry", p.ID)
		}
	}
	if selected != len(c.entries) || len(c.order) != len(c.entries) {
		return fmt.Errorf("%d selected plots, %d entries, %d ordered ids", selected, len(c.entries), len(c.order))
	}
	return nil
}

// Snapshot is a consistent view of the cart taken under a single lock.
type Snapshot struct {
	Plots   []layout.Plot `json:"plots"`
	Entries []Entry       `json:"entries"`
	Totals  Totals        `json:"totals"`
	Locked  bool          `json:"locked"`
}

// Snapshot returns the plots, entries and totals as of one instant.
func (c *Cart) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Snapshot{
		Plots:   make([]layout.Plot, len(c.plots)),
		Entries: make([]Entry, 0, len(c.order)),
		Totals:  c.totalsLocked(),
		Locked:  c.locked,
	}
	copy(s.Plots, c.plots)
	for _, id := range c.order {
		s.Entries = append(s.Entries, c.entries[id])
	}
	return s
}
