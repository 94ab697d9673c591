// Package layout generates the fixed grid of sellable growing plots for a
// farm.  A farm is modelled as a set of hydroponic towers, each with a number
// of levels and a number of racks per level.  The grid is produced from a
// seed so that every process that renders a farm agrees on the layout.
package layout

// Status is the availability state of a single plot.
type Status string

const (
	StatusAvailable   Status = "available"
	StatusOccupied    Status = "occupied"
	StatusMaintenance Status = "maintenance"
	StatusSelected    Status = "selected"
)

// Selectable reports whether a plot in this state may be toggled by a user.
// Occupied and maintenance plots are fixed at generation time.
func (s Status) Selectable() bool {
	return s == StatusAvailable || s == StatusSelected
}

// Crop is the label of the crop grown in a plot.
type Crop string

const (
	CropLettuce     Crop = "Lettuce"
	CropBroccoli    Crop = "Broccoli"
	CropMicrogreens Crop = "Microgreens"
	CropSpinach     Crop = "Spinach"
	CropKale        Crop = "Kale"
	CropHerbs       Crop = "Herbs"
)

// Crops lists every crop in the order used to map a random sample to a crop.
// Reordering this slice changes every generated layout.
var Crops = []Crop{CropLettuce, CropBroccoli, CropMicrogreens, CropSpinach, CropKale, CropHerbs}

// cropIcons resolves a crop to the icon name clients render for it.
var cropIcons = map[Crop]string{
	CropLettuce:     "leaf",
	CropBroccoli:    "trees",
	CropMicrogreens: "sprout",
	CropSpinach:     "leaf",
	CropKale:        "flower",
	CropHerbs:       "sprout",
}

// Icon returns the icon name for the crop, "leaf" for unknown crops.
func (c Crop) Icon() string {
	if icon, ok := cropIcons[c]; ok {
		return icon
	}
	return "leaf"
}

// Plot is one sellable growing slot.  ID is derived from the tower, level
// and rack and is stable across regenerations.
type Plot struct {
	ID       string  `json:"id"`
	Tower    int     `json:"tower"`
	Level    int     `json:"level"`
	Rack     string  `json:"rack"`
	Status   Status  `json:"status"`
	Crop     Crop    `json:"crop"`
	Icon     string  `json:"icon"`
	PriceXRP float64 `json:"price_xrp"`
	YieldKg  float64 `json:"yield_kg"`
}

// Selectable reports whether the plot can be selected or deselected.
func (p Plot) Selectable() bool { return p.Status.Selectable() }
