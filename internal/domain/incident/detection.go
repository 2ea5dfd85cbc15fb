package incident

import (
	"math"
	"strings"
)

// Category is the coarse tag derived from a detector label.
type Category string

const (
	CategoryVehicle   Category = "vehicle"
	CategoryPerson    Category = "person"
	CategoryIndicator Category = "incident_indicator"
	CategoryOther     Category = "other"
)

var labelCategories = map[string]Category{
	"car":        CategoryVehicle,
	"truck":      CategoryVehicle,
	"bus":        CategoryVehicle,
	"motorcycle": CategoryVehicle,
	"bicycle":    CategoryVehicle,
	"train":      CategoryVehicle,
	"vehicle":    CategoryVehicle,
	"person":     CategoryPerson,
	"fire":       CategoryIndicator,
	"smoke":      CategoryIndicator,
}

// CategoryForLabel maps an open-vocabulary detector label to its category.
// Unknown labels are CategoryOther.
func CategoryForLabel(label string) Category {
	if c, ok := labelCategories[strings.ToLower(strings.TrimSpace(label))]; ok {
		return c
	}
	return CategoryOther
}

// Detection is one object reported by the locator capability.
type Detection struct {
	X          int      `json:"x"`
	Y          int      `json:"y"`
	Width      int      `json:"width"`
	Height     int      `json:"height"`
	Label      string   `json:"label"`
	Confidence float64  `json:"confidence"`
	Category   Category `json:"category"`
}

func (d Detection) CenterDistance(other Detection) float64 {
	cx1 := float64(d.X) + float64(d.Width)/2
	cy1 := float64(d.Y) + float64(d.Height)/2
	cx2 := float64(other.X) + float64(other.Width)/2
	cy2 := float64(other.Y) + float64(other.Height)/2
	return math.Hypot(cx1-cx2, cy1-cy2)
}
