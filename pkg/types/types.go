package types

import (
	"image"
	"math"
)

// Box represents a normalized bounding box with coordinates in [0,1] range
type Box struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Pixels converts the box to a pixel rectangle inside a w x h image.
func (b Box) Pixels(w, h int) image.Rectangle {
	x0 := int(math.Round(clamp(b.X, 0, 1) * float64(w)))
	y0 := int(math.Round(clamp(b.Y, 0, 1) * float64(h)))
	x1 := int(math.Round(clamp(b.X+b.W, 0, 1) * float64(w)))
	y1 := int(math.Round(clamp(b.Y+b.H, 0, 1) * float64(h)))
	return image.Rect(x0, y0, x1, y1)
}

// Region is one text region a vision model found on a baseline image
type Region struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"box"`
}

// RegionResult is the parsed answer of a region detection query
type RegionResult struct {
	Regions     []Region `json:"regions"`
	Description string   `json:"description"`
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
