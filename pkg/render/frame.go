// Package render rasterizes an editor frame: the visible part of the
// baseline image, the segment polygons, the path being drawn and the
// navigation thumbnail.
package render

import (
	"image"
	"image/color"

	"github.com/golang/geo/r2"

	"github.com/menta2k/read-segments/pkg/geometry"
)

// Polygon is a resolved overlay entry ready to stroke. Points are in image space.
type Polygon struct {
	Label   string
	Points  []geometry.Point
	Color   color.NRGBA
	Width   int
	Ordinal int
	Center  geometry.Point
}

// Nav describes the thumbnail panel.
type Nav struct {
	Visible bool
	Pos     image.Point
	Size    image.Point
	// Viewport is the viewport rectangle in thumbnail space.
	Viewport r2.Rect
	Opacity  float64
}

// Frame is a snapshot of everything needed to draw one pane.
type Frame struct {
	Canvas image.Point
	// Source is the image region shown on the canvas.
	Source image.Rectangle
	Offset r2.Point
	ScaleX float64
	ScaleY float64

	Polygons     []Polygon
	ShowOrdinals bool

	Path      []geometry.Point
	PathDone  bool
	PathOpen  bool
	CrossSize int

	Nav      Nav
	Commands string
}

// FullImageFrame returns a frame showing all of bounds at scale 1.
func FullImageFrame(bounds image.Rectangle) Frame {
	return Frame{
		Canvas:    bounds.Size(),
		Source:    bounds,
		Offset:    r2.Point{X: float64(bounds.Min.X), Y: float64(bounds.Min.Y)},
		ScaleX:    1,
		ScaleY:    1,
		CrossSize: 10,
	}
}

// ToCanvas maps an image point into canvas pixels.
func (f Frame) ToCanvas(p geometry.Point) (x, y float64) {
	return (float64(p.X) - f.Offset.X) * f.ScaleX, (float64(p.Y) - f.Offset.Y) * f.ScaleY
}
