package geometry

import (
	"fmt"
	"image"
)

// BoundingBox is an axis-aligned rectangle given by its offset and size.
type BoundingBox struct {
	x, y          int
	width, height int
	set           bool
}

// NewBoundingBox computes the min/max envelope of every "(x,y)" pair in s.
//
// A single matched point is treated as the far corner of a box anchored at
// the image origin, so "(5,5)" yields offset (0,0) and size 5x5. Callers
// that expect a degenerate box at the point itself must build it with
// NewBoundingBoxFromRect.
func NewBoundingBox(s string) BoundingBox {
	pts := ParsePoints(s)
	if len(pts) == 0 {
		return BoundingBox{}
	}
	x1, y1 := pts[0].X, pts[0].Y
	x2, y2 := x1, y1
	for _, pt := range pts[1:] {
		x1 = min(x1, pt.X)
		x2 = max(x2, pt.X)
		y1 = min(y1, pt.Y)
		y2 = max(y2, pt.Y)
	}
	if len(pts) == 1 {
		x1, y1 = 0, 0
	}
	return BoundingBox{x: x1, y: y1, width: x2 - x1, height: y2 - y1, set: true}
}

// NewBoundingBoxFromRect builds a box from an offset and size.
func NewBoundingBoxFromRect(x, y, w, h int) BoundingBox {
	return BoundingBox{x: x, y: y, width: w, height: h, set: true}
}

// Valid reports whether the box has been set and has a positive area.
func (b BoundingBox) Valid() bool {
	return b.set && b.width > 0 && b.height > 0
}

// Translate shifts the offset only.
func (b *BoundingBox) Translate(dx, dy int) {
	b.x += dx
	b.y += dy
}

func (b BoundingBox) XOffset() int { return b.x }
func (b BoundingBox) YOffset() int { return b.y }
func (b BoundingBox) Width() int   { return b.width }
func (b BoundingBox) Height() int  { return b.height }

func (b *BoundingBox) SetXOffset(x int) { b.x = x; b.set = true }
func (b *BoundingBox) SetYOffset(y int) { b.y = y; b.set = true }
func (b *BoundingBox) SetWidth(w int)   { b.width = w; b.set = true }
func (b *BoundingBox) SetHeight(h int)  { b.height = h; b.set = true }

// Points renders the two opposite corners as a textual point array,
// e.g. {'(10,10)','(50,40)'}.
func (b BoundingBox) Points() string {
	return fmt.Sprintf("{'(%d,%d)','(%d,%d)'}", b.x, b.y, b.x+b.width, b.y+b.height)
}

// Rect returns the box as an image.Rectangle.
func (b BoundingBox) Rect() image.Rectangle {
	return image.Rect(b.x, b.y, b.x+b.width, b.y+b.height)
}

// Polygon returns the four corners UL, UR, LR, LL as a polygon.
func (b BoundingBox) Polygon() Polygon {
	return PolygonFromPoints([]Point{
		{b.x, b.y},
		{b.x + b.width, b.y},
		{b.x + b.width, b.y + b.height},
		{b.x, b.y + b.height},
	})
}
