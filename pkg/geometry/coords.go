package geometry

import "math"

// Coords carries a point list in one of the two wire shapes used by the
// services: a flat [x1,y1,x2,y2,...] sequence or a list of [x,y] pairs.
// Pairs wins when both are populated.
type Coords struct {
	Serial []int
	Pairs  [][2]int
}

// IsPairs reports whether c holds pair-format data.
func (c Coords) IsPairs() bool {
	return len(c.Pairs) > 0
}

// Empty reports whether c holds no points.
func (c Coords) Empty() bool {
	return len(c.Pairs) == 0 && len(c.Serial) < 2
}

// Points converts either shape into a point slice. A trailing odd value in
// a flat sequence is ignored.
func (c Coords) Points() []Point {
	if c.IsPairs() {
		pts := make([]Point, len(c.Pairs))
		for i, p := range c.Pairs {
			pts[i] = Point{X: p[0], Y: p[1]}
		}
		return pts
	}
	pts := make([]Point, 0, len(c.Serial)/2)
	for i := 0; i+1 < len(c.Serial); i += 2 {
		pts = append(pts, Point{X: c.Serial[i], Y: c.Serial[i+1]})
	}
	return pts
}

// BoundingRect returns [x1,y1,x2,y1,x2,y2,x1,y2] tracing upper-left,
// upper-right, lower-right and lower-left, or nil for empty input.
func BoundingRect(c Coords) []int {
	if c.Empty() {
		return nil
	}
	pts := c.Points()
	x1, y1 := pts[0].X, pts[0].Y
	x2, y2 := x1, y1
	for _, pt := range pts[1:] {
		x1 = min(x1, pt.X)
		x2 = max(x2, pt.X)
		y1 = min(y1, pt.Y)
		y2 = max(y2, pt.Y)
	}
	return []int{x1, y1, x2, y1, x2, y2, x1, y2}
}

// TranslatedPoly shifts every point by (dx, dy). The output keeps the input
// shape unless forceSerial asks for a flat sequence from pair input. With
// both deltas zero or empty input, c is returned unchanged.
func TranslatedPoly(c Coords, dx, dy int, forceSerial bool) Coords {
	if c.Empty() || (dx == 0 && dy == 0) {
		return c
	}
	pts := c.Points()
	if c.IsPairs() && !forceSerial {
		out := make([][2]int, len(pts))
		for i, pt := range pts {
			out[i] = [2]int{pt.X + dx, pt.Y + dy}
		}
		return Coords{Pairs: out}
	}
	out := make([]int, 0, 2*len(pts))
	for _, pt := range pts {
		out = append(out, pt.X+dx, pt.Y+dy)
	}
	return Coords{Serial: out}
}

// Centroid returns the rounded arithmetic mean of pts, or the zero point
// for empty input.
func Centroid(pts []Point) Point {
	if len(pts) == 0 {
		return Point{}
	}
	var sx, sy int
	for _, pt := range pts {
		sx += pt.X
		sy += pt.Y
	}
	n := float64(len(pts))
	return Point{
		X: int(math.Round(float64(sx) / n)),
		Y: int(math.Round(float64(sy) / n)),
	}
}

// PointInPolygon is an even-odd ray cast against the closed path through pts.
func PointInPolygon(x, y float64, pts []Point) bool {
	n := len(pts)
	if n < 3 {
		return false
	}
	inside := false
	j := n - 1
	for i := 0; i < n; i++ {
		xi, yi := float64(pts[i].X), float64(pts[i].Y)
		xj, yj := float64(pts[j].X), float64(pts[j].Y)
		if (yi > y) != (yj > y) && x < (xj-xi)*(y-yi)/(yj-yi)+xi {
			inside = !inside
		}
		j = i
	}
	return inside
}
