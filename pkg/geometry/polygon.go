// Package geometry holds the planar primitives shared by the segment editor,
// the crop service and the persistence layer: points, polygons and
// axis-aligned bounding boxes in image pixel space.
package geometry

import (
	"encoding/json"
	"fmt"
	"image"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// pointPattern matches a single "(x,y)" vertex with non-negative integer coordinates.
var pointPattern = regexp.MustCompile(`\((\d+),(\d+)\)`)

// Point is an integer pixel coordinate in image space.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Add returns p shifted by (dx, dy).
func (p Point) Add(dx, dy int) Point {
	return Point{X: p.X + dx, Y: p.Y + dy}
}

func (p Point) String() string {
	return "(" + strconv.Itoa(p.X) + "," + strconv.Itoa(p.Y) + ")"
}

// ParsePoints extracts every "(x,y)" pair from s in source order.
// Malformed fragments are skipped silently.
func ParsePoints(s string) []Point {
	matches := pointPattern.FindAllStringSubmatch(s, -1)
	if len(matches) == 0 {
		return nil
	}
	pts := make([]Point, 0, len(matches))
	for _, m := range matches {
		x, errX := strconv.Atoi(m[1])
		y, errY := strconv.Atoi(m[2])
		if errX != nil || errY != nil {
			continue
		}
		pts = append(pts, Point{X: x, Y: y})
	}
	return pts
}

// Polygon is an implicitly closed ordered vertex list. The zero value is an
// unset polygon and reports !Valid().
type Polygon struct {
	points []Point
}

// NewPolygon parses a point list such as "((1,2),(3,4),(5,6))". Fewer than
// three matched vertices leave the polygon unset.
func NewPolygon(s string) Polygon {
	pts := ParsePoints(s)
	if len(pts) < 3 {
		return Polygon{}
	}
	return Polygon{points: pts}
}

// PolygonFromPoints copies pts into a new polygon.
func PolygonFromPoints(pts []Point) Polygon {
	if len(pts) == 0 {
		return Polygon{}
	}
	cp := make([]Point, len(pts))
	copy(cp, pts)
	return Polygon{points: cp}
}

// PolygonFromPairs builds a polygon from [x,y] pairs.
func PolygonFromPairs(pairs [][2]int) Polygon {
	pts := make([]Point, len(pairs))
	for i, p := range pairs {
		pts[i] = Point{X: p[0], Y: p[1]}
	}
	return Polygon{points: pts}
}

// Valid reports whether the polygon has more than two vertices.
func (p Polygon) Valid() bool {
	return len(p.points) > 2
}

// Len returns the vertex count.
func (p Polygon) Len() int {
	return len(p.points)
}

// Points returns a copy of the vertices.
func (p Polygon) Points() []Point {
	if p.points == nil {
		return nil
	}
	cp := make([]Point, len(p.points))
	copy(cp, p.points)
	return cp
}

// Vertex returns the i-th vertex.
func (p Polygon) Vertex(i int) Point {
	return p.points[i]
}

// Pairs returns the vertices as [x,y] pairs.
func (p Polygon) Pairs() [][2]int {
	out := make([][2]int, len(p.points))
	for i, pt := range p.points {
		out[i] = [2]int{pt.X, pt.Y}
	}
	return out
}

// SetPoints replaces the whole vertex list.
func (p *Polygon) SetPoints(pts []Point) {
	*p = PolygonFromPoints(pts)
}

// Translate shifts every vertex by (dx, dy). The shifted vertices go into a
// new list, so copies of p keep their points.
func (p *Polygon) Translate(dx, dy int) {
	if dx == 0 && dy == 0 || p.points == nil {
		return
	}
	moved := make([]Point, len(p.points))
	for i, pt := range p.points {
		moved[i] = pt.Add(dx, dy)
	}
	p.points = moved
}

// Center is the rounded mean of all vertices. It is derived on every call so
// it always agrees with the current vertex list.
func (p Polygon) Center() Point {
	return Centroid(p.points)
}

// BoundingRect returns the 8 corner coordinates UL, UR, LR, LL, or nil when unset.
func (p Polygon) BoundingRect() []int {
	return BoundingRect(Coords{Pairs: p.Pairs()})
}

// Bounds returns the envelope as an image.Rectangle whose Max is exclusive.
func (p Polygon) Bounds() image.Rectangle {
	r := p.BoundingRect()
	if r == nil {
		return image.Rectangle{}
	}
	return image.Rect(r[0], r[1], r[4]+1, r[5]+1)
}

// Size returns the width and height of the bounding rectangle.
func (p Polygon) Size() (w, h int) {
	r := p.BoundingRect()
	if r == nil {
		return 0, 0
	}
	return r[2] - r[0], r[5] - r[1]
}

// Contains reports whether (x, y) lies inside the closed polygon.
func (p Polygon) Contains(x, y float64) bool {
	return PointInPolygon(x, y, p.points)
}

// Equal reports whether both polygons list the same vertices in the same order.
func (p Polygon) Equal(o Polygon) bool {
	if len(p.points) != len(o.points) {
		return false
	}
	for i := range p.points {
		if p.points[i] != o.points[i] {
			return false
		}
	}
	return true
}

// String renders "((x1,y1),(x2,y2),...)".
func (p Polygon) String() string {
	var sb strings.Builder
	sb.WriteByte('(')
	for i, pt := range p.points {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(pt.String())
	}
	sb.WriteByte(')')
	return sb.String()
}

// JSON renders "[[x1,y1],[x2,y2],...]".
func (p Polygon) JSON() string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, pt := range p.points {
		if i > 0 {
			sb.WriteByte(',')
		}
		fmt.Fprintf(&sb, "[%d,%d]", pt.X, pt.Y)
	}
	sb.WriteByte(']')
	return sb.String()
}

// PGLiteral renders the polygon as a one-element Postgres polygon array
// literal, the format stored in seg_image_pos.
func (p Polygon) PGLiteral() string {
	return `{"` + p.String() + `"}`
}

// MarshalJSON encodes the polygon as an array of [x,y] pairs.
func (p Polygon) MarshalJSON() ([]byte, error) {
	if p.points == nil {
		return []byte("null"), nil
	}
	return []byte(p.JSON()), nil
}

// UnmarshalJSON accepts an array of [x,y] pairs or a point-list string.
func (p *Polygon) UnmarshalJSON(data []byte) error {
	var pairs [][2]float64
	if err := json.Unmarshal(data, &pairs); err == nil {
		pts := make([]Point, len(pairs))
		for i, pr := range pairs {
			pts[i] = Point{X: int(math.Round(pr[0])), Y: int(math.Round(pr[1]))}
		}
		p.points = pts
		if len(pts) == 0 {
			p.points = nil
		}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("polygon: expected [[x,y],...] or point string: %w", err)
	}
	*p = NewPolygon(s)
	return nil
}

// ParsePGPolygons splits a Postgres polygon array literal such as
// {"((1,2),(3,4),(5,6))","((7,8),(9,10),(11,12))"} into polygons.
// Elements with fewer than three vertices are dropped.
func ParsePGPolygons(s string) []Polygon {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "{")
	s = strings.TrimSuffix(s, "}")
	if s == "" {
		return nil
	}
	var out []Polygon
	for _, part := range splitTopLevel(s) {
		poly := NewPolygon(part)
		if poly.Valid() {
			out = append(out, poly)
		}
	}
	return out
}

// splitTopLevel splits on commas that are outside any parentheses.
func splitTopLevel(s string) []string {
	var parts []string
	depth, start := 0, 0
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}
