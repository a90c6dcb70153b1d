// Package overlay keeps the labeled polygons drawn over a baseline image:
// their display state, the current selection and hit testing.
//
// Entries live in a dense list addressed by 1-based index, with a label
// lookup that always satisfies lookup[label] == position+1.
package overlay

import (
	"fmt"
	"image/color"
	"sort"

	"github.com/golang/geo/r2"

	"github.com/menta2k/read-segments/pkg/geometry"
)

// Color is a named stroke color.
type Color string

const (
	ColorUnlinked  Color = "red"
	ColorLinked    Color = "green"
	ColorHighlight Color = "white"
	ColorOrdering  Color = "blue"
)

// NRGBA returns the color value used when rasterizing.
func (c Color) NRGBA() color.NRGBA {
	switch c {
	case ColorLinked:
		return color.NRGBA{0, 128, 0, 255}
	case ColorHighlight:
		return color.NRGBA{255, 255, 255, 255}
	case ColorOrdering:
		return color.NRGBA{0, 0, 255, 255}
	default:
		return color.NRGBA{255, 0, 0, 255}
	}
}

const (
	defaultWidth  = 1
	selectedWidth = 3
	// maxCornerDistance bounds the search radius of FindVisible in image pixels.
	maxCornerDistance = 1000
)

// Segment is one overlay entry.
type Segment struct {
	Label   string
	Polygon geometry.Polygon
	Ordinal int
	Color   Color
	Width   int
	Hidden  bool
	Hilite  bool
	LinkIDs []int

	center *geometry.Point
}

// Center returns the stored center when one was supplied, else the polygon centroid.
func (s *Segment) Center() geometry.Point {
	if s.center != nil {
		return *s.center
	}
	return s.Polygon.Center()
}

// SetPolygon replaces the geometry and drops any supplied center.
func (s *Segment) SetPolygon(p geometry.Polygon) {
	s.Polygon = p
	s.center = nil
}

// Linked reports whether the segment has at least one linked syllable.
func (s *Segment) Linked() bool {
	return len(s.LinkIDs) > 0
}

// SetLinks replaces the linked ids and recolors the entry.
func (s *Segment) SetLinks(ids []int) {
	s.LinkIDs = append([]int(nil), ids...)
	if len(s.LinkIDs) > 0 {
		s.Color = ColorLinked
	} else {
		s.Color = ColorUnlinked
	}
}

// RemoveLink drops id from LinkIDs and turns the entry red once unlinked.
func (s *Segment) RemoveLink(id int) {
	for i, v := range s.LinkIDs {
		if v == id {
			s.LinkIDs = append(s.LinkIDs[:i], s.LinkIDs[i+1:]...)
			break
		}
	}
	if len(s.LinkIDs) == 0 {
		s.Color = ColorUnlinked
	}
}

// Overlay is the ordered polygon list of one pane. It is not safe for
// concurrent use; the owning editor serializes access.
type Overlay struct {
	segments []*Segment
	lookup   map[string]int
	selected map[string]struct{}
}

// New returns an empty overlay.
func New() *Overlay {
	return &Overlay{
		lookup:   make(map[string]int),
		selected: make(map[string]struct{}),
	}
}

// Add appends an entry and returns its 1-based index. A nil center means
// the centroid is derived from the polygon. Ordinal 0 means unnumbered.
func (o *Overlay) Add(poly geometry.Polygon, label string, visible bool, linkIDs []int, center *geometry.Point, ordinal int) int {
	seg := &Segment{
		Label:   label,
		Polygon: poly,
		Ordinal: ordinal,
		Width:   defaultWidth,
		Hidden:  !visible,
	}
	if center != nil {
		c := *center
		seg.center = &c
	}
	seg.SetLinks(linkIDs)
	if idx, ok := o.lookup[label]; ok {
		o.segments[idx-1] = seg
		return idx
	}
	o.segments = append(o.segments, seg)
	o.lookup[label] = len(o.segments)
	return len(o.segments)
}

// Remove deletes the entry for label and shifts every later index down by one.
func (o *Overlay) Remove(label string) bool {
	idx, ok := o.lookup[label]
	if !ok || idx > len(o.segments) {
		return false
	}
	for _, seg := range o.segments[idx:] {
		o.lookup[seg.Label]--
	}
	delete(o.lookup, label)
	delete(o.selected, label)
	o.segments = append(o.segments[:idx-1], o.segments[idx:]...)
	return true
}

// Relabel renames an entry in place, keeping its index and selection state.
func (o *Overlay) Relabel(oldLabel, newLabel string) bool {
	idx, ok := o.lookup[oldLabel]
	if !ok {
		return false
	}
	if _, taken := o.lookup[newLabel]; taken && newLabel != oldLabel {
		return false
	}
	delete(o.lookup, oldLabel)
	o.lookup[newLabel] = idx
	o.segments[idx-1].Label = newLabel
	if _, sel := o.selected[oldLabel]; sel {
		delete(o.selected, oldLabel)
		o.selected[newLabel] = struct{}{}
	}
	return true
}

// Len returns the number of entries.
func (o *Overlay) Len() int { return len(o.segments) }

// At returns the entry at 1-based index, or nil when out of range.
func (o *Overlay) At(index int) *Segment {
	if index < 1 || index > len(o.segments) {
		return nil
	}
	return o.segments[index-1]
}

// Index returns the 1-based index of label, or 0.
func (o *Overlay) Index(label string) int {
	return o.lookup[label]
}

// ByLabel returns the entry for label, or nil.
func (o *Overlay) ByLabel(label string) *Segment {
	return o.At(o.lookup[label])
}

// All returns the entries in index order.
func (o *Overlay) All() []*Segment {
	return append([]*Segment(nil), o.segments...)
}

// HitTest returns the 1-based indices of every entry containing image point (x, y).
func (o *Overlay) HitTest(x, y float64) []int {
	var hits []int
	for i, seg := range o.segments {
		if seg.Polygon.Contains(x, y) {
			hits = append(hits, i+1)
		}
	}
	return hits
}

// Select adds label to the selection. Unknown labels are ignored.
func (o *Overlay) Select(label string) bool {
	if _, ok := o.lookup[label]; !ok {
		return false
	}
	o.selected[label] = struct{}{}
	return true
}

// Unselect removes label from the selection.
func (o *Overlay) Unselect(label string) {
	delete(o.selected, label)
}

// ClearSelection empties the selection.
func (o *Overlay) ClearSelection() {
	o.selected = make(map[string]struct{})
}

// IsSelected reports whether label is selected.
func (o *Overlay) IsSelected(label string) bool {
	_, ok := o.selected[label]
	return ok
}

// SelectedCount returns the number of selected entries.
func (o *Overlay) SelectedCount() int { return len(o.selected) }

// Selected returns the selected labels in index order.
func (o *Overlay) Selected() []string {
	labels := make([]string, 0, len(o.selected))
	for l := range o.selected {
		labels = append(labels, l)
	}
	sort.Slice(labels, func(i, j int) bool {
		return o.lookup[labels[i]] < o.lookup[labels[j]]
	})
	return labels
}

// DedupeSelection drops selected entries whose vertex list equals that of
// the first selected entry, leaving one of a stack of identical polygons.
func (o *Overlay) DedupeSelection() {
	labels := o.Selected()
	if len(labels) < 2 {
		return
	}
	first := o.ByLabel(labels[0])
	for _, l := range labels[1:] {
		if o.ByLabel(l).Polygon.Equal(first.Polygon) {
			delete(o.selected, l)
		}
	}
}

// SetHilite sets the transient highlight of the entry at index.
func (o *Overlay) SetHilite(index int, hilite bool) {
	if seg := o.At(index); seg != nil {
		seg.Hilite = hilite
	}
}

// SetDisplay updates color, width and visibility of the entry at index.
// Zero values leave the corresponding attribute unchanged.
func (o *Overlay) SetDisplay(index int, c Color, width int, show *bool) {
	seg := o.At(index)
	if seg == nil {
		return
	}
	if c != "" {
		seg.Color = c
	}
	if width > 0 {
		seg.Width = width
	}
	if show != nil {
		seg.Hidden = !*show
	}
}

// Corner names a corner of the visible image region.
type Corner int

const (
	TopRight Corner = iota
	TopLeft
	BottomLeft
	BottomRight
)

// FindVisible returns the entry whose center lies inside visible and is
// nearest the given corner, or nil.
func (o *Overlay) FindVisible(visible r2.Rect, corner Corner) *Segment {
	var ref r2.Point
	switch corner {
	case TopLeft:
		ref = r2.Point{X: visible.X.Lo, Y: visible.Y.Lo}
	case BottomLeft:
		ref = r2.Point{X: visible.X.Lo, Y: visible.Y.Hi}
	case BottomRight:
		ref = r2.Point{X: visible.X.Hi, Y: visible.Y.Hi}
	default:
		ref = r2.Point{X: visible.X.Hi, Y: visible.Y.Lo}
	}
	var best *Segment
	minDist := float64(maxCornerDistance)
	for _, seg := range o.segments {
		c := seg.Center()
		p := r2.Point{X: float64(c.X), Y: float64(c.Y)}
		if !visible.ContainsPoint(p) {
			continue
		}
		if d := p.Sub(ref).Norm(); d < minDist {
			best, minDist = seg, d
		}
	}
	return best
}

// DrawMode captures the pane state that affects how entries are stroked.
type DrawMode struct {
	ShowAll  bool
	LinkMode bool
	Ordering bool
}

// Stroke resolves how seg is drawn in mode. Hidden entries are only drawn
// when highlighted, selected or when the mode reveals all entries.
func (o *Overlay) Stroke(seg *Segment, mode DrawMode) (c Color, width int, visible bool) {
	selected := o.IsSelected(seg.Label)
	if !mode.ShowAll && !mode.LinkMode && !mode.Ordering {
		if seg.Hidden && !seg.Hilite && !selected {
			return "", 0, false
		}
	}
	if mode.Ordering {
		return ColorOrdering, defaultWidth, true
	}
	c = seg.Color
	if seg.Hilite || selected {
		c = ColorHighlight
	}
	width = seg.Width
	if selected {
		width = selectedWidth
	}
	return c, width, true
}

// Validate checks the index lookup against entry positions.
func (o *Overlay) Validate() error {
	if len(o.lookup) != len(o.segments) {
		return fmt.Errorf("overlay: %d lookup entries for %d segments", len(o.lookup), len(o.segments))
	}
	for i, seg := range o.segments {
		if got := o.lookup[seg.Label]; got != i+1 {
			return fmt.Errorf("overlay: %s indexed at %d, stored at %d", seg.Label, got, i+1)
		}
	}
	return nil
}
