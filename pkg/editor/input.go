package editor

import (
	"context"
	"math"

	"github.com/golang/geo/r2"

	"github.com/menta2k/read-segments/pkg/bus"
	"github.com/menta2k/read-segments/pkg/geometry"
	"github.com/menta2k/read-segments/pkg/overlay"
)

// Modifiers are the keyboard modifiers held during a gesture.
type Modifiers uint8

const (
	ModShift Modifiers = 1 << iota
	ModCtrl
	ModAlt
)

// Has reports whether every modifier in f is held.
func (m Modifiers) Has(f Modifiers) bool { return m&f == f }

// MouseEvent is a pointer event in canvas pixels.
type MouseEvent struct {
	X, Y float64
	Mods Modifiers
}

func (ev MouseEvent) point() r2.Point { return r2.Point{X: ev.X, Y: ev.Y} }

// Key names a non-character key.
type Key string

const (
	ArrowLeft  Key = "ArrowLeft"
	ArrowUp    Key = "ArrowUp"
	ArrowRight Key = "ArrowRight"
	ArrowDown  Key = "ArrowDown"
)

const (
	// minRectDrag is the smallest rubber band, in canvas pixels, kept as a path.
	minRectDrag       = 2
	navStepVertical   = 5
	navStepHorizontal = 3
)

func roundPoint(p r2.Point) geometry.Point {
	return geometry.Point{X: int(math.Round(p.X)), Y: int(math.Round(p.Y))}
}

// Click handles a single click. Shift alone stamps a rectangle of the last
// measured segment size, ctrl adds the polygons under the pointer to the
// selection, alt starts a freehand path, and in path mode the click adds a
// vertex or closes the path near its start. While numbering, a click
// numbers the polygon under the pointer.
func (e *ImageEditor) Click(ctx context.Context, ev MouseEvent) error {
	e.mu.Lock()
	if e.orderMode == OrderSetting || e.orderMode == OrderResetting {
		e.mu.Unlock()
		return nil
	}
	pt := e.vp.CanvasToImage(ev.X, ev.Y)
	var events []bus.Event
	switch {
	case ev.Mods.Has(ModShift) && !ev.Mods.Has(ModCtrl) && !ev.Mods.Has(ModAlt):
		e.stampRectLocked(pt)
	case e.orderMode == OrderOn:
		if hits := e.ov.HitTest(pt.X, pt.Y); len(hits) > 0 {
			label := e.ov.At(hits[0]).Label
			e.mu.Unlock()
			return e.setSegmentOrdinal(ctx, label)
		}
	case ev.Mods.Has(ModCtrl):
		hits := e.ov.HitTest(pt.X, pt.Y)
		for _, idx := range hits {
			e.ov.Select(e.ov.At(idx).Label)
		}
		if len(hits) > 0 {
			events = append(events, e.selectionEventLocked())
		}
	case ev.Mods.Has(ModAlt):
		e.path = []geometry.Point{roundPoint(pt)}
		e.segMode = ModePath
	case e.segMode == ModePath:
		e.extendPathLocked(roundPoint(pt))
	}
	e.mu.Unlock()

	for _, out := range events {
		e.publish(out)
	}
	e.Redraw()
	return nil
}

// stampRectLocked makes the pending path a rectangle of the remembered
// size around pt, kept inside the image.
func (e *ImageEditor) stampRectLocked(pt r2.Point) {
	img := e.vp.ImageSize()
	w, h := e.rectW, e.rectH
	x0 := clamp(int(math.Round(pt.X))-int(math.Round(float64(w)/2)), 0, max(0, img.W-w))
	y0 := clamp(int(math.Round(pt.Y))-int(math.Round(float64(h)/2)), 0, max(0, img.H-h))
	e.path = rectPath(geometry.Point{X: x0, Y: y0}, geometry.Point{X: x0 + w, Y: y0 + h})
	e.segMode = ModeDone
}

// extendPathLocked appends p to the freehand path, or closes the path when
// p is within the close tolerance of its first vertex.
func (e *ImageEditor) extendPathLocked(p geometry.Point) {
	if len(e.path) > 2 {
		tx, ty := e.vp.CanvasTolerance(e.closeTol)
		start := e.path[0]
		if math.Abs(float64(p.X-start.X)) <= tx && math.Abs(float64(p.Y-start.Y)) <= ty {
			e.segMode = ModeDone
			return
		}
	}
	e.path = append(e.path, p)
}

// selectionEventLocked answers a pending link request with the first
// selected segment, or announces the new selection.
func (e *ImageEditor) selectionEventLocked() bus.Event {
	sel := e.ov.Selected()
	if e.linkMode && len(sel) > 0 {
		e.linkMode = false
		return bus.LinkResponse{From: e.from(), Target: sel[0]}
	}
	return bus.SelectionChanged{From: e.from(), IDs: sel}
}

// DoubleClick selects every polygon under the pointer, dropping stacked
// duplicates. Without ctrl the selection is replaced and the size of the
// first polygon is remembered for shift stamping.
func (e *ImageEditor) DoubleClick(ev MouseEvent) {
	e.mu.Lock()
	if e.orderMode != OrderOff {
		e.mu.Unlock()
		return
	}
	pt := e.vp.CanvasToImage(ev.X, ev.Y)
	hits := e.ov.HitTest(pt.X, pt.Y)
	if len(hits) == 0 {
		e.mu.Unlock()
		return
	}
	if !ev.Mods.Has(ModCtrl) {
		e.ov.ClearSelection()
		if w, h := e.ov.At(hits[0]).Polygon.Size(); w > 0 && h > 0 {
			e.rectW, e.rectH = w, h
		}
	}
	for _, idx := range hits {
		e.ov.Select(e.ov.At(idx).Label)
	}
	e.ov.DedupeSelection()
	out := e.selectionEventLocked()
	e.mu.Unlock()

	e.publish(out)
	e.Redraw()
}

// MouseDown starts a ctrl drag of the view, or a rubber band rectangle
// unless a freehand path is in progress.
func (e *ImageEditor) MouseDown(ev MouseEvent) {
	e.mu.Lock()
	e.lastMouse = ev.point()
	if ev.Mods.Has(ModCtrl) {
		e.dragNav = true
	} else if e.segMode != ModePath {
		e.segMode = ModeRect
		e.path = nil
		e.drawing = true
		e.rectStart = ev.point()
	}
	e.mu.Unlock()
}

// MouseMove pans the view during a ctrl drag or grows the rubber band.
func (e *ImageEditor) MouseMove(ev MouseEvent) {
	e.mu.Lock()
	changed := false
	switch {
	case e.dragNav:
		delta := ev.point().Sub(e.lastMouse)
		img, nav := e.vp.ImageSize(), e.vp.NavSize()
		ix, iy := e.vp.CanvasLengthToImage(delta.X, delta.Y)
		e.vp.MoveRelative(-ix*float64(nav.W)/float64(img.W), -iy*float64(nav.H)/float64(img.H))
		changed = true
	case e.segMode == ModeRect && e.drawing:
		a := roundPoint(e.vp.CanvasToImage(e.rectStart.X, e.rectStart.Y))
		b := roundPoint(e.vp.CanvasToImage(ev.X, ev.Y))
		e.path = rectPath(a, b)
		changed = true
	}
	e.lastMouse = ev.point()
	e.mu.Unlock()
	if changed {
		e.Redraw()
	}
}

// MouseUp ends a drag. A rubber band larger than a couple of pixels becomes
// the pending path and sets the remembered stamp size.
func (e *ImageEditor) MouseUp(ev MouseEvent) {
	e.mu.Lock()
	e.dragNav = false
	if e.segMode == ModeRect {
		e.drawing = false
		e.path = nil
		if math.Abs(ev.X-e.rectStart.X) > minRectDrag && math.Abs(ev.Y-e.rectStart.Y) > minRectDrag {
			a := roundPoint(e.vp.CanvasToImage(math.Min(ev.X, e.rectStart.X), math.Min(ev.Y, e.rectStart.Y)))
			b := roundPoint(e.vp.CanvasToImage(math.Max(ev.X, e.rectStart.X), math.Max(ev.Y, e.rectStart.Y)))
			e.path = rectPath(a, b)
			e.rectW, e.rectH = b.X-a.X, b.Y-a.Y
		}
		e.segMode = ModeDone
	}
	e.mu.Unlock()
	e.Redraw()
}

// rectPath returns the corners of the rectangle spanned by a and b,
// clockwise from the top left.
func rectPath(a, b geometry.Point) []geometry.Point {
	x0, x1 := min(a.X, b.X), max(a.X, b.X)
	y0, y1 := min(a.Y, b.Y), max(a.Y, b.Y)
	return []geometry.Point{{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1}}
}

// Wheel zooms one step around the pointer. Positive delta zooms out.
func (e *ImageEditor) Wheel(ev MouseEvent, delta float64) {
	if delta == 0 {
		return
	}
	e.mu.Lock()
	e.vp.ZoomAt(ev.X, ev.Y, math.Copysign(1, delta))
	e.mu.Unlock()
	e.Redraw()
}

// KeyDown handles navigation keys: arrows pan the view by one thumbnail
// pixel, ctrl+arrows move the thumbnail panel and ctrl+m toggles it. It
// reports whether the key was used.
func (e *ImageEditor) KeyDown(key Key, mods Modifiers) bool {
	ctrl := mods.Has(ModCtrl)
	e.mu.Lock()
	handled := true
	switch {
	case ctrl && key == ArrowUp:
		e.vp.MoveNavPanelRelative(0, -navStepVertical)
	case ctrl && key == ArrowDown:
		e.vp.MoveNavPanelRelative(0, navStepVertical)
	case ctrl && key == ArrowLeft:
		e.vp.MoveNavPanelRelative(-navStepHorizontal, 0)
	case ctrl && key == ArrowRight:
		e.vp.MoveNavPanelRelative(navStepHorizontal, 0)
	case ctrl && (key == "m" || key == "M"):
		e.vp.ToggleNav()
	case key == ArrowUp:
		e.vp.MoveRelative(0, -1)
	case key == ArrowDown:
		e.vp.MoveRelative(0, 1)
	case key == ArrowLeft:
		e.vp.MoveRelative(-1, 0)
	case key == ArrowRight:
		e.vp.MoveRelative(1, 0)
	default:
		handled = false
	}
	e.mu.Unlock()
	if handled {
		e.Redraw()
	}
	return handled
}

// KeyPress handles character keys: '+' zooms in, '-' zooms out and ctrl+s
// saves the drawn polygons.
func (e *ImageEditor) KeyPress(ctx context.Context, r rune, mods Modifiers) error {
	switch {
	case r == '+':
		e.ZoomIn()
	case r == '-':
		e.ZoomOut()
	case mods.Has(ModCtrl) && (r == 's' || r == 'S'):
		return e.SavePolygon(ctx)
	}
	return nil
}

// ZoomIn narrows the view one step around its center.
func (e *ImageEditor) ZoomIn() {
	e.mu.Lock()
	e.vp.ZoomIn()
	e.mu.Unlock()
	e.Redraw()
}

// ZoomOut widens the view one step around its center.
func (e *ImageEditor) ZoomOut() {
	e.mu.Lock()
	e.vp.ZoomOut()
	e.mu.Unlock()
	e.Redraw()
}

// NavMouseDown starts dragging the viewport rectangle when the canvas point
// falls on it. It reports whether a drag started.
func (e *ImageEditor) NavMouseDown(ev MouseEvent) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.vp.NavVisible() {
		return false
	}
	p := e.vp.CanvasToNav(ev.X, ev.Y)
	if !e.vp.ContainsNavPoint(p.X, p.Y) {
		return false
	}
	e.navDrag = true
	e.navOffset = p.Sub(e.vp.Loc())
	return true
}

// NavMouseMove drags the viewport rectangle.
func (e *ImageEditor) NavMouseMove(ev MouseEvent) {
	e.mu.Lock()
	if !e.navDrag {
		e.mu.Unlock()
		return
	}
	e.vp.Move(e.vp.CanvasToNav(ev.X, ev.Y), e.navOffset)
	e.mu.Unlock()
	e.Redraw()
}

// NavMouseUp ends a viewport drag. With scroll sync on, other panes are
// asked to show the segment nearest the top right of the view.
func (e *ImageEditor) NavMouseUp(ev MouseEvent) {
	e.mu.Lock()
	if !e.navDrag {
		e.mu.Unlock()
		return
	}
	e.navDrag = false
	var out bus.Event
	if e.syncScroll {
		if anchor := e.ov.FindVisible(e.vp.VisibleImageRect(), overlay.TopRight); anchor != nil {
			out = bus.Synchronize{From: e.from(), AnchorSegID: anchor.Label}
		}
	}
	e.mu.Unlock()

	if out != nil {
		e.publish(out)
	}
	e.Redraw()
}

// ToggleShowAll switches between showing every polygon and only the
// selected or highlighted ones.
func (e *ImageEditor) ToggleShowAll() {
	e.mu.Lock()
	e.showAll = !e.showAll
	e.mu.Unlock()
	e.Redraw()
}

// SetSyncScroll turns scroll synchronization with other panes on or off.
func (e *ImageEditor) SetSyncScroll(on bool) {
	e.mu.Lock()
	e.syncScroll = on
	e.mu.Unlock()
}

// AddProposals adds valid polygons as unsaved entries that the next
// SavePolygon persists. It returns the number added.
func (e *ImageEditor) AddProposals(polys []geometry.Polygon) int {
	e.mu.Lock()
	added := 0
	for _, p := range polys {
		if !p.Valid() {
			continue
		}
		e.addPendingLocked(p)
		added++
	}
	e.mu.Unlock()
	if added > 0 {
		e.Redraw()
	}
	return added
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
