// Package viewport implements the zoom and pan model of an image pane: a
// canvas showing part of a large image, a navigation thumbnail of the whole
// image, and a viewport rectangle on the thumbnail marking what the canvas
// shows. All viewport positions are kept in thumbnail space.
package viewport

import (
	"fmt"
	"image"
	"math"

	"github.com/golang/geo/r2"
)

const (
	// defaultViewportSide replaces a zero viewport dimension.
	defaultViewportSide = 50
	// navPanelMargin is the minimum distance of the nav panel from the canvas edge.
	navPanelMargin = 4
	// navChromeHeight is the extra height of the nav panel below the thumbnail
	// (zoom buttons and file name).
	navChromeHeight = 35
)

// Config holds the view settings of a pane.
type Config struct {
	InitViewPercent int     `json:"init_view_percent"`
	MinPercent      int     `json:"min_percent"`
	MaxPercent      int     `json:"max_percent"`
	StepPercent     int     `json:"step_percent"`
	NavSizePercent  int     `json:"nav_size_percent"`
	NavOpacity      float64 `json:"nav_opacity"`
	NavPositionTop  int     `json:"nav_position_top"`
	NavPositionLeft int     `json:"nav_position_left"`
	InitOffsetY     float64 `json:"init_offset_y"`
}

// DefaultConfig returns the stock pane settings.
func DefaultConfig() Config {
	return Config{
		InitViewPercent: 100,
		MinPercent:      20,
		MaxPercent:      100,
		StepPercent:     2,
		NavSizePercent:  10,
		NavOpacity:      0.5,
		NavPositionTop:  10,
		NavPositionLeft: 10,
	}
}

// Size is a width and height in pixels.
type Size struct {
	W int `json:"w"`
	H int `json:"h"`
}

// Viewport is the view state of one pane. It is not safe for concurrent use;
// the owning editor serializes access.
type Viewport struct {
	cfg Config

	image  Size
	canvas Size
	nav    Size

	percent   int
	navAspect float64

	loc     r2.Point
	lastLoc r2.Point
	maxLoc  r2.Point
	size    Size

	navPos     image.Point
	navVisible bool
}

// New sizes the canvas and thumbnail for an image of imageW x imageH shown in
// a container of containerW x containerH and places the initial viewport.
// A zero container dimension falls back to the image dimension.
func New(cfg Config, imageW, imageH, containerW, containerH int) (*Viewport, error) {
	if imageW <= 0 || imageH <= 0 {
		return nil, fmt.Errorf("viewport: invalid image size %dx%d", imageW, imageH)
	}
	if cfg.MinPercent <= 0 || cfg.MaxPercent < cfg.MinPercent {
		d := DefaultConfig()
		cfg.MinPercent, cfg.MaxPercent = d.MinPercent, d.MaxPercent
	}
	if cfg.StepPercent <= 0 {
		cfg.StepPercent = DefaultConfig().StepPercent
	}
	if cfg.NavSizePercent <= 0 {
		cfg.NavSizePercent = DefaultConfig().NavSizePercent
	}
	v := &Viewport{
		cfg:        cfg,
		image:      Size{W: imageW, H: imageH},
		percent:    clampInt(cfg.InitViewPercent, cfg.MinPercent, cfg.MaxPercent),
		navPos:     image.Pt(cfg.NavPositionLeft, cfg.NavPositionTop),
		navVisible: true,
	}
	if cfg.InitViewPercent == 0 {
		v.percent = cfg.MaxPercent
	}
	v.Resize(containerW, containerH)
	return v, nil
}

// Resize recomputes canvas and thumbnail sizes for a new container and
// resets the viewport.
func (v *Viewport) Resize(containerW, containerH int) {
	if containerW <= 0 {
		containerW = v.image.W
	}
	if containerH <= 0 {
		containerH = v.image.H
	}
	v.canvas = Size{W: min(containerW, v.image.W), H: min(containerH, v.image.H)}
	imgAspect := float64(v.image.W) / float64(v.image.H)
	navW := float64(v.canvas.W) * float64(v.cfg.NavSizePercent) / 100
	v.nav = Size{W: int(math.Floor(navW)), H: int(math.Floor(navW / imgAspect))}
	if v.nav.W < 1 {
		v.nav.W = 1
	}
	if v.nav.H < 1 {
		v.nav.H = 1
	}
	v.navAspect = float64(v.canvas.W) / float64(v.canvas.H)
	v.reset()
}

// reset places the viewport at the right edge of the thumbnail and at the
// configured vertical offset.
func (v *Viewport) reset() {
	v.Scale()
	v.loc = r2.Point{
		X: v.maxLoc.X,
		Y: math.Min(v.cfg.InitOffsetY*float64(v.percent), v.maxLoc.Y),
	}
	if math.IsNaN(v.loc.Y) || v.loc.Y < 0 {
		v.loc.Y = 0
	}
	v.lastLoc = r2.Point{}
}

// Scale recomputes the viewport size and its maximum location for the
// current zoom percentage. The location itself is not moved.
func (v *Viewport) Scale() {
	w := int(math.Floor(float64(v.nav.W) * float64(v.percent) / 100))
	h := int(math.Floor(float64(w) / v.navAspect))
	if h > v.nav.H {
		h = v.nav.H
		w = int(math.Floor(float64(h) * v.navAspect))
	}
	if w == 0 {
		w = min(defaultViewportSide, max(1, v.nav.W))
	}
	if h == 0 {
		h = min(defaultViewportSide, max(1, v.nav.H))
	}
	v.size = Size{W: w, H: h}
	v.maxLoc = r2.Point{X: math.Max(0, float64(v.nav.W-w)), Y: math.Max(0, float64(v.nav.H-h))}
}

// Move places the viewport so that mouse - offset is its top-left corner,
// clamped to the thumbnail.
func (v *Viewport) Move(mouse, offset r2.Point) {
	v.loc = v.clamp(mouse.Sub(offset))
	v.lastLoc = v.loc
}

// MoveRelative shifts the viewport from its last settled location.
func (v *Viewport) MoveRelative(dx, dy float64) {
	v.loc = v.clamp(v.lastLoc.Add(r2.Point{X: dx, Y: dy}))
	v.lastLoc = v.loc
}

// MoveToImagePosY scrolls so that image row posY is at the top of the view.
func (v *Viewport) MoveToImagePosY(posY float64) {
	v.loc = v.clamp(r2.Point{X: v.loc.X, Y: posY * float64(v.nav.H) / float64(v.image.H)})
	v.lastLoc.Y = v.loc.Y
}

// MoveNavPanelRelative shifts the thumbnail panel over the canvas, keeping it
// inside the canvas with a small margin.
func (v *Viewport) MoveNavPanelRelative(dx, dy int) {
	maxLeft := max(navPanelMargin, v.canvas.W-v.nav.W)
	maxTop := max(navPanelMargin, v.canvas.H-(v.nav.H+navChromeHeight))
	v.navPos.X = clampInt(v.navPos.X+dx, navPanelMargin, maxLeft)
	v.navPos.Y = clampInt(v.navPos.Y+dy, navPanelMargin, maxTop)
}

// ToggleNav flips thumbnail panel visibility.
func (v *Viewport) ToggleNav() {
	v.navVisible = !v.navVisible
}

// ZoomAt changes the zoom one step in direction (negative zooms in) keeping
// the image point under canvas position (cx, cy) stationary.
func (v *Viewport) ZoomAt(cx, cy float64, direction float64) {
	if math.IsNaN(direction) {
		return
	}
	xf := cx / float64(v.canvas.W)
	yf := cy / float64(v.canvas.H)
	v.zoomAround(xf, yf, direction)
}

// ZoomCenter changes the zoom one step keeping the view center stationary.
func (v *Viewport) ZoomCenter(direction float64) {
	v.zoomAround(0.5, 0.5, direction)
}

// ZoomIn narrows the viewport one step.
func (v *Viewport) ZoomIn() { v.ZoomCenter(-1) }

// ZoomOut widens the viewport one step.
func (v *Viewport) ZoomOut() { v.ZoomCenter(1) }

func (v *Viewport) zoomAround(xf, yf, direction float64) {
	direction = math.Max(-1, math.Min(1, direction))
	ax := xf*float64(v.size.W) + v.loc.X
	ay := yf*float64(v.size.H) + v.loc.Y
	step := int(math.Round(float64(v.cfg.StepPercent) * direction))
	v.percent = clampInt(v.percent+step, v.cfg.MinPercent, v.cfg.MaxPercent)
	v.Scale()
	v.Move(r2.Point{
		X: math.Round(ax - xf*float64(v.size.W)),
		Y: math.Round(ay - yf*float64(v.size.H)),
	}, r2.Point{})
}

func (v *Viewport) clamp(p r2.Point) r2.Point {
	return r2.Point{
		X: math.Max(0, math.Min(p.X, v.maxLoc.X)),
		Y: math.Max(0, math.Min(p.Y, v.maxLoc.Y)),
	}
}

// Percent returns the zoom level in percent of the thumbnail width.
func (v *Viewport) Percent() int { return v.percent }

// Loc returns the viewport top-left in thumbnail space.
func (v *Viewport) Loc() r2.Point { return v.loc }

// Size returns the viewport size in thumbnail space.
func (v *Viewport) Size() Size { return v.size }

// MaxLoc returns the largest permitted viewport location.
func (v *Viewport) MaxLoc() r2.Point { return v.maxLoc }

// ImageSize returns the full image size.
func (v *Viewport) ImageSize() Size { return v.image }

// CanvasSize returns the on-screen canvas size.
func (v *Viewport) CanvasSize() Size { return v.canvas }

// NavSize returns the thumbnail size.
func (v *Viewport) NavSize() Size { return v.nav }

// NavPosition returns the top-left of the thumbnail panel on the canvas.
func (v *Viewport) NavPosition() image.Point { return v.navPos }

// NavVisible reports whether the thumbnail panel is shown.
func (v *Viewport) NavVisible() bool { return v.navVisible }

// NavOpacity returns the alpha used for the thumbnail outside the viewport.
func (v *Viewport) NavOpacity() float64 { return v.cfg.NavOpacity }

// NavRect is the viewport rectangle in thumbnail space.
func (v *Viewport) NavRect() r2.Rect {
	return r2.RectFromPoints(v.loc, v.loc.Add(r2.Point{X: float64(v.size.W), Y: float64(v.size.H)}))
}

// ContainsNavPoint reports whether thumbnail point (x, y) is on the viewport
// rectangle, which starts a viewport drag.
func (v *Viewport) ContainsNavPoint(x, y float64) bool {
	return v.NavRect().ContainsPoint(r2.Point{X: x, Y: y})
}

// Offset returns the image-space coordinate shown at the canvas origin.
func (v *Viewport) Offset() r2.Point {
	return r2.Point{
		X: v.loc.X * float64(v.image.W) / float64(v.nav.W),
		Y: v.loc.Y * float64(v.image.H) / float64(v.nav.H),
	}
}

// Scales returns the image-to-canvas scale factors.
func (v *Viewport) Scales() (sx, sy float64) {
	sx = float64(v.nav.W) / float64(v.size.W) * float64(v.canvas.W) / float64(v.image.W)
	sy = float64(v.nav.H) / float64(v.size.H) * float64(v.canvas.H) / float64(v.image.H)
	return sx, sy
}

// CanvasToImage maps a canvas pixel to image space.
func (v *Viewport) CanvasToImage(px, py float64) r2.Point {
	off := v.Offset()
	return r2.Point{
		X: off.X + float64(v.size.W)/float64(v.nav.W)*float64(v.image.W)*px/float64(v.canvas.W),
		Y: off.Y + float64(v.size.H)/float64(v.nav.H)*float64(v.image.H)*py/float64(v.canvas.H),
	}
}

// ImageToCanvas maps an image point to canvas pixels.
func (v *Viewport) ImageToCanvas(x, y float64) r2.Point {
	off := v.Offset()
	sx, sy := v.Scales()
	return r2.Point{X: (x - off.X) * sx, Y: (y - off.Y) * sy}
}

// CanvasToNav maps a canvas pixel to thumbnail coordinates relative to the
// nav panel origin.
func (v *Viewport) CanvasToNav(px, py float64) r2.Point {
	return r2.Point{X: px - float64(v.navPos.X), Y: py - float64(v.navPos.Y)}
}

// VisibleImageRect is the region of the image currently shown, in image space.
func (v *Viewport) VisibleImageRect() r2.Rect {
	off := v.Offset()
	return r2.RectFromPoints(off, r2.Point{
		X: (float64(v.size.W) + v.loc.X) * float64(v.image.W) / float64(v.nav.W),
		Y: (float64(v.size.H) + v.loc.Y) * float64(v.image.H) / float64(v.nav.H),
	})
}

// SourceRect is VisibleImageRect rounded to whole pixels and clipped to the image.
func (v *Viewport) SourceRect() image.Rectangle {
	r := v.VisibleImageRect()
	return image.Rect(
		int(math.Floor(r.X.Lo)), int(math.Floor(r.Y.Lo)),
		int(math.Ceil(r.X.Hi)), int(math.Ceil(r.Y.Hi)),
	).Intersect(image.Rect(0, 0, v.image.W, v.image.H))
}

// CanvasTolerance converts a distance of px canvas pixels at the current
// zoom into image units along each axis.
func (v *Viewport) CanvasTolerance(px float64) (tx, ty float64) {
	p := float64(v.percent) / 100
	tx = px * float64(v.image.W) / float64(v.canvas.W) * p
	ty = px * float64(v.image.H) / float64(v.canvas.H) * p
	return tx, ty
}

// CanvasLengthToImage converts canvas lengths to image lengths.
func (v *Viewport) CanvasLengthToImage(w, h float64) (float64, float64) {
	return float64(v.size.W) / float64(v.nav.W) * float64(v.image.W) * w / float64(v.canvas.W),
		float64(v.size.H) / float64(v.nav.H) * float64(v.image.H) * h / float64(v.canvas.H)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
