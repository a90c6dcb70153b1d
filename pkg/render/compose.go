package render

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"strconv"

	"github.com/disintegration/imaging"
	"github.com/gogpu/gg"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/menta2k/read-segments/pkg/filters"
	"github.com/menta2k/read-segments/pkg/geometry"
)

var (
	white      = color.NRGBA{255, 255, 255, 255}
	pathDone   = color.NRGBA{0, 128, 0, 255}
	pathActive = color.NRGBA{255, 0, 0, 255}
)

const (
	pathWidth       = 2
	startMarkerSide = 6
	navFrameWidth   = 3
)

// Compose draws f over src and returns a canvas sized image.
func Compose(src image.Image, f Frame) (*image.NRGBA, error) {
	if f.Canvas.X <= 0 || f.Canvas.Y <= 0 {
		return nil, fmt.Errorf("render: empty canvas %v", f.Canvas)
	}
	region := f.Source.Intersect(src.Bounds())
	if region.Empty() {
		return nil, fmt.Errorf("render: source %v outside image %v", f.Source, src.Bounds())
	}

	view := imaging.Resize(imaging.Crop(src, region), f.Canvas.X, f.Canvas.Y, imaging.Linear)
	if f.Commands != "" {
		filtered, err := filters.Apply(view, f.Commands)
		if err != nil {
			return nil, err
		}
		view = filtered
	}

	dc := gg.NewContextForImage(view)
	defer dc.Close()
	for _, p := range f.Polygons {
		if len(p.Points) < 2 {
			continue
		}
		if err := strokePoints(dc, f, p.Points, p.Color, float64(max(p.Width, 1)), true); err != nil {
			return nil, fmt.Errorf("render: stroke %s: %w", p.Label, err)
		}
	}
	if err := drawPath(dc, f); err != nil {
		return nil, fmt.Errorf("render: path: %w", err)
	}
	out := imaging.Clone(dc.Image())

	if f.ShowOrdinals {
		drawOrdinals(out, f)
	}
	if f.Nav.Visible {
		out = drawNav(out, src, f.Nav)
	}
	return out, nil
}

func strokePoints(dc *gg.Context, f Frame, pts []geometry.Point, c color.NRGBA, width float64, closed bool) error {
	dc.SetColor(c)
	dc.SetLineWidth(width)
	for i, p := range pts {
		x, y := f.ToCanvas(p)
		if i == 0 {
			dc.MoveTo(x, y)
		} else {
			dc.LineTo(x, y)
		}
	}
	if closed {
		dc.ClosePath()
	}
	return dc.Stroke()
}

func drawPath(dc *gg.Context, f Frame) error {
	if len(f.Path) == 0 {
		return nil
	}
	c := pathActive
	if f.PathDone {
		c = pathDone
	}
	if len(f.Path) == 1 {
		x, y := f.ToCanvas(f.Path[0])
		half := float64(f.CrossSize) / 2
		dc.SetColor(c)
		dc.SetLineWidth(pathWidth)
		dc.MoveTo(x-half, y)
		dc.LineTo(x+half, y)
		dc.MoveTo(x, y-half)
		dc.LineTo(x, y+half)
		return dc.Stroke()
	}
	if err := strokePoints(dc, f, f.Path, c, pathWidth, f.PathDone); err != nil {
		return err
	}
	if f.PathOpen {
		x, y := f.ToCanvas(f.Path[0])
		dc.SetColor(c)
		dc.SetLineWidth(1)
		dc.DrawRectangle(x-startMarkerSide/2, y-startMarkerSide/2, startMarkerSide, startMarkerSide)
		return dc.Stroke()
	}
	return nil
}

func drawOrdinals(img *image.NRGBA, f Frame) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(white),
		Face: basicfont.Face7x13,
	}
	for _, p := range f.Polygons {
		if p.Ordinal <= 0 {
			continue
		}
		label := strconv.Itoa(p.Ordinal)
		x, y := f.ToCanvas(p.Center)
		w := d.MeasureString(label).Round()
		d.Dot = fixed.P(int(math.Round(x))-w/2, int(math.Round(y))+basicfont.Face7x13.Ascent/2)
		d.DrawString(label)
	}
}

// drawNav overlays the thumbnail at its panel position: the whole image at
// the panel opacity, the viewport area fully opaque, and a white frame
// around the viewport.
func drawNav(dst *image.NRGBA, src image.Image, nav Nav) *image.NRGBA {
	if nav.Size.X <= 0 || nav.Size.Y <= 0 {
		return dst
	}
	thumb := imaging.Resize(src, nav.Size.X, nav.Size.Y, imaging.Box)
	dst = imaging.Overlay(dst, thumb, nav.Pos, nav.Opacity)

	vp := image.Rect(
		int(math.Round(nav.Viewport.X.Lo)), int(math.Round(nav.Viewport.Y.Lo)),
		int(math.Round(nav.Viewport.X.Hi)), int(math.Round(nav.Viewport.Y.Hi)),
	).Intersect(thumb.Bounds())
	if vp.Empty() {
		return dst
	}
	dst = imaging.Overlay(dst, imaging.Crop(thumb, vp), nav.Pos.Add(vp.Min), 1.0)
	drawRect(dst, vp.Add(nav.Pos), white, navFrameWidth)
	return dst
}
