package render

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"

	"github.com/menta2k/read-segments/pkg/geometry"
)

// DebugOverlay strokes each polygon's bounding box over a copy of img,
// cycling through colors. Stroke width scales with the image.
func DebugOverlay(img image.Image, polys []geometry.Polygon) *image.NRGBA {
	out := imaging.Clone(img)
	b := out.Bounds()
	stroke := int(math.Max(2, 0.004*float64(min(b.Dx(), b.Dy()))))
	palette := []color.NRGBA{
		{0, 255, 0, 255},
		{255, 204, 0, 255},
		{0, 170, 255, 255},
		{255, 0, 0, 255},
	}
	for i, p := range polys {
		if !p.Valid() {
			continue
		}
		drawRect(out, p.Bounds(), palette[i%len(palette)], stroke)
	}
	return out
}

// drawRect draws an axis-aligned frame of the given stroke inside r.
func drawRect(img *image.NRGBA, r image.Rectangle, c color.NRGBA, stroke int) {
	r = r.Canon()
	if r.Dx() < 1 || r.Dy() < 1 {
		return
	}
	for s := 0; s < stroke; s++ {
		drawHLine(img, r.Min.Y+s, r.Min.X, r.Max.X, c)
		drawHLine(img, r.Max.Y-1-s, r.Min.X, r.Max.X, c)
		drawVLine(img, r.Min.X+s, r.Min.Y, r.Max.Y, c)
		drawVLine(img, r.Max.X-1-s, r.Min.Y, r.Max.Y, c)
	}
}

func drawHLine(img *image.NRGBA, y, x0, x1 int, c color.NRGBA) {
	b := img.Bounds()
	if y < b.Min.Y || y >= b.Max.Y {
		return
	}
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	x0, x1 = max(x0, b.Min.X), min(x1, b.Max.X)
	for x := x0; x < x1; x++ {
		img.SetNRGBA(x, y, c)
	}
}

func drawVLine(img *image.NRGBA, x, y0, y1 int, c color.NRGBA) {
	b := img.Bounds()
	if x < b.Min.X || x >= b.Max.X {
		return
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	y0, y1 = max(y0, b.Min.Y), min(y1, b.Max.Y)
	for y := y0; y < y1; y++ {
		img.SetNRGBA(x, y, c)
	}
}
