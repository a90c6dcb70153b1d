// Package vision finds lines of writing on a baseline image from its ink
// distribution alone, without a model.
package vision

import (
	"context"
	"image"

	"github.com/disintegration/imaging"

	"github.com/menta2k/read-segments/pkg/geometry"
)

// LineDetector finds text lines with a horizontal projection profile.
type LineDetector struct {
	config DetectionConfig
}

// DetectionConfig holds configuration for line detection
type DetectionConfig struct {
	// InkThreshold is how much darker than the page mean a pixel must be to
	// count as ink, as a fraction of the mean.
	InkThreshold float64
	// MinInkRatio is the share of ink pixels that makes a row part of a line.
	MinInkRatio float64
	// MinLineHeight drops bands shorter than this many rows.
	MinLineHeight int
	// MaxGap joins bands separated by at most this many empty rows.
	MaxGap  int
	Padding int
}

// New creates a new LineDetector with default configuration
func New() *LineDetector {
	return &LineDetector{
		config: DetectionConfig{
			InkThreshold:  0.3,
			MinInkRatio:   0.01,
			MinLineHeight: 4,
			MaxGap:        2,
			Padding:       2,
		},
	}
}

// NewWithConfig creates a new LineDetector with custom configuration
func NewWithConfig(config DetectionConfig) *LineDetector {
	return &LineDetector{config: config}
}

// Region represents a rectangular region of interest
type Region struct {
	X      int
	Y      int
	Width  int
	Height int
	Score  float64
}

// Center returns the center point of the region
func (r Region) Center() (int, int) {
	return r.X + r.Width/2, r.Y + r.Height/2
}

// Area returns the area of the region
func (r Region) Area() int {
	return r.Width * r.Height
}

// Rect returns the region as an image.Rectangle.
func (r Region) Rect() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

// band is a run of text rows, Max exclusive.
type band struct {
	y0, y1 int
	ink    int
}

// DetectLines returns one region per line of writing, top to bottom, in
// coordinates relative to the image origin.
func (d *LineDetector) DetectLines(ctx context.Context, img image.Image) ([]Region, error) {
	gray := imaging.Grayscale(img)
	width, height := gray.Bounds().Dx(), gray.Bounds().Dy()
	if width == 0 || height == 0 {
		return nil, nil
	}

	var sum float64
	for i := 0; i < len(gray.Pix); i += 4 {
		sum += float64(gray.Pix[i])
	}
	cut := sum / float64(width*height) * (1 - d.config.InkThreshold)
	isInk := func(x, y int) bool {
		return float64(gray.Pix[y*gray.Stride+x*4]) < cut
	}

	minInk := int(d.config.MinInkRatio * float64(width))
	if minInk < 1 {
		minInk = 1
	}

	var bands []band
	for y := 0; y < height; y++ {
		if y%64 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		count := 0
		for x := 0; x < width; x++ {
			if isInk(x, y) {
				count++
			}
		}
		if count < minInk {
			continue
		}
		if n := len(bands); n > 0 && y-bands[n-1].y1 <= d.config.MaxGap {
			bands[n-1].y1 = y + 1
			bands[n-1].ink += count
			continue
		}
		bands = append(bands, band{y0: y, y1: y + 1, ink: count})
	}

	var regions []Region
	for _, b := range bands {
		if b.y1-b.y0 < d.config.MinLineHeight {
			continue
		}
		x0, x1 := width, -1
		for y := b.y0; y < b.y1; y++ {
			for x := 0; x < width; x++ {
				if isInk(x, y) {
					x0 = min(x0, x)
					x1 = max(x1, x)
				}
			}
		}
		pad := d.config.Padding
		r := image.Rect(x0-pad, b.y0-pad, x1+1+pad, b.y1+pad).Intersect(image.Rect(0, 0, width, height))
		regions = append(regions, Region{
			X:      r.Min.X,
			Y:      r.Min.Y,
			Width:  r.Dx(),
			Height: r.Dy(),
			Score:  float64(b.ink) / float64((b.y1-b.y0)*width),
		})
	}
	return regions, nil
}

// Propose returns the detected lines as rectangle polygons in image
// coordinates.
func (d *LineDetector) Propose(ctx context.Context, img image.Image) ([]geometry.Polygon, error) {
	regions, err := d.DetectLines(ctx, img)
	if err != nil {
		return nil, err
	}
	origin := img.Bounds().Min
	polys := make([]geometry.Polygon, 0, len(regions))
	for _, r := range regions {
		polys = append(polys, geometry.NewBoundingBoxFromRect(r.X+origin.X, r.Y+origin.Y, r.Width, r.Height).Polygon())
	}
	return polys, nil
}
