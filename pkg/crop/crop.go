package crop

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"

	"github.com/menta2k/read-segments/pkg/geometry"
)

// Format is an output encoding.
type Format string

const (
	FormatJPEG Format = "jpg"
	FormatPNG  Format = "png"
	FormatWebP Format = "webp"
)

// ParseFormat accepts jpg, jpeg, png and webp in any case.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "jpg", "jpeg":
		return FormatJPEG, nil
	case "png":
		return FormatPNG, nil
	case "webp":
		return FormatWebP, nil
	}
	return "", fmt.Errorf("crop: unsupported format %q", s)
}

// ContentType returns the MIME type of f.
func (f Format) ContentType() string {
	switch f {
	case FormatPNG:
		return "image/png"
	case FormatWebP:
		return "image/webp"
	default:
		return "image/jpeg"
	}
}

// Box cuts r out of img. The rectangle is clipped to the image.
func Box(img image.Image, r image.Rectangle) (*image.NRGBA, error) {
	rect := r.Canon().Intersect(img.Bounds())
	if rect.Empty() {
		return nil, fmt.Errorf("empty crop rectangle")
	}
	return imaging.Crop(img, rect), nil
}

// Polygons cuts out the bounding box of polys and clears every pixel that
// lies outside all of them.
func Polygons(img image.Image, polys []geometry.Polygon) (*image.NRGBA, error) {
	var union image.Rectangle
	var valid []geometry.Polygon
	for _, p := range polys {
		if !p.Valid() {
			continue
		}
		valid = append(valid, p)
		union = union.Union(p.Bounds())
	}
	if len(valid) == 0 {
		return nil, fmt.Errorf("crop: no valid polygon")
	}
	out, err := Box(img, union)
	if err != nil {
		return nil, err
	}
	origin := union.Canon().Intersect(img.Bounds()).Min
	b := out.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			ix, iy := float64(origin.X+x)+0.5, float64(origin.Y+y)+0.5
			inside := false
			for _, p := range valid {
				if p.Contains(ix, iy) {
					inside = true
					break
				}
			}
			if !inside {
				out.SetNRGBA(x, y, color.NRGBA{})
			}
		}
	}
	return out, nil
}

// Thumbnail scales img to width pixels, keeping the aspect ratio. Images
// already narrower are returned unscaled.
func Thumbnail(img image.Image, width int) *image.NRGBA {
	if width <= 0 || img.Bounds().Dx() <= width {
		return imaging.Clone(img)
	}
	return imaging.Resize(img, width, 0, imaging.Lanczos)
}

// EncodeOptions tunes Encode.
type EncodeOptions struct {
	Quality  int
	Lossless bool
}

// Encode writes img to w in format f.
func Encode(w io.Writer, img image.Image, f Format, opts EncodeOptions) error {
	quality := opts.Quality
	if quality <= 0 || quality > 100 {
		quality = 90
	}
	switch f {
	case FormatWebP:
		return webp.Encode(w, img, &webp.Options{Lossless: opts.Lossless, Quality: float32(quality)})
	case FormatPNG:
		return imaging.Encode(w, img, imaging.PNG)
	default:
		return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(quality))
	}
}
