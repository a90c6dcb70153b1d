// Package detection proposes segment polygons for a baseline image by asking
// a vision model where the text lines are.
package detection

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"math"
	"sort"

	"github.com/disintegration/imaging"

	"github.com/menta2k/read-segments/pkg/client"
	"github.com/menta2k/read-segments/pkg/geometry"
	"github.com/menta2k/read-segments/pkg/types"
)

// SimpleTestPrompt for testing if the model can see images
const SimpleTestPrompt = `What do you see in this image? Describe it briefly.`

// DefaultPrompt asks for one box per line of writing.
const DefaultPrompt = `You are a manuscript layout analyzer.

Return JSON only:
{
  "regions": [
    {"label": "line 1", "confidence": 0.0, "box": {"x": 0.0, "y": 0.0, "w": 0.0, "h": 0.0}}
  ],
  "description": "short neutral sentence (≤ 20 words)"
}

HARD RULES
- One region per line or block of writing, top to bottom.
- All coordinates are normalized to [0,1] (NOT pixels). x,y is the top left corner.
- Boxes should tightly include the writing and must not overlap.
- If there is no writing, return {"regions":[],"description":"no text"}.
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

// Options configures a Detector.
type Options struct {
	Model  string
	Prompt string
	// MaxDim bounds the longer side of the image sent to the model.
	MaxDim int
	// Quality is the JPEG quality of the image sent to the model.
	Quality int
	// MinConfidence drops regions the model is unsure about. Zero keeps all.
	MinConfidence float64
	// MinSize drops proposals narrower or shorter than this many pixels.
	MinSize int
	Logger  *slog.Logger
}

// Detector turns vision model answers into segment proposals
type Detector struct {
	client client.VisionClient
	opts   Options
	logger *slog.Logger
}

// NewDetector creates a new detector with a vision client
func NewDetector(client client.VisionClient, opts Options) *Detector {
	if opts.Prompt == "" {
		opts.Prompt = DefaultPrompt
	}
	if opts.MaxDim <= 0 {
		opts.MaxDim = 1024
	}
	if opts.Quality <= 0 {
		opts.Quality = 85
	}
	if opts.MinSize <= 0 {
		opts.MinSize = 4
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{client: client, opts: opts, logger: logger}
}

// Propose returns one polygon per detected region in image pixel
// coordinates, sorted top to bottom then left to right.
func (d *Detector) Propose(ctx context.Context, img image.Image) ([]geometry.Polygon, error) {
	if d.opts.Model == "" {
		return nil, fmt.Errorf("detection: model is required")
	}
	imgB64, sent, err := PrepareImage(img, d.opts.MaxDim, d.opts.Quality)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare image: %w", err)
	}
	result, err := d.client.DetectRegions(ctx, d.opts.Model, d.opts.Prompt, imgB64)
	if err != nil {
		return nil, fmt.Errorf("region detection failed: %w", err)
	}

	b := img.Bounds()
	var out []geometry.Polygon
	for _, r := range result.Regions {
		if d.opts.MinConfidence > 0 && r.Confidence < d.opts.MinConfidence {
			continue
		}
		rect := normalizeBox(r.Box, sent.Dx(), sent.Dy()).Pixels(b.Dx(), b.Dy()).Add(b.Min)
		if rect.Dx() < d.opts.MinSize || rect.Dy() < d.opts.MinSize {
			continue
		}
		out = append(out, geometry.NewBoundingBoxFromRect(rect.Min.X, rect.Min.Y, rect.Dx(), rect.Dy()).Polygon())
	}
	sortReadingOrder(out)
	d.logger.Info("segment proposals", "model", d.opts.Model, "regions", len(result.Regions), "kept", len(out))
	return out, nil
}

// TestVision checks that the model can see images at all.
func (d *Detector) TestVision(ctx context.Context, img image.Image) (string, error) {
	imgB64, _, err := PrepareImage(img, d.opts.MaxDim, d.opts.Quality)
	if err != nil {
		return "", err
	}
	return d.client.SimpleQuery(ctx, d.opts.Model, SimpleTestPrompt, imgB64)
}

// PrepareImage downsizes img so neither side exceeds maxDim and returns it
// as base64 JPEG together with the bounds that were encoded.
func PrepareImage(img image.Image, maxDim, quality int) (string, image.Rectangle, error) {
	if maxDim > 0 {
		b := img.Bounds()
		w, h := b.Dx(), b.Dy()
		if w > maxDim || h > maxDim {
			if w >= h {
				img = imaging.Resize(img, maxDim, 0, imaging.Lanczos)
			} else {
				img = imaging.Resize(img, 0, maxDim, imaging.Lanczos)
			}
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return "", image.Rectangle{}, err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), img.Bounds(), nil
}

// sortReadingOrder orders polygons by line, treating boxes whose vertical
// centers are within half a box height as the same line.
func sortReadingOrder(polys []geometry.Polygon) {
	sort.SliceStable(polys, func(i, j int) bool {
		a, b := polys[i].Bounds(), polys[j].Bounds()
		ca, cb := float64(a.Min.Y+a.Max.Y)/2, float64(b.Min.Y+b.Max.Y)/2
		tol := float64(min(a.Dy(), b.Dy())) / 2
		if math.Abs(ca-cb) > tol {
			return ca < cb
		}
		return a.Min.X < b.Min.X
	})
}

// clamp ensures a value is within the given bounds
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// normalizeBox ensures box coordinates are within [0,1] bounds. Models
// sometimes answer in pixels of the image they were sent.
func normalizeBox(b types.Box, imgW, imgH int) types.Box {
	if imgW > 0 && imgH > 0 && (b.X > 1 || b.Y > 1 || b.W > 1 || b.H > 1) {
		return types.Box{
			X: clamp(b.X/float64(imgW), 0, 1),
			Y: clamp(b.Y/float64(imgH), 0, 1),
			W: clamp(b.W/float64(imgW), 0, 1),
			H: clamp(b.H/float64(imgH), 0, 1),
		}
	}
	return types.Box{
		X: clamp(b.X, 0, 1),
		Y: clamp(b.Y, 0, 1),
		W: clamp(b.W, 0, 1),
		H: clamp(b.H, 0, 1),
	}
}
