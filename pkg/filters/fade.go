package filters

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
)

// bucketSize groups similar colors so a small sample covers the whole tone.
const bucketSize = 10

type bucket [3]uint8

func bucketOf(c color.NRGBA) bucket {
	return bucket{c.R / bucketSize, c.G / bucketSize, c.B / bucketSize}
}

// FadeTable maps sampled color buckets to the amount each channel is
// lightened. The zero value is empty and ready to use.
type FadeTable map[bucket][3]uint8

// Len returns the number of sampled buckets.
func (t FadeTable) Len() int { return len(t) }

// Clone returns an independent copy of t.
func (t FadeTable) Clone() FadeTable {
	cp := make(FadeTable, len(t))
	for k, v := range t {
		cp[k] = v
	}
	return cp
}

// Sample adds the colors of img inside r to the table.
func (t FadeTable) Sample(img image.Image, r image.Rectangle) {
	region := imaging.Crop(img, r)
	for i := 0; i+3 < len(region.Pix); i += 4 {
		c := color.NRGBA{R: region.Pix[i], G: region.Pix[i+1], B: region.Pix[i+2], A: region.Pix[i+3]}
		b := bucketOf(c)
		if _, ok := t[b]; ok {
			continue
		}
		var lift [3]uint8
		for ch, v := range b {
			lift[ch] = uint8(math.Round(float64(255-int(v)*bucketSize) * 0.8))
		}
		t[b] = lift
	}
}

// Fade lightens every pixel whose color falls in a sampled bucket.
func Fade(img image.Image, t FadeTable) *image.NRGBA {
	if len(t) == 0 {
		return imaging.Clone(img)
	}
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		lift, ok := t[bucketOf(c)]
		if !ok {
			return c
		}
		return color.NRGBA{
			R: clampChannel(int(c.R) + int(lift[0])),
			G: clampChannel(int(c.G) + int(lift[1])),
			B: clampChannel(int(c.B) + int(lift[2])),
			A: c.A,
		}
	})
}
