// Package filters holds the image processors a pane can stack over a
// baseline image to make faint writing easier to segment.
package filters

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"strings"

	"github.com/disintegration/imaging"
)

// Command is one replayable processor in a command string.
type Command byte

const (
	CmdStretch Command = 'S'
	CmdReduce  Command = 'R'
	CmdInvert  Command = 'I'
	CmdEmboss  Command = 'E'
)

// Valid reports whether c names a known processor.
func (c Command) Valid() bool {
	switch c {
	case CmdStretch, CmdReduce, CmdInvert, CmdEmboss:
		return true
	}
	return false
}

func (c Command) String() string { return string(c) }

// ParseCommands reads a command string such as "S,R,i". Separators and
// whitespace are ignored and letters are case-insensitive.
func ParseCommands(s string) ([]Command, error) {
	var cmds []Command
	for _, r := range strings.ToUpper(s) {
		if r == ',' || r == ' ' {
			continue
		}
		c := Command(r)
		if r > 0x7f || !c.Valid() {
			return nil, fmt.Errorf("filters: unknown command %q", r)
		}
		cmds = append(cmds, c)
	}
	return cmds, nil
}

// FormatCommands renders cmds as a comma separated command string.
func FormatCommands(cmds []Command) string {
	parts := make([]string, len(cmds))
	for i, c := range cmds {
		parts[i] = c.String()
	}
	return strings.Join(parts, ",")
}

// Apply parses cmds and runs them over img in order.
func Apply(img image.Image, cmds string) (*image.NRGBA, error) {
	parsed, err := ParseCommands(cmds)
	if err != nil {
		return nil, err
	}
	return ApplyCommands(img, parsed), nil
}

// ApplyCommands runs cmds over img in order. The source is never modified.
func ApplyCommands(img image.Image, cmds []Command) *image.NRGBA {
	out := imaging.Clone(img)
	for _, c := range cmds {
		switch c {
		case CmdStretch:
			out = Stretch(out)
		case CmdReduce:
			out = Reduce(out)
		case CmdInvert:
			out = Invert(out)
		case CmdEmboss:
			out = Emboss(out)
		}
	}
	return out
}

// Invert replaces every color channel c with 255-c.
func Invert(img image.Image) *image.NRGBA {
	return imaging.Invert(img)
}

// Reduce darkens every color channel to 90% of its value.
func Reduce(img image.Image) *image.NRGBA {
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		return color.NRGBA{
			R: uint8(float64(c.R) * 0.9),
			G: uint8(float64(c.G) * 0.9),
			B: uint8(float64(c.B) * 0.9),
			A: c.A,
		}
	})
}

// Stretch pushes channel values away from the midpoint of the observed
// range: values above it are raised and values below it are lowered.
func Stretch(img image.Image) *image.NRGBA {
	src := imaging.Clone(img)
	lo, hi := 127.5, 127.5
	for i := 0; i < len(src.Pix); i += 4 {
		for _, v := range src.Pix[i : i+3] {
			f := float64(v)
			if f < lo {
				lo = f
			} else if f > hi {
				hi = f
			}
		}
	}
	mean := hi/2 + lo/2
	maxAdjust := 2
	if hi != 255 {
		maxAdjust = int(math.Floor(127 - hi/2))
	}
	minAdjust := 1
	if lo != 0 {
		minAdjust = int(math.Ceil(lo / 2))
	}
	return imaging.AdjustFunc(src, func(c color.NRGBA) color.NRGBA {
		adj := func(v uint8) uint8 {
			if float64(v) > mean {
				return clampChannel(int(v) + maxAdjust)
			}
			return clampChannel(int(v) - minAdjust)
		}
		return color.NRGBA{R: adj(c.R), G: adj(c.G), B: adj(c.B), A: c.A}
	})
}

// Emboss turns color changes into relief: each channel becomes
// 127.5 + 2*p - right - below. The last column copies its left neighbour
// and the last row copies the row above.
func Emboss(img image.Image) *image.NRGBA {
	out := imaging.Clone(img)
	w, h := out.Rect.Dx(), out.Rect.Dy()
	if w < 2 || h < 2 {
		return out
	}
	stride := out.Stride
	for y := 0; y < h; y++ {
		row := y * stride
		for x := 0; x < w; x++ {
			i := row + x*4
			switch {
			case y == h-1:
				copy(out.Pix[i:i+3], out.Pix[i-stride:i-stride+3])
			case x == w-1:
				copy(out.Pix[i:i+4], out.Pix[i-4:i])
			default:
				for c := 0; c < 3; c++ {
					v := 127.5 + 2*float64(out.Pix[i+c]) - float64(out.Pix[i+4+c]) - float64(out.Pix[i+stride+c])
					out.Pix[i+c] = clampChannel(int(math.Round(v)))
				}
			}
		}
	}
	return out
}

func clampChannel(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
