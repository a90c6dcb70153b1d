package filters

import (
	"image"
	"image/color"
	"testing"
)

// grayImage returns a w x h opaque image filled with value v.
func grayImage(w, h int, v uint8) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{v, v, v, 255})
		}
	}
	return img
}

func TestParseCommands(t *testing.T) {
	cmds, err := ParseCommands("s,r, I,e")
	if err != nil {
		t.Fatalf("ParseCommands: %v", err)
	}
	want := []Command{CmdStretch, CmdReduce, CmdInvert, CmdEmboss}
	if len(cmds) != len(want) {
		t.Fatalf("got %v", cmds)
	}
	for i := range want {
		if cmds[i] != want[i] {
			t.Errorf("cmds[%d] = %v, want %v", i, cmds[i], want[i])
		}
	}
	if FormatCommands(cmds) != "S,R,I,E" {
		t.Errorf("FormatCommands = %q", FormatCommands(cmds))
	}
	if _, err := ParseCommands("S,X"); err == nil {
		t.Error("expected error for unknown command")
	}
	if cmds, err := ParseCommands(""); err != nil || len(cmds) != 0 {
		t.Errorf("empty string = %v %v", cmds, err)
	}
}

func TestInvertAndReduce(t *testing.T) {
	img := grayImage(2, 2, 100)
	if got := Invert(img).NRGBAAt(1, 1); got.R != 155 || got.A != 255 {
		t.Errorf("Invert = %v", got)
	}
	if got := Reduce(img).NRGBAAt(0, 0); got.R != 90 || got.G != 90 {
		t.Errorf("Reduce = %v", got)
	}
	if img.NRGBAAt(0, 0).R != 100 {
		t.Error("source image was modified")
	}
}

func TestStretch(t *testing.T) {
	img := grayImage(2, 1, 50)
	img.SetNRGBA(1, 0, color.NRGBA{200, 200, 200, 255})
	out := Stretch(img)
	if got := out.NRGBAAt(0, 0).R; got != 25 {
		t.Errorf("dark pixel = %d, want 25", got)
	}
	if got := out.NRGBAAt(1, 0).R; got != 227 {
		t.Errorf("bright pixel = %d, want 227", got)
	}
}

func TestEmbossFlatImage(t *testing.T) {
	out := Emboss(grayImage(4, 3, 100))
	for y := 0; y < 3; y++ {
		for x := 0; x < 4; x++ {
			if c := out.NRGBAAt(x, y); c.R != 128 || c.A != 255 {
				t.Fatalf("pixel (%d,%d) = %v, want 128", x, y, c)
			}
		}
	}
}

func TestApplyRunsInOrder(t *testing.T) {
	out, err := Apply(grayImage(1, 1, 100), "I,R")
	if err != nil {
		t.Fatal(err)
	}
	// invert to 155, then 90% of that
	if got := out.NRGBAAt(0, 0).R; got != 139 {
		t.Errorf("I,R = %d, want 139", got)
	}
}

func TestFade(t *testing.T) {
	img := grayImage(4, 1, 100)
	img.SetNRGBA(1, 0, color.NRGBA{105, 100, 100, 255})
	img.SetNRGBA(3, 0, color.NRGBA{0, 0, 0, 255})

	table := FadeTable{}
	table.Sample(img, image.Rect(0, 0, 1, 1))
	if table.Len() != 1 {
		t.Fatalf("table has %d buckets, want 1", table.Len())
	}
	out := Fade(img, table)
	if c := out.NRGBAAt(0, 0); c.R != 224 || c.G != 224 {
		t.Errorf("sampled pixel = %v", c)
	}
	if c := out.NRGBAAt(1, 0); c.R != 229 || c.G != 224 {
		t.Errorf("same bucket pixel = %v", c)
	}
	if c := out.NRGBAAt(3, 0); c.R != 0 {
		t.Errorf("unsampled pixel = %v", c)
	}
}
