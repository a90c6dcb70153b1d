package detection

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/menta2k/read-segments/pkg/types"
)

type fakeVision struct {
	result  *types.RegionResult
	err     error
	prompts []string
}

func (f *fakeVision) SimpleQuery(ctx context.Context, model, prompt, imgB64 string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return "a page of writing", nil
}

func (f *fakeVision) DetectRegions(ctx context.Context, model, prompt, imgB64 string) (*types.RegionResult, error) {
	f.prompts = append(f.prompts, prompt)
	return f.result, f.err
}

func page(w, h int) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	img.Set(1, 1, color.Black)
	return img
}

func TestProposeSortsAndFilters(t *testing.T) {
	fv := &fakeVision{result: &types.RegionResult{Regions: []types.Region{
		{Label: "second line right", Confidence: 0.9, Box: types.Box{X: 0.5, Y: 0.5, W: 0.4, H: 0.1}},
		{Label: "first line", Confidence: 0.9, Box: types.Box{X: 0.1, Y: 0.1, W: 0.8, H: 0.1}},
		{Label: "second line left", Confidence: 0.8, Box: types.Box{X: 0.1, Y: 0.52, W: 0.3, H: 0.1}},
		{Label: "unsure", Confidence: 0.1, Box: types.Box{X: 0.1, Y: 0.8, W: 0.3, H: 0.1}},
		{Label: "speck", Confidence: 0.9, Box: types.Box{X: 0.1, Y: 0.9, W: 0.001, H: 0.05}},
	}}}
	d := NewDetector(fv, Options{Model: "m", MinConfidence: 0.5})

	polys, err := d.Propose(context.Background(), page(1000, 500))
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}
	// Bounds has an exclusive Max, one past the last corner
	want := []image.Rectangle{
		image.Rect(100, 50, 901, 101),
		image.Rect(100, 260, 401, 311),
		image.Rect(500, 250, 901, 301),
	}
	if len(polys) != len(want) {
		t.Fatalf("got %d proposals, want %d", len(polys), len(want))
	}
	for i, p := range polys {
		if p.Bounds() != want[i] {
			t.Errorf("proposal %d = %v, want %v", i, p.Bounds(), want[i])
		}
		if p.Len() != 4 {
			t.Errorf("proposal %d has %d points", i, p.Len())
		}
	}
	if fv.prompts[0] != DefaultPrompt {
		t.Error("default prompt not used")
	}
}

func TestProposePixelBoxes(t *testing.T) {
	// 2000x1000 is sent as 1024x512, and the model answers in those pixels
	fv := &fakeVision{result: &types.RegionResult{Regions: []types.Region{
		{Box: types.Box{X: 512, Y: 256, W: 256, H: 128}},
	}}}
	d := NewDetector(fv, Options{Model: "m"})
	polys, err := d.Propose(context.Background(), page(2000, 1000))
	if err != nil {
		t.Fatal(err)
	}
	if len(polys) != 1 || polys[0].Bounds() != image.Rect(1000, 500, 1501, 751) {
		t.Errorf("proposals = %v", polys)
	}
}

func TestProposeErrors(t *testing.T) {
	fv := &fakeVision{err: errors.New("model offline")}
	if _, err := NewDetector(fv, Options{Model: "m"}).Propose(context.Background(), page(10, 10)); err == nil {
		t.Error("expected client error")
	}
	if _, err := NewDetector(fv, Options{}).Propose(context.Background(), page(10, 10)); err == nil {
		t.Error("expected error without model")
	}
}

func TestPrepareImage(t *testing.T) {
	b64, sent, err := PrepareImage(page(300, 600), 100, 80)
	if err != nil {
		t.Fatal(err)
	}
	if b64 == "" || sent.Dx() != 50 || sent.Dy() != 100 {
		t.Errorf("sent bounds %v", sent)
	}
	_, sent, _ = PrepareImage(page(30, 60), 100, 80)
	if sent.Dx() != 30 {
		t.Errorf("small image resized to %v", sent)
	}
}

func TestTestVision(t *testing.T) {
	fv := &fakeVision{}
	out, err := NewDetector(fv, Options{Model: "m"}).TestVision(context.Background(), page(10, 10))
	if err != nil || out == "" || fv.prompts[0] != SimpleTestPrompt {
		t.Errorf("TestVision = %q %v", out, err)
	}
}
