package rasterizer

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/insushim/iswvideoedit-sub000/internal/animation"
	"github.com/insushim/iswvideoedit-sub000/internal/models"
	"github.com/insushim/iswvideoedit-sub000/internal/resolver"
	"github.com/insushim/iswvideoedit-sub000/internal/transitions"
)

type fakeAssets struct {
	images map[string]image.Image
}

func (f *fakeAssets) Image(_ context.Context, id string) (image.Image, error) {
	img, ok := f.images[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return img, nil
}

func solid(c color.RGBA, w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func newTestRasterizer() *Rasterizer {
	assets := &fakeAssets{images: map[string]image.Image{
		"red":  solid(color.RGBA{R: 255, A: 255}, 32, 32),
		"blue": solid(color.RGBA{B: 255, A: 255}, 32, 32),
	}}
	return New(assets, Options{Width: 64, Height: 36})
}

func layerOf(id string, opacity float64) resolver.Layer {
	return resolver.Layer{
		ResourceID: id,
		Opacity:    opacity,
		Camera:     resolver.CameraState{Scale: 1, FocalX: 0.5, FocalY: 0.5},
	}
}

func centerPixel(img *image.RGBA) color.RGBA {
	b := img.Bounds()
	return img.RGBAAt((b.Min.X+b.Max.X)/2, (b.Min.Y+b.Max.Y)/2)
}

func TestFrameDrawsOpaqueLayer(t *testing.T) {
	r := newTestRasterizer()
	state := resolver.RenderState{Photos: []resolver.Layer{layerOf("red", 1)}}

	img, err := r.Frame(context.Background(), state, nil)
	if err != nil {
		t.Fatalf("Frame: %v", err)
	}
	px := centerPixel(img)
	if px.R < 200 || px.G > 50 || px.B > 50 {
		t.Errorf("expected red center pixel, got %+v", px)
	}
}

func TestFrameZeroOpacityLeavesBackground(t *testing.T) {
	r := newTestRasterizer()
	state := resolver.RenderState{Photos: []resolver.Layer{layerOf("red", 0)}}

	img, err := r.Frame(context.Background(), state, nil)
	if err != nil {
		t.Fatalf("Frame: %v", err)
	}
	px := centerPixel(img)
	if px.R != 0 || px.G != 0 || px.B != 0 {
		t.Errorf("expected black background, got %+v", px)
	}
}

func TestFrameBlendsTwoLayers(t *testing.T) {
	r := newTestRasterizer()
	half := 0.5
	state := resolver.RenderState{Photos: []resolver.Layer{
		layerOf("red", 1),
		func() resolver.Layer {
			l := layerOf("blue", 0.5)
			l.Patch = &transitions.StylePatch{Opacity: &half}
			return l
		}(),
	}}

	img, err := r.Frame(context.Background(), state, nil)
	if err != nil {
		t.Fatalf("Frame: %v", err)
	}
	px := centerPixel(img)
	if px.R == 0 || px.B == 0 {
		t.Errorf("expected a red/blue blend, got %+v", px)
	}
}

func TestFrameMissingAssetIsRenderError(t *testing.T) {
	r := newTestRasterizer()
	state := resolver.RenderState{Photos: []resolver.Layer{layerOf("nope", 1)}}

	_, err := r.Frame(context.Background(), state, nil)
	if err == nil {
		t.Fatal("expected error for missing asset")
	}
	var re *models.RenderError
	if !errors.As(err, &re) {
		t.Errorf("expected RenderError, got %T: %v", err, err)
	}
}

func TestShapeMaskCoverageBounds(t *testing.T) {
	r := newTestRasterizer()
	for _, shape := range []string{"rect", "circle", "diamond", "star", "heart"} {
		empty := r.shapeMask(&transitions.ClipPath{Shape: shape, Coverage: 0}, 255)
		if countOpaque(empty) != 0 {
			t.Errorf("%s: coverage 0 should mask everything", shape)
		}

		full := r.shapeMask(&transitions.ClipPath{Shape: shape, Coverage: 1}, 255)
		total := 64 * 36
		if got := countOpaque(full); got < total*9/10 {
			t.Errorf("%s: coverage 1 shows %d/%d pixels, want nearly all", shape, got, total)
		}
	}
}

func countOpaque(mask *image.Alpha) int {
	n := 0
	b := mask.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if mask.AlphaAt(x, y).A > 128 {
				n++
			}
		}
	}
	return n
}

func TestPrepareAppliesAllStages(t *testing.T) {
	r := newTestRasterizer()
	src := solid(color.RGBA{G: 255, A: 255}, 64, 36)

	// camera crop, filter, patch filter and patch transform in one layer,
	// so every stage of the pipeline runs against the previous stage's output
	layer := resolver.Layer{
		ResourceID: "red",
		Opacity:    1,
		Camera:     resolver.CameraState{Scale: 1.3, FocalX: 0.5, FocalY: 0.5},
		Filter:     &models.FilterParams{Brightness: 0.1, Blur: 0.5},
		Patch: &transitions.StylePatch{
			Filter:    &transitions.FilterPatch{Pixelate: 4},
			Transform: &transitions.Transform{ScaleX: 0.8, ScaleY: 0.8, Rotate: 0.1},
		},
	}

	out := r.prepare(src, layer, 3)
	b := out.Bounds()
	if b.Dx() != 64 || b.Dy() != 36 {
		t.Fatalf("prepared layer is %dx%d, want 64x36", b.Dx(), b.Dy())
	}
}

func TestCameraCropKeepsDimensions(t *testing.T) {
	r := newTestRasterizer()
	src := solid(color.RGBA{G: 255, A: 255}, 64, 36)

	for _, cam := range []resolver.CameraState{
		{Scale: 1.2, FocalX: 0.5, FocalY: 0.5},
		{Scale: 2, FocalX: 0, FocalY: 0},
		{Scale: 1.5, FocalX: 1, FocalY: 1},
	} {
		out := r.cameraCrop(src, cam)
		b := out.Bounds()
		if b.Dx() != 64 || b.Dy() != 36 {
			t.Errorf("scale %.1f: got %dx%d, want 64x36", cam.Scale, b.Dx(), b.Dy())
		}
	}
}

func TestSequenceDrawsTitleAndParticles(t *testing.T) {
	r := newTestRasterizer()
	cfg := models.IntroOutroConfig{
		IntroVariant: "confetti-burst",
		IntroSeconds: 3,
		Title:        "Our Year",
		Subtitle:     "2026",
	}
	seq := animation.NewIntro(cfg, nil)
	state := seq.StateAt(2.5)

	img, err := r.Sequence(context.Background(), state, IntroTexts(cfg), nil, nil)
	if err != nil {
		t.Fatalf("Sequence: %v", err)
	}
	if img.Bounds().Dx() != 64 || img.Bounds().Dy() != 36 {
		t.Fatalf("unexpected bounds %v", img.Bounds())
	}
	// confetti plus settled text must leave non-background pixels
	colored := 0
	for y := 0; y < 36; y++ {
		for x := 0; x < 64; x++ {
			px := img.RGBAAt(x, y)
			if px.R > 20 || px.G > 20 || px.B > 20 {
				colored++
			}
		}
	}
	if colored == 0 {
		t.Error("sequence frame rendered nothing")
	}
}

func TestSequenceCollageUsesPhotos(t *testing.T) {
	r := newTestRasterizer()
	cfg := models.IntroOutroConfig{
		OutroVariant: "collage-grid",
		OutroSeconds: 5,
		Message:      "The End",
	}
	seq := animation.NewOutro(cfg, nil, 2)
	state := seq.StateAt(5)

	img, err := r.Sequence(context.Background(), state, OutroTexts(cfg), nil, []string{"red", "blue"})
	if err != nil {
		t.Fatalf("Sequence: %v", err)
	}
	found := false
	for y := 0; y < 36 && !found; y++ {
		for x := 0; x < 64; x++ {
			px := img.RGBAAt(x, y)
			if px.R > 100 || px.B > 100 {
				found = true
				break
			}
		}
	}
	if !found {
		t.Error("collage tiles not visible at full settle")
	}
}

func TestRevealText(t *testing.T) {
	if got := revealText("hello", 1); got != "hello" {
		t.Errorf("full reveal: got %q", got)
	}
	if got := revealText("hello", 0); got != "" {
		t.Errorf("zero reveal: got %q", got)
	}
	if got := revealText("hello", 0.4); got != "he" {
		t.Errorf("partial reveal: got %q", got)
	}
}
