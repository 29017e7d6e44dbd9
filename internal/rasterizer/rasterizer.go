// Package rasterizer paints resolved frame states into RGBA images. It is
// the only place pixel work happens; the resolver and animation engine stay
// pure and resolution-independent.
package rasterizer

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"math"
	"math/rand"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font/basicfont"

	"github.com/insushim/iswvideoedit-sub000/internal/models"
	"github.com/insushim/iswvideoedit-sub000/internal/resolver"
	"github.com/insushim/iswvideoedit-sub000/internal/transitions"
)

// ImageSource resolves a clip's resource id to a decoded image. Implemented
// by the asset store client; tests plug in fixed images.
type ImageSource interface {
	Image(ctx context.Context, resourceID string) (image.Image, error)
}

type Options struct {
	Width    int
	Height   int
	FontPath string // optional TTF; falls back to a builtin bitmap face
}

type Rasterizer struct {
	width    int
	height   int
	assets   ImageSource
	fontPath string
}

func New(assets ImageSource, opts Options) *Rasterizer {
	return &Rasterizer{
		width:    opts.Width,
		height:   opts.Height,
		assets:   assets,
		fontPath: opts.FontPath,
	}
}

// Frame paints one timeline frame. Asset failures surface as RenderErrors:
// the server pipeline treats a missing photo as deterministic and terminal.
func (r *Rasterizer) Frame(ctx context.Context, state resolver.RenderState, theme *models.Theme) (*image.RGBA, error) {
	dc := gg.NewContext(r.width, r.height)
	dc.SetColor(backgroundColor(theme))
	dc.Clear()

	for _, layer := range state.Photos {
		if err := r.drawLayer(ctx, dc, layer, state.Frame); err != nil {
			return nil, err
		}
	}
	for _, layer := range state.Overlays {
		if err := r.drawLayer(ctx, dc, layer, state.Frame); err != nil {
			return nil, err
		}
	}

	if state.Subtitle != nil {
		r.drawText(dc, state.Subtitle.Text, textOptions{
			position: positionOr(state.Subtitle.Position, "bottom"),
			size:     sizeOr(state.Subtitle.FontSize, float64(r.height)*0.035),
			color:    colorOr(state.Subtitle.Color, "#ffffff"),
			opacity:  1,
		})
	}

	return imageToRGBA(dc.Image()), nil
}

func (r *Rasterizer) drawLayer(ctx context.Context, dc *gg.Context, layer resolver.Layer, frame int) error {
	if layer.Opacity <= 0 {
		return nil
	}

	var img image.Image
	if layer.ResourceID != "" {
		src, err := r.assets.Image(ctx, layer.ResourceID)
		if err != nil {
			return &models.RenderError{Stage: "asset", Err: fmt.Errorf("resource %s: %w", layer.ResourceID, err)}
		}
		img = src
	}

	if img != nil {
		prepared := r.prepare(img, layer, frame)
		r.composite(dc, prepared, layer)
	}

	if layer.Text != nil {
		r.drawText(dc, layer.Text.Text, textOptions{
			position: positionOr(layer.Text.Position, "center"),
			size:     sizeOr(layer.Text.FontSize, float64(r.height)*0.05),
			color:    colorOr(layer.Text.Color, "#ffffff"),
			opacity:  layer.Opacity,
		})
	}

	return nil
}

// prepare scales the source to cover the frame, applies the Ken Burns crop
// and any filters, and bakes in the transition transform.
func (r *Rasterizer) prepare(img image.Image, layer resolver.Layer, frame int) image.Image {
	var out image.Image = imaging.Fill(img, r.width, r.height, imaging.Center, imaging.Lanczos)

	if cam := layer.Camera; cam.Scale > 1 {
		out = r.cameraCrop(out, cam)
	}

	if f := layer.Filter; f != nil {
		out = applyFilter(out, f)
	}

	var patchFilter *transitions.FilterPatch
	var patchTransform *transitions.Transform
	if layer.Patch != nil {
		patchFilter = layer.Patch.Filter
		patchTransform = layer.Patch.Transform
	}

	if patchFilter != nil {
		out = applyPatchFilter(out, patchFilter, frame)
	}
	if patchTransform != nil && !isIdentity(patchTransform) {
		out = r.applyTransform(out, patchTransform)
	}

	return out
}

// cameraCrop implements the Ken Burns translate+scale: crop a focal-centered
// window of 1/scale size and blow it back up. The window is clamped inside
// the image, so a scale >= 1 can never reveal outside the bounds.
func (r *Rasterizer) cameraCrop(img image.Image, cam resolver.CameraState) image.Image {
	cw := int(float64(r.width) / cam.Scale)
	ch := int(float64(r.height) / cam.Scale)
	if cw < 1 || ch < 1 {
		return img
	}

	cx := int(cam.FocalX*float64(r.width)) - cw/2
	cy := int(cam.FocalY*float64(r.height)) - ch/2
	cx = clampInt(cx, 0, r.width-cw)
	cy = clampInt(cy, 0, r.height-ch)

	cropped := imaging.Crop(img, image.Rect(cx, cy, cx+cw, cy+ch))
	return imaging.Resize(cropped, r.width, r.height, imaging.Linear)
}

func (r *Rasterizer) applyTransform(img image.Image, t *transitions.Transform) image.Image {
	dc := gg.NewContext(r.width, r.height)
	dc.Translate(float64(r.width)/2+t.TranslateX*float64(r.width), float64(r.height)/2+t.TranslateY*float64(r.height))
	if t.Rotate != 0 {
		dc.Rotate(t.Rotate)
	}
	sx, sy := t.ScaleX, t.ScaleY
	if sx == 0 {
		sx = 1e-4
	}
	if sy == 0 {
		sy = 1e-4
	}
	dc.Scale(sx, sy)
	dc.DrawImageAnchored(img, 0, 0, 0.5, 0.5)
	return dc.Image()
}

// composite blends the prepared layer onto the canvas honoring opacity and
// an optional shape mask for wipes.
func (r *Rasterizer) composite(dc *gg.Context, img image.Image, layer resolver.Layer) {
	// gg contexts are RGBA-backed; compositing into a copy would drop the layer
	dst := dc.Image().(*image.RGBA)

	alpha := uint8(clamp01(layer.Opacity) * 255)
	if alpha == 0 {
		return
	}

	var mask image.Image = image.NewUniform(color.Alpha{A: alpha})
	if layer.Patch != nil && layer.Patch.ClipPath != nil {
		mask = r.shapeMask(layer.Patch.ClipPath, alpha)
	}

	xdraw.DrawMask(dst, dst.Bounds(), img, image.Point{}, mask, image.Point{}, xdraw.Over)
}

// shapeMask rasterizes the wipe shape at the given coverage into an alpha
// mask. Coverage 0 hides the layer entirely; 1 shows all of it.
func (r *Rasterizer) shapeMask(cp *transitions.ClipPath, alpha uint8) *image.Alpha {
	mc := gg.NewContext(r.width, r.height)
	w, h := float64(r.width), float64(r.height)
	cx, cy := w/2, h/2
	coverage := clamp01(cp.Coverage)

	// sized so coverage=1 always encloses the full frame
	maxR := math.Hypot(cx, cy)

	switch cp.Shape {
	case "circle":
		mc.DrawCircle(cx, cy, coverage*maxR)
	case "diamond":
		d := coverage * (w + h) / 2
		mc.MoveTo(cx, cy-d)
		mc.LineTo(cx+d, cy)
		mc.LineTo(cx, cy+d)
		mc.LineTo(cx-d, cy)
		mc.ClosePath()
	case "star":
		starPath(mc, cx, cy, coverage*maxR*1.6)
	case "heart":
		heartPath(mc, cx, cy, coverage*maxR*1.4)
	default: // rect grows from the center
		rw, rh := coverage*w, coverage*h
		mc.DrawRectangle(cx-rw/2, cy-rh/2, rw, rh)
	}
	mc.SetRGBA(1, 1, 1, float64(alpha)/255)
	mc.Fill()

	return maskFromContext(mc)
}

func starPath(dc *gg.Context, cx, cy, outer float64) {
	inner := outer * 0.45
	for i := 0; i < 10; i++ {
		radius := outer
		if i%2 == 1 {
			radius = inner
		}
		angle := float64(i)*math.Pi/5 - math.Pi/2
		x := cx + radius*math.Cos(angle)
		y := cy + radius*math.Sin(angle)
		if i == 0 {
			dc.MoveTo(x, y)
		} else {
			dc.LineTo(x, y)
		}
	}
	dc.ClosePath()
}

// heartPath draws the classic parametric heart curve scaled to size.
func heartPath(dc *gg.Context, cx, cy, size float64) {
	const steps = 64
	scale := size / 17
	for i := 0; i <= steps; i++ {
		t := float64(i) / steps * 2 * math.Pi
		x := 16 * math.Pow(math.Sin(t), 3)
		y := 13*math.Cos(t) - 5*math.Cos(2*t) - 2*math.Cos(3*t) - math.Cos(4*t)
		px := cx + x*scale
		py := cy - y*scale
		if i == 0 {
			dc.MoveTo(px, py)
		} else {
			dc.LineTo(px, py)
		}
	}
	dc.ClosePath()
}

func applyFilter(img image.Image, f *models.FilterParams) image.Image {
	out := img
	if f.Brightness != 0 {
		out = imaging.AdjustBrightness(out, f.Brightness*100)
	}
	if f.Contrast != 0 {
		out = imaging.AdjustContrast(out, f.Contrast*100)
	}
	if f.Saturation != 0 {
		out = imaging.AdjustSaturation(out, f.Saturation*100)
	}
	if f.Blur > 0 {
		out = imaging.Blur(out, f.Blur)
	}
	if f.Grayscale {
		out = imaging.Grayscale(out)
	}
	if f.Sepia {
		out = imaging.AdjustSaturation(imaging.AdjustGamma(out, 0.9), -40)
	}
	return out
}

// applyPatchFilter applies the transient per-transition effects. Noise is
// seeded by the frame index so identical renders stay identical.
func applyPatchFilter(img image.Image, f *transitions.FilterPatch, frame int) image.Image {
	out := img
	b := out.Bounds()

	if f.Pixelate > 1 {
		dw := b.Dx() / f.Pixelate
		dh := b.Dy() / f.Pixelate
		if dw > 0 && dh > 0 {
			small := imaging.Resize(out, dw, dh, imaging.NearestNeighbor)
			out = imaging.Resize(small, b.Dx(), b.Dy(), imaging.NearestNeighbor)
		}
	}
	if f.Blur > 0 {
		out = imaging.Blur(out, f.Blur)
	}
	if f.Brightness != 0 {
		out = imaging.AdjustBrightness(out, f.Brightness*100)
	}
	if f.Noise > 0 {
		out = addNoise(out, f.Noise, frame)
	}
	return out
}

// addNoise slashes deterministic translucent streaks across the image, the
// cheap large-frame approximation of glitch noise.
func addNoise(img image.Image, amount float64, frame int) image.Image {
	b := img.Bounds()
	dc := gg.NewContext(b.Dx(), b.Dy())
	dc.DrawImage(img, 0, 0)

	rng := rand.New(rand.NewSource(int64(frame)*7919 + 13))
	streaks := int(amount * 40)
	for i := 0; i < streaks; i++ {
		y := rng.Float64() * float64(b.Dy())
		h := 1 + rng.Float64()*4
		v := rng.Float64()
		dc.SetRGBA(v, v, v, 0.25*amount)
		dc.DrawRectangle(0, y, float64(b.Dx()), h)
		dc.Fill()
	}
	return dc.Image()
}

type textOptions struct {
	position string
	size     float64
	color    string
	opacity  float64
}

func (r *Rasterizer) drawText(dc *gg.Context, text string, opts textOptions) {
	if text == "" || opts.opacity <= 0 {
		return
	}
	r.setFont(dc, opts.size)

	cr, cg, cb := parseHexColor(opts.color)
	dc.SetRGBA(cr, cg, cb, clamp01(opts.opacity))

	x := float64(r.width) / 2
	var y float64
	switch opts.position {
	case "top":
		y = float64(r.height) * 0.12
	case "bottom":
		y = float64(r.height) * 0.9
	default:
		y = float64(r.height) / 2
	}
	dc.DrawStringAnchored(text, x, y, 0.5, 0.5)
}

func (r *Rasterizer) setFont(dc *gg.Context, size float64) {
	if r.fontPath != "" {
		if err := dc.LoadFontFace(r.fontPath, size); err == nil {
			return
		}
	}
	dc.SetFontFace(basicfont.Face7x13)
}

func backgroundColor(theme *models.Theme) color.Color {
	if theme != nil {
		if hex, ok := theme.Colors["background"]; ok {
			cr, cg, cb := parseHexColor(hex)
			return color.RGBA{R: uint8(cr * 255), G: uint8(cg * 255), B: uint8(cb * 255), A: 255}
		}
	}
	return color.Black
}

func parseHexColor(s string) (r, g, b float64) {
	var ir, ig, ib int
	if len(s) == 7 && s[0] == '#' {
		if _, err := fmt.Sscanf(s, "#%02x%02x%02x", &ir, &ig, &ib); err == nil {
			return float64(ir) / 255, float64(ig) / 255, float64(ib) / 255
		}
	}
	return 1, 1, 1
}

func maskFromContext(dc *gg.Context) *image.Alpha {
	src := dc.Image()
	b := src.Bounds()
	mask := image.NewAlpha(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			_, _, _, a := src.At(x, y).RGBA()
			mask.SetAlpha(x, y, color.Alpha{A: uint8(a >> 8)})
		}
	}
	return mask
}

func imageToRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	b := img.Bounds()
	rgba := image.NewRGBA(b)
	xdraw.Copy(rgba, b.Min, img, b, xdraw.Src, nil)
	return rgba
}

func isIdentity(t *transitions.Transform) bool {
	return t.TranslateX == 0 && t.TranslateY == 0 && t.Rotate == 0 &&
		(t.ScaleX == 1 || t.ScaleX == 0) && (t.ScaleY == 1 || t.ScaleY == 0)
}

func positionOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func sizeOr(v, fallback float64) float64 {
	if v <= 0 {
		return fallback
	}
	return v
}

func colorOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if hi < lo {
		hi = lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
