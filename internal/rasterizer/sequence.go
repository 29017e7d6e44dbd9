package rasterizer

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	xdraw "golang.org/x/image/draw"

	"github.com/insushim/iswvideoedit-sub000/internal/animation"
	"github.com/insushim/iswvideoedit-sub000/internal/models"
)

// SequenceTexts carries the user-editable copy for an intro or outro card.
type SequenceTexts struct {
	Title      string
	Subtitle   string
	Date       string
	Message    string
	SubMessage string
}

func IntroTexts(cfg models.IntroOutroConfig) SequenceTexts {
	return SequenceTexts{Title: cfg.Title, Subtitle: cfg.Subtitle, Date: cfg.Date}
}

func OutroTexts(cfg models.IntroOutroConfig) SequenceTexts {
	return SequenceTexts{Message: cfg.Message, SubMessage: cfg.SubMessage}
}

// Sequence paints one intro/outro frame. collagePhotos supplies resource ids
// for collage tiles; non-collage variants ignore it.
func (r *Rasterizer) Sequence(ctx context.Context, state animation.SequenceState, texts SequenceTexts, theme *models.Theme, collagePhotos []string) (*image.RGBA, error) {
	dc := gg.NewContext(r.width, r.height)
	dc.SetColor(backgroundColor(theme))
	dc.Clear()

	if state.Backdrop > 0 {
		cr, cg, cb := parseHexColor(themeColor(theme, "backdrop", "#111111"))
		dc.SetRGBA(cr, cg, cb, clamp01(state.Backdrop))
		dc.DrawRectangle(0, 0, float64(r.width), float64(r.height))
		dc.Fill()
	}

	if len(state.Collage) > 0 {
		if err := r.drawCollage(ctx, dc, state.Collage, collagePhotos); err != nil {
			return nil, err
		}
	}

	h := float64(r.height)
	textColor := themeColor(theme, "text", "#ffffff")
	accent := themeColor(theme, "accent", "#f5d0a9")

	r.drawElement(dc, texts.Title, state.Title, h*0.40, h*0.08, textColor)
	r.drawElement(dc, texts.Subtitle, state.Subtitle, h*0.52, h*0.045, accent)
	r.drawElement(dc, texts.Date, state.Date, h*0.60, h*0.032, textColor)
	r.drawElement(dc, texts.Message, state.Message, h*0.44, h*0.06, textColor)
	r.drawElement(dc, texts.SubMessage, state.SubMessage, h*0.55, h*0.038, accent)

	r.drawParticles(dc, state.Particles)

	return imageToRGBA(dc.Image()), nil
}

func (r *Rasterizer) drawElement(dc *gg.Context, text string, el animation.ElementState, y, size float64, hex string) {
	if text == "" || el.Opacity <= 0 {
		return
	}
	shown := revealText(text, el.Reveal)
	if shown == "" {
		return
	}

	dc.Push()
	defer dc.Pop()

	x := float64(r.width) / 2
	dc.Translate(x+el.TranslateX*float64(r.width), y+el.TranslateY*float64(r.height))
	if el.Rotate != 0 {
		dc.Rotate(el.Rotate)
	}
	if el.Scale != 1 && el.Scale > 0 {
		dc.Scale(el.Scale, el.Scale)
	}

	r.setFont(dc, size)
	cr, cg, cb := parseHexColor(hex)
	dc.SetRGBA(cr, cg, cb, clamp01(el.Opacity))
	dc.DrawStringAnchored(shown, 0, 0, 0.5, 0.5)
}

// revealText cuts the string at the reveal fraction on rune boundaries.
func revealText(s string, reveal float64) string {
	if reveal >= 1 {
		return s
	}
	runes := []rune(s)
	n := int(math.Ceil(clamp01(reveal) * float64(len(runes))))
	return string(runes[:n])
}

// drawCollage lays tiles on a 3-column grid in the lower half of the frame.
func (r *Rasterizer) drawCollage(ctx context.Context, dc *gg.Context, tiles []animation.ElementState, photos []string) error {
	cols := 3
	rows := (len(tiles) + cols - 1) / cols
	if rows == 0 {
		return nil
	}

	gridW := float64(r.width) * 0.7
	gridH := float64(r.height) * 0.42
	tileW := gridW / float64(cols)
	tileH := gridH / float64(rows)
	originX := (float64(r.width) - gridW) / 2
	originY := float64(r.height) * 0.5

	for i, tile := range tiles {
		if tile.Opacity <= 0 || i >= len(photos) {
			continue
		}
		img, err := r.assets.Image(ctx, photos[i])
		if err != nil {
			return &models.RenderError{Stage: "asset", Err: fmt.Errorf("collage resource %s: %w", photos[i], err)}
		}

		pad := tileW * 0.04
		w := int(tileW - 2*pad)
		h := int(tileH - 2*pad)
		if w < 1 || h < 1 {
			continue
		}
		fitted := imaging.Fill(img, w, h, imaging.Center, imaging.Lanczos)

		cx := originX + float64(i%cols)*tileW + tileW/2
		cy := originY + float64(i/cols)*tileH + tileH/2

		// transform into a scratch layer, then composite with the tile's
		// fade-in opacity (gg has no global alpha of its own)
		scratch := gg.NewContext(r.width, r.height)
		scratch.Translate(cx+tile.TranslateX*float64(r.width), cy+tile.TranslateY*float64(r.height))
		if tile.Rotate != 0 {
			scratch.Rotate(tile.Rotate)
		}
		if tile.Scale > 0 && tile.Scale != 1 {
			scratch.Scale(tile.Scale, tile.Scale)
		}
		scratch.DrawImageAnchored(fitted, 0, 0, 0.5, 0.5)

		dst := dc.Image().(*image.RGBA)
		mask := image.NewUniform(color.Alpha{A: uint8(clamp01(tile.Opacity) * 255)})
		xdraw.DrawMask(dst, dst.Bounds(), scratch.Image(), image.Point{}, mask, image.Point{}, xdraw.Over)
	}
	return nil
}

func (r *Rasterizer) drawParticles(dc *gg.Context, particles []animation.ParticleState) {
	w, h := float64(r.width), float64(r.height)
	for _, p := range particles {
		if p.Opacity <= 0 {
			continue
		}
		cr, cg, cb := parseHexColor(p.Color)
		dc.Push()
		dc.Translate(p.X*w, p.Y*h)
		if p.Rotation != 0 {
			dc.Rotate(p.Rotation)
		}
		dc.SetRGBA(cr, cg, cb, clamp01(p.Opacity))
		size := p.Size * h
		dc.DrawRectangle(-size/2, -size/2, size, size)
		dc.Fill()
		dc.Pop()
	}
}

func themeColor(theme *models.Theme, key, fallback string) string {
	if theme != nil {
		if hex, ok := theme.Colors[key]; ok {
			return hex
		}
	}
	return fallback
}
