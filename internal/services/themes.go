package services

import (
	"context"
	"fmt"

	"github.com/insushim/iswvideoedit-sub000/internal/models"
)

// ThemeCatalog resolves theme ids to their style definitions.
type ThemeCatalog interface {
	Theme(ctx context.Context, id string) (*models.Theme, error)
}

// StaticCatalog serves the built-in themes. Theme authoring happens in the
// editor product; the render side only needs a stable read path.
type StaticCatalog struct {
	themes map[string]*models.Theme
}

const DefaultThemeID = "classic"

func NewStaticCatalog() *StaticCatalog {
	c := &StaticCatalog{themes: make(map[string]*models.Theme)}
	for _, t := range builtinThemes {
		c.themes[t.ID] = t
	}
	return c
}

// Theme returns the requested theme, falling back to the classic theme for
// unknown ids so stale projects keep rendering.
func (c *StaticCatalog) Theme(_ context.Context, id string) (*models.Theme, error) {
	if t, ok := c.themes[id]; ok {
		return t, nil
	}
	if t, ok := c.themes[DefaultThemeID]; ok {
		return t, nil
	}
	return nil, fmt.Errorf("theme %q not found", id)
}

func (c *StaticCatalog) Themes() []*models.Theme {
	out := make([]*models.Theme, 0, len(c.themes))
	for _, t := range builtinThemes {
		out = append(out, c.themes[t.ID])
	}
	return out
}

var builtinThemes = []*models.Theme{
	{
		ID:   "classic",
		Name: "Classic",
		Colors: map[string]string{
			"background": "#0d0d0f",
			"backdrop":   "#16161a",
			"text":       "#f5f5f0",
			"accent":     "#d4af7a",
		},
		Fonts: map[string]string{
			"title": "PlayfairDisplay-Bold",
			"body":  "Lato-Regular",
		},
		DefaultTransition: "fade",
		DefaultEffect:     "ken-burns-slow",
		IntroVariants:     []string{"classic-fade", "zoom-in", "slide-up"},
		OutroVariants:     []string{"classic-fade", "zoom-out", "credits-roll"},
	},
	{
		ID:   "romance",
		Name: "Romance",
		Colors: map[string]string{
			"background": "#1a0e12",
			"backdrop":   "#2b151d",
			"text":       "#fdf0f3",
			"accent":     "#e8889c",
		},
		Fonts: map[string]string{
			"title": "GreatVibes-Regular",
			"body":  "Lora-Regular",
		},
		DefaultTransition: "dissolve",
		DefaultEffect:     "ken-burns-drift",
		IntroVariants:     []string{"hearts-float", "classic-fade", "spotlight"},
		OutroVariants:     []string{"heart-frame", "glow-pulse", "classic-fade"},
	},
	{
		ID:   "celebration",
		Name: "Celebration",
		Colors: map[string]string{
			"background": "#0b1026",
			"backdrop":   "#141b3d",
			"text":       "#ffffff",
			"accent":     "#f5c518",
		},
		Fonts: map[string]string{
			"title": "Montserrat-ExtraBold",
			"body":  "Montserrat-Regular",
		},
		DefaultTransition: "zoom",
		DefaultEffect:     "ken-burns-punch",
		IntroVariants:     []string{"confetti-burst", "zoom-bounce", "back-pop"},
		OutroVariants:     []string{"confetti-finale", "collage-grid", "fireworks-finale"},
	},
	{
		ID:   "winter",
		Name: "Winter",
		Colors: map[string]string{
			"background": "#0e1620",
			"backdrop":   "#1a2736",
			"text":       "#eef6fc",
			"accent":     "#9fc9e8",
		},
		Fonts: map[string]string{
			"title": "CormorantGaramond-SemiBold",
			"body":  "OpenSans-Regular",
		},
		DefaultTransition: "wipe-circle",
		DefaultEffect:     "ken-burns-slow",
		IntroVariants:     []string{"snow-drift", "curtain", "classic-fade"},
		OutroVariants:     []string{"snow-fade", "collage-stack", "classic-fade"},
	},
}
