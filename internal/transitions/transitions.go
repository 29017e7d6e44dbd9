// Package transitions maps transition ids to pure style functions. Each
// function takes the blend progress and a direction (the outgoing clip is
// queried with Out, the incoming with In) and returns the style patch the
// rasterizer composites with.
package transitions

import "math"

type Direction int

const (
	In Direction = iota
	Out
)

// Transform is a normalized layer transform. Translate values are fractions
// of the frame size; scales multiply the layer per axis; Rotate is in radians.
type Transform struct {
	TranslateX float64
	TranslateY float64
	ScaleX     float64
	ScaleY     float64
	Rotate     float64
}

func uniform(s float64) *Transform {
	return &Transform{ScaleX: s, ScaleY: s}
}

// ClipPath masks a layer to a shape that grows with Coverage in [0,1].
type ClipPath struct {
	Shape    string // "rect", "circle", "diamond", "star", "heart"
	Coverage float64
}

// FilterPatch applies a post effect to a layer during the blend.
type FilterPatch struct {
	Blur       float64 // gaussian sigma
	Pixelate   int     // block size in pixels, 0 = off
	Brightness float64 // added brightness, -1..1
	Noise      float64 // 0..1 glitch noise amount
}

// StylePatch is the resolved visual delta for one layer at one instant.
// Nil fields leave the channel untouched.
type StylePatch struct {
	Opacity   *float64
	Transform *Transform
	ClipPath  *ClipPath
	Filter    *FilterPatch
}

// Func computes a style patch from blend progress and direction.
// Progress is always clamped to [0,1] before the call.
type Func func(progress float64, dir Direction) StylePatch

// FallbackID is used whenever a transition id is not registered.
const FallbackID = "fade"

var registry = map[string]Func{
	// basic
	"fade":     fade,
	"dissolve": dissolve,

	// slide
	"slide-left":  slide(-1, 0),
	"slide-right": slide(1, 0),
	"slide-up":    slide(0, -1),
	"slide-down":  slide(0, 1),

	// wipe
	"wipe-rect":    wipe("rect"),
	"wipe-circle":  wipe("circle"),
	"wipe-diamond": wipe("diamond"),
	"wipe-star":    wipe("star"),
	"wipe-heart":   wipe("heart"),

	// zoom / spin
	"zoom": zoom,
	"spin": spin,

	// flip
	"flip-horizontal": flip(true),
	"flip-vertical":   flip(false),

	// creative
	"glitch":            glitch,
	"pixelate":          pixelate,
	"blur":              blurTransition,
	"ripple":            ripple,
	"light-leak":        lightLeak,
	"morph":             morph,
	"particle-dissolve": particleDissolve,
}

// Lookup returns the transition function for id, falling back to fade for
// unknown ids. Never returns nil.
func Lookup(id string) Func {
	if fn, ok := registry[id]; ok {
		return fn
	}
	return registry[FallbackID]
}

// IsRegistered reports whether id names a real transition.
func IsRegistered(id string) bool {
	_, ok := registry[id]
	return ok
}

// IDs returns every registered transition id.
func IDs() []string {
	ids := make([]string, 0, len(registry))
	for id := range registry {
		ids = append(ids, id)
	}
	return ids
}

func clamp01(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

func opacity(v float64) *float64 {
	v = clamp01(v)
	return &v
}

// fadeOpacity is the shared opacity ramp: incoming rises with progress,
// outgoing falls. Symmetric transitions satisfy out(p) == in(1-p) on this
// channel.
func fadeOpacity(p float64, dir Direction) *float64 {
	if dir == In {
		return opacity(p)
	}
	return opacity(1 - p)
}

func fade(p float64, dir Direction) StylePatch {
	p = clamp01(p)
	return StylePatch{Opacity: fadeOpacity(p, dir)}
}

// dissolve is fade with a soft noise breakup toward the midpoint.
func dissolve(p float64, dir Direction) StylePatch {
	p = clamp01(p)
	noise := 0.4 * math.Sin(math.Pi*p)
	return StylePatch{
		Opacity: fadeOpacity(p, dir),
		Filter:  &FilterPatch{Noise: noise},
	}
}

func slide(dx, dy float64) Func {
	return func(p float64, dir Direction) StylePatch {
		p = clamp01(p)
		t := uniform(1)
		if dir == In {
			// incoming slides from the opposite edge into place
			t.TranslateX = -dx * (1 - p)
			t.TranslateY = -dy * (1 - p)
			return StylePatch{Opacity: opacity(1), Transform: t}
		}
		t.TranslateX = dx * p
		t.TranslateY = dy * p
		return StylePatch{Opacity: opacity(1), Transform: t}
	}
}

func wipe(shape string) Func {
	return func(p float64, dir Direction) StylePatch {
		p = clamp01(p)
		if dir == In {
			return StylePatch{
				Opacity:  opacity(1),
				ClipPath: &ClipPath{Shape: shape, Coverage: p},
			}
		}
		// outgoing stays fully drawn underneath the growing shape
		return StylePatch{Opacity: opacity(1)}
	}
}

func zoom(p float64, dir Direction) StylePatch {
	p = clamp01(p)
	if dir == In {
		return StylePatch{
			Opacity:   fadeOpacity(p, In),
			Transform: uniform(0.6 + 0.4*p),
		}
	}
	return StylePatch{
		Opacity:   fadeOpacity(p, Out),
		Transform: uniform(1 + 0.4*p),
	}
}

func spin(p float64, dir Direction) StylePatch {
	p = clamp01(p)
	if dir == In {
		t := uniform(0.5 + 0.5*p)
		t.Rotate = -math.Pi * (1 - p)
		return StylePatch{Opacity: fadeOpacity(p, In), Transform: t}
	}
	t := uniform(1 - 0.5*p)
	t.Rotate = math.Pi * p
	return StylePatch{Opacity: fadeOpacity(p, Out), Transform: t}
}

// flip collapses the layer along one axis through the midpoint: the outgoing
// face squashes flat by p=0.5, then the incoming face unfolds.
func flip(horizontal bool) Func {
	return func(p float64, dir Direction) StylePatch {
		p = clamp01(p)
		var extent, vis float64
		if dir == Out {
			extent = math.Max(0, 1-2*p)
			if p < 0.5 {
				vis = 1
			}
		} else {
			extent = math.Max(0, 2*p-1)
			if p >= 0.5 {
				vis = 1
			}
		}
		t := &Transform{ScaleX: 1, ScaleY: 1}
		if horizontal {
			t.ScaleX = extent
		} else {
			t.ScaleY = extent
		}
		return StylePatch{Opacity: opacity(vis), Transform: t}
	}
}

func glitch(p float64, dir Direction) StylePatch {
	p = clamp01(p)
	// noise and displacement spike around the midpoint
	spike := math.Sin(math.Pi * p)
	t := uniform(1)
	t.TranslateX = 0.02 * spike * math.Sin(37*p)
	return StylePatch{
		Opacity:   fadeOpacity(p, dir),
		Transform: t,
		Filter:    &FilterPatch{Noise: 0.6 * spike},
	}
}

func pixelate(p float64, dir Direction) StylePatch {
	p = clamp01(p)
	spike := math.Sin(math.Pi * p)
	return StylePatch{
		Opacity: fadeOpacity(p, dir),
		Filter:  &FilterPatch{Pixelate: int(1 + 31*spike)},
	}
}

func blurTransition(p float64, dir Direction) StylePatch {
	p = clamp01(p)
	spike := math.Sin(math.Pi * p)
	return StylePatch{
		Opacity: fadeOpacity(p, dir),
		Filter:  &FilterPatch{Blur: 8 * spike},
	}
}

func ripple(p float64, dir Direction) StylePatch {
	p = clamp01(p)
	wobble := 0.015 * math.Sin(6*math.Pi*p) * (1 - p)
	return StylePatch{
		Opacity:   fadeOpacity(p, dir),
		Transform: uniform(1 + wobble),
	}
}

func lightLeak(p float64, dir Direction) StylePatch {
	p = clamp01(p)
	// brightness washes out through the midpoint, like film burn
	wash := math.Sin(math.Pi * p)
	return StylePatch{
		Opacity: fadeOpacity(p, dir),
		Filter:  &FilterPatch{Brightness: 0.8 * wash},
	}
}

func morph(p float64, dir Direction) StylePatch {
	p = clamp01(p)
	spike := math.Sin(math.Pi * p)
	if dir == In {
		return StylePatch{
			Opacity:   fadeOpacity(p, In),
			Transform: uniform(0.9 + 0.1*p),
			Filter:    &FilterPatch{Blur: 4 * spike},
		}
	}
	return StylePatch{
		Opacity:   fadeOpacity(p, Out),
		Transform: uniform(1 + 0.1*p),
		Filter:    &FilterPatch{Blur: 4 * spike},
	}
}

func particleDissolve(p float64, dir Direction) StylePatch {
	p = clamp01(p)
	return StylePatch{
		Opacity: fadeOpacity(p, dir),
		Filter:  &FilterPatch{Noise: 0.8 * math.Sin(math.Pi*p), Pixelate: int(1 + 7*math.Sin(math.Pi*p))},
	}
}
