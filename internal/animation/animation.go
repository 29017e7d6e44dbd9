// Package animation renders the parametrized intro and outro sequences:
// titles, closing messages, photo collages and particle systems, all as
// deterministic functions of the offset within the sequence.
package animation

import (
	"math"

	"github.com/insushim/iswvideoedit-sub000/internal/models"
	"github.com/insushim/iswvideoedit-sub000/internal/resolver"
)

// Named delay checkpoints. Every variant keys its element entrances to
// these offsets, so e.g. the title is always visible from 0.5s on.
const (
	TitleDelay    = 0.5
	SubtitleDelay = 1.5
	DateDelay     = 2.5

	MessageDelay    = 0.5
	SubMessageDelay = 1.5
	CollageDelay    = 2.0

	// enterDuration is how long one element takes to fully enter.
	enterDuration = 0.8
)

// ElementState is the resolved opacity/transform of one sequence element.
// Translate values are fractions of the frame; Reveal is the fraction of the
// element's text shown (typewriter variants keep it below 1 while typing).
type ElementState struct {
	Opacity    float64
	TranslateX float64
	TranslateY float64
	Scale      float64
	Rotate     float64
	Reveal     float64
}

func hidden() ElementState {
	return ElementState{Scale: 1, Reveal: 1}
}

func settled() ElementState {
	return ElementState{Opacity: 1, Scale: 1, Reveal: 1}
}

// SequenceState is the whole intro/outro resolved at one offset. Intro
// sequences use Title/Subtitle/Date; outros use Message/SubMessage and
// optionally Collage (one tile per photo, capped).
type SequenceState struct {
	Title      ElementState
	Subtitle   ElementState
	Date       ElementState
	Message    ElementState
	SubMessage ElementState
	Collage    []ElementState
	Particles  []ParticleState
	// Backdrop is the opacity of the theme-colored backdrop behind the text.
	Backdrop float64
}

type SequenceKind int

const (
	Intro SequenceKind = iota
	Outro
)

// entrance animates a single element from hidden to settled.
type entrance func(p float64) ElementState

// Sequence is a configured intro or outro ready to be resolved per frame.
type Sequence struct {
	Kind     SequenceKind
	Variant  string
	Duration float64

	enter      entrance
	reveal     bool // typewriter-style text reveal
	collage    bool
	photoCount int
	system     *ParticleSystem
}

const (
	defaultIntroVariant = "classic-fade"
	defaultOutroVariant = "classic-fade"

	// defaultSeed keeps unconfigured particle sequences reproducible.
	defaultSeed = 1
)

type variantSpec struct {
	enter    entrance
	reveal   bool
	collage  bool
	particle string // particle type, "" = none
}

var introVariants = map[string]variantSpec{
	"classic-fade":    {enter: fadeEnter},
	"slide-up":        {enter: slideEnter(0, 0.12)},
	"slide-down":      {enter: slideEnter(0, -0.12)},
	"slide-left":      {enter: slideEnter(0.15, 0)},
	"slide-right":     {enter: slideEnter(-0.15, 0)},
	"zoom-in":         {enter: zoomEnter(0.6)},
	"zoom-bounce":     {enter: easedEnter(resolver.BounceOut)},
	"back-pop":        {enter: easedEnter(resolver.BackOut)},
	"rotate-in":       {enter: rotateEnter},
	"flip-in":         {enter: flipEnter},
	"typewriter":      {enter: fadeEnter, reveal: true},
	"curtain":         {enter: curtainEnter},
	"spotlight":       {enter: zoomEnter(1.4)},
	"confetti-burst":  {enter: easedEnter(resolver.BackOut), particle: "confetti"},
	"hearts-float":    {enter: fadeEnter, particle: "hearts"},
	"snow-drift":      {enter: fadeEnter, particle: "snow"},
	"fireworks-night": {enter: zoomEnter(0.7), particle: "fireworks"},
}

var outroVariants = map[string]variantSpec{
	"classic-fade":     {enter: fadeEnter},
	"slide-up":         {enter: slideEnter(0, 0.12)},
	"zoom-out":         {enter: zoomEnter(1.5)},
	"back-pop":         {enter: easedEnter(resolver.BackOut)},
	"rotate-out":       {enter: rotateEnter},
	"flip-out":         {enter: flipEnter},
	"typewriter":       {enter: fadeEnter, reveal: true},
	"credits-roll":     {enter: slideEnter(0, 0.3)},
	"curtain-close":    {enter: curtainEnter},
	"glow-pulse":       {enter: pulseEnter},
	"collage-grid":     {enter: fadeEnter, collage: true},
	"collage-stack":    {enter: easedEnter(resolver.BackOut), collage: true},
	"heart-frame":      {enter: zoomEnter(0.6), particle: "hearts"},
	"confetti-finale":  {enter: easedEnter(resolver.BackOut), particle: "confetti"},
	"snow-fade":        {enter: fadeEnter, particle: "snow"},
	"fireworks-finale": {enter: zoomEnter(0.7), particle: "fireworks"},
}

// NewIntro builds the intro sequence for a project. Unknown or theme-
// disallowed variants fall back to the theme category's first entry.
func NewIntro(cfg models.IntroOutroConfig, theme *models.Theme) *Sequence {
	variant := resolveVariant(cfg.IntroVariant, themeVariants(theme, Intro), introVariants, defaultIntroVariant)
	return build(Intro, variant, introVariants[variant], cfg, 0)
}

// NewOutro builds the outro sequence. photoCount sizes collage variants.
func NewOutro(cfg models.IntroOutroConfig, theme *models.Theme, photoCount int) *Sequence {
	variant := resolveVariant(cfg.OutroVariant, themeVariants(theme, Outro), outroVariants, defaultOutroVariant)
	return build(Outro, variant, outroVariants[variant], cfg, photoCount)
}

func themeVariants(theme *models.Theme, kind SequenceKind) []string {
	if theme == nil {
		return nil
	}
	if kind == Intro {
		return theme.IntroVariants
	}
	return theme.OutroVariants
}

// resolveVariant applies the fallback rule: an id must both exist in the
// registry and, when the theme restricts variants, be on the allowed list;
// otherwise the category's first (default) entry wins.
func resolveVariant(id string, allowed []string, registry map[string]variantSpec, fallback string) string {
	known := func(v string) bool { _, ok := registry[v]; return ok }

	if len(allowed) > 0 {
		for _, v := range allowed {
			if v == id && known(v) {
				return v
			}
		}
		for _, v := range allowed {
			if known(v) {
				return v
			}
		}
	}
	if known(id) {
		return id
	}
	return fallback
}

func build(kind SequenceKind, variant string, spec variantSpec, cfg models.IntroOutroConfig, photoCount int) *Sequence {
	duration := cfg.IntroSeconds
	if kind == Outro {
		duration = cfg.OutroSeconds
	}

	seq := &Sequence{
		Kind:       kind,
		Variant:    variant,
		Duration:   duration,
		enter:      spec.enter,
		reveal:     spec.reveal,
		collage:    spec.collage,
		photoCount: photoCount,
	}

	if spec.particle != "" {
		pcfg := models.ParticleConfig{Type: spec.particle}
		if cfg.Particles != nil {
			pcfg = *cfg.Particles
			if pcfg.Type == "" {
				pcfg.Type = spec.particle
			}
		}
		seed := cfg.Seed
		if seed == 0 {
			seed = defaultSeed
		}
		seq.system = NewParticleSystem(pcfg, seed)
	}

	return seq
}

// StateAt resolves the sequence at the given offset in seconds. Offsets are
// clamped to [0, Duration]; the function is pure and deterministic.
func (s *Sequence) StateAt(offset float64) SequenceState {
	if offset < 0 {
		offset = 0
	}
	if s.Duration > 0 && offset > s.Duration {
		offset = s.Duration
	}

	state := SequenceState{
		Title:      hidden(),
		Subtitle:   hidden(),
		Date:       hidden(),
		Message:    hidden(),
		SubMessage: hidden(),
		Backdrop:   math.Min(1, offset/0.4),
	}

	if s.Kind == Intro {
		state.Title = s.element(offset, TitleDelay)
		state.Subtitle = s.element(offset, SubtitleDelay)
		state.Date = s.element(offset, DateDelay)
	} else {
		state.Message = s.element(offset, MessageDelay)
		state.SubMessage = s.element(offset, SubMessageDelay)
		if s.collage {
			state.Collage = s.collageTiles(offset)
		}
	}

	if s.system != nil {
		state.Particles = s.system.At(offset)
	}

	return state
}

// element runs the variant's entrance for one element keyed to its delay
// checkpoint. Before the checkpoint the element is hidden; enterDuration
// later it is fully settled.
func (s *Sequence) element(offset, delay float64) ElementState {
	if offset < delay {
		return hidden()
	}
	p := clamp01((offset - delay) / enterDuration)
	st := s.enter(p)
	if s.reveal {
		// typewriter reveals over a longer window than the entrance
		st.Reveal = clamp01((offset - delay) / (enterDuration * 2.5))
		st.Opacity = 1
	}
	return st
}

// collageTiles staggers tile entrances left to right after CollageDelay.
func (s *Sequence) collageTiles(offset float64) []ElementState {
	n := s.photoCount
	const maxTiles = 9
	if n > maxTiles {
		n = maxTiles
	}
	tiles := make([]ElementState, n)
	for i := range tiles {
		delay := CollageDelay + float64(i)*0.15
		if offset < delay {
			tiles[i] = hidden()
			continue
		}
		p := clamp01((offset - delay) / enterDuration)
		tiles[i] = s.enter(p)
	}
	return tiles
}

// Element entrance styles

func fadeEnter(p float64) ElementState {
	st := settled()
	st.Opacity = p
	return st
}

func slideEnter(dx, dy float64) entrance {
	return func(p float64) ElementState {
		e := resolver.EaseInOut(p)
		st := settled()
		st.Opacity = p
		st.TranslateX = dx * (1 - e)
		st.TranslateY = dy * (1 - e)
		return st
	}
}

func zoomEnter(from float64) entrance {
	return func(p float64) ElementState {
		e := resolver.EaseInOut(p)
		st := settled()
		st.Opacity = p
		st.Scale = from + (1-from)*e
		return st
	}
}

// easedEnter drives scale with a shaped easing (bounce, back) so the
// overshoot is visible in the element itself.
func easedEnter(fn resolver.EasingFunc) entrance {
	return func(p float64) ElementState {
		st := settled()
		st.Opacity = clamp01(p * 2)
		st.Scale = 0.4 + 0.6*fn(p)
		return st
	}
}

func rotateEnter(p float64) ElementState {
	e := resolver.EaseInOut(p)
	st := settled()
	st.Opacity = p
	st.Rotate = (1 - e) * -math.Pi / 6
	st.Scale = 0.8 + 0.2*e
	return st
}

func flipEnter(p float64) ElementState {
	e := resolver.EaseInOut(p)
	st := settled()
	if p < 0.5 {
		st.Opacity = 0
	} else {
		st.Opacity = 1
	}
	st.Scale = 0.02 + 0.98*e
	return st
}

func curtainEnter(p float64) ElementState {
	e := resolver.EaseInOut(p)
	st := settled()
	st.Opacity = 1
	st.Reveal = e
	return st
}

func pulseEnter(p float64) ElementState {
	st := settled()
	st.Opacity = p
	st.Scale = 1 + 0.05*math.Sin(3*math.Pi*p)
	return st
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
