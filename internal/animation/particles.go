package animation

import (
	"math"
	"math/rand"

	"github.com/insushim/iswvideoedit-sub000/internal/models"
)

// particle holds the immutable birth parameters of one particle. Positions
// and sizes are normalized to the unit frame; the rasterizer scales them.
type particle struct {
	originX float64
	originY float64
	velX    float64
	velY    float64
	size    float64
	phase   float64
	spin    float64
	burstAt float64 // fireworks: seconds into the sequence the shell pops
	color   string
}

// ParticleState is one particle resolved at a sequence offset.
type ParticleState struct {
	X        float64
	Y        float64
	Size     float64
	Rotation float64
	Opacity  float64
	Color    string
}

// ParticleSystem generates its full particle set once from a fixed seed and
// then advances every particle as a pure function of offset. The same seed
// always reproduces bit-identical positions, which is what makes particle
// renders regression-testable.
type ParticleSystem struct {
	cfg       models.ParticleConfig
	particles []particle
}

var defaultColors = []string{"#e74c3c", "#f1c40f", "#2ecc71", "#3498db", "#9b59b6", "#ffffff"}

func NewParticleSystem(cfg models.ParticleConfig, seed int64) *ParticleSystem {
	if cfg.Count <= 0 {
		cfg.Count = 60
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = 0.02
	}
	if cfg.MinSize <= 0 {
		cfg.MinSize = cfg.MaxSize / 3
	}
	if cfg.MaxSpeed <= 0 {
		cfg.MaxSpeed = 0.25
	}
	if cfg.MinSpeed <= 0 {
		cfg.MinSpeed = cfg.MaxSpeed / 4
	}
	colors := cfg.Colors
	if len(colors) == 0 {
		colors = defaultColors
	}

	rng := rand.New(rand.NewSource(seed))
	ps := make([]particle, cfg.Count)
	for i := range ps {
		speed := cfg.MinSpeed + rng.Float64()*(cfg.MaxSpeed-cfg.MinSpeed)
		p := particle{
			originX: rng.Float64(),
			originY: rng.Float64(),
			size:    cfg.MinSize + rng.Float64()*(cfg.MaxSize-cfg.MinSize),
			phase:   rng.Float64() * 2 * math.Pi,
			spin:    (rng.Float64() - 0.5) * 4 * math.Pi,
			color:   colors[rng.Intn(len(colors))],
		}

		switch cfg.Type {
		case "fireworks":
			// shells pop in waves; fragments fly radially from the pop point
			angle := rng.Float64() * 2 * math.Pi
			p.originX = 0.2 + 0.6*rng.Float64()
			p.originY = 0.15 + 0.4*rng.Float64()
			p.velX = math.Cos(angle) * speed
			p.velY = math.Sin(angle) * speed
			p.burstAt = float64(i%4) * 0.8
		case "hearts":
			p.originY = 1 + rng.Float64()*0.3
			p.velX = (rng.Float64() - 0.5) * 0.05
			p.velY = -speed
		case "snow":
			p.originY = -rng.Float64() * 0.3
			p.velX = 0
			p.velY = speed * 0.4
		default: // confetti
			p.originY = -rng.Float64() * 0.4
			p.velX = (rng.Float64() - 0.5) * 0.08
			p.velY = speed
		}

		ps[i] = p
	}

	return &ParticleSystem{cfg: cfg, particles: ps}
}

// At resolves every particle at the given offset (seconds from sequence
// start). Pure: calling it twice with the same offset yields identical
// states.
func (s *ParticleSystem) At(offset float64) []ParticleState {
	if offset < 0 {
		offset = 0
	}
	out := make([]ParticleState, 0, len(s.particles))
	for _, p := range s.particles {
		st, visible := s.advance(p, offset)
		if visible {
			out = append(out, st)
		}
	}
	return out
}

func (s *ParticleSystem) advance(p particle, t float64) (ParticleState, bool) {
	st := ParticleState{Size: p.size, Color: p.color, Opacity: 1}

	switch s.cfg.Type {
	case "fireworks":
		dt := t - p.burstAt
		if dt < 0 {
			return st, false
		}
		const gravity = 0.08
		st.X = p.originX + p.velX*dt
		st.Y = p.originY + p.velY*dt + 0.5*gravity*dt*dt
		st.Opacity = math.Max(0, 1-dt/1.6)
		st.Rotation = p.phase + p.spin*dt
		if st.Opacity == 0 {
			return st, false
		}
	case "hearts":
		st.X = p.originX + p.velX*t + 0.04*math.Sin(p.phase+1.5*t)
		st.Y = p.originY + p.velY*t
		st.Rotation = 0.3 * math.Sin(p.phase+2*t)
		st.Opacity = fadeEdges(st.Y)
	case "snow":
		st.X = p.originX + 0.06*math.Sin(p.phase+0.8*t)
		st.Y = p.originY + p.velY*t
		st.Rotation = p.spin * t * 0.2
		st.Opacity = fadeEdges(st.Y)
	default: // confetti
		st.X = p.originX + p.velX*t + 0.03*math.Sin(p.phase+3*t)
		st.Y = p.originY + p.velY*t
		st.Rotation = p.phase + p.spin*t
		st.Opacity = fadeEdges(st.Y)
	}

	if st.Y < -0.1 || st.Y > 1.1 || st.X < -0.1 || st.X > 1.1 {
		return st, false
	}
	return st, true
}

// fadeEdges softens particles as they approach the top/bottom frame edge.
func fadeEdges(y float64) float64 {
	switch {
	case y < 0:
		return math.Max(0, 1+y*10)
	case y > 1:
		return math.Max(0, 1-(y-1)*10)
	default:
		return 1
	}
}
