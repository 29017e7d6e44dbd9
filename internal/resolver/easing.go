package resolver

import "math"

// EasingFunc remaps linear progress in [0,1]. Back and bounce intentionally
// leave the unit range near the end of the curve; callers that need a
// clamped value clamp the output, not the curve.
type EasingFunc func(t float64) float64

func Linear(t float64) float64 { return t }

// EaseInOut is the cubic smooth ramp used as the default for camera moves.
func EaseInOut(t float64) float64 {
	if t < 0.5 {
		return 4 * t * t * t
	}
	return 1 - math.Pow(-2*t+2, 3)/2
}

// BackOut overshoots past 1 before settling, the classic "snap back" feel.
func BackOut(t float64) float64 {
	const c1 = 1.70158
	const c3 = c1 + 1
	return 1 + c3*math.Pow(t-1, 3) + c1*math.Pow(t-1, 2)
}

// BounceOut oscillates toward 1 like a dropped ball coming to rest.
func BounceOut(t float64) float64 {
	const n1 = 7.5625
	const d1 = 2.75
	switch {
	case t < 1/d1:
		return n1 * t * t
	case t < 2/d1:
		t -= 1.5 / d1
		return n1*t*t + 0.75
	case t < 2.5/d1:
		t -= 2.25 / d1
		return n1*t*t + 0.9375
	default:
		t -= 2.625 / d1
		return n1*t*t + 0.984375
	}
}

var easings = map[string]EasingFunc{
	"linear":      Linear,
	"ease-in-out": EaseInOut,
	"back":        BackOut,
	"bounce":      BounceOut,
}

// EasingFor returns the named easing, defaulting to ease-in-out.
func EasingFor(name string) EasingFunc {
	if fn, ok := easings[name]; ok {
		return fn
	}
	return EaseInOut
}
