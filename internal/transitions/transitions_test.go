package transitions

import (
	"math"
	"testing"
)

func TestRegistryHasAtLeastTwentyVariants(t *testing.T) {
	if n := len(IDs()); n < 20 {
		t.Fatalf("expected at least 20 transitions, got %d", n)
	}
}

func TestUnknownIDFallsBackToFade(t *testing.T) {
	unknown := Lookup("definitely-not-a-transition")
	fade := Lookup("fade")

	for _, p := range []float64{0, 0.25, 0.5, 0.75, 1} {
		for _, dir := range []Direction{In, Out} {
			got := unknown(p, dir)
			want := fade(p, dir)
			if *got.Opacity != *want.Opacity {
				t.Errorf("p=%v dir=%v: fallback opacity %v, fade %v", p, dir, *got.Opacity, *want.Opacity)
			}
		}
	}
}

func TestSymmetricTransitionsMirrorOpacity(t *testing.T) {
	for _, id := range []string{"fade", "zoom"} {
		fn := Lookup(id)
		for _, p := range []float64{0, 0.1, 0.3, 0.5, 0.8, 1} {
			out := fn(p, Out)
			in := fn(1-p, In)
			if math.Abs(*out.Opacity-*in.Opacity) > 1e-9 {
				t.Errorf("%s: out(%v)=%v, in(%v)=%v", id, p, *out.Opacity, 1-p, *in.Opacity)
			}
		}
	}
}

func TestProgressIsClampedOutsideUnitRange(t *testing.T) {
	for _, id := range IDs() {
		fn := Lookup(id)
		for _, p := range []float64{-1, -0.001, 1.001, 5} {
			patch := fn(p, In)
			if patch.Opacity != nil && (*patch.Opacity < 0 || *patch.Opacity > 1) {
				t.Errorf("%s: opacity %v out of range for progress %v", id, *patch.Opacity, p)
			}
		}
	}
}

func TestSlideMovesIncomingIntoPlace(t *testing.T) {
	fn := Lookup("slide-left")

	start := fn(0, In)
	if start.Transform == nil || start.Transform.TranslateX <= 0 {
		t.Fatalf("incoming slide-left should start offscreen right, got %+v", start.Transform)
	}

	end := fn(1, In)
	if end.Transform.TranslateX != 0 || end.Transform.TranslateY != 0 {
		t.Fatalf("incoming slide should finish centered, got %+v", end.Transform)
	}
}

func TestWipeCoverageGrowsWithProgress(t *testing.T) {
	for _, id := range []string{"wipe-rect", "wipe-circle", "wipe-diamond", "wipe-star", "wipe-heart"} {
		fn := Lookup(id)
		prev := -1.0
		for _, p := range []float64{0, 0.25, 0.5, 0.75, 1} {
			patch := fn(p, In)
			if patch.ClipPath == nil {
				t.Fatalf("%s: incoming layer must carry a clip path", id)
			}
			if patch.ClipPath.Coverage < prev {
				t.Errorf("%s: coverage decreased at p=%v", id, p)
			}
			prev = patch.ClipPath.Coverage
		}
	}
}

func TestFlipHidesOutgoingAfterMidpoint(t *testing.T) {
	fn := Lookup("flip-horizontal")

	before := fn(0.4, Out)
	if *before.Opacity != 1 {
		t.Errorf("outgoing face should be visible before midpoint, got %v", *before.Opacity)
	}

	after := fn(0.6, Out)
	if *after.Opacity != 0 {
		t.Errorf("outgoing face should be hidden after midpoint, got %v", *after.Opacity)
	}

	incoming := fn(0.6, In)
	if *incoming.Opacity != 1 {
		t.Errorf("incoming face should be visible after midpoint, got %v", *incoming.Opacity)
	}
}
