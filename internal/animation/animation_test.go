package animation

import (
	"testing"

	"github.com/insushim/iswvideoedit-sub000/internal/models"
)

func introCfg(variant string) models.IntroOutroConfig {
	return models.IntroOutroConfig{
		IntroVariant: variant,
		OutroVariant: variant,
		IntroSeconds: 3,
		OutroSeconds: 3,
		Title:        "Our Trip",
		Message:      "Thanks for watching",
	}
}

func TestVariantCountsMeetCatalogMinimum(t *testing.T) {
	if len(introVariants) < 15 {
		t.Errorf("expected at least 15 intro variants, got %d", len(introVariants))
	}
	if len(outroVariants) < 15 {
		t.Errorf("expected at least 15 outro variants, got %d", len(outroVariants))
	}
}

func TestTitleRespectsDelayCheckpoint(t *testing.T) {
	seq := NewIntro(introCfg("classic-fade"), nil)

	before := seq.StateAt(TitleDelay - 0.1)
	if before.Title.Opacity != 0 {
		t.Errorf("title visible before its checkpoint: opacity %v", before.Title.Opacity)
	}

	after := seq.StateAt(TitleDelay + enterDuration + 0.1)
	if after.Title.Opacity != 1 {
		t.Errorf("title not settled after entrance: opacity %v", after.Title.Opacity)
	}

	// subtitle enters a full second later
	mid := seq.StateAt(1.0)
	if mid.Subtitle.Opacity != 0 {
		t.Errorf("subtitle visible before its checkpoint: opacity %v", mid.Subtitle.Opacity)
	}
}

func TestUnknownVariantFallsBackToCategoryDefault(t *testing.T) {
	theme := &models.Theme{
		Category:      "wedding",
		IntroVariants: []string{"hearts-float", "classic-fade"},
		OutroVariants: []string{"heart-frame", "classic-fade"},
	}

	seq := NewIntro(introCfg("no-such-variant"), theme)
	if seq.Variant != "hearts-float" {
		t.Errorf("expected fallback to category default hearts-float, got %s", seq.Variant)
	}

	out := NewOutro(introCfg("no-such-variant"), theme, 4)
	if out.Variant != "heart-frame" {
		t.Errorf("expected fallback to heart-frame, got %s", out.Variant)
	}

	// an allowed, known id is honored
	seq = NewIntro(introCfg("classic-fade"), theme)
	if seq.Variant != "classic-fade" {
		t.Errorf("allowed variant overridden: got %s", seq.Variant)
	}

	// without a theme the registry default applies
	seq = NewIntro(introCfg("garbage"), nil)
	if seq.Variant != defaultIntroVariant {
		t.Errorf("expected %s, got %s", defaultIntroVariant, seq.Variant)
	}
}

func TestParticleDeterminismAcrossRenders(t *testing.T) {
	cfg := introCfg("confetti-burst")
	cfg.Seed = 1234
	cfg.Particles = &models.ParticleConfig{Type: "confetti", Count: 40}

	a := NewIntro(cfg, nil)
	b := NewIntro(cfg, nil)

	for _, offset := range []float64{0, 0.5, 1.0, 2.3, 3.0} {
		pa := a.StateAt(offset).Particles
		pb := b.StateAt(offset).Particles
		if len(pa) != len(pb) {
			t.Fatalf("offset %v: particle counts differ %d vs %d", offset, len(pa), len(pb))
		}
		for i := range pa {
			if pa[i] != pb[i] {
				t.Fatalf("offset %v particle %d: %+v != %+v", offset, i, pa[i], pb[i])
			}
		}
	}
}

func TestDifferentSeedsProduceDifferentParticles(t *testing.T) {
	cfg := introCfg("snow-drift")
	cfg.Seed = 1
	a := NewIntro(cfg, nil).StateAt(1.0).Particles

	cfg.Seed = 2
	b := NewIntro(cfg, nil).StateAt(1.0).Particles

	if len(a) == 0 || len(b) == 0 {
		t.Fatal("expected visible particles for both seeds")
	}
	same := len(a) == len(b)
	if same {
		for i := range a {
			if a[i] != b[i] {
				same = false
				break
			}
		}
	}
	if same {
		t.Error("different seeds produced identical particle sets")
	}
}

func TestParticleSystemSizedByConfigCount(t *testing.T) {
	sys := NewParticleSystem(models.ParticleConfig{Type: "snow", Count: 25}, 7)
	if len(sys.particles) != 25 {
		t.Fatalf("expected 25 particles, got %d", len(sys.particles))
	}
}

func TestCollageTilesStaggerIn(t *testing.T) {
	cfg := introCfg("collage-grid")
	seq := NewOutro(cfg, nil, 5)

	early := seq.StateAt(CollageDelay + 0.05)
	if len(early.Collage) != 5 {
		t.Fatalf("expected 5 collage tiles, got %d", len(early.Collage))
	}
	if early.Collage[0].Opacity == 0 {
		t.Error("first tile should have started entering")
	}
	if early.Collage[4].Opacity != 0 {
		t.Error("last tile should still be hidden")
	}

	late := seq.StateAt(seq.Duration)
	for i, tile := range late.Collage {
		if tile.Opacity == 0 {
			t.Errorf("tile %d never became visible", i)
		}
	}

	// collage is capped even for large albums
	big := NewOutro(cfg, nil, 40)
	if n := len(big.StateAt(3).Collage); n > 9 {
		t.Errorf("collage should cap at 9 tiles, got %d", n)
	}
}

func TestOffsetsClampToSequenceBounds(t *testing.T) {
	seq := NewIntro(introCfg("zoom-bounce"), nil)

	end := seq.StateAt(seq.Duration)
	past := seq.StateAt(seq.Duration + 100)
	if end.Title != past.Title || end.Subtitle != past.Subtitle {
		t.Error("state past the end should freeze at the final state")
	}

	neg := seq.StateAt(-5)
	if neg.Title.Opacity != 0 {
		t.Error("negative offsets should resolve to the initial state")
	}
}
