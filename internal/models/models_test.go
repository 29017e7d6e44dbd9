package models

import (
	"errors"
	"testing"
)

func photoTrack(clips ...Clip) Timeline {
	return Timeline{Tracks: []Track{{Type: TrackPhoto, Clips: clips}}}
}

func TestTimelineValidateAccepts(t *testing.T) {
	tl := photoTrack(
		Clip{StartTime: 0, EndTime: 4, ResourceID: "a"},
		Clip{StartTime: 4, EndTime: 8, ResourceID: "b", Properties: ClipProperties{
			TransitionID:       "crossfade",
			TransitionDuration: 1,
			KenBurns:           &KenBurnsConfig{StartScale: 1, EndScale: 1.2, StartX: 0.5, StartY: 0.5, EndX: 0.4, EndY: 0.6},
		}},
	)
	if err := tl.Validate(); err != nil {
		t.Fatalf("expected valid timeline, got %v", err)
	}
}

func TestTimelineValidateRejects(t *testing.T) {
	cases := []struct {
		name string
		tl   Timeline
	}{
		{"zero length clip", photoTrack(Clip{StartTime: 2, EndTime: 2, ResourceID: "a"})},
		{"negative duration", photoTrack(Clip{StartTime: 3, EndTime: 1, ResourceID: "a"})},
		{"missing resource", photoTrack(Clip{StartTime: 0, EndTime: 2})},
		{"overlapping clips", photoTrack(
			Clip{StartTime: 0, EndTime: 4, ResourceID: "a"},
			Clip{StartTime: 3, EndTime: 6, ResourceID: "b"},
		)},
		{"out of order clips", photoTrack(
			Clip{StartTime: 5, EndTime: 8, ResourceID: "a"},
			Clip{StartTime: 0, EndTime: 3, ResourceID: "b"},
		)},
		{"transition longer than clip", photoTrack(
			Clip{StartTime: 0, EndTime: 2, ResourceID: "a", Properties: ClipProperties{TransitionDuration: 3}},
		)},
		{"ken burns scale below one", photoTrack(
			Clip{StartTime: 0, EndTime: 2, ResourceID: "a", Properties: ClipProperties{
				KenBurns: &KenBurnsConfig{StartScale: 0.8, EndScale: 1.2, StartX: 0.5, StartY: 0.5, EndX: 0.5, EndY: 0.5},
			}},
		)},
		{"ken burns focal outside unit square", photoTrack(
			Clip{StartTime: 0, EndTime: 2, ResourceID: "a", Properties: ClipProperties{
				KenBurns: &KenBurnsConfig{StartScale: 1, EndScale: 1, StartX: 1.5, StartY: 0.5, EndX: 0.5, EndY: 0.5},
			}},
		)},
		{"unknown track type", Timeline{Tracks: []Track{{Type: "hologram"}}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.tl.Validate()
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected *ValidationError, got %T", err)
			}
		})
	}
}

func TestTimelineValidateSubtitleWithoutResource(t *testing.T) {
	tl := Timeline{Tracks: []Track{{
		Type:  TrackSubtitle,
		Clips: []Clip{{StartTime: 0, EndTime: 2}},
	}}}
	if err := tl.Validate(); err != nil {
		t.Fatalf("subtitle clips should not require a resource id: %v", err)
	}
}

func TestTimelineEnd(t *testing.T) {
	tl := Timeline{Tracks: []Track{
		{Type: TrackPhoto, Clips: []Clip{{StartTime: 0, EndTime: 8, ResourceID: "a"}}},
		{Type: TrackAudio, Clips: []Clip{{StartTime: 0, EndTime: 12, ResourceID: "bgm"}}},
	}}
	if got := tl.End(); got != 12 {
		t.Fatalf("End() = %v, want 12", got)
	}
	empty := Timeline{}
	if got := empty.End(); got != 0 {
		t.Fatalf("End() on empty timeline = %v, want 0", got)
	}
}

func TestTotalDurationFormula(t *testing.T) {
	// 3s intro + 5 photos * 4s + 3s outro = 26s
	if got := TotalDuration(3, 4, 3, 5); got != 26 {
		t.Fatalf("TotalDuration = %v, want 26", got)
	}
	if got := TotalDuration(0, 4, 0, 0); got != 0 {
		t.Fatalf("TotalDuration with no photos and no intro/outro = %v, want 0", got)
	}
}

func TestProjectTotalDurationUsesPhotoCount(t *testing.T) {
	p := Project{
		Timeline: photoTrack(
			Clip{StartTime: 0, EndTime: 4, ResourceID: "a"},
			Clip{StartTime: 4, EndTime: 8, ResourceID: "b"},
			Clip{StartTime: 8, EndTime: 12, ResourceID: "c"},
		),
		IntroOutro: IntroOutroConfig{IntroSeconds: 2, PerPhotoSeconds: 4, OutroSeconds: 2},
	}
	if got := p.PhotoCount(); got != 3 {
		t.Fatalf("PhotoCount = %d, want 3", got)
	}
	if got := p.TotalDuration(); got != 16 {
		t.Fatalf("TotalDuration = %v, want 16", got)
	}
}

func TestRenderSettingsValidate(t *testing.T) {
	good := RenderSettings{Resolution: Resolution1080p, Format: FormatMP4, Quality: QualityStandard}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected valid settings, got %v", err)
	}

	bad := []RenderSettings{
		{Resolution: "480p", Format: FormatMP4, Quality: QualityStandard},
		{Resolution: Resolution720p, Format: "avi", Quality: QualityStandard},
		{Resolution: Resolution720p, Format: FormatWebM, Quality: "ultra"},
	}
	for i, s := range bad {
		if err := s.Validate(); err == nil {
			t.Errorf("case %d: expected validation error for %+v", i, s)
		}
	}
}

func TestRenderSettingsScanRoundTrip(t *testing.T) {
	in := RenderSettings{Resolution: Resolution4K, Format: FormatWebM, Quality: QualityHigh}
	v, err := in.Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}
	var out RenderSettings
	if err := out.Scan(v); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if out != in {
		t.Fatalf("round trip mismatch: got %+v, want %+v", out, in)
	}

	var zero RenderSettings
	if err := zero.Scan(nil); err != nil {
		t.Fatalf("Scan(nil): %v", err)
	}
	if zero != (RenderSettings{}) {
		t.Fatalf("Scan(nil) should zero the value, got %+v", zero)
	}
}

func TestResolutionDimensions(t *testing.T) {
	cases := []struct {
		res  Resolution
		w, h int
	}{
		{Resolution720p, 1280, 720},
		{Resolution1080p, 1920, 1080},
		{Resolution4K, 3840, 2160},
		{"unknown", 1920, 1080}, // falls back to 1080p
	}
	for _, tc := range cases {
		w, h := tc.res.Dimensions()
		if w != tc.w || h != tc.h {
			t.Errorf("%s: got %dx%d, want %dx%d", tc.res, w, h, tc.w, tc.h)
		}
	}
}

func TestJobStatusIsTerminal(t *testing.T) {
	if JobStatusPending.IsTerminal() || JobStatusProcessing.IsTerminal() {
		t.Fatal("pending/processing must not be terminal")
	}
	if !JobStatusCompleted.IsTerminal() || !JobStatusFailed.IsTerminal() {
		t.Fatal("completed/failed must be terminal")
	}
}
