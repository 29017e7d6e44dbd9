package encoder

import (
	"context"
	"strings"
	"testing"

	"github.com/insushim/iswvideoedit-sub000/internal/models"
)

func argsFor(t *testing.T, s Settings) []string {
	t.Helper()
	return buildArgs("/tmp/out", s)
}

func hasPair(args []string, flag, value string) bool {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag && args[i+1] == value {
			return true
		}
	}
	return false
}

func TestBuildArgsMP4(t *testing.T) {
	args := argsFor(t, Settings{Width: 1920, Height: 1080, FPS: 30, Format: models.FormatMP4, Quality: models.QualityStandard})

	if !hasPair(args, "-c:v", "libx264") {
		t.Error("mp4 should use libx264")
	}
	if !hasPair(args, "-crf", "23") || !hasPair(args, "-preset", "medium") {
		t.Errorf("standard quality args wrong: %v", args)
	}
	if !hasPair(args, "-video_size", "1920x1080") {
		t.Errorf("missing video size: %v", args)
	}
	if !hasPair(args, "-movflags", "+faststart") {
		t.Error("mp4 should enable faststart")
	}
	if args[len(args)-1] != "/tmp/out" {
		t.Errorf("output path must be last, got %v", args[len(args)-1])
	}
}

func TestBuildArgsWebM(t *testing.T) {
	args := argsFor(t, Settings{Width: 1280, Height: 720, FPS: 24, Format: models.FormatWebM, Quality: models.QualityHigh})

	if !hasPair(args, "-c:v", "libvpx-vp9") {
		t.Error("webm should use libvpx-vp9")
	}
	if !hasPair(args, "-crf", "24") {
		t.Errorf("high quality vp9 crf wrong: %v", args)
	}
	if strings.Contains(strings.Join(args, " "), "faststart") {
		t.Error("webm must not carry mp4 flags")
	}
}

func TestBuildArgsQualityLadder(t *testing.T) {
	draft := argsFor(t, Settings{Width: 640, Height: 360, FPS: 30, Format: models.FormatMP4, Quality: models.QualityDraft})
	high := argsFor(t, Settings{Width: 640, Height: 360, FPS: 30, Format: models.FormatMP4, Quality: models.QualityHigh})

	if !hasPair(draft, "-crf", "32") || !hasPair(draft, "-preset", "ultrafast") {
		t.Errorf("draft args wrong: %v", draft)
	}
	if !hasPair(high, "-crf", "18") || !hasPair(high, "-preset", "slow") {
		t.Errorf("high args wrong: %v", high)
	}
}

func TestBuildArgsAudioMux(t *testing.T) {
	args := argsFor(t, Settings{Width: 640, Height: 360, FPS: 30, Format: models.FormatMP4, Quality: models.QualityStandard, AudioPath: "/tmp/a.mp3"})

	if !hasPair(args, "-i", "/tmp/a.mp3") {
		t.Errorf("audio input missing: %v", args)
	}
	if !hasPair(args, "-c:a", "aac") {
		t.Errorf("audio codec missing: %v", args)
	}
	found := false
	for _, a := range args {
		if a == "-shortest" {
			found = true
		}
	}
	if !found {
		t.Error("audio mux should cut to shortest stream")
	}
}

func TestStartRejectsInvalidSettings(t *testing.T) {
	if _, err := Start(context.Background(), "/tmp/out", Settings{Width: 0, Height: 720, FPS: 30}); err == nil {
		t.Error("expected error for zero width")
	}
	if _, err := Start(context.Background(), "/tmp/out", Settings{Width: 1280, Height: 720, FPS: 0}); err == nil {
		t.Error("expected error for zero fps")
	}
}
