// Package resolver computes the fully resolved visual and audio state for a
// single frame index. It is a pure function of (frame, fps, timeline, theme):
// no retained scene graph, no side effects, safe to call from any goroutine.
package resolver

import (
	"github.com/insushim/iswvideoedit-sub000/internal/models"
	"github.com/insushim/iswvideoedit-sub000/internal/transitions"
)

// CameraState is the resolved Ken Burns position for one layer. Scale is the
// zoom factor (>= 1) and the focal point is in the unit square; the
// rasterizer turns this into a translate+scale that keeps the focal point
// centered.
type CameraState struct {
	Scale  float64
	FocalX float64
	FocalY float64
}

// Layer is one resolved visual layer. During a transition window two layers
// are emitted for the same track; otherwise one.
type Layer struct {
	ResourceID string
	Progress   float64 // local clip progress, clamped to [0,1]
	Opacity    float64
	Camera     CameraState
	Patch      *transitions.StylePatch // non-nil only inside a transition window
	Filter     *models.FilterParams
	Text       *models.TextOverlay
}

// AudioState is the resolved audio layer for one frame.
type AudioState struct {
	ResourceID string
	Volume     float64
}

// RenderState is everything a rasterizer needs to draw one frame.
type RenderState struct {
	Frame    int
	Time     float64
	Photos   []Layer
	Overlays []Layer
	Audio    []AudioState
	Subtitle *models.TextOverlay
}

// Resolve maps a frame index to its render state. Out-of-range frames
// (negative or past the end) return the frozen state of the nearest valid
// instant; the resolver never fails.
func Resolve(frame, fps int, timeline *models.Timeline, theme *models.Theme) RenderState {
	if fps <= 0 {
		fps = 30
	}
	t := float64(frame) / float64(fps)

	// Freeze past the end on the last clip's terminal state.
	if end := timeline.End(); end > 0 && t >= end {
		t = end - 0.5/float64(fps)
	}
	if t < 0 {
		t = 0
	}

	state := RenderState{Frame: frame, Time: t}

	for _, track := range timeline.Tracks {
		switch track.Type {
		case models.TrackPhoto:
			state.Photos = append(state.Photos, resolveVisualTrack(track, t, theme)...)
		case models.TrackOverlay:
			state.Overlays = append(state.Overlays, resolveVisualTrack(track, t, theme)...)
		case models.TrackAudio, models.TrackNarration:
			if a, ok := resolveAudioTrack(track, t); ok {
				state.Audio = append(state.Audio, a)
			}
		case models.TrackSubtitle:
			if s := resolveSubtitle(track, t); s != nil {
				state.Subtitle = s
			}
		}
	}

	return state
}

// resolveVisualTrack emits the layer(s) visible at time t: one layer inside
// a clip body, two inside a transition window straddling a clip boundary.
func resolveVisualTrack(track models.Track, t float64, theme *models.Theme) []Layer {
	idx := clipIndexAt(track.Clips, t, true)
	if idx < 0 {
		return nil
	}
	clip := track.Clips[idx]

	// A transition is only defined across two time-adjacent clips. The
	// window's first half lives in the outgoing clip, the second half in the
	// incoming one, so check both neighbors of whichever clip owns t.
	if next, ok := adjacentNext(track.Clips, idx); ok {
		if inWindow, p := transitionWindow(clip, next, t); inWindow {
			return blendLayers(clip, next, p, t, theme)
		}
	}
	if prev, ok := adjacentPrev(track.Clips, idx); ok {
		if inWindow, p := transitionWindow(prev, clip, t); inWindow {
			return blendLayers(prev, clip, p, t, theme)
		}
	}

	return []Layer{baseLayer(clip, t)}
}

// blendLayers resolves both sides of a transition window: the outgoing clip
// queried with direction=out, the incoming with direction=in.
func blendLayers(outClip, inClip models.Clip, p, t float64, theme *models.Theme) []Layer {
	fn := transitions.Lookup(transitionID(outClip, theme))
	outPatch := fn(p, transitions.Out)
	inPatch := fn(p, transitions.In)

	outLayer := baseLayer(outClip, t)
	outLayer.Patch = &outPatch
	applyPatchOpacity(&outLayer)

	inLayer := baseLayer(inClip, t)
	inLayer.Patch = &inPatch
	applyPatchOpacity(&inLayer)

	return []Layer{outLayer, inLayer}
}

// transitionWindow reports whether t falls inside the blend window across
// the a→b boundary, and the blend progress within it. The window spans the
// final transitionDuration seconds of a and the first transitionDuration
// seconds of b.
func transitionWindow(a, b models.Clip, t float64) (bool, float64) {
	td := a.Properties.TransitionDuration
	if td <= 0 {
		return false, 0
	}
	start := a.EndTime - td
	end := a.EndTime + td
	if t < start || t >= end {
		return false, 0
	}
	return true, clamp01((t - start) / (2 * td))
}

func transitionID(c models.Clip, theme *models.Theme) string {
	if c.Properties.TransitionID != "" {
		return c.Properties.TransitionID
	}
	if theme != nil && theme.DefaultTransition != "" {
		return theme.DefaultTransition
	}
	return transitions.FallbackID
}

// baseLayer resolves a clip's own state at time t: local progress, Ken Burns
// camera, filter and text passthrough.
func baseLayer(clip models.Clip, t float64) Layer {
	progress := clamp01((t - clip.StartTime) / clip.Duration())

	layer := Layer{
		ResourceID: clip.ResourceID,
		Progress:   progress,
		Opacity:    1,
		Camera:     CameraState{Scale: 1, FocalX: 0.5, FocalY: 0.5},
		Filter:     clip.Properties.Filter,
		Text:       clip.Properties.Text,
	}

	if kb := clip.Properties.KenBurns; kb != nil {
		eased := clamp01(EasingFor(kb.Easing)(progress))
		layer.Camera = CameraState{
			Scale:  lerp(kb.StartScale, kb.EndScale, eased),
			FocalX: lerp(kb.StartX, kb.EndX, eased),
			FocalY: lerp(kb.StartY, kb.EndY, eased),
		}
		// Easing overshoot must never zoom below 1:1, which would reveal
		// outside the image.
		if layer.Camera.Scale < 1 {
			layer.Camera.Scale = 1
		}
	}

	return layer
}

func applyPatchOpacity(l *Layer) {
	if l.Patch != nil && l.Patch.Opacity != nil {
		l.Opacity = *l.Patch.Opacity
	}
}

func resolveAudioTrack(track models.Track, t float64) (AudioState, bool) {
	idx := clipIndexAt(track.Clips, t, false)
	if idx < 0 {
		return AudioState{}, false
	}
	clip := track.Clips[idx]
	volume := clip.Properties.Volume
	if volume == 0 {
		volume = 1
	}
	return AudioState{ResourceID: clip.ResourceID, Volume: volume}, true
}

func resolveSubtitle(track models.Track, t float64) *models.TextOverlay {
	idx := clipIndexAt(track.Clips, t, false)
	if idx < 0 {
		return nil
	}
	return track.Clips[idx].Properties.Text
}

// clipIndexAt locates the clip whose [start, end) interval contains t.
// When freeze is set, times at or past the last clip's end match that clip,
// so visual tracks hold their terminal state instead of going blank; audio
// and subtitle tracks simply fall silent in gaps and after their last clip.
func clipIndexAt(clips []models.Clip, t float64, freeze bool) int {
	for i, c := range clips {
		if t >= c.StartTime && t < c.EndTime {
			return i
		}
	}
	if n := len(clips); freeze && n > 0 && t >= clips[n-1].EndTime {
		return n - 1
	}
	return -1
}

func adjacentNext(clips []models.Clip, i int) (models.Clip, bool) {
	if i+1 < len(clips) && clips[i+1].StartTime == clips[i].EndTime {
		return clips[i+1], true
	}
	return models.Clip{}, false
}

func adjacentPrev(clips []models.Clip, i int) (models.Clip, bool) {
	if i > 0 && clips[i-1].EndTime == clips[i].StartTime {
		return clips[i-1], true
	}
	return models.Clip{}, false
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
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
