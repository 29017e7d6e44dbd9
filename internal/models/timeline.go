package models

import "fmt"

type TrackType string

const (
	TrackPhoto     TrackType = "photo"
	TrackAudio     TrackType = "audio"
	TrackNarration TrackType = "narration"
	TrackSubtitle  TrackType = "subtitle"
	TrackOverlay   TrackType = "overlay"
)

// Timeline is the ordered set of tracks describing what plays when.
// It carries no behavior beyond validation; the resolver interprets it.
type Timeline struct {
	Tracks []Track `json:"tracks"`
}

type Track struct {
	Type  TrackType `json:"type"`
	Clips []Clip    `json:"clips"`
}

// Clip is a time-bounded reference to one media asset plus its rendering
// properties. Times are in seconds; the interval is [StartTime, EndTime).
type Clip struct {
	StartTime  float64        `json:"start_time"`
	EndTime    float64        `json:"end_time"`
	ResourceID string         `json:"resource_id"`
	Properties ClipProperties `json:"properties"`
}

func (c Clip) Duration() float64 {
	return c.EndTime - c.StartTime
}

type ClipProperties struct {
	EffectID           string          `json:"effect_id,omitempty"`
	TransitionID       string          `json:"transition_id,omitempty"`
	TransitionDuration float64         `json:"transition_duration,omitempty"`
	KenBurns           *KenBurnsConfig `json:"ken_burns,omitempty"`
	Filter             *FilterParams   `json:"filter,omitempty"`
	Text               *TextOverlay    `json:"text,omitempty"`
	Volume             float64         `json:"volume,omitempty"`
}

// KenBurnsConfig describes the slow pan/zoom applied to a still image.
// Scales must stay >= 1 so the camera never reveals outside the image.
// Focal positions are in the unit square.
type KenBurnsConfig struct {
	StartScale float64 `json:"start_scale"`
	EndScale   float64 `json:"end_scale"`
	StartX     float64 `json:"start_x"`
	StartY     float64 `json:"start_y"`
	EndX       float64 `json:"end_x"`
	EndY       float64 `json:"end_y"`
	Easing     string  `json:"easing,omitempty"`
}

type FilterParams struct {
	Brightness float64 `json:"brightness,omitempty"` // -1..1, 0 = unchanged
	Contrast   float64 `json:"contrast,omitempty"`   // -1..1, 0 = unchanged
	Saturation float64 `json:"saturation,omitempty"` // -1..1, 0 = unchanged
	Blur       float64 `json:"blur,omitempty"`       // sigma, 0 = off
	Grayscale  bool    `json:"grayscale,omitempty"`
	Sepia      bool    `json:"sepia,omitempty"`
}

type TextOverlay struct {
	Text     string  `json:"text"`
	Position string  `json:"position,omitempty"` // "top", "center", "bottom"
	FontSize float64 `json:"font_size,omitempty"`
	Color    string  `json:"color,omitempty"`
}

// ParticleConfig is the declarative input for particle-driven intro/outro
// variants. Per-frame particle state is derived, never persisted.
type ParticleConfig struct {
	Type      string   `json:"type"` // "confetti", "hearts", "fireworks", "snow"
	Count     int      `json:"count"`
	MinSize   float64  `json:"min_size"`
	MaxSize   float64  `json:"max_size"`
	MinSpeed  float64  `json:"min_speed"`
	MaxSpeed  float64  `json:"max_speed"`
	Colors    []string `json:"colors,omitempty"`
	Direction string   `json:"direction,omitempty"` // "up", "down", "radial"
}

// End returns the end time of the last clip across all tracks.
func (t *Timeline) End() float64 {
	end := 0.0
	for _, track := range t.Tracks {
		if n := len(track.Clips); n > 0 {
			if e := track.Clips[n-1].EndTime; e > end {
				end = e
			}
		}
	}
	return end
}

// Validate enforces the timeline invariants: clips strictly time-ordered and
// non-overlapping within a track, no zero-length clips, Ken Burns scales >= 1,
// transitions no longer than the clip itself. Rejecting here means the
// resolver never has to.
func (t *Timeline) Validate() error {
	for ti, track := range t.Tracks {
		switch track.Type {
		case TrackPhoto, TrackAudio, TrackNarration, TrackSubtitle, TrackOverlay:
		default:
			return &ValidationError{
				Field:   fmt.Sprintf("tracks[%d].type", ti),
				Message: fmt.Sprintf("unknown track type %q", track.Type),
			}
		}

		for ci, clip := range track.Clips {
			field := fmt.Sprintf("tracks[%d].clips[%d]", ti, ci)

			if clip.Duration() <= 0 {
				return &ValidationError{Field: field, Message: "clip has zero or negative duration"}
			}
			if clip.ResourceID == "" && track.Type != TrackSubtitle {
				return &ValidationError{Field: field, Message: "clip is missing a resource id"}
			}
			if ci > 0 && clip.StartTime < track.Clips[ci-1].EndTime {
				return &ValidationError{Field: field, Message: "clip overlaps or precedes the previous clip"}
			}
			if td := clip.Properties.TransitionDuration; td < 0 || td > clip.Duration() {
				return &ValidationError{Field: field, Message: "transition duration exceeds clip duration"}
			}
			if kb := clip.Properties.KenBurns; kb != nil {
				if err := kb.Validate(field); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (k *KenBurnsConfig) Validate(field string) error {
	if k.StartScale < 1 || k.EndScale < 1 {
		return &ValidationError{Field: field + ".ken_burns", Message: "ken burns scale must be >= 1"}
	}
	for _, v := range []float64{k.StartX, k.StartY, k.EndX, k.EndY} {
		if v < 0 || v > 1 {
			return &ValidationError{Field: field + ".ken_burns", Message: "focal position must be inside the unit square"}
		}
	}
	return nil
}
