package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Enums
type ProjectStatus string

const (
	ProjectStatusDraft      ProjectStatus = "draft"
	ProjectStatusEditing    ProjectStatus = "editing"
	ProjectStatusProcessing ProjectStatus = "processing"
	ProjectStatusCompleted  ProjectStatus = "completed"
	ProjectStatusFailed     ProjectStatus = "failed"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// IsTerminal reports whether the job can no longer change state.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

type Resolution string

const (
	Resolution720p  Resolution = "720p"
	Resolution1080p Resolution = "1080p"
	Resolution4K    Resolution = "4k"
)

// Dimensions returns the pixel size for a 16:9 frame at this resolution.
func (r Resolution) Dimensions() (width, height int) {
	switch r {
	case Resolution720p:
		return 1280, 720
	case Resolution4K:
		return 3840, 2160
	default:
		return 1920, 1080
	}
}

type VideoFormat string

const (
	FormatMP4  VideoFormat = "mp4"
	FormatWebM VideoFormat = "webm"
	FormatMOV  VideoFormat = "mov"
)

type RenderQuality string

const (
	QualityDraft    RenderQuality = "draft"
	QualityStandard RenderQuality = "standard"
	QualityHigh     RenderQuality = "high"
)

// RenderSettings is the per-job output configuration. Stored as a JSONB
// column on render_jobs, so it implements driver.Valuer / sql.Scanner.
type RenderSettings struct {
	Resolution Resolution    `json:"resolution"`
	Format     VideoFormat   `json:"format"`
	Quality    RenderQuality `json:"quality"`
}

func (s RenderSettings) Value() (driver.Value, error) {
	return json.Marshal(s)
}

func (s *RenderSettings) Scan(value interface{}) error {
	if value == nil {
		*s = RenderSettings{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, s)
}

// Validate checks that every settings field is one of the documented values.
func (s RenderSettings) Validate() error {
	switch s.Resolution {
	case Resolution720p, Resolution1080p, Resolution4K:
	default:
		return &ValidationError{Field: "resolution", Message: fmt.Sprintf("unsupported resolution %q", s.Resolution)}
	}
	switch s.Format {
	case FormatMP4, FormatWebM, FormatMOV:
	default:
		return &ValidationError{Field: "format", Message: fmt.Sprintf("unsupported format %q", s.Format)}
	}
	switch s.Quality {
	case QualityDraft, QualityStandard, QualityHigh:
	default:
		return &ValidationError{Field: "quality", Message: fmt.Sprintf("unsupported quality %q", s.Quality)}
	}
	return nil
}

// ProjectSettings holds the creative output options chosen in the editor.
type ProjectSettings struct {
	AspectRatio string      `json:"aspect_ratio"` // "16:9", "9:16", "1:1", "4:5"
	FPS         int         `json:"fps"`
	Resolution  Resolution  `json:"resolution"`
	Format      VideoFormat `json:"format"`
}

// AudioConfig references the background audio asset for a project.
type AudioConfig struct {
	ResourceID string  `json:"resource_id,omitempty"`
	Volume     float64 `json:"volume"` // 0..1
	FadeOut    float64 `json:"fade_out"`
}

// NarrationConfig carries the already-generated narration audio. The text
// and voice come from an external AI service; the engine only consumes URLs.
type NarrationConfig struct {
	Enabled    bool    `json:"enabled"`
	ResourceID string  `json:"resource_id,omitempty"`
	Volume     float64 `json:"volume"`
}

// IntroOutroConfig selects the opening/closing animation sequences and the
// text shown in them. Copy is produced externally and consumed as-is.
type IntroOutroConfig struct {
	IntroVariant    string  `json:"intro_variant"`
	OutroVariant    string  `json:"outro_variant"`
	IntroSeconds    float64 `json:"intro_seconds"`
	OutroSeconds    float64 `json:"outro_seconds"`
	PerPhotoSeconds float64 `json:"per_photo_seconds"`
	Title           string  `json:"title,omitempty"`
	Subtitle        string  `json:"subtitle,omitempty"`
	Date            string  `json:"date,omitempty"`
	Message         string  `json:"message,omitempty"`
	SubMessage      string  `json:"sub_message,omitempty"`

	Particles *ParticleConfig `json:"particles,omitempty"`
	// Seed fixes the particle layout so re-renders are reproducible.
	Seed int64 `json:"seed,omitempty"`
}

// Project is the aggregate produced by the editor. The render pipeline reads
// it through a collaborator and writes back only the status.
type Project struct {
	ID         uuid.UUID        `json:"id"`
	Title      string           `json:"title"`
	ThemeID    string           `json:"theme_id"`
	Status     ProjectStatus    `json:"status"`
	Settings   ProjectSettings  `json:"settings"`
	Timeline   Timeline         `json:"timeline"`
	Audio      AudioConfig      `json:"audio"`
	Narration  NarrationConfig  `json:"narration"`
	IntroOutro IntroOutroConfig `json:"intro_outro"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// PhotoCount counts clips in the first photo track.
func (p *Project) PhotoCount() int {
	for _, track := range p.Timeline.Tracks {
		if track.Type == TrackPhoto {
			return len(track.Clips)
		}
	}
	return 0
}

// TotalDuration is the shared duration formula both renderers must agree on:
// intro + photoCount*perPhoto + outro.
func (p *Project) TotalDuration() float64 {
	io := p.IntroOutro
	return TotalDuration(io.IntroSeconds, io.PerPhotoSeconds, io.OutroSeconds, p.PhotoCount())
}

// TotalDuration computes introSeconds + photoCount*perPhotoSeconds + outroSeconds.
func TotalDuration(introSeconds, perPhotoSeconds, outroSeconds float64, photoCount int) float64 {
	return introSeconds + float64(photoCount)*perPhotoSeconds + outroSeconds
}

// Theme is a read-only catalog entry. The catalog itself lives in an
// external service; this is the shape the engine consumes.
type Theme struct {
	ID                string            `json:"id"`
	Name              string            `json:"name"`
	Category          string            `json:"category"`
	Colors            map[string]string `json:"colors"` // "primary", "background", "text", ...
	Fonts             map[string]string `json:"fonts"`
	DefaultTransition string            `json:"default_transition"`
	DefaultEffect     string            `json:"default_effect"`
	IntroVariants     []string          `json:"intro_variants"`
	OutroVariants     []string          `json:"outro_variants"`
	NarrationStyle    string            `json:"narration_style,omitempty"`
}

// RenderJob is one request to materialize a project into a video file.
// Mutated only by the worker once claimed; terminal once completed/failed.
type RenderJob struct {
	ID              uuid.UUID      `json:"id"`
	ProjectID       uuid.UUID      `json:"project_id"`
	Status          JobStatus      `json:"status"`
	Progress        int            `json:"progress"` // 0..100, monotonic while non-terminal
	Settings        RenderSettings `json:"settings"`
	OutputURL       *string        `json:"output_url,omitempty"`
	Error           *string        `json:"error,omitempty"`
	Attempts        int            `json:"attempts"`
	CancelRequested bool           `json:"cancel_requested"`
	CreatedAt       time.Time      `json:"created_at"`
	StartedAt       *time.Time     `json:"started_at,omitempty"`
	FinishedAt      *time.Time     `json:"finished_at,omitempty"`
}

// CancelReason is recorded into job.error when a job is cancelled.
const CancelReason = "cancelled"

// DTOs for API requests and responses

type CreateRenderRequest struct {
	ProjectID uuid.UUID      `json:"project_id"`
	Settings  RenderSettings `json:"settings"`
}

type CreateRenderResponse struct {
	JobID  uuid.UUID `json:"job_id"`
	Status JobStatus `json:"status"`
}

// JobStatusResponse is the polling payload. Clients poll until terminal.
type JobStatusResponse struct {
	ID         uuid.UUID  `json:"id"`
	ProjectID  uuid.UUID  `json:"project_id"`
	Status     JobStatus  `json:"status"`
	Progress   int        `json:"progress"`
	OutputURL  *string    `json:"output_url,omitempty"`
	Error      *string    `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

func NewJobStatusResponse(job *RenderJob) JobStatusResponse {
	return JobStatusResponse{
		ID:         job.ID,
		ProjectID:  job.ProjectID,
		Status:     job.Status,
		Progress:   job.Progress,
		OutputURL:  job.OutputURL,
		Error:      job.Error,
		CreatedAt:  job.CreatedAt,
		StartedAt:  job.StartedAt,
		FinishedAt: job.FinishedAt,
	}
}

// ProgressUpdateRequest is pushed over the internal worker channel.
type ProgressUpdateRequest struct {
	Progress int `json:"progress"`
}

// CompleteJobRequest is pushed over the internal worker channel when a job
// reaches a terminal state.
type CompleteJobRequest struct {
	Status    JobStatus `json:"status"`
	OutputURL *string   `json:"output_url,omitempty"`
	Error     *string   `json:"error,omitempty"`
}
