// Package preview is the client-side renderer: a simplified synchronous
// pipeline for in-editor preview and local export. It shares the resolver
// and animation engine with the server worker but trades robustness
// machinery (queue, retries, publishing) for immediacy; asset failures
// substitute a placeholder instead of failing the render.
package preview

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"

	"github.com/insushim/iswvideoedit-sub000/internal/animation"
	"github.com/insushim/iswvideoedit-sub000/internal/models"
	"github.com/insushim/iswvideoedit-sub000/internal/rasterizer"
	"github.com/insushim/iswvideoedit-sub000/internal/resolver"
)

// StreamEncoder receives rendered frames. Local exports wrap an encoder
// session; in-editor preview can wrap a display sink.
type StreamEncoder interface {
	WriteFrame(img *image.RGBA) error
	Close() error
}

type Options struct {
	Width    int
	Height   int
	FPS      int
	FontPath string
}

// ErrBusy is returned when a render is already running; the preview
// renderer is strictly one-at-a-time.
var ErrBusy = errors.New("preview render already in progress")

type Progress struct {
	Frame       int
	TotalFrames int
	Percent     float64
	Phase       string // "intro", "timeline", "outro"
}

type Renderer struct {
	assets rasterizer.ImageSource
	opts   Options

	mu        sync.Mutex
	rendering bool
	cancel    context.CancelFunc
}

func New(assets rasterizer.ImageSource, opts Options) *Renderer {
	if opts.FPS <= 0 {
		opts.FPS = 30
	}
	return &Renderer{assets: assets, opts: opts}
}

// Duration returns the expected output length:
// intro + photoCount*perPhoto + outro. The server pipeline computes the
// same value, so preview and final render always agree.
func Duration(project *models.Project) float64 {
	io := project.IntroOutro
	return models.TotalDuration(io.IntroSeconds, io.PerPhotoSeconds, io.OutroSeconds, project.PhotoCount())
}

// Render runs the full simplified pipeline synchronously. The encoder is
// closed before returning, success or not, so resources release
// deterministically. onProgress may be nil.
func (r *Renderer) Render(ctx context.Context, project *models.Project, theme *models.Theme, enc StreamEncoder, onProgress func(Progress)) error {
	r.mu.Lock()
	if r.rendering {
		r.mu.Unlock()
		return ErrBusy
	}
	ctx, cancel := context.WithCancel(ctx)
	r.rendering = true
	r.cancel = cancel
	r.mu.Unlock()

	defer func() {
		cancel()
		r.mu.Lock()
		r.rendering = false
		r.cancel = nil
		r.mu.Unlock()
	}()

	err := r.render(ctx, project, theme, enc, onProgress)
	if closeErr := enc.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}

// Cancel stops an in-flight render; the Render call returns promptly with
// the context error.
func (r *Renderer) Cancel() {
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
	}
	r.mu.Unlock()
}

func (r *Renderer) render(ctx context.Context, project *models.Project, theme *models.Theme, enc StreamEncoder, onProgress func(Progress)) error {
	if err := project.Timeline.Validate(); err != nil {
		return err
	}

	fps := r.opts.FPS
	io := project.IntroOutro

	intro := animation.NewIntro(io, theme)
	intro.Duration = io.IntroSeconds
	outro := animation.NewOutro(io, theme, project.PhotoCount())
	outro.Duration = io.OutroSeconds

	introFrames := frames(io.IntroSeconds, fps)
	bodyFrames := frames(project.Timeline.End(), fps)
	outroFrames := frames(io.OutroSeconds, fps)
	total := introFrames + bodyFrames + outroFrames
	if total == 0 {
		return &models.ValidationError{Field: "timeline", Message: "nothing to render"}
	}

	raster := rasterizer.New(&placeholderSource{inner: r.assets}, rasterizer.Options{
		Width:    r.opts.Width,
		Height:   r.opts.Height,
		FontPath: r.opts.FontPath,
	})

	collage := collagePhotos(&project.Timeline)
	introTexts := rasterizer.IntroTexts(io)
	outroTexts := rasterizer.OutroTexts(io)

	for frame := 0; frame < total; frame++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		var img *image.RGBA
		var err error
		var phase string
		switch {
		case frame < introFrames:
			phase = "intro"
			img, err = raster.Sequence(ctx, intro.StateAt(float64(frame)/float64(fps)), introTexts, theme, nil)
		case frame < introFrames+bodyFrames:
			phase = "timeline"
			state := resolver.Resolve(frame-introFrames, fps, &project.Timeline, theme)
			img, err = raster.Frame(ctx, state, theme)
		default:
			phase = "outro"
			offset := float64(frame-introFrames-bodyFrames) / float64(fps)
			img, err = raster.Sequence(ctx, outro.StateAt(offset), outroTexts, theme, collage)
		}
		if err != nil {
			return err
		}

		if err := enc.WriteFrame(img); err != nil {
			return err
		}
		if onProgress != nil {
			onProgress(Progress{
				Frame:       frame + 1,
				TotalFrames: total,
				Percent:     float64(frame+1) / float64(total) * 100,
				Phase:       phase,
			})
		}
	}

	return nil
}

func frames(seconds float64, fps int) int {
	if seconds <= 0 {
		return 0
	}
	return int(seconds*float64(fps) + 0.5)
}

func collagePhotos(timeline *models.Timeline) []string {
	for _, track := range timeline.Tracks {
		if track.Type != models.TrackPhoto {
			continue
		}
		ids := make([]string, 0, len(track.Clips))
		for _, clip := range track.Clips {
			ids = append(ids, clip.ResourceID)
		}
		return ids
	}
	return nil
}

// placeholderSource substitutes a neutral placeholder for any photo that
// fails to load, so preview keeps playing while the editor shows the
// broken-asset warning separately.
type placeholderSource struct {
	inner rasterizer.ImageSource

	once        sync.Once
	placeholder image.Image
}

func (p *placeholderSource) Image(ctx context.Context, resourceID string) (image.Image, error) {
	img, err := p.inner.Image(ctx, resourceID)
	if err == nil {
		return img, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	p.once.Do(func() {
		p.placeholder = makePlaceholder()
	})
	return p.placeholder, nil
}

// makePlaceholder draws the gray checkerboard used for missing photos.
func makePlaceholder() image.Image {
	const size, cell = 64, 8
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	light := color.RGBA{R: 0x3a, G: 0x3a, B: 0x3e, A: 255}
	dark := color.RGBA{R: 0x2a, G: 0x2a, B: 0x2e, A: 255}
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			if (x/cell+y/cell)%2 == 0 {
				img.SetRGBA(x, y, light)
			} else {
				img.SetRGBA(x, y, dark)
			}
		}
	}
	return img
}
