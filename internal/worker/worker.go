package worker

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/insushim/iswvideoedit-sub000/internal/animation"
	"github.com/insushim/iswvideoedit-sub000/internal/encoder"
	"github.com/insushim/iswvideoedit-sub000/internal/models"
	"github.com/insushim/iswvideoedit-sub000/internal/queue"
	"github.com/insushim/iswvideoedit-sub000/internal/rasterizer"
	"github.com/insushim/iswvideoedit-sub000/internal/resolver"
	"github.com/insushim/iswvideoedit-sub000/internal/services"
)

// Store is the job and project persistence the worker needs. *db.DB
// satisfies it; tests use an in-memory fake.
type Store interface {
	GetProject(ctx context.Context, id uuid.UUID) (*models.Project, error)
	SetProjectStatus(ctx context.Context, id uuid.UUID, status models.ProjectStatus, outputURL string) error

	GetJob(ctx context.Context, id uuid.UUID) (*models.RenderJob, error)
	MarkProcessing(ctx context.Context, id uuid.UUID) (bool, error)
	MarkRetrying(ctx context.Context, id uuid.UUID) error
	UpdateJobProgress(ctx context.Context, id uuid.UUID, progress int) error
	CompleteJob(ctx context.Context, id uuid.UUID, outputURL string) error
	FailJob(ctx context.Context, id uuid.UUID, message string) (bool, error)
	IsCancelRequested(ctx context.Context, id uuid.UUID) (bool, error)
	StaleProcessingJobs(ctx context.Context, olderThan time.Duration) ([]models.RenderJob, error)
}

// JobQueue is the durable queue surface.
type JobQueue interface {
	Claim(ctx context.Context, consumer string, timeout time.Duration) (*queue.Message, error)
	Ack(ctx context.Context, consumer string, msg *queue.Message) error
	Requeue(ctx context.Context, consumer string, msg *queue.Message) error
	Orphans(ctx context.Context, consumer string) ([]queue.Message, error)
}

// Publisher uploads finished artifacts and returns their public URL.
type Publisher interface {
	PublishArtifact(ctx context.Context, jobID uuid.UUID, localPath string, format models.VideoFormat) (string, error)
}

// AssetSource is one job's view of the asset store.
type AssetSource interface {
	rasterizer.ImageSource
	AudioFile(ctx context.Context, jobID uuid.UUID, resourceID string) (string, error)
	Release()
}

// EncodeSession receives the rendered frames.
type EncodeSession interface {
	WriteFrame(img *image.RGBA) error
	Close() error
	Abort()
}

// StartEncoder opens an encode session writing to path. Injected so tests
// run without ffmpeg on the machine.
type StartEncoder func(ctx context.Context, path string, s encoder.Settings) (EncodeSession, error)

type Config struct {
	Consumer    string // stable worker identity, names the processing list
	Concurrency int
	TempDir     string

	MaxAttempts int           // total tries per job, transient failures only
	BackoffBase time.Duration // delay before attempt n is base << (n-1)

	// Start rate limiting: at most StartBurst render starts per StartWindow
	// across the pool, so a queue drain cannot stampede the asset store.
	StartBurst  int
	StartWindow time.Duration

	JobTimeout       time.Duration // watchdog deadline for a single render
	WatchdogInterval time.Duration
	CancelPoll       time.Duration
}

func (c *Config) defaults() {
	if c.Concurrency <= 0 {
		c.Concurrency = 2
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 2 * time.Second
	}
	if c.StartBurst <= 0 {
		c.StartBurst = 4
	}
	if c.StartWindow <= 0 {
		c.StartWindow = time.Minute
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = 20 * time.Minute
	}
	if c.WatchdogInterval <= 0 {
		c.WatchdogInterval = time.Minute
	}
	if c.CancelPoll <= 0 {
		c.CancelPoll = 2 * time.Second
	}
	if c.Consumer == "" {
		host, _ := os.Hostname()
		c.Consumer = "render-" + host
	}
}

type Worker struct {
	store     Store
	queue     JobQueue
	publisher Publisher
	themes    services.ThemeCatalog
	assets    func(jobID uuid.UUID) AssetSource
	encode    StartEncoder
	cfg       Config

	fontPath  string
	uploadSem chan struct{} // limits concurrent artifact uploads

	mu     sync.Mutex
	starts []time.Time // rolling window of render start times
}

func New(store Store, q JobQueue, pub Publisher, themes services.ThemeCatalog, assets func(uuid.UUID) AssetSource, encode StartEncoder, fontPath string, cfg Config) *Worker {
	cfg.defaults()
	return &Worker{
		store:     store,
		queue:     q,
		publisher: pub,
		themes:    themes,
		assets:    assets,
		encode:    encode,
		cfg:       cfg,
		fontPath:  fontPath,
		uploadSem: make(chan struct{}, 2),
	}
}

// Start runs the executor pool until the context is cancelled.
func (w *Worker) Start(ctx context.Context) {
	log.Printf("[Worker] started, consumer=%s concurrency=%d", w.cfg.Consumer, w.cfg.Concurrency)

	w.recoverOrphans(ctx)
	go w.watchdog(ctx)

	var wg sync.WaitGroup
	for i := 0; i < w.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.loop(ctx)
		}()
	}
	wg.Wait()
	log.Println("[Worker] shut down")
}

func (w *Worker) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msg, err := w.queue.Claim(ctx, w.cfg.Consumer, 5*time.Second)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("[Worker] claim error: %v", err)
			continue
		}
		if msg == nil {
			continue // queue empty
		}

		w.handle(ctx, msg)
	}
}

// handle drives one claimed message through the full attempt lifecycle.
func (w *Worker) handle(ctx context.Context, msg *queue.Message) {
	started, err := w.store.MarkProcessing(ctx, msg.JobID)
	if err != nil {
		log.Printf("[Worker] job %s: mark processing: %v", msg.JobID, err)
		w.requeueAfter(ctx, msg, 0)
		return
	}
	if !started {
		// cancelled or already terminal; nothing to render
		if err := w.queue.Ack(ctx, w.cfg.Consumer, msg); err != nil {
			log.Printf("[Worker] job %s: ack: %v", msg.JobID, err)
		}
		return
	}

	if err := w.waitForStartSlot(ctx); err != nil {
		return
	}

	log.Printf("[Worker] job %s: rendering (attempt %d)", msg.JobID, msg.Attempt+1)
	renderErr := w.render(ctx, msg)
	if renderErr == nil {
		log.Printf("[Worker] job %s: completed", msg.JobID)
		w.ack(ctx, msg)
		return
	}

	switch {
	case errors.Is(renderErr, errCancelled):
		log.Printf("[Worker] job %s: cancelled", msg.JobID)
		// the cancel endpoint already failed the job; project returns to draft
		w.failJob(ctx, msg, models.CancelReason, models.ProjectStatusDraft)
		w.ack(ctx, msg)

	case models.IsTransient(renderErr) && msg.Attempt+1 < w.cfg.MaxAttempts:
		delay := w.backoffDelay(msg.Attempt)
		log.Printf("[Worker] job %s: transient failure, retry in %v: %v", msg.JobID, delay, renderErr)
		if err := w.store.MarkRetrying(ctx, msg.JobID); err != nil {
			log.Printf("[Worker] job %s: mark retrying: %v", msg.JobID, err)
		}
		w.requeueAfter(ctx, msg, delay)

	default:
		log.Printf("[Worker] job %s: failed: %v", msg.JobID, renderErr)
		w.failJob(ctx, msg, renderErr.Error(), models.ProjectStatusFailed)
		w.ack(ctx, msg)
	}
}

// backoffDelay grows strictly with the attempt number: base, 2x, 4x, ...
func (w *Worker) backoffDelay(attempt int) time.Duration {
	d := w.cfg.BackoffBase << uint(attempt)
	if max := 5 * time.Minute; d > max {
		d = max
	}
	return d
}

func (w *Worker) requeueAfter(ctx context.Context, msg *queue.Message, delay time.Duration) {
	if delay > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(delay):
		}
	}
	if err := w.queue.Requeue(ctx, w.cfg.Consumer, msg); err != nil {
		log.Printf("[Worker] job %s: requeue: %v", msg.JobID, err)
	}
}

func (w *Worker) ack(ctx context.Context, msg *queue.Message) {
	if err := w.queue.Ack(ctx, w.cfg.Consumer, msg); err != nil {
		log.Printf("[Worker] job %s: ack: %v", msg.JobID, err)
	}
}

func (w *Worker) failJob(ctx context.Context, msg *queue.Message, reason string, projectStatus models.ProjectStatus) {
	failed, err := w.store.FailJob(ctx, msg.JobID, reason)
	if err != nil {
		log.Printf("[Worker] job %s: fail: %v", msg.JobID, err)
		return
	}
	if !failed {
		// the job reached a terminal state under us (cancel endpoint, most
		// likely), and whoever got there first owns the project status too
		return
	}
	if err := w.store.SetProjectStatus(ctx, msg.ProjectID, projectStatus, ""); err != nil {
		log.Printf("[Worker] job %s: project status: %v", msg.JobID, err)
	}
}

// waitForStartSlot enforces the rolling-window start rate across the pool.
func (w *Worker) waitForStartSlot(ctx context.Context) error {
	for {
		w.mu.Lock()
		now := time.Now()
		cutoff := now.Add(-w.cfg.StartWindow)
		live := w.starts[:0]
		for _, t := range w.starts {
			if t.After(cutoff) {
				live = append(live, t)
			}
		}
		w.starts = live

		if len(w.starts) < w.cfg.StartBurst {
			w.starts = append(w.starts, now)
			w.mu.Unlock()
			return nil
		}
		wait := w.starts[0].Sub(cutoff)
		w.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

var errCancelled = errors.New("render cancelled")

// render performs one attempt: load, validate, render frames, encode,
// publish, complete.
func (w *Worker) render(ctx context.Context, msg *queue.Message) error {
	renderCtx, cancel := context.WithTimeout(ctx, w.cfg.JobTimeout)
	defer cancel()

	// cooperative cancellation: poll the cancel flag and tear the render
	// context down as soon as it flips
	cancelled := make(chan struct{})
	pollCtx, stopPoll := context.WithCancel(renderCtx)
	defer stopPoll()
	go func() {
		ticker := time.NewTicker(w.cfg.CancelPoll)
		defer ticker.Stop()
		for {
			select {
			case <-pollCtx.Done():
				return
			case <-ticker.C:
				requested, err := w.store.IsCancelRequested(pollCtx, msg.JobID)
				if err == nil && requested {
					close(cancelled)
					cancel()
					return
				}
			}
		}
	}()

	err := w.renderAttempt(renderCtx, msg)

	select {
	case <-cancelled:
		return errCancelled
	default:
	}
	if err != nil && renderCtx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("render timed out after %v: %w", w.cfg.JobTimeout, err)
	}
	return err
}

func (w *Worker) renderAttempt(ctx context.Context, msg *queue.Message) error {
	project, err := w.store.GetProject(ctx, msg.ProjectID)
	if err != nil {
		return fmt.Errorf("load project: %w", err)
	}
	job, err := w.store.GetJob(ctx, msg.JobID)
	if err != nil {
		return fmt.Errorf("load job: %w", err)
	}

	if err := project.Timeline.Validate(); err != nil {
		return err
	}
	if err := job.Settings.Validate(); err != nil {
		return err
	}

	theme, err := w.themes.Theme(ctx, project.ThemeID)
	if err != nil {
		return fmt.Errorf("load theme: %w", err)
	}

	fps := project.Settings.FPS
	if fps <= 0 {
		fps = 30
	}
	width, height := job.Settings.Resolution.Dimensions()

	intro := animation.NewIntro(project.IntroOutro, theme)
	intro.Duration = project.IntroOutro.IntroSeconds
	outro := animation.NewOutro(project.IntroOutro, theme, project.PhotoCount())
	outro.Duration = project.IntroOutro.OutroSeconds

	introFrames := secondsToFrames(project.IntroOutro.IntroSeconds, fps)
	bodyFrames := secondsToFrames(project.Timeline.End(), fps)
	outroFrames := secondsToFrames(project.IntroOutro.OutroSeconds, fps)
	totalFrames := introFrames + bodyFrames + outroFrames
	if totalFrames == 0 {
		return &models.ValidationError{Field: "timeline", Message: "nothing to render"}
	}

	assets := w.assets(msg.JobID)
	defer assets.Release()

	if err := w.prefetchPhotos(ctx, assets, &project.Timeline); err != nil {
		return err
	}

	audioPath := ""
	if project.Audio.ResourceID != "" {
		audioPath, err = assets.AudioFile(ctx, msg.JobID, project.Audio.ResourceID)
		if err != nil {
			return fmt.Errorf("fetch audio: %w", err)
		}
		defer os.Remove(audioPath)
	}

	raster := rasterizer.New(assets, rasterizer.Options{Width: width, Height: height, FontPath: w.fontPath})

	// encode to a temp file; the durable URL appears only after publish
	tempPath := filepath.Join(w.cfg.TempDir, fmt.Sprintf("%s.partial.%s", msg.JobID, job.Settings.Format))
	defer os.Remove(tempPath)

	session, err := w.encode(ctx, tempPath, encoder.Settings{
		Width:     width,
		Height:    height,
		FPS:       fps,
		Format:    job.Settings.Format,
		Quality:   job.Settings.Quality,
		AudioPath: audioPath,
	})
	if err != nil {
		return &models.RenderError{Stage: "encode", Err: err}
	}

	collage := photoResources(&project.Timeline)
	introTexts := rasterizer.IntroTexts(project.IntroOutro)
	outroTexts := rasterizer.OutroTexts(project.IntroOutro)

	for frame := 0; frame < totalFrames; frame++ {
		if err := ctx.Err(); err != nil {
			session.Abort()
			return err
		}

		var img *image.RGBA
		var frameErr error
		switch {
		case frame < introFrames:
			offset := float64(frame) / float64(fps)
			img, frameErr = raster.Sequence(ctx, intro.StateAt(offset), introTexts, theme, nil)
		case frame < introFrames+bodyFrames:
			state := resolver.Resolve(frame-introFrames, fps, &project.Timeline, theme)
			img, frameErr = raster.Frame(ctx, state, theme)
		default:
			offset := float64(frame-introFrames-bodyFrames) / float64(fps)
			img, frameErr = raster.Sequence(ctx, outro.StateAt(offset), outroTexts, theme, collage)
		}
		if frameErr != nil {
			session.Abort()
			return frameErr
		}

		if err := session.WriteFrame(img); err != nil {
			session.Abort()
			return &models.RenderError{Stage: "encode", Err: err}
		}

		// a progress write per second of output keeps polling cheap
		if frame%fps == 0 {
			progress := frame * 95 / totalFrames
			if err := w.store.UpdateJobProgress(ctx, msg.JobID, progress); err != nil {
				log.Printf("[Worker] job %s: progress: %v", msg.JobID, err)
			}
		}
	}

	if err := session.Close(); err != nil {
		return &models.RenderError{Stage: "encode", Err: err}
	}

	if err := w.store.UpdateJobProgress(ctx, msg.JobID, 95); err != nil {
		log.Printf("[Worker] job %s: progress: %v", msg.JobID, err)
	}

	outputURL, err := w.publishWithLimit(ctx, msg.JobID, tempPath, job.Settings.Format)
	if err != nil {
		return err
	}

	if err := w.store.CompleteJob(ctx, msg.JobID, outputURL); err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	if err := w.store.SetProjectStatus(ctx, msg.ProjectID, models.ProjectStatusCompleted, outputURL); err != nil {
		log.Printf("[Worker] job %s: project status: %v", msg.JobID, err)
	}
	return nil
}

// prefetchPhotos warms the asset cache in parallel before frames start, so
// a broken photo fails the job fast instead of mid-encode.
func (w *Worker) prefetchPhotos(ctx context.Context, assets AssetSource, timeline *models.Timeline) error {
	seen := make(map[string]bool)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for _, track := range timeline.Tracks {
		if track.Type != models.TrackPhoto && track.Type != models.TrackOverlay {
			continue
		}
		for _, clip := range track.Clips {
			id := clip.ResourceID
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			g.Go(func() error {
				_, err := assets.Image(gctx, id)
				return err
			})
		}
	}
	return g.Wait()
}

func (w *Worker) publishWithLimit(ctx context.Context, jobID uuid.UUID, path string, format models.VideoFormat) (string, error) {
	select {
	case w.uploadSem <- struct{}{}:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	defer func() { <-w.uploadSem }()

	return w.publisher.PublishArtifact(ctx, jobID, path, format)
}

func photoResources(timeline *models.Timeline) []string {
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

func secondsToFrames(seconds float64, fps int) int {
	if seconds <= 0 {
		return 0
	}
	return int(seconds*float64(fps) + 0.5)
}

// recoverOrphans requeues messages a previous run of this consumer left in
// its processing list.
func (w *Worker) recoverOrphans(ctx context.Context) {
	orphans, err := w.queue.Orphans(ctx, w.cfg.Consumer)
	if err != nil {
		log.Printf("[Worker] orphan scan: %v", err)
		return
	}
	for i := range orphans {
		msg := &orphans[i]
		log.Printf("[Worker] requeueing orphaned job %s", msg.JobID)
		if err := w.queue.Requeue(ctx, w.cfg.Consumer, msg); err != nil {
			log.Printf("[Worker] orphan requeue %s: %v", msg.JobID, err)
		}
	}
}

// watchdog fails jobs stuck in processing well past the render deadline,
// covering workers that died without returning their claim.
func (w *Worker) watchdog(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.WatchdogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stale, err := w.store.StaleProcessingJobs(ctx, w.cfg.JobTimeout+w.cfg.WatchdogInterval)
			if err != nil {
				log.Printf("[Watchdog] scan: %v", err)
				continue
			}
			for _, job := range stale {
				log.Printf("[Watchdog] failing stale job %s (started %v)", job.ID, job.StartedAt)
				failed, err := w.store.FailJob(ctx, job.ID, "render timed out")
				if err != nil {
					log.Printf("[Watchdog] fail %s: %v", job.ID, err)
					continue
				}
				if !failed {
					continue
				}
				if err := w.store.SetProjectStatus(ctx, job.ProjectID, models.ProjectStatusFailed, ""); err != nil {
					log.Printf("[Watchdog] project status %s: %v", job.ProjectID, err)
				}
			}
		}
	}
}
