// Package encoder streams raw RGBA frames into an ffmpeg child process.
// Frames go over stdin so no intermediate frame files touch the disk.
package encoder

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	"io"
	"os/exec"

	"github.com/insushim/iswvideoedit-sub000/internal/models"
)

type Settings struct {
	Width   int
	Height  int
	FPS     int
	Format  models.VideoFormat
	Quality models.RenderQuality

	// AudioPath, when set, is muxed in and the output is cut to the
	// shorter of the two streams.
	AudioPath string
}

// Session is a single running encode. WriteFrame pushes frames in order;
// Close finishes the stream and waits for ffmpeg to flush the container.
type Session struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr bytes.Buffer
	width  int
	height int
	frames int
}

// Start launches ffmpeg writing to outputPath. The context cancels the
// child process, which is how render cancellation tears down an encode.
func Start(ctx context.Context, outputPath string, s Settings) (*Session, error) {
	if s.Width <= 0 || s.Height <= 0 || s.FPS <= 0 {
		return nil, fmt.Errorf("encoder: invalid settings %dx%d@%d", s.Width, s.Height, s.FPS)
	}

	cmd := exec.CommandContext(ctx, "ffmpeg", buildArgs(outputPath, s)...)

	session := &Session{cmd: cmd, width: s.Width, height: s.Height}
	cmd.Stderr = &session.stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("encoder: stdin pipe: %w", err)
	}
	session.stdin = stdin

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("encoder: start ffmpeg: %w", err)
	}
	return session, nil
}

func buildArgs(outputPath string, s Settings) []string {
	args := []string{
		"-y",
		"-f", "rawvideo",
		"-pixel_format", "rgba",
		"-video_size", fmt.Sprintf("%dx%d", s.Width, s.Height),
		"-framerate", fmt.Sprintf("%d", s.FPS),
		"-i", "-",
	}

	if s.AudioPath != "" {
		args = append(args, "-i", s.AudioPath)
	}

	switch s.Format {
	case models.FormatWebM:
		args = append(args, "-c:v", "libvpx-vp9", "-b:v", "0", "-crf", crfFor(s.Quality, 34, 31, 24))
		if s.AudioPath != "" {
			args = append(args, "-c:a", "libopus")
		}
	case models.FormatMOV:
		args = append(args, "-c:v", "libx264", "-crf", crfFor(s.Quality, 32, 23, 18), "-preset", presetFor(s.Quality))
		if s.AudioPath != "" {
			args = append(args, "-c:a", "aac")
		}
		args = append(args, "-f", "mov")
	default: // mp4
		args = append(args, "-c:v", "libx264", "-crf", crfFor(s.Quality, 32, 23, 18), "-preset", presetFor(s.Quality))
		if s.AudioPath != "" {
			args = append(args, "-c:a", "aac")
		}
		args = append(args, "-movflags", "+faststart")
	}

	args = append(args, "-pix_fmt", "yuv420p")
	if s.AudioPath != "" {
		args = append(args, "-shortest")
	}
	return append(args, outputPath)
}

func crfFor(q models.RenderQuality, draft, standard, high int) string {
	switch q {
	case models.QualityDraft:
		return fmt.Sprintf("%d", draft)
	case models.QualityHigh:
		return fmt.Sprintf("%d", high)
	default:
		return fmt.Sprintf("%d", standard)
	}
}

func presetFor(q models.RenderQuality) string {
	switch q {
	case models.QualityDraft:
		return "ultrafast"
	case models.QualityHigh:
		return "slow"
	default:
		return "medium"
	}
}

// WriteFrame streams one frame. The image must match the session size.
func (s *Session) WriteFrame(img *image.RGBA) error {
	b := img.Bounds()
	if b.Dx() != s.width || b.Dy() != s.height {
		return fmt.Errorf("encoder: frame %dx%d does not match session %dx%d", b.Dx(), b.Dy(), s.width, s.height)
	}

	// repack unless the pixel data is already tightly packed at origin
	if img.Stride != b.Dx()*4 || b.Min.X != 0 || b.Min.Y != 0 {
		packed := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(packed, packed.Bounds(), img, b.Min, draw.Src)
		img = packed
	}

	if _, err := s.stdin.Write(img.Pix); err != nil {
		return fmt.Errorf("encoder: write frame %d: %w (ffmpeg: %s)", s.frames, err, s.tail())
	}
	s.frames++
	return nil
}

// Frames reports how many frames have been written so far.
func (s *Session) Frames() int {
	return s.frames
}

// Close ends the input stream and waits for ffmpeg to finish the file.
func (s *Session) Close() error {
	s.stdin.Close()
	if err := s.cmd.Wait(); err != nil {
		return fmt.Errorf("encoder: ffmpeg exited: %w (stderr: %s)", err, s.tail())
	}
	return nil
}

// Abort kills the encode without waiting for a clean container flush. Used
// on cancellation, where the partial output is discarded anyway.
func (s *Session) Abort() {
	s.stdin.Close()
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	_ = s.cmd.Wait()
}

func (s *Session) tail() string {
	const max = 400
	out := s.stderr.Bytes()
	if len(out) > max {
		out = out[len(out)-max:]
	}
	return string(bytes.TrimSpace(out))
}
