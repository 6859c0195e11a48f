package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"time"

	"github.com/disintegration/imaging"
	"golang.org/x/image/bmp"

	"media-pipeline/internal/database"
	"media-pipeline/internal/filesystem"
	"media-pipeline/internal/layout"
	"media-pipeline/internal/logging"
	"media-pipeline/internal/mediaexec"
)

// FrameOffset is where the poster frame is taken from.
const FrameOffset = "00:00:01"

// JPEGQuality is used for every thumbnail.
const JPEGQuality = 85

// ErrNoSource is returned for a record without an uploaded file.
var ErrNoSource = errors.New("video has no source file")

// VideoStore is the part of the catalog the Thumbnailer needs.
type VideoStore interface {
	GetVideo(ctx context.Context, id int64) (*database.Video, error)
	SetThumbnail(ctx context.Context, id int64, ref string) error
}

// ThumbnailConfig configures a Thumbnailer.
type ThumbnailConfig struct {
	FFmpegPath string
	Timeout    time.Duration
	// MaxWidth downscales wider frames; 0 keeps the source width.
	MaxWidth int
	Observe  func(tool, status string, elapsed time.Duration)
}

// Thumbnailer extracts and stores poster frames.
type Thumbnailer struct {
	layout layout.Layout
	store  VideoStore
	runner mediaexec.Runner
	cfg    ThumbnailConfig
}

// NewThumbnailer creates a Thumbnailer writing below l.Root.
func NewThumbnailer(l layout.Layout, store VideoStore, runner mediaexec.Runner, cfg ThumbnailConfig) *Thumbnailer {
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	if runner == nil {
		runner = mediaexec.NewCommandRunner()
	}
	return &Thumbnailer{layout: l, store: store, runner: runner, cfg: cfg}
}

// Generate creates the thumbnail for video id and returns its path. On any
// failure it returns "" and leaves the record's thumbnail untouched.
func (t *Thumbnailer) Generate(ctx context.Context, id int64) (string, error) {
	v, err := t.store.GetVideo(ctx, id)
	if err != nil {
		return "", fmt.Errorf("load video %d: %w", id, err)
	}
	if !v.HasSource() {
		return "", fmt.Errorf("video %d: %w", id, ErrNoSource)
	}

	source := t.layout.Abs(v.VideoFile)
	if _, err := filesystem.StatWithRetry(source, filesystem.DefaultRetryConfig()); err != nil {
		return "", fmt.Errorf("video %d source: %w", id, err)
	}

	img, err := t.extractFrame(ctx, source)
	if err != nil {
		return "", err
	}

	if t.cfg.MaxWidth > 0 && img.Bounds().Dx() > t.cfg.MaxWidth {
		img = imaging.Resize(img, t.cfg.MaxWidth, 0, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return "", fmt.Errorf("failed to encode thumbnail: %w", err)
	}

	target := t.layout.ThumbnailPath(source)
	if err := writeFileAtomic(target, buf.Bytes()); err != nil {
		return "", err
	}

	if err := t.store.SetThumbnail(ctx, id, t.layout.Rel(target)); err != nil {
		// The record went away while we were extracting.
		if errors.Is(err, database.ErrNotFound) {
			if rmErr := filesystem.RemoveWithRetry(target, filesystem.DefaultRetryConfig()); rmErr != nil {
				logging.Warn("failed to remove orphaned thumbnail %s: %v", target, rmErr)
			}
		}
		return "", fmt.Errorf("save thumbnail for video %d: %w", id, err)
	}

	logging.Debug("Thumbnail written for video %d: %s", id, target)
	return target, nil
}

// extractFrame grabs the frame at FrameOffset, falling back to the first
// frame for clips shorter than the offset.
func (t *Thumbnailer) extractFrame(ctx context.Context, source string) (image.Image, error) {
	res, err := t.run(ctx, frameArgs(source, true))
	if err != nil || len(res.Stdout) == 0 {
		logging.Debug("FFmpeg frame at %s failed for %s: %v, stderr: %s", FrameOffset, source, err, res.StderrTail(512))
		res, err = t.run(ctx, frameArgs(source, false))
		if err != nil {
			return nil, fmt.Errorf("ffmpeg failed: %w, stderr: %s", err, res.StderrTail(2048))
		}
	}

	if len(res.Stdout) == 0 {
		return nil, fmt.Errorf("ffmpeg produced no output for %s", source)
	}

	img, err := bmp.Decode(bytes.NewReader(res.Stdout))
	if err != nil {
		return nil, fmt.Errorf("failed to decode ffmpeg output: %w", err)
	}
	return img, nil
}

func (t *Thumbnailer) run(ctx context.Context, args []string) (mediaexec.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()

	start := time.Now()
	res, err := t.runner.Run(ctx, t.cfg.FFmpegPath, args...)
	if t.cfg.Observe != nil {
		status := "success"
		if err != nil {
			status = "error"
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				status = "timeout"
			}
		}
		t.cfg.Observe(filepath.Base(t.cfg.FFmpegPath), status, time.Since(start))
	}
	return res, err
}

// frameArgs builds the ffmpeg arguments that pipe one BMP frame to stdout.
func frameArgs(source string, seek bool) []string {
	args := []string{"-v", "error"}
	if seek {
		args = append(args, "-ss", FrameOffset)
	}
	return append(args,
		"-i", source,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-c:v", "bmp",
		"-",
	)
}

// writeFileAtomic writes data to a temp file beside path and renames it
// into place.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close %s: %w", tmpName, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		logging.Debug("chmod %s: %v", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to publish %s: %w", path, err)
	}
	return nil
}
