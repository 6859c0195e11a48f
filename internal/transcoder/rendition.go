package transcoder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"media-pipeline/internal/layout"
	"media-pipeline/internal/logging"
)

// Renderer produces scaled MP4 renditions beside the source file.
type Renderer struct {
	tc *Transcoder
}

// RenderArgs builds the ffmpeg arguments for one rendition.
func RenderArgs(source, output string, width int) []string {
	return []string{
		"-y",
		"-i", source,
		"-vf", fmt.Sprintf("scale=%d:-2", width),
		"-c:v", "libx264",
		"-crf", "23",
		"-c:a", "copy",
		"-f", "mp4",
		output,
	}
}

// Render writes <stem>_<width>p.mp4 next to source and returns its path.
// The file appears only after a successful encode.
func (r *Renderer) Render(ctx context.Context, source string, width int) (string, error) {
	if width <= 0 {
		return "", fmt.Errorf("invalid rendition width %d", width)
	}
	if _, err := os.Stat(source); err != nil {
		return "", &IOError{Op: "stat", Path: source, Err: err}
	}

	target := layout.RenditionPath(source, width)
	staging := filepath.Join(filepath.Dir(target), "."+filepath.Base(target)+".partial-"+stagingToken())

	res, err := r.tc.run(ctx, r.tc.cfg.EncodeTimeout, r.tc.cfg.FFmpegPath, RenderArgs(source, staging, width)...)
	if err != nil {
		removeStaging(staging)
		tail := res.StderrTail(stderrTailBytes)
		logging.Error("FFmpeg rendition %dp failed for %s: %v\n%s", width, source, err, tail)
		return "", &EncodeError{Op: "render", Path: source, Stderr: tail, Err: err}
	}

	info, err := os.Stat(staging)
	if err != nil || info.Size() == 0 {
		removeStaging(staging)
		return "", &EncodeError{Op: "render", Path: source, Err: fmt.Errorf("encoder produced no output")}
	}

	if err := os.Rename(staging, target); err != nil {
		removeStaging(staging)
		return "", &IOError{Op: "rename", Path: target, Err: err}
	}

	logging.Debug("Rendered %s", target)
	return target, nil
}
