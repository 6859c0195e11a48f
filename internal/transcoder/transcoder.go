package transcoder

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"media-pipeline/internal/logging"
	"media-pipeline/internal/mediaexec"
)

// Default tool names and limits.
const (
	DefaultFFmpegPath    = "ffmpeg"
	DefaultFFprobePath   = "ffprobe"
	DefaultProbeTimeout  = 30 * time.Second
	DefaultEncodeTimeout = 2 * time.Hour

	// stderrTailBytes limits how much encoder output is kept on errors.
	stderrTailBytes = 2048
)

// CallObserver is notified after every external tool invocation.
type CallObserver func(tool, status string, elapsed time.Duration)

// Config holds the tool paths and per-call time limits.
type Config struct {
	FFmpegPath    string
	FFprobePath   string
	ProbeTimeout  time.Duration
	EncodeTimeout time.Duration
	Observe       CallObserver
}

// Transcoder is the shared context for Probe, Renderer and Packager.
type Transcoder struct {
	cfg    Config
	runner mediaexec.Runner
}

// New creates a Transcoder. Zero config fields fall back to defaults; a nil
// runner uses a mediaexec.CommandRunner.
func New(cfg Config, runner mediaexec.Runner) *Transcoder {
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = DefaultFFmpegPath
	}
	if cfg.FFprobePath == "" {
		cfg.FFprobePath = DefaultFFprobePath
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = DefaultProbeTimeout
	}
	if cfg.EncodeTimeout <= 0 {
		cfg.EncodeTimeout = DefaultEncodeTimeout
	}
	if runner == nil {
		runner = mediaexec.NewCommandRunner()
	}
	return &Transcoder{cfg: cfg, runner: runner}
}

// Config returns the effective configuration.
func (t *Transcoder) Config() Config {
	return t.cfg
}

// Probe returns a duration prober bound to this Transcoder.
func (t *Transcoder) Probe() *Probe {
	return &Probe{tc: t}
}

// Renderer returns a rendition encoder bound to this Transcoder.
func (t *Transcoder) Renderer() *Renderer {
	return &Renderer{tc: t}
}

// Packager returns an HLS packager bound to this Transcoder.
func (t *Transcoder) Packager() *Packager {
	return &Packager{tc: t, probe: t.Probe()}
}

// Cleanup stops all active encoder processes.
func (t *Transcoder) Cleanup() {
	if cr, ok := t.runner.(*mediaexec.CommandRunner); ok {
		cr.KillAll()
	}
}

// run executes tool under its own deadline and reports the outcome.
func (t *Transcoder) run(ctx context.Context, timeout time.Duration, tool string, args ...string) (mediaexec.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	res, err := t.runner.Run(ctx, tool, args...)

	status := "success"
	if err != nil {
		status = "error"
		if ctx.Err() == context.DeadlineExceeded {
			status = "timeout"
		}
	}
	if t.cfg.Observe != nil {
		t.cfg.Observe(filepath.Base(tool), status, time.Since(start))
	}
	return res, err
}

// stagingToken returns a short unique suffix for staging paths.
func stagingToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// removeStaging deletes a staging path, logging rather than returning errors.
func removeStaging(path string) {
	if err := os.RemoveAll(path); err != nil {
		logging.Warn("failed to remove staging path %s: %v", path, err)
	}
}
