package transcoder

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Probe queries media duration with ffprobe.
type Probe struct {
	tc *Transcoder
}

// Duration returns the duration of the media file at path in seconds.
func (p *Probe) Duration(ctx context.Context, path string) (float64, error) {
	res, err := p.tc.run(ctx, p.tc.cfg.ProbeTimeout, p.tc.cfg.FFprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err != nil {
		return 0, &ProbeError{Path: path, Stderr: res.StderrTail(stderrTailBytes), Err: err}
	}

	d, err := ParseDuration(string(res.Stdout))
	if err != nil {
		return 0, &ProbeError{Path: path, Err: err}
	}
	return d, nil
}

// ParseDuration parses ffprobe's bare numeric duration output.
func ParseDuration(out string) (float64, error) {
	s := strings.TrimSpace(out)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	if s == "" {
		return 0, fmt.Errorf("empty duration output")
	}

	d, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("unparsable duration %q", s)
	}
	if math.IsNaN(d) || math.IsInf(d, 0) || d < 0 {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return d, nil
}
