package transcoder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"media-pipeline/internal/layout"
	"media-pipeline/internal/logging"
)

// Segment duration policy, in seconds.
const (
	ShortClipThreshold   = 10.0
	ShortSegmentDuration = 2
	LongSegmentDuration  = 10
)

// resolutionSizes maps resolution labels to output frame sizes. Anything
// not listed falls back to 640x360.
var resolutionSizes = map[string][2]int{
	"480":  {854, 480},
	"720":  {1280, 720},
	"1080": {1920, 1080},
}

// ResolutionSize returns the frame width and height for a resolution label
// such as "720" or "720p".
func ResolutionSize(label string) (width, height int) {
	key := strings.TrimSuffix(strings.TrimSpace(label), "p")
	if size, ok := resolutionSizes[key]; ok {
		return size[0], size[1]
	}
	return 640, 360
}

// SegmentDuration picks the HLS target segment length for a source of the
// given duration.
func SegmentDuration(seconds float64) int {
	if seconds <= ShortClipThreshold {
		return ShortSegmentDuration
	}
	return LongSegmentDuration
}

// PackageArgs builds the ffmpeg arguments that write an HLS package into dir.
func PackageArgs(source, dir string, width, height, segmentSeconds int) []string {
	return []string{
		"-y",
		"-i", source,
		"-vf", fmt.Sprintf("scale=%d:%d", width, height),
		"-c:v", "libx264",
		"-preset", "fast",
		"-crf", "20",
		"-c:a", "aac",
		"-b:a", "128k",
		"-f", "hls",
		"-hls_time", strconv.Itoa(segmentSeconds),
		"-hls_playlist_type", "vod",
		"-hls_segment_filename", filepath.Join(dir, layout.SegmentPattern),
		filepath.Join(dir, layout.ManifestName),
	}
}

// Packager writes HLS packages for one source at one resolution.
type Packager struct {
	tc    *Transcoder
	probe *Probe
}

// Package encodes source into outputDir as an HLS VOD playlist and returns
// the manifest path. The package is built in a sibling staging directory,
// validated, and swapped into place; a failed run leaves any previous
// package untouched.
func (p *Packager) Package(ctx context.Context, source, outputDir, resolution string) (string, error) {
	if _, err := os.Stat(source); err != nil {
		return "", &IOError{Op: "stat", Path: source, Err: err}
	}

	parent := filepath.Dir(outputDir)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return "", &IOError{Op: "mkdir", Path: parent, Err: err}
	}

	duration, err := p.probe.Duration(ctx, source)
	if err != nil {
		return "", err
	}

	width, height := ResolutionSize(resolution)
	segment := SegmentDuration(duration)

	token := stagingToken()
	staging := outputDir + ".partial-" + token
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return "", &IOError{Op: "mkdir", Path: staging, Err: err}
	}

	logging.Debug("Packaging %s at %dx%d (hls_time=%d, duration=%.2fs)", source, width, height, segment, duration)

	res, err := p.tc.run(ctx, p.tc.cfg.EncodeTimeout, p.tc.cfg.FFmpegPath, PackageArgs(source, staging, width, height, segment)...)
	if err != nil {
		removeStaging(staging)
		tail := res.StderrTail(stderrTailBytes)
		logging.Error("FFmpeg HLS packaging failed for %s (%s): %v\n%s", source, resolution, err, tail)
		return "", &EncodeError{Op: "package", Path: source, Stderr: tail, Err: err}
	}

	if _, err := ValidatePackage(staging); err != nil {
		removeStaging(staging)
		return "", &EncodeError{Op: "package", Path: source, Err: err}
	}

	if err := swapDir(staging, outputDir, token); err != nil {
		removeStaging(staging)
		return "", &IOError{Op: "publish", Path: outputDir, Err: err}
	}

	return filepath.Join(outputDir, layout.ManifestName), nil
}

// swapDir replaces dst with src. An existing dst is moved aside first and
// restored if the final rename fails.
func swapDir(src, dst, token string) error {
	old := ""
	if _, err := os.Stat(dst); err == nil {
		old = dst + ".old-" + token
		if err := os.Rename(dst, old); err != nil {
			return err
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}

	if err := os.Rename(src, dst); err != nil {
		if old != "" {
			if rerr := os.Rename(old, dst); rerr != nil {
				logging.Error("failed to restore previous package %s: %v", dst, rerr)
			}
		}
		return err
	}

	if old != "" {
		removeStaging(old)
	}
	return nil
}

// ParseManifest returns the segment URIs of an HLS playlist in order.
func ParseManifest(r io.Reader) ([]string, error) {
	sc := bufio.NewScanner(r)
	first := true
	var segments []string

	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if first {
			if line != "#EXTM3U" {
				return nil, fmt.Errorf("%w: missing #EXTM3U header", ErrInvalidManifest)
			}
			first = false
			continue
		}
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		segments = append(segments, line)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if first {
		return nil, fmt.Errorf("%w: empty playlist", ErrInvalidManifest)
	}
	return segments, nil
}

// SegmentIndex extracts N from a segment_NNN.ts name.
func SegmentIndex(name string) (int, bool) {
	digits, ok := strings.CutPrefix(name, "segment_")
	if !ok {
		return 0, false
	}
	digits, ok = strings.CutSuffix(digits, ".ts")
	if !ok || len(digits) < 3 {
		return 0, false
	}
	for _, c := range digits {
		if c < '0' || c > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(digits)
	if err != nil || fmt.Sprintf(layout.SegmentPattern, n) != name {
		return 0, false
	}
	return n, true
}

// ValidatePackage checks the manifest in dir: it must carry the #EXTM3U
// header and list at least one segment, segments must run
// segment_000, segment_001, ... in order, and each must exist and be
// non-empty. It returns the segment names.
func ValidatePackage(dir string) ([]string, error) {
	f, err := os.Open(filepath.Join(dir, layout.ManifestName))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			logging.Warn("failed to close manifest in %s: %v", dir, cerr)
		}
	}()

	segments, err := ParseManifest(f)
	if err != nil {
		return nil, err
	}
	if len(segments) == 0 {
		return nil, fmt.Errorf("%w: no segments", ErrInvalidManifest)
	}

	for i, name := range segments {
		idx, ok := SegmentIndex(name)
		if !ok || idx != i {
			return nil, fmt.Errorf("%w: unexpected segment %q at position %d", ErrInvalidManifest, name, i)
		}
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("%w: segment %s: %v", ErrInvalidManifest, name, err)
		}
		if info.Size() == 0 {
			return nil, fmt.Errorf("%w: segment %s is empty", ErrInvalidManifest, name)
		}
	}
	return segments, nil
}
