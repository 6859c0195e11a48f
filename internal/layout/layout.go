// Package layout defines the on-disk conventions shared by the pipeline and
// the delivery layer. Every path here is a pure function of the media root,
// a video id, a source filename and a width, so jobs can locate their
// outputs without any shared state.
package layout

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	// VideosDirName holds uploaded sources, renditions and per-video HLS trees.
	VideosDirName = "videos"
	// ImagesDirName holds thumbnails.
	ImagesDirName = "images"
	// ManifestName is the playlist written into every resolution directory.
	ManifestName = "index.m3u8"
	// SegmentPattern is the printf pattern handed to the encoder for segments.
	SegmentPattern = "segment_%03d.ts"
)

// Layout resolves artifact paths under a media root.
type Layout struct {
	Root string
}

// New returns a Layout rooted at root.
func New(root string) Layout {
	return Layout{Root: root}
}

// VideosDir returns <root>/videos.
func (l Layout) VideosDir() string {
	return filepath.Join(l.Root, VideosDirName)
}

// ImagesDir returns <root>/images.
func (l Layout) ImagesDir() string {
	return filepath.Join(l.Root, ImagesDirName)
}

// SourcePath returns <root>/videos/<name> for an uploaded file name.
func (l Layout) SourcePath(name string) string {
	return filepath.Join(l.VideosDir(), filepath.Base(name))
}

// Stem returns the file name without directory and extension.
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// RenditionPath returns <dir-of-source>/<stem>_<width>p.mp4.
func RenditionPath(source string, width int) string {
	return filepath.Join(filepath.Dir(source), fmt.Sprintf("%s_%dp.mp4", Stem(source), width))
}

// ThumbnailPath returns <root>/images/<stem>_thumb.jpg for a source file.
func (l Layout) ThumbnailPath(source string) string {
	return filepath.Join(l.ImagesDir(), Stem(source)+"_thumb.jpg")
}

// VideoHLSRoot returns <root>/videos/<id>, the directory holding every HLS
// package of one video.
func (l Layout) VideoHLSRoot(videoID int64) string {
	return filepath.Join(l.VideosDir(), strconv.FormatInt(videoID, 10))
}

// ResolutionDirName returns "<width>p".
func ResolutionDirName(width int) string {
	return strconv.Itoa(width) + "p"
}

// HLSDir returns <root>/videos/<id>/<width>p.
func (l Layout) HLSDir(videoID int64, width int) string {
	return filepath.Join(l.VideoHLSRoot(videoID), ResolutionDirName(width))
}

// ManifestPath returns <root>/videos/<id>/<width>p/index.m3u8.
func (l Layout) ManifestPath(videoID int64, width int) string {
	return filepath.Join(l.HLSDir(videoID, width), ManifestName)
}

// Rel converts an absolute artifact path into a reference relative to the
// media root, using forward slashes. Paths outside the root are returned
// unchanged.
func (l Layout) Rel(path string) string {
	rel, err := filepath.Rel(l.Root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return filepath.ToSlash(rel)
}

// Abs resolves a stored reference back to an absolute path. Absolute
// references are returned unchanged.
func (l Layout) Abs(ref string) string {
	if ref == "" {
		return ""
	}
	if filepath.IsAbs(ref) {
		return ref
	}
	return filepath.Join(l.Root, filepath.FromSlash(ref))
}
