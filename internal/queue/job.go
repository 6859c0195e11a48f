package queue

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/crypto/blake2b"
)

// Kind identifies the operation a job performs.
type Kind string

const (
	KindRender    Kind = "render"
	KindThumbnail Kind = "thumbnail"
	KindPackage   Kind = "package"
)

// Job is one unit of pipeline work.
type Job struct {
	ID         string    `json:"id"`
	Kind       Kind      `json:"kind"`
	VideoID    int64     `json:"videoId"`
	Width      int       `json:"width,omitempty"`
	Resolution string    `json:"resolution,omitempty"`
	Source     string    `json:"source,omitempty"`
	OutputDir  string    `json:"outputDir,omitempty"`
	Attempt    int       `json:"attempt"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
}

// Param is the kind-specific part of the job identity.
func (j Job) Param() string {
	switch j.Kind {
	case KindRender:
		return strconv.Itoa(j.Width)
	case KindPackage:
		return j.Resolution
	default:
		return ""
	}
}

// Key is the idempotency key: kind:video:param.
func (j Job) Key() string {
	return fmt.Sprintf("%s:%d:%s", j.Kind, j.VideoID, j.Param())
}

// Digest is a short stable token derived from Key, safe for file names and
// message attributes.
func (j Job) Digest() string {
	sum := blake2b.Sum256([]byte(j.Key()))
	return hex.EncodeToString(sum[:8])
}

// Validate checks that the job carries what its kind needs.
func (j Job) Validate() error {
	if j.VideoID <= 0 {
		return fmt.Errorf("job %s: invalid video id %d", j.Kind, j.VideoID)
	}
	switch j.Kind {
	case KindRender:
		if j.Width <= 0 || j.Source == "" {
			return fmt.Errorf("render job for video %d needs width and source", j.VideoID)
		}
	case KindPackage:
		if j.Resolution == "" || j.Source == "" || j.OutputDir == "" {
			return fmt.Errorf("package job for video %d needs resolution, source and output dir", j.VideoID)
		}
	case KindThumbnail:
	default:
		return fmt.Errorf("unknown job kind %q", j.Kind)
	}
	return nil
}

// String is used in log lines.
func (j Job) String() string {
	return fmt.Sprintf("%s (attempt %d)", j.Key(), j.Attempt)
}
