package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"media-pipeline/internal/database"
	"media-pipeline/internal/filesystem"
	"media-pipeline/internal/logging"
	"media-pipeline/internal/media"
	"media-pipeline/internal/metrics"
	"media-pipeline/internal/queue"
)

// Handle executes one job. Jobs for the same key never run concurrently in
// this process. Errors that retrying cannot fix are marked permanent.
func (p *Pipeline) Handle(ctx context.Context, job queue.Job) error {
	unlock := p.locks.Lock(job.Key())
	defer unlock()

	metrics.JobsInFlight.Inc()
	defer metrics.JobsInFlight.Dec()

	log := logging.Scoped("job", job.Kind, "video", job.VideoID, "param", job.Param(), "attempt", job.Attempt)

	v, err := p.store.GetVideo(ctx, job.VideoID)
	if errors.Is(err, database.ErrNotFound) {
		log.Warn("record no longer exists, dropping job")
		return queue.Permanent(err)
	}
	if err != nil {
		return fmt.Errorf("load video %d: %w", job.VideoID, err)
	}
	if !v.HasSource() {
		return queue.Permanent(fmt.Errorf("video %d: %w", v.ID, media.ErrNoSource))
	}
	source := p.layout.Abs(v.VideoFile)

	var outputs []string
	switch job.Kind {
	case queue.KindRender:
		var out string
		out, err = p.renderer.Render(ctx, source, job.Width)
		outputs = append(outputs, out)
	case queue.KindThumbnail:
		// Generate cleans up after itself when the record disappears.
		_, err = p.thumbnailer.Generate(ctx, job.VideoID)
	case queue.KindPackage:
		dir := p.layout.HLSDir(job.VideoID, job.Width)
		if filepath.Clean(job.OutputDir) != dir {
			return queue.Permanent(fmt.Errorf("package job output %q does not match %q", job.OutputDir, dir))
		}
		_, err = p.packager.Package(ctx, source, dir, job.Resolution)
		outputs = append(outputs, dir)
	default:
		return queue.Permanent(fmt.Errorf("unknown job kind %q", job.Kind))
	}

	if err != nil {
		log.Error("failed: %v", err)
		if isPermanent(err) {
			return queue.Permanent(err)
		}
		return err
	}

	// The record may have been deleted while the encoder ran; the reaper
	// could not see outputs that did not exist yet.
	if p.recordGone(ctx, job.VideoID) {
		log.Warn("record deleted during job, removing outputs")
		p.removeOutputs(outputs)
		return queue.Permanent(fmt.Errorf("video %d deleted during job: %w", job.VideoID, database.ErrNotFound))
	}

	log.Info("completed")
	return nil
}

// recordGone reports whether the record of id was deleted, including a
// delete whose transaction has not committed yet.
func (p *Pipeline) recordGone(ctx context.Context, id int64) bool {
	if p.reaped.recent(id) {
		return true
	}
	_, err := p.store.GetVideo(ctx, id)
	return errors.Is(err, database.ErrNotFound)
}

func (p *Pipeline) removeOutputs(paths []string) {
	cfg := filesystem.DefaultRetryConfig()
	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := filesystem.RemoveAllWithRetry(path, cfg); err != nil {
			logging.Warn("failed to remove orphaned output %s: %v", path, err)
		}
	}
	// Drop the per-video directory once its last package is gone.
	for _, path := range paths {
		parent := filepath.Dir(path)
		if filepath.Dir(parent) == p.layout.VideosDir() {
			_ = os.Remove(parent)
		}
	}
}

// isPermanent reports errors that a retry would hit again.
func isPermanent(err error) bool {
	switch {
	case errors.Is(err, database.ErrNotFound),
		errors.Is(err, media.ErrNoSource),
		errors.Is(err, os.ErrNotExist):
		return true
	}
	return queue.IsPermanent(err)
}

// keyedMutex serializes work per job key.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyLock)}
}

// Lock acquires the lock for key and returns its release func.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
