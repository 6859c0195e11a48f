package pipeline

import (
	"context"
	"sync"
	"time"

	"media-pipeline/internal/database"
	"media-pipeline/internal/filesystem"
	"media-pipeline/internal/layout"
	"media-pipeline/internal/logging"
	"media-pipeline/internal/metrics"
)

// VideoDeleted removes every artifact belonging to v. It runs inside the
// delete transaction, so it never returns an error: each removal is
// independent and failures are only logged and counted.
func (p *Pipeline) VideoDeleted(_ context.Context, v *database.Video) {
	p.reaped.mark(v.ID)
	p.Reap(v)
}

// Reap removes the source, thumbnail, renditions and HLS tree of v and
// returns the number of removals that failed. Missing paths are not
// failures.
func (p *Pipeline) Reap(v *database.Video) int {
	cfg := filesystem.DefaultRetryConfig()
	failed := 0
	remove := func(artifact, path string, all bool) {
		if path == "" {
			return
		}
		var err error
		if all {
			err = filesystem.RemoveAllWithRetry(path, cfg)
		} else {
			err = filesystem.RemoveWithRetry(path, cfg)
		}
		metrics.ObserveRemoval(artifact, err)
		if err != nil {
			failed++
			logging.Error("failed to remove %s of video %d at %s: %v", artifact, v.ID, path, err)
			return
		}
		logging.Debug("removed %s of video %d: %s", artifact, v.ID, path)
	}

	if v.HasSource() {
		source := p.layout.Abs(v.VideoFile)
		remove("source", source, false)
		for _, w := range p.widths {
			remove("rendition", layout.RenditionPath(source, w), false)
		}

		// The thumbnail may exist on disk before the record references it.
		expected := p.layout.ThumbnailPath(source)
		remove("thumbnail", expected, false)
		if ref := p.layout.Abs(v.Thumbnail); ref != "" && ref != expected {
			remove("thumbnail", ref, false)
		}
	} else if v.Thumbnail != "" {
		remove("thumbnail", p.layout.Abs(v.Thumbnail), false)
	}

	remove("hls", p.layout.VideoHLSRoot(v.ID), true)

	if failed > 0 {
		logging.Warn("video %d deleted with %d artifact removals failing", v.ID, failed)
	} else {
		logging.Info("removed artifacts of video %d", v.ID)
	}
	return failed
}

// reapMarkTTL bounds how long a reaped id is treated as deleted without
// asking the store. It only has to outlive the delete transaction.
const reapMarkTTL = time.Minute

// reapMarks remembers recently reaped ids. A job finishing while the delete
// transaction is still open reads the row through another connection and
// would otherwise keep outputs the reaper already missed.
type reapMarks struct {
	mu sync.Mutex
	at map[int64]time.Time
}

func newReapMarks() *reapMarks {
	return &reapMarks{at: make(map[int64]time.Time)}
}

func (m *reapMarks) mark(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for k, t := range m.at {
		if now.Sub(t) > reapMarkTTL {
			delete(m.at, k)
		}
	}
	m.at[id] = now
}

// recent reports whether id was reaped within reapMarkTTL.
func (m *reapMarks) recent(id int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.at[id]
	return ok && time.Since(t) <= reapMarkTTL
}

// clear drops the mark for an id that belongs to a live record again.
func (m *reapMarks) clear(id int64) {
	m.mu.Lock()
	delete(m.at, id)
	m.mu.Unlock()
}
