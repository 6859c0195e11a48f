package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"media-pipeline/internal/database"
	"media-pipeline/internal/logging"
	"media-pipeline/internal/media"
	"media-pipeline/internal/metrics"
	"media-pipeline/internal/queue"
)

// VideoCreated enqueues the processing jobs for a new record. Enqueue
// failures are logged and never reach the caller.
func (p *Pipeline) VideoCreated(ctx context.Context, v *database.Video) {
	p.reaped.clear(v.ID)
	if !v.HasSource() {
		logging.Debug("video %d has no source file, nothing to dispatch", v.ID)
		return
	}
	n, err := p.Dispatch(ctx, v)
	if err != nil {
		logging.Error("dispatch for video %d enqueued %d jobs: %v", v.ID, n, err)
		return
	}
	logging.Info("dispatched %d jobs for video %d", n, v.ID)
}

// Jobs returns the jobs for v in enqueue order: renditions, thumbnail, then
// HLS packages. A record without a source yields none.
func (p *Pipeline) Jobs(v *database.Video) []queue.Job {
	if !v.HasSource() {
		return nil
	}
	source := p.layout.Abs(v.VideoFile)

	jobs := make([]queue.Job, 0, 2*len(p.widths)+1)
	for _, w := range p.widths {
		jobs = append(jobs, queue.Job{Kind: queue.KindRender, VideoID: v.ID, Width: w, Source: source})
	}
	jobs = append(jobs, queue.Job{Kind: queue.KindThumbnail, VideoID: v.ID, Source: source})
	for _, w := range p.widths {
		jobs = append(jobs, queue.Job{
			Kind:       queue.KindPackage,
			VideoID:    v.ID,
			Width:      w,
			Resolution: strconv.Itoa(w),
			Source:     source,
			OutputDir:  p.layout.HLSDir(v.ID, w),
		})
	}
	return jobs
}

// Dispatch enqueues every job for v and returns how many were accepted.
// Jobs already pending are skipped without error.
func (p *Pipeline) Dispatch(ctx context.Context, v *database.Video) (int, error) {
	var errs []error
	n := 0
	for _, job := range p.Jobs(v) {
		err := p.queue.Enqueue(ctx, job)
		switch {
		case err == nil:
			n++
			metrics.JobsEnqueuedTotal.WithLabelValues(string(job.Kind), "success").Inc()
		case errors.Is(err, queue.ErrDuplicate):
			metrics.JobsEnqueuedTotal.WithLabelValues(string(job.Kind), "duplicate").Inc()
			logging.Debug("job %s already pending", job.Key())
		default:
			metrics.JobsEnqueuedTotal.WithLabelValues(string(job.Kind), "error").Inc()
			errs = append(errs, fmt.Errorf("enqueue %s: %w", job.Key(), err))
		}
	}
	return n, errors.Join(errs...)
}

// Reprocess re-dispatches every job for an existing record.
func (p *Pipeline) Reprocess(ctx context.Context, id int64) (int, error) {
	v, err := p.store.GetVideo(ctx, id)
	if err != nil {
		return 0, err
	}
	if !v.HasSource() {
		return 0, fmt.Errorf("video %d: %w", id, media.ErrNoSource)
	}
	return p.Dispatch(ctx, v)
}
