package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"media-pipeline/internal/database"
	"media-pipeline/internal/layout"
	"media-pipeline/internal/queue"
)

// recordingQueue captures enqueued jobs without running them.
type recordingQueue struct {
	mu   sync.Mutex
	jobs []queue.Job
	err  error
}

func (q *recordingQueue) Enqueue(_ context.Context, job queue.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *recordingQueue) Start(context.Context, queue.Handler) error { return nil }
func (q *recordingQueue) Close() error                              { return nil }

func (q *recordingQueue) snapshot() []queue.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]queue.Job(nil), q.jobs...)
}

type fakeRenderer struct {
	mu      sync.Mutex
	calls   []int
	err     error
	started chan struct{}
	release chan struct{}
	active  atomic.Int32
	maxSeen atomic.Int32
}

func (r *fakeRenderer) Render(_ context.Context, source string, width int) (string, error) {
	n := r.active.Add(1)
	defer r.active.Add(-1)
	for {
		m := r.maxSeen.Load()
		if n <= m || r.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}

	r.mu.Lock()
	r.calls = append(r.calls, width)
	r.mu.Unlock()

	if r.started != nil {
		r.started <- struct{}{}
	}
	if r.release != nil {
		<-r.release
	}
	if r.err != nil {
		return "", r.err
	}
	out := layout.RenditionPath(source, width)
	return out, os.WriteFile(out, []byte("mp4"), 0o644)
}

type fakePackager struct {
	err error
}

func (p *fakePackager) Package(_ context.Context, source, outputDir, resolution string) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	if _, err := os.Stat(source); err != nil {
		return "", err
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(outputDir, "segment_000.ts"), []byte("ts"), 0o644); err != nil {
		return "", err
	}
	manifest := filepath.Join(outputDir, layout.ManifestName)
	body := fmt.Sprintf("#EXTM3U\n# resolution %s\n#EXTINF:2.0,\nsegment_000.ts\n#EXT-X-ENDLIST\n", resolution)
	return manifest, os.WriteFile(manifest, []byte(body), 0o644)
}

type fakeThumbnailer struct {
	layout layout.Layout
	db     *database.Database
}

func (f *fakeThumbnailer) Generate(ctx context.Context, id int64) (string, error) {
	v, err := f.db.GetVideo(ctx, id)
	if err != nil {
		return "", err
	}
	target := f.layout.ThumbnailPath(f.layout.Abs(v.VideoFile))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(target, []byte("jpeg"), 0o644); err != nil {
		return "", err
	}
	return target, f.db.SetThumbnail(ctx, id, f.layout.Rel(target))
}

type testEnv struct {
	root     string
	layout   layout.Layout
	db       *database.Database
	renderer *fakeRenderer
	packager *fakePackager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	root := t.TempDir()
	l := layout.New(root)
	for _, dir := range []string{l.VideosDir(), l.ImagesDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
	}

	db, err := database.New(context.Background(), filepath.Join(t.TempDir(), "pipeline.db"))
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	return &testEnv{root: root, layout: l, db: db, renderer: &fakeRenderer{}, packager: &fakePackager{}}
}

func (e *testEnv) pipeline(q queue.Queue) *Pipeline {
	p := New(Config{
		Layout:      e.layout,
		Store:       e.db,
		Queue:       q,
		Renderer:    e.renderer,
		Packager:    e.packager,
		Thumbnailer: &fakeThumbnailer{layout: e.layout, db: e.db},
	})
	e.db.Subscribe(p)
	return p
}

// createVideo writes a source file and inserts a record for it.
func (e *testEnv) createVideo(t *testing.T, name string) *database.Video {
	t.Helper()
	source := e.layout.SourcePath(name)
	if err := os.WriteFile(source, []byte("source video"), 0o644); err != nil {
		t.Fatal(err)
	}
	v := &database.Video{Title: name, VideoFile: e.layout.Rel(source)}
	if err := e.db.CreateVideo(context.Background(), v); err != nil {
		t.Fatalf("CreateVideo() error = %v", err)
	}
	return v
}

func TestJobsOrder(t *testing.T) {
	env := newTestEnv(t)
	p := New(Config{Layout: env.layout})

	v := &database.Video{ID: 7, VideoFile: "videos/clip.mp4"}
	jobs := p.Jobs(v)
	if len(jobs) != 11 {
		t.Fatalf("Expected 11 jobs, got %d", len(jobs))
	}

	source := filepath.Join(env.root, "videos", "clip.mp4")
	for i, w := range Ladder {
		r := jobs[i]
		if r.Kind != queue.KindRender || r.Width != w || r.Source != source {
			t.Errorf("Job %d: expected render %d of %s, got %+v", i, w, source, r)
		}

		pk := jobs[6+i]
		wantDir := filepath.Join(env.root, "videos", "7", fmt.Sprintf("%dp", w))
		if pk.Kind != queue.KindPackage || pk.Resolution != fmt.Sprint(w) || pk.OutputDir != wantDir {
			t.Errorf("Job %d: expected package %d into %s, got %+v", 6+i, w, wantDir, pk)
		}
		if pk.Source != source {
			t.Errorf("Expected package job to read the original source, got %s", pk.Source)
		}
	}
	if jobs[5].Kind != queue.KindThumbnail || jobs[5].VideoID != 7 {
		t.Errorf("Expected thumbnail job at index 5, got %+v", jobs[5])
	}
	for _, j := range jobs {
		if err := j.Validate(); err != nil {
			t.Errorf("Expected valid job, got %v", err)
		}
	}
}

func TestJobsWithoutSource(t *testing.T) {
	p := New(Config{Layout: layout.New(t.TempDir())})
	if jobs := p.Jobs(&database.Video{ID: 1}); len(jobs) != 0 {
		t.Errorf("Expected no jobs, got %d", len(jobs))
	}
}

func TestVideoCreatedDispatches(t *testing.T) {
	env := newTestEnv(t)
	q := &recordingQueue{}
	env.pipeline(q)

	v := env.createVideo(t, "clip.mp4")

	jobs := q.snapshot()
	if len(jobs) != 11 {
		t.Fatalf("Expected 11 jobs enqueued, got %d", len(jobs))
	}
	for _, j := range jobs {
		if j.VideoID != v.ID {
			t.Errorf("Expected video %d, got %d", v.ID, j.VideoID)
		}
	}
}

func TestVideoCreatedWithoutSourceEnqueuesNothing(t *testing.T) {
	env := newTestEnv(t)
	q := &recordingQueue{}
	env.pipeline(q)

	if err := env.db.CreateVideo(context.Background(), &database.Video{Title: "metadata only"}); err != nil {
		t.Fatal(err)
	}
	if n := len(q.snapshot()); n != 0 {
		t.Errorf("Expected no jobs, got %d", n)
	}
}

func TestEnqueueFailureDoesNotFailCreate(t *testing.T) {
	env := newTestEnv(t)
	env.pipeline(&recordingQueue{err: errors.New("queue unavailable")})

	v := env.createVideo(t, "clip.mp4")
	if _, err := env.db.GetVideo(context.Background(), v.ID); err != nil {
		t.Errorf("Expected record to exist, got %v", err)
	}
}

func TestDispatchSkipsDuplicates(t *testing.T) {
	env := newTestEnv(t)
	q := queue.NewMemoryQueue(queue.Options{}, 0)
	defer q.Close()
	p := env.pipeline(q)

	v := env.createVideo(t, "clip.mp4")

	n, err := p.Reprocess(context.Background(), v.ID)
	if err != nil {
		t.Fatalf("Reprocess() error = %v", err)
	}
	if n != 0 {
		t.Errorf("Expected pending jobs to be skipped, got %d enqueued", n)
	}
}

func TestReprocessErrors(t *testing.T) {
	env := newTestEnv(t)
	p := env.pipeline(&recordingQueue{})

	if _, err := p.Reprocess(context.Background(), 999); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	v := &database.Video{Title: "no file"}
	if err := env.db.CreateVideo(context.Background(), v); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Reprocess(context.Background(), v.ID); err == nil {
		t.Error("Expected error for a record without source")
	}
}

func TestPipelineEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	ledger := NewLedger(env.db)
	q := queue.NewMemoryQueue(queue.Options{
		Workers:  4,
		Policy:   queue.RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond},
		OnResult: ledger.Record,
	}, 0)
	p := env.pipeline(q)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer q.Close()
	if err := p.Start(ctx); err != nil {
		t.Fatal(err)
	}

	v := env.createVideo(t, "clip.mp4")

	deadline := time.Now().Add(10 * time.Second)
	for {
		runs, err := env.db.ListJobRuns(context.Background(), database.JobStatusSucceeded)
		if err != nil {
			t.Fatal(err)
		}
		if len(runs) == 11 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("Expected 11 succeeded jobs, got %d", len(runs))
		}
		time.Sleep(5 * time.Millisecond)
	}

	source := filepath.Join(env.root, "videos", "clip.mp4")
	for _, w := range Ladder {
		if _, err := os.Stat(layout.RenditionPath(source, w)); err != nil {
			t.Errorf("Expected rendition %d: %v", w, err)
		}
		if _, err := os.Stat(env.layout.ManifestPath(v.ID, w)); err != nil {
			t.Errorf("Expected manifest for %dp: %v", w, err)
		}
	}

	got, err := env.db.GetVideo(context.Background(), v.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Thumbnail != "images/clip_thumb.jpg" {
		t.Errorf("Expected thumbnail reference images/clip_thumb.jpg, got %q", got.Thumbnail)
	}
}

func TestDeleteRemovesArtifacts(t *testing.T) {
	env := newTestEnv(t)
	p := env.pipeline(&recordingQueue{})
	v := env.createVideo(t, "clip.mp4")

	// Produce every artifact directly.
	ctx := context.Background()
	for _, job := range p.Jobs(v) {
		if err := p.Handle(ctx, job); err != nil {
			t.Fatalf("Handle(%s) error = %v", job.Key(), err)
		}
	}

	source := env.layout.Abs(v.VideoFile)
	if err := env.db.DeleteVideo(ctx, v.ID); err != nil {
		t.Fatalf("DeleteVideo() error = %v", err)
	}

	paths := []string{source, env.layout.ThumbnailPath(source), env.layout.VideoHLSRoot(v.ID)}
	for _, w := range Ladder {
		paths = append(paths, layout.RenditionPath(source, w))
	}
	for _, path := range paths {
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Errorf("Expected %s removed, got %v", path, err)
		}
	}
}

func TestDeleteWithMissingFiles(t *testing.T) {
	env := newTestEnv(t)
	p := env.pipeline(&recordingQueue{})
	v := env.createVideo(t, "clip.mp4")

	if err := os.Remove(env.layout.Abs(v.VideoFile)); err != nil {
		t.Fatal(err)
	}
	if failed := p.Reap(v); failed != 0 {
		t.Errorf("Expected no failed removals, got %d", failed)
	}
	if err := env.db.DeleteVideo(context.Background(), v.ID); err != nil {
		t.Errorf("Expected delete to succeed, got %v", err)
	}
}

func TestHandleRecordMissingIsPermanent(t *testing.T) {
	env := newTestEnv(t)
	p := env.pipeline(&recordingQueue{})

	err := p.Handle(context.Background(), queue.Job{Kind: queue.KindThumbnail, VideoID: 404, Attempt: 1})
	if !queue.IsPermanent(err) || !errors.Is(err, database.ErrNotFound) {
		t.Errorf("Expected permanent not-found error, got %v", err)
	}
}

func TestHandleRejectsForeignOutputDir(t *testing.T) {
	env := newTestEnv(t)
	p := env.pipeline(&recordingQueue{})
	v := env.createVideo(t, "clip.mp4")

	job := queue.Job{
		Kind: queue.KindPackage, VideoID: v.ID, Width: 480, Resolution: "480",
		Source: env.layout.Abs(v.VideoFile), OutputDir: filepath.Join(t.TempDir(), "elsewhere"),
	}
	if err := p.Handle(context.Background(), job); !queue.IsPermanent(err) {
		t.Errorf("Expected permanent error, got %v", err)
	}
}

func TestHandleEncodeErrorIsRetryable(t *testing.T) {
	env := newTestEnv(t)
	env.renderer.err = errors.New("exit status 1")
	p := env.pipeline(&recordingQueue{})
	v := env.createVideo(t, "clip.mp4")

	err := p.Handle(context.Background(), p.Jobs(v)[0])
	if err == nil || queue.IsPermanent(err) {
		t.Errorf("Expected retryable error, got %v", err)
	}
}

func TestHandleMissingSourceIsPermanent(t *testing.T) {
	env := newTestEnv(t)
	p := env.pipeline(&recordingQueue{})
	v := env.createVideo(t, "clip.mp4")
	if err := os.Remove(env.layout.Abs(v.VideoFile)); err != nil {
		t.Fatal(err)
	}

	job := p.Jobs(v)[6]
	if err := p.Handle(context.Background(), job); !queue.IsPermanent(err) {
		t.Errorf("Expected permanent error for missing source, got %v", err)
	}
}

func TestHandleRecordDeletedDuringJob(t *testing.T) {
	env := newTestEnv(t)
	env.renderer.started = make(chan struct{}, 1)
	env.renderer.release = make(chan struct{})
	p := env.pipeline(&recordingQueue{})
	v := env.createVideo(t, "clip.mp4")
	job := p.Jobs(v)[0]

	errCh := make(chan error, 1)
	go func() { errCh <- p.Handle(context.Background(), job) }()

	<-env.renderer.started
	if err := env.db.DeleteVideo(context.Background(), v.ID); err != nil {
		t.Fatal(err)
	}
	close(env.renderer.release)

	err := <-errCh
	if !queue.IsPermanent(err) {
		t.Errorf("Expected permanent error, got %v", err)
	}
	rendition := layout.RenditionPath(job.Source, job.Width)
	if _, err := os.Stat(rendition); !os.IsNotExist(err) {
		t.Errorf("Expected orphaned rendition removed, got %v", err)
	}
}

func TestHandleRecordReapedBeforeDeleteCommits(t *testing.T) {
	env := newTestEnv(t)
	env.renderer.started = make(chan struct{}, 1)
	env.renderer.release = make(chan struct{})
	p := env.pipeline(&recordingQueue{})
	v := env.createVideo(t, "clip.mp4")
	job := p.Jobs(v)[0]

	errCh := make(chan error, 1)
	go func() { errCh <- p.Handle(context.Background(), job) }()

	<-env.renderer.started
	// The reaper has run but the row is still visible to other connections.
	p.VideoDeleted(context.Background(), v)
	close(env.renderer.release)

	if err := <-errCh; !queue.IsPermanent(err) {
		t.Errorf("Expected permanent error, got %v", err)
	}
	rendition := layout.RenditionPath(job.Source, job.Width)
	if _, err := os.Stat(rendition); !os.IsNotExist(err) {
		t.Errorf("Expected rendition removed, got %v", err)
	}
}

func TestReapMarks(t *testing.T) {
	m := newReapMarks()
	if m.recent(1) {
		t.Error("Expected no mark before reaping")
	}
	m.mark(1)
	if !m.recent(1) {
		t.Error("Expected a mark after reaping")
	}
	m.clear(1)
	if m.recent(1) {
		t.Error("Expected the mark cleared when the id is reused")
	}

	m.at[2] = time.Now().Add(-2 * reapMarkTTL)
	if m.recent(2) {
		t.Error("Expected an expired mark to be ignored")
	}
	m.mark(3)
	if _, ok := m.at[2]; ok {
		t.Error("Expected expired marks pruned")
	}
}

func TestHandleSerializesSameKey(t *testing.T) {
	env := newTestEnv(t)
	env.renderer.started = make(chan struct{}, 2)
	env.renderer.release = make(chan struct{})
	p := env.pipeline(&recordingQueue{})
	v := env.createVideo(t, "clip.mp4")
	job := p.Jobs(v)[0]

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = p.Handle(context.Background(), job)
		}()
	}

	<-env.renderer.started
	select {
	case <-env.renderer.started:
		t.Error("Expected second delivery to wait for the first")
	case <-time.After(50 * time.Millisecond):
	}
	close(env.renderer.release)
	wg.Wait()

	if got := env.renderer.maxSeen.Load(); got != 1 {
		t.Errorf("Expected at most 1 concurrent render, got %d", got)
	}
}

func TestLedgerRecord(t *testing.T) {
	env := newTestEnv(t)
	ledger := NewLedger(env.db)
	v := env.createVideo(t, "clip.mp4")
	job := queue.Job{Kind: queue.KindPackage, VideoID: v.ID, Width: 720, Resolution: "720", Attempt: 2}

	ledger.Record(queue.Result{Job: job, Outcome: queue.OutcomeRetry, Err: errors.New("exit status 1")})
	runs, err := env.db.ListJobRuns(context.Background(), database.JobStatusRetrying)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].Key != job.Key() || runs[0].Attempts != 2 || runs[0].LastError != "exit status 1" {
		t.Errorf("Unexpected ledger rows %+v", runs)
	}

	job.Attempt = 3
	ledger.Record(queue.Result{Job: job, Outcome: queue.OutcomeDead, Err: errors.New("exit status 1")})
	failed, _ := env.db.ListJobRuns(context.Background(), database.JobStatusFailed)
	if len(failed) != 1 {
		t.Errorf("Expected 1 failed row, got %d", len(failed))
	}

	// Interrupted attempts and vanished records leave no trace.
	other := queue.Job{Kind: queue.KindThumbnail, VideoID: v.ID + 100, Attempt: 1}
	ledger.Record(queue.Result{Job: other, Outcome: queue.OutcomeRetry, Interrupted: true})
	ledger.Record(queue.Result{Job: other, Outcome: queue.OutcomeDead, Err: database.ErrNotFound})
	all, _ := env.db.ListJobRuns(context.Background(), "")
	if len(all) != 1 {
		t.Errorf("Expected only the package row, got %d rows", len(all))
	}
}

func TestLedgerSkipsFailureAfterDelete(t *testing.T) {
	env := newTestEnv(t)
	ledger := NewLedger(env.db)
	v := env.createVideo(t, "clip.mp4")
	if err := env.db.DeleteVideo(context.Background(), v.ID); err != nil {
		t.Fatal(err)
	}

	// The job lost its source with the record and failed on the missing file.
	job := queue.Job{Kind: queue.KindRender, VideoID: v.ID, Width: 480, Attempt: 1}
	missing := fmt.Errorf("stat source: %w", os.ErrNotExist)
	ledger.Record(queue.Result{Job: job, Outcome: queue.OutcomeDead, Err: missing})

	runs, err := env.db.ListJobRuns(context.Background(), database.JobStatusFailed)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 0 {
		t.Errorf("Expected no failed rows for a deleted video, got %+v", runs)
	}
}

func TestKeyedMutexReleasesEntries(t *testing.T) {
	k := newKeyedMutex()
	unlock := k.Lock("render:1:120")
	unlock()
	if len(k.locks) != 0 {
		t.Errorf("Expected lock entry released, got %d", len(k.locks))
	}
}
