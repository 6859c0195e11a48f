package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"media-pipeline/internal/logging"
)

// DefaultBufferSize is the MemoryQueue channel capacity.
const DefaultBufferSize = 1024

// MemoryQueue is an in-process Queue backed by a buffered channel and a
// fixed pool of workers.
type MemoryQueue struct {
	opts  Options
	hooks hooks
	jobs  chan Job
	done  chan struct{}

	mu      sync.Mutex
	pending map[string]struct{}
	timers  map[*time.Timer]struct{}
	closed  bool
	started bool

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewMemoryQueue creates a MemoryQueue. A bufferSize below 1 uses
// DefaultBufferSize.
func NewMemoryQueue(opts Options, bufferSize int) *MemoryQueue {
	if bufferSize < 1 {
		bufferSize = DefaultBufferSize
	}
	return &MemoryQueue{
		opts:    opts,
		hooks:   opts.hooks(),
		jobs:    make(chan Job, bufferSize),
		done:    make(chan struct{}),
		pending: make(map[string]struct{}),
		timers:  make(map[*time.Timer]struct{}),
	}
}

// Enqueue adds job unless a job with the same key is pending or running.
// It blocks while the buffer is full.
func (q *MemoryQueue) Enqueue(ctx context.Context, job Job) error {
	if err := job.Validate(); err != nil {
		return Permanent(err)
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Attempt < 1 {
		job.Attempt = 1
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now()
	}

	key := job.Key()
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	if _, ok := q.pending[key]; ok {
		q.mu.Unlock()
		return ErrDuplicate
	}
	q.pending[key] = struct{}{}
	q.mu.Unlock()

	select {
	case q.jobs <- job:
		logging.Debug("enqueued job %s", job)
		return nil
	case <-q.done:
		q.release(key)
		return ErrClosed
	case <-ctx.Done():
		q.release(key)
		return ctx.Err()
	}
}

// Start launches the workers.
func (q *MemoryQueue) Start(ctx context.Context, h Handler) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	if q.started {
		return ErrStarted
	}
	q.started = true

	n := q.opts.workers()
	for i := 0; i < n; i++ {
		q.wg.Add(1)
		go q.worker(ctx, h)
	}
	logging.Info("memory queue started with %d workers", n)
	return nil
}

func (q *MemoryQueue) worker(ctx context.Context, h Handler) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.done:
			return
		case job := <-q.jobs:
			q.process(ctx, h, job)
		}
	}
}

func (q *MemoryQueue) process(ctx context.Context, h Handler, job Job) {
	res := q.hooks.attempt(ctx, h, job)
	if res.Outcome != OutcomeRetry {
		q.release(job.Key())
		return
	}

	next := job
	next.Attempt++
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		delete(q.pending, job.Key())
		return
	}
	var t *time.Timer
	t = time.AfterFunc(res.RetryIn, func() {
		q.mu.Lock()
		delete(q.timers, t)
		q.mu.Unlock()
		q.requeue(next)
	})
	q.timers[t] = struct{}{}
}

// requeue hands a retry back to the workers. The key stays pending.
func (q *MemoryQueue) requeue(job Job) {
	select {
	case q.jobs <- job:
	case <-q.done:
		q.release(job.Key())
	}
}

func (q *MemoryQueue) release(key string) {
	q.mu.Lock()
	delete(q.pending, key)
	q.mu.Unlock()
}

// Pending returns the number of keys that are queued, running or waiting
// for a retry.
func (q *MemoryQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Close stops the workers and cancels scheduled retries. Running handlers
// are waited for; cancel the context passed to Start to interrupt them.
func (q *MemoryQueue) Close() error {
	q.closeOnce.Do(func() {
		q.mu.Lock()
		q.closed = true
		for t := range q.timers {
			t.Stop()
		}
		q.timers = make(map[*time.Timer]struct{})
		q.mu.Unlock()
		close(q.done)
	})
	q.wg.Wait()
	return nil
}
