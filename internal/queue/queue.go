package queue

import (
	"context"
	"errors"
)

var (
	// ErrDuplicate is returned when a job with the same key is already
	// pending or running.
	ErrDuplicate = errors.New("job already pending")
	// ErrClosed is returned by Enqueue after Close.
	ErrClosed = errors.New("queue closed")
	// ErrStarted is returned when Start is called twice.
	ErrStarted = errors.New("queue already started")
)

// Queue is a job queue with at-least-once delivery.
type Queue interface {
	// Enqueue submits job. It does not wait for execution.
	Enqueue(ctx context.Context, job Job) error
	// Start begins delivering jobs to h until ctx is cancelled or Close is
	// called. It returns immediately.
	Start(ctx context.Context, h Handler) error
	// Close stops delivery and waits for running handlers to return.
	Close() error
}

// Options configures a queue backend.
type Options struct {
	Workers    int
	Policy     RetryPolicy
	OnResult   ResultFunc
	DeadLetter DeadLetterFunc
}

func (o Options) hooks() hooks {
	return hooks{policy: o.Policy, onResult: o.OnResult, deadLetter: o.DeadLetter}
}

func (o Options) workers() int {
	if o.Workers < 1 {
		return 1
	}
	return o.Workers
}
