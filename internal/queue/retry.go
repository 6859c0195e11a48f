package queue

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"media-pipeline/internal/logging"
)

// RetryPolicy bounds how often and how quickly a failed job is retried.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryPolicy returns 3 attempts with 5s initial backoff capped at 2m.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		InitialBackoff: 5 * time.Second,
		MaxBackoff:     2 * time.Minute,
	}
}

// Backoff returns the delay before the attempt following failed attempt n
// (1-based): InitialBackoff * 2^(n-1), capped at MaxBackoff.
func (p RetryPolicy) Backoff(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	d := p.InitialBackoff
	for i := 1; i < n; i++ {
		d *= 2
		if p.MaxBackoff > 0 && d >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		return p.MaxBackoff
	}
	return d
}

// Exhausted reports whether attempt n was the last one allowed.
func (p RetryPolicy) Exhausted(n int) bool {
	if p.MaxAttempts <= 0 {
		return true
	}
	return n >= p.MaxAttempts
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Handler executes one job.
type Handler func(ctx context.Context, job Job) error

// Outcome classifies one attempt.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeRetry   Outcome = "retry"
	OutcomeDead    Outcome = "dead"
)

// Result describes one finished attempt.
type Result struct {
	Job     Job
	Outcome Outcome
	Err     error
	Elapsed time.Duration
	// RetryIn is set for OutcomeRetry.
	RetryIn time.Duration
	// Interrupted is set when the handler stopped because the queue was
	// shutting down.
	Interrupted bool
}

// ResultFunc receives every attempt result.
type ResultFunc func(Result)

// DeadLetterFunc receives jobs that will not be retried again.
type DeadLetterFunc func(job Job, err error)

// hooks bundles the callbacks shared by the backends.
type hooks struct {
	policy     RetryPolicy
	onResult   ResultFunc
	deadLetter DeadLetterFunc
}

// attempt runs h for job and classifies the outcome. Panics become errors.
func (hk hooks) attempt(ctx context.Context, h Handler, job Job) Result {
	start := time.Now()
	err := safeHandle(ctx, h, job)

	res := Result{Job: job, Err: err, Elapsed: time.Since(start)}
	switch {
	case err == nil:
		res.Outcome = OutcomeSuccess
	case ctx.Err() != nil:
		res.Outcome = OutcomeRetry
		res.Interrupted = true
	case IsPermanent(err) || hk.policy.Exhausted(job.Attempt):
		res.Outcome = OutcomeDead
	default:
		res.Outcome = OutcomeRetry
		res.RetryIn = hk.policy.Backoff(job.Attempt)
	}

	switch {
	case res.Outcome == OutcomeRetry && ctx.Err() != nil:
		logging.Info("job %s interrupted: %v", job, err)
	case res.Outcome == OutcomeRetry:
		logging.Warn("job %s failed, retrying in %v: %v", job, res.RetryIn, err)
	case res.Outcome == OutcomeDead:
		logging.Error("job %s permanently failed: %v", job, err)
	}

	if res.Outcome == OutcomeDead && hk.deadLetter != nil {
		hk.deadLetter(job, err)
	}
	if hk.onResult != nil {
		hk.onResult(res)
	}
	return res
}

func safeHandle(ctx context.Context, h Handler, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error("job %s panicked: %v\n%s", job, r, debug.Stack())
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return h(ctx, job)
}
