package pipeline

import (
	"context"
	"errors"
	"time"

	"media-pipeline/internal/database"
	"media-pipeline/internal/logging"
	"media-pipeline/internal/metrics"
	"media-pipeline/internal/queue"
)

// JobRecorder persists job outcomes.
type JobRecorder interface {
	RecordJobResult(ctx context.Context, run database.JobRun) error
}

// Ledger turns queue results into metrics and job_runs rows. Its Record
// method is meant to be passed as queue.Options.OnResult.
type Ledger struct {
	store   JobRecorder
	timeout time.Duration
}

// NewLedger creates a Ledger writing to store. A nil store only records
// metrics.
func NewLedger(store JobRecorder) *Ledger {
	return &Ledger{store: store, timeout: 5 * time.Second}
}

// Record handles one attempt result.
func (l *Ledger) Record(res queue.Result) {
	if res.Interrupted {
		return
	}
	kind := string(res.Job.Kind)
	metrics.ObserveJob(kind, string(res.Outcome), res.Elapsed)

	// Rows for deleted records were removed with them.
	if l.store == nil || errors.Is(res.Err, database.ErrNotFound) {
		return
	}
	run := database.JobRun{
		Key:      res.Job.Key(),
		Kind:     kind,
		VideoID:  res.Job.VideoID,
		Param:    res.Job.Param(),
		Status:   ledgerStatus(res.Outcome),
		Attempts: res.Job.Attempt,
	}
	if res.Err != nil {
		run.LastError = res.Err.Error()
	}

	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()
	err := l.store.RecordJobResult(ctx, run)
	switch {
	case errors.Is(err, database.ErrNotFound):
		logging.Debug("video %d is gone, not recording job %s", run.VideoID, run.Key)
	case err != nil:
		logging.Warn("failed to record result of job %s: %v", run.Key, err)
	}
}

func ledgerStatus(o queue.Outcome) string {
	switch o {
	case queue.OutcomeSuccess:
		return database.JobStatusSucceeded
	case queue.OutcomeRetry:
		return database.JobStatusRetrying
	default:
		return database.JobStatusFailed
	}
}
