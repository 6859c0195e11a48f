package metrics

import (
	"time"

	"media-pipeline/internal/filesystem"
)

// filesystemObserver implements filesystem.Observer with the Prometheus
// metrics declared in metrics.go.
type filesystemObserver struct{}

// NewFilesystemObserver creates an observer that records filesystem metrics.
func NewFilesystemObserver() filesystem.Observer {
	return &filesystemObserver{}
}

func (o *filesystemObserver) ObserveOperation(volume, operation string, durationSeconds float64, err error) {
	FilesystemOperationDuration.WithLabelValues(volume, operation).Observe(durationSeconds)
	if err != nil {
		FilesystemOperationErrors.WithLabelValues(volume, operation).Inc()
	}
}

func (o *filesystemObserver) ObserveRetryAttempt(retryOp, volume string) {
	FilesystemRetryAttempts.WithLabelValues(retryOp, volume).Inc()
}

func (o *filesystemObserver) ObserveRetrySuccess(retryOp, volume string) {
	FilesystemRetrySuccess.WithLabelValues(retryOp, volume).Inc()
}

func (o *filesystemObserver) ObserveRetryFailure(retryOp, volume string) {
	FilesystemRetryFailures.WithLabelValues(retryOp, volume).Inc()
}

func (o *filesystemObserver) ObserveRetryDuration(retryOp, volume string, durationSeconds float64) {
	FilesystemRetryDuration.WithLabelValues(retryOp, volume).Observe(durationSeconds)
}

func (o *filesystemObserver) ObserveStaleError(retryOp, volume string) {
	FilesystemStaleErrors.WithLabelValues(retryOp, volume).Inc()
}

// ObserveEncoderCall records one ffmpeg/ffprobe invocation. Its signature
// matches transcoder.CallObserver.
func ObserveEncoderCall(tool, status string, elapsed time.Duration) {
	EncoderCallsTotal.WithLabelValues(tool, status).Inc()
	EncoderCallDuration.WithLabelValues(tool).Observe(elapsed.Seconds())
}

// ObserveJob records the outcome of one job attempt.
func ObserveJob(kind, status string, elapsed time.Duration) {
	JobsTotal.WithLabelValues(kind, status).Inc()
	JobDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
	switch status {
	case "retry":
		JobRetriesTotal.WithLabelValues(kind).Inc()
	case "dead":
		JobsDeadLettered.WithLabelValues(kind).Inc()
	}
}

// ObserveRemoval records one reaper removal.
func ObserveRemoval(artifact string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	ReaperRemovalsTotal.WithLabelValues(artifact, status).Inc()
}
