package metrics

// Label values pre-populated by InitializeMetrics.
var (
	jobKinds     = []string{"render", "thumbnail", "package"}
	jobStatuses  = []string{"success", "retry", "dead"}
	encoderTools = []string{"ffmpeg", "ffprobe"}
	artifacts    = []string{"source", "thumbnail", "rendition", "hls"}
)

// InitializeMetrics pre-populates all expected label combinations so that
// every metric is exported from the first Prometheus scrape.
// Call this once at startup after metric registration.
func InitializeMetrics() {
	for _, kind := range jobKinds {
		for _, status := range jobStatuses {
			JobsTotal.WithLabelValues(kind, status)
		}
		JobDuration.WithLabelValues(kind)
		JobRetriesTotal.WithLabelValues(kind)
		JobsDeadLettered.WithLabelValues(kind)
		JobsEnqueuedTotal.WithLabelValues(kind, "success")
		JobsEnqueuedTotal.WithLabelValues(kind, "duplicate")
		JobsEnqueuedTotal.WithLabelValues(kind, "error")
	}

	for _, tool := range encoderTools {
		for _, status := range []string{"success", "error", "timeout"} {
			EncoderCallsTotal.WithLabelValues(tool, status)
		}
		EncoderCallDuration.WithLabelValues(tool)
	}

	for _, a := range artifacts {
		ReaperRemovalsTotal.WithLabelValues(a, "success")
		ReaperRemovalsTotal.WithLabelValues(a, "error")
	}

	for _, s := range []string{"succeeded", "failed", "retrying"} {
		JobRunsByStatus.WithLabelValues(s)
	}

	volumes := []string{"media", "database", "unknown"}
	fsOps := []string{"stat", "open", "remove", "remove_all"}

	for _, vol := range volumes {
		for _, op := range fsOps {
			FilesystemOperationDuration.WithLabelValues(vol, op)
			FilesystemOperationErrors.WithLabelValues(vol, op)
			FilesystemRetryAttempts.WithLabelValues(op, vol)
			FilesystemRetrySuccess.WithLabelValues(op, vol)
			FilesystemRetryFailures.WithLabelValues(op, vol)
			FilesystemStaleErrors.WithLabelValues(op, vol)
			FilesystemRetryDuration.WithLabelValues(op, vol)
		}
	}

	for _, op := range []string{"create_video", "get_video", "update_video", "set_thumbnail",
		"delete_video", "list_videos", "create_category", "record_job_result", "list_job_runs", "stats"} {
		DBQueryTotal.WithLabelValues(op, "success")
		DBQueryTotal.WithLabelValues(op, "error")
		DBQueryDuration.WithLabelValues(op)
	}
}
