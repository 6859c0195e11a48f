// Package metrics provides Prometheus instrumentation for the media pipeline.
//
// All metrics are registered with promauto and prefixed with
// "media_pipeline_". InitializeMetrics pre-populates label combinations so
// dashboards see every series from the first scrape.
//
// # Metric Categories
//
// ## HTTP Metrics
//
//   - HTTPRequestsTotal: requests by method, route template and status
//   - HTTPRequestDuration: request latency by method and route template
//   - HTTPRequestsInFlight: requests currently being served
//
// ## Job Metrics
//
//   - JobsTotal: finished job attempts by kind (render/thumbnail/package) and
//     status (success/retry/dead)
//   - JobDuration: job attempt duration by kind
//   - JobRetriesTotal: retries scheduled by kind
//   - JobsDeadLettered: jobs marked permanently failed by kind
//   - JobsInFlight: jobs currently executing
//   - JobsEnqueuedTotal: submissions by kind and status (success/duplicate/error)
//
// ## Encoder Metrics
//
//   - EncoderCallsTotal: ffmpeg/ffprobe invocations by tool and status
//     (success/error/timeout)
//   - EncoderCallDuration: invocation duration by tool
//   - EncoderProcessesActive: encoder processes currently running
//
// ## Reaper Metrics
//
//   - ReaperRemovalsTotal: removals by artifact (source/thumbnail/rendition/hls)
//     and status
//
// ## Catalog and Database Metrics
//
//   - VideosTotal, JobRunsByStatus: refreshed by the Collector
//   - DBQueryTotal, DBQueryDuration, DBConnectionsOpen
//
// ## Filesystem Metrics
//
// Recorded through the filesystem.Observer returned by NewFilesystemObserver:
// operation duration and errors per volume, plus ESTALE retry counters.
//
// Metrics are served on a separate port (METRICS_PORT, default 9090) at
// /metrics.
package metrics
