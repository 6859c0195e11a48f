// Package main provides the entry point of the media pipeline service.
//
// The service accepts video uploads, stores a record per upload, and turns
// every new source into a set of derived artifacts: five MP4 renditions, a
// JPEG thumbnail and five single-resolution HLS packages. Deleting a record
// removes its artifacts.
//
// # Application Lifecycle
//
//  1. Configuration Loading: reads .env and environment variables, prepares
//     the media and database directories
//  2. Metrics: installs the filesystem observer and registers collectors
//  3. Database Initialization: opens the SQLite record store
//  4. Component Initialization:
//     - Transcoder: ffprobe/ffmpeg wrappers with per-call timeouts
//     - Thumbnailer: poster frame extraction and JPEG encoding
//     - Job Queue: in-memory workers or an SQS consumer
//     - Pipeline: subscribes to record lifecycle events, dispatches and
//       executes jobs, reaps artifacts of deleted records
//  5. HTTP Server Setup: routes, logging, metrics and compression middleware
//  6. Graceful Shutdown: handles SIGINT/SIGTERM
//
// # HTTP Servers
//
//  1. Main Server (default port 8080):
//     - POST /api/videos multipart ingest
//     - record listing, lookup, deletion and reprocessing
//     - HLS delivery under /api/video/{id}/{resolution}/
//     - job ledger under /api/jobs
//     - /health, /healthz, /livez, /readyz, /version
//
//  2. Metrics Server (default port 9090, optional):
//     - Prometheus metrics endpoint (/metrics)
//
// # Environment Variables
//
//   - MEDIA_ROOT: root of videos/ and images/ (default: /media)
//   - DATABASE_DIR: directory for the SQLite database (default: /database)
//   - PORT, METRICS_PORT, METRICS_ENABLED
//   - PIPELINE_WORKERS: job worker count (default: half the usable CPUs)
//   - JOB_MAX_ATTEMPTS, JOB_INITIAL_BACKOFF, JOB_MAX_BACKOFF
//   - FFMPEG_PATH, FFPROBE_PATH, ENCODE_TIMEOUT, PROBE_TIMEOUT
//   - THUMBNAIL_MAX_WIDTH, UPLOAD_MAX_MB
//   - QUEUE_BACKEND (memory|sqs), SQS_QUEUE_URL, SQS_WAIT_SECONDS,
//     SQS_ENDPOINT, AWS_REGION
//   - LOG_LEVEL, LOG_HEALTH_CHECKS
//
// # Graceful Shutdown
//
//  1. Stop accepting new HTTP requests (30s timeout)
//  2. Cancel job workers and kill running encoder process groups
//  3. Stop the metrics collector and metrics server
//  4. Close the database
//
// The operator CLI lives in cmd/videoctl.
package main
