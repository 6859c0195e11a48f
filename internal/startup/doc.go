// Package startup loads configuration and produces the structured startup
// and shutdown log output.
//
// # Configuration
//
// [LoadConfig] first loads a .env file from the working directory if one
// exists (variables already in the environment win), then reads:
//
//   - MEDIA_ROOT: root of the videos/ and images/ trees (default: /media)
//   - DATABASE_DIR: directory holding pipeline.db (default: /database)
//   - PORT, METRICS_PORT, METRICS_ENABLED: listeners (8080, 9090, true)
//   - PIPELINE_WORKERS: concurrent jobs (default: one per two CPUs, max 16)
//   - JOB_MAX_ATTEMPTS, JOB_INITIAL_BACKOFF, JOB_MAX_BACKOFF: retry policy (3, 5s, 2m)
//   - ENCODE_TIMEOUT, PROBE_TIMEOUT: per-invocation limits (2h, 30s)
//   - FFMPEG_PATH, FFPROBE_PATH: encoder tools (ffmpeg, ffprobe)
//   - THUMBNAIL_MAX_WIDTH: downscale wider poster frames (0 keeps native)
//   - UPLOAD_MAX_MB: largest accepted upload (2048)
//   - QUEUE_BACKEND: memory or sqs; sqs needs SQS_QUEUE_URL and honours
//     AWS_REGION, SQS_ENDPOINT and SQS_WAIT_SECONDS (20)
//   - LOG_LEVEL, LOG_HEALTH_CHECKS
//
// # Build Information
//
// Version, Commit and BuildTime are injected via -ldflags and exposed via
// [GetBuildInfo].
package startup
