// Command videoctl is the operator CLI of the media pipeline. It works
// directly on the record store and media root configured through the same
// environment variables as the service.
//
// Usage:
//
//	videoctl <command> [arguments]
//
// Commands:
//
//	reprocess <id>                  Re-run every processing job of a video.
//	                                With QUEUE_BACKEND=memory the jobs run in
//	                                this process and a summary is printed;
//	                                with sqs they are only enqueued.
//	purge [-y] <id>                 Delete a video and all of its artifacts.
//	                                Asks for confirmation on a terminal;
//	                                otherwise -y is required.
//	failed                          List jobs that exhausted their retries.
//	package <src> <outdir> <res>    Package one source into HLS.
//	probe <src>                     Print the duration of a media file.
//
// Environment:
//
//	MEDIA_ROOT, DATABASE_DIR, FFMPEG_PATH, FFPROBE_PATH, ENCODE_TIMEOUT,
//	PROBE_TIMEOUT, QUEUE_BACKEND, SQS_QUEUE_URL, AWS_REGION, SQS_ENDPOINT
package main
