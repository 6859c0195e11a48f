// Package logging provides a simple leveled logging interface for the
// media pipeline service and its background jobs.
//
// It supports the following log levels:
//   - DEBUG: Verbose debugging information (encoder arguments, probe output)
//   - INFO: General operational messages
//   - WARN: Warning conditions (best-effort cleanup failures, retries)
//   - ERROR: Error conditions (jobs that failed permanently)
//   - FATAL: Fatal errors that terminate the application
//
// The log level is configured via the LOG_LEVEL environment variable, or
// forced to debug with DEBUG=true. Background jobs log through a
// ScopedLogger so that every line carries the job kind, video id and
// width/resolution it belongs to.
package logging
