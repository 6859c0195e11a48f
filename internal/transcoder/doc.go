// Package transcoder wraps FFmpeg and FFprobe for the video pipeline.
//
// It provides:
//   - Duration probing of source files
//   - Scaled MP4 renditions written beside the source
//   - HLS packaging into per-resolution directories
//   - Manifest parsing and validation
//
// Every output is produced in a staging location and only moved into its
// final path once the encoder has exited cleanly, so readers never observe a
// partial rendition or a manifest whose segments are missing.
package transcoder
