// Package media extracts poster frames from uploaded videos.
//
// The Thumbnailer pulls a single frame from the source with FFmpeg, scales it
// with imaging when a maximum width is configured, writes it as
// images/<stem>_thumb.jpg under the media root and records the reference on
// the video.
package media
