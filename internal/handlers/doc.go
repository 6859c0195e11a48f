// Package handlers provides the HTTP API of the media pipeline.
//
// It includes handlers for:
//   - Multipart ingest of source videos
//   - Video record listing, lookup, deletion and reprocessing
//   - HLS delivery of playlists and segments
//   - The job ledger
//   - Health checks and build information
package handlers
