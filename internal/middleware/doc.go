// Package middleware provides the HTTP middleware chain of the API server:
// request logging in W3C Extended Log Format, Prometheus request metrics
// labelled by route template, and gzip compression for JSON and HLS
// playlists.
package middleware
