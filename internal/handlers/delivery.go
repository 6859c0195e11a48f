package handlers

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gorilla/mux"

	"media-pipeline/internal/filesystem"
	"media-pipeline/internal/layout"
	"media-pipeline/internal/logging"
)

const (
	contentTypeManifest = "application/vnd.apple.mpegurl"
	contentTypeSegment  = "video/MP2T"
)

// GetManifest serves the HLS playlist of one resolution.
// GET /api/video/{id}/{resolution}/index.m3u8
func (h *Handlers) GetManifest(w http.ResponseWriter, r *http.Request) {
	// The playlist is replaced in place on reprocess.
	w.Header().Set("Cache-Control", "no-cache")
	h.serveArtifact(w, r, layout.ManifestName, contentTypeManifest)
}

// GetSegment serves one MPEG-TS segment.
// GET /api/video/{id}/{resolution}/{segment}
func (h *Handlers) GetSegment(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "public, max-age=3600")
	h.serveArtifact(w, r, mux.Vars(r)["segment"], contentTypeSegment)
}

// serveArtifact streams <root>/videos/<id>/<resolution>/<name>. The route
// patterns have already restricted every component to a plain name.
func (h *Handlers) serveArtifact(w http.ResponseWriter, r *http.Request, name, contentType string) {
	id, ok := pathID(r)
	if !ok {
		http.Error(w, "Invalid video id", http.StatusBadRequest)
		return
	}
	resolution := mux.Vars(r)["resolution"]
	path := filepath.Join(h.layout.VideoHLSRoot(id), resolution, name)

	f, err := filesystem.OpenWithRetry(path, filesystem.DefaultRetryConfig())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			http.NotFound(w, r)
			return
		}
		logging.Error("Failed to open %s: %v", path, err)
		http.Error(w, "Failed to read artifact", http.StatusInternalServerError)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", contentType)
	http.ServeContent(w, r, name, info.ModTime(), f)
}
