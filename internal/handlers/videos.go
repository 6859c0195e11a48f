package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"media-pipeline/internal/database"
	"media-pipeline/internal/layout"
	"media-pipeline/internal/logging"
	"media-pipeline/internal/media"
)

// multipartMemory is how much of an upload is buffered in memory before
// spilling to a temporary file.
const multipartMemory = 32 << 20

// CreateVideo ingests a multipart upload and creates its record, which
// dispatches the processing jobs.
// POST /api/videos
func (h *Handlers) CreateVideo(w http.ResponseWriter, r *http.Request) {
	if h.maxUpload > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSONError(w, "Upload exceeds size limit", http.StatusRequestEntityTooLarge)
			return
		}
		writeJSONError(w, "Invalid multipart form", http.StatusBadRequest)
		return
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			logging.Debug("failed to remove multipart temp files: %v", err)
		}
	}()

	v, err := h.videoFromForm(r)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	var saved string
	file, header, err := r.FormFile("video_file")
	switch {
	case err == nil:
		defer file.Close()
		saved, err = h.saveUpload(file, header.Filename)
		if err != nil {
			logging.Error("Failed to store upload %q: %v", header.Filename, err)
			writeJSONError(w, "Failed to store upload", http.StatusInternalServerError)
			return
		}
		v.VideoFile = h.layout.Rel(saved)
	case errors.Is(err, http.ErrMissingFile):
		// A record without a source is valid; nothing will be processed.
	default:
		writeJSONError(w, "Invalid video_file", http.StatusBadRequest)
		return
	}

	if err := h.db.CreateVideo(r.Context(), v); err != nil {
		if saved != "" {
			if rmErr := os.Remove(saved); rmErr != nil {
				logging.Warn("failed to remove upload %s after create error: %v", saved, rmErr)
			}
		}
		logging.Error("Failed to create video: %v", err)
		writeJSONError(w, "Failed to create video", http.StatusInternalServerError)
		return
	}

	logging.Info("Created video %d (%q) source=%q", v.ID, v.Title, v.VideoFile)
	writeJSONStatus(w, http.StatusCreated, v)
}

// videoFromForm builds a record from the non-file form fields.
func (h *Handlers) videoFromForm(r *http.Request) (*database.Video, error) {
	v := &database.Video{
		Title:       strings.TrimSpace(r.FormValue("title")),
		Description: r.FormValue("description"),
	}
	if v.Title == "" {
		return nil, errors.New("title is required")
	}

	if s := r.FormValue("duration"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return nil, errors.New("duration must be a non-negative integer")
		}
		v.DurationMinutes = n
	}

	if s := r.FormValue("category"); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, errors.New("category must be an id")
		}
		ok, err := h.db.CategoryExists(r.Context(), id)
		if err != nil {
			return nil, errors.New("category lookup failed")
		}
		if !ok {
			return nil, fmt.Errorf("category %d does not exist", id)
		}
		v.CategoryID = &id
	}

	if s := r.FormValue("user"); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, errors.New("user must be an id")
		}
		v.UserID = &id
	}

	if s := r.FormValue("is_featured"); s != "" {
		b, err := strconv.ParseBool(s)
		if err != nil {
			return nil, errors.New("is_featured must be a boolean")
		}
		v.IsFeatured = b
	}
	return v, nil
}

// saveUpload writes the upload to videos/<name>. Every derived artifact is
// named after the source stem, so a name whose stem is already claimed by
// another source, rendition or thumbnail gets a short unique suffix instead.
func (h *Handlers) saveUpload(src multipart.File, filename string) (string, error) {
	if err := os.MkdirAll(h.layout.VideosDir(), 0o755); err != nil {
		return "", err
	}
	out, path, err := h.reserveSource(uploadName(filename))
	if err != nil {
		return "", err
	}

	if _, err := io.Copy(out, src); err != nil {
		_ = out.Close()
		_ = os.Remove(path)
		return "", err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(path)
		return "", err
	}
	return path, nil
}

// maxNameAttempts bounds the suffixed names tried for one upload.
const maxNameAttempts = 5

// reserveSource creates the source file for name, or for a suffixed variant
// of it when the stem is taken.
func (h *Handlers) reserveSource(name string) (*os.File, string, error) {
	h.uploadMu.Lock()
	defer h.uploadMu.Unlock()

	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for i := 0; i < maxNameAttempts; i++ {
		if i > 0 {
			name = base + "_" + uuid.NewString()[:8] + ext
		}
		taken, err := h.stemTaken(name)
		if err != nil {
			return nil, "", err
		}
		if taken {
			continue
		}
		path := h.layout.SourcePath(name)
		out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return nil, "", err
		}
		return out, path, nil
	}
	return nil, "", fmt.Errorf("no free name for upload %q", name)
}

var (
	// renditionStem matches stems that look like a rendition, <x>_<w>p.
	renditionStem = regexp.MustCompile(`_[0-9]+p$`)
	// renditionSuffix matches what follows "<stem>_" in a rendition name.
	renditionSuffix = regexp.MustCompile(`^[0-9]+p\.mp4$`)
	numericName     = regexp.MustCompile(`^[0-9]+$`)
)

// stemTaken reports whether a source called name would share an artifact
// path with anything already on disk. Purely numeric names are refused
// because videos/<id> holds the HLS tree of record <id>.
func (h *Handlers) stemTaken(name string) (bool, error) {
	stem := layout.Stem(name)
	if numericName.MatchString(name) || renditionStem.MatchString(stem) {
		return true, nil
	}

	entries, err := os.ReadDir(h.layout.VideosDir())
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		n := e.Name()
		if layout.Stem(n) == stem {
			return true, nil
		}
		if rest, ok := strings.CutPrefix(n, stem+"_"); ok && renditionSuffix.MatchString(rest) {
			return true, nil
		}
	}

	_, err = os.Stat(h.layout.ThumbnailPath(name))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}

// uploadName reduces a client-supplied file name to a safe base name.
func uploadName(filename string) string {
	name := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	name = strings.Map(func(r rune) rune {
		switch {
		case r < 0x20, r == 0x7f, r == '/', r == ':':
			return '_'
		}
		return r
	}, name)
	name = strings.TrimLeft(name, ".")
	if name == "" {
		return "upload-" + uuid.NewString()[:8]
	}
	return name
}

// ListVideos returns every record, newest first.
// GET /api/videos
func (h *Handlers) ListVideos(w http.ResponseWriter, r *http.Request) {
	videos, err := h.db.ListVideos(r.Context())
	if err != nil {
		logging.Error("Failed to list videos: %v", err)
		writeJSONError(w, "Failed to list videos", http.StatusInternalServerError)
		return
	}
	writeJSONStatus(w, http.StatusOK, videos)
}

// GetVideo returns one record.
// GET /api/videos/{id}
func (h *Handlers) GetVideo(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeJSONError(w, "Invalid video id", http.StatusBadRequest)
		return
	}

	v, err := h.db.GetVideo(r.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		writeJSONError(w, "Video not found", http.StatusNotFound)
		return
	}
	if err != nil {
		logging.Error("Failed to get video %d: %v", id, err)
		writeJSONError(w, "Failed to get video", http.StatusInternalServerError)
		return
	}
	writeJSONStatus(w, http.StatusOK, v)
}

// DeleteVideo deletes a record. Its artifacts are reaped while the delete
// is in progress.
// DELETE /api/videos/{id}
func (h *Handlers) DeleteVideo(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeJSONError(w, "Invalid video id", http.StatusBadRequest)
		return
	}

	err := h.db.DeleteVideo(r.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		writeJSONError(w, "Video not found", http.StatusNotFound)
		return
	}
	if err != nil {
		logging.Error("Failed to delete video %d: %v", id, err)
		writeJSONError(w, "Failed to delete video", http.StatusInternalServerError)
		return
	}

	logging.Info("Deleted video %d", id)
	w.WriteHeader(http.StatusNoContent)
}

// ReprocessVideo re-dispatches every job of a record.
// POST /api/videos/{id}/reprocess
func (h *Handlers) ReprocessVideo(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeJSONError(w, "Invalid video id", http.StatusBadRequest)
		return
	}

	n, err := h.pipeline.Reprocess(r.Context(), id)
	switch {
	case errors.Is(err, database.ErrNotFound):
		writeJSONError(w, "Video not found", http.StatusNotFound)
		return
	case errors.Is(err, media.ErrNoSource):
		writeJSONError(w, "Video has no source file", http.StatusConflict)
		return
	case err != nil && n == 0:
		logging.Error("Failed to reprocess video %d: %v", id, err)
		writeJSONError(w, "Failed to enqueue jobs", http.StatusInternalServerError)
		return
	case err != nil:
		logging.Warn("Reprocess of video %d enqueued %d jobs: %v", id, n, err)
	}

	writeJSONStatus(w, http.StatusAccepted, map[string]interface{}{
		"videoId":  id,
		"enqueued": n,
	})
}

// ListCategories returns every category.
// GET /api/categories
func (h *Handlers) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.db.ListCategories(r.Context())
	if err != nil {
		logging.Error("Failed to list categories: %v", err)
		writeJSONError(w, "Failed to list categories", http.StatusInternalServerError)
		return
	}
	writeJSONStatus(w, http.StatusOK, categories)
}

// CreateCategory creates a category, or returns the existing one of the
// same name.
// POST /api/categories
func (h *Handlers) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeJSONError(w, "Name is required", http.StatusBadRequest)
		return
	}

	c, err := h.db.CreateCategory(r.Context(), req.Name)
	if err != nil {
		logging.Error("Failed to create category %q: %v", req.Name, err)
		writeJSONError(w, "Failed to create category", http.StatusInternalServerError)
		return
	}
	writeJSONStatus(w, http.StatusCreated, c)
}
