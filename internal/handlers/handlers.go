package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"media-pipeline/internal/database"
	"media-pipeline/internal/layout"
)

// Reprocessor re-dispatches the processing jobs of an existing record.
type Reprocessor interface {
	Reprocess(ctx context.Context, id int64) (int, error)
}

// Handlers serves the HTTP API.
type Handlers struct {
	db        *database.Database
	pipeline  Reprocessor
	layout    layout.Layout
	maxUpload int64
	started   time.Time

	// uploadMu serializes source name reservation.
	uploadMu sync.Mutex
}

// New creates Handlers. maxUpload bounds the request body of an ingest;
// zero or less disables the limit.
func New(db *database.Database, p Reprocessor, l layout.Layout, maxUpload int64) *Handlers {
	return &Handlers{
		db:        db,
		pipeline:  p,
		layout:    l,
		maxUpload: maxUpload,
		started:   time.Now(),
	}
}

// Register adds every route to r.
func (h *Handlers) Register(r *mux.Router) {
	// Health check and version routes
	r.HandleFunc("/health", h.HealthCheck).Methods("GET")
	r.HandleFunc("/healthz", h.HealthCheck).Methods("GET")
	r.HandleFunc("/livez", h.LivenessCheck).Methods("GET", "HEAD")
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods("GET")
	r.HandleFunc("/version", h.GetVersion).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()

	// Records
	api.HandleFunc("/videos", h.ListVideos).Methods("GET")
	api.HandleFunc("/videos", h.CreateVideo).Methods("POST")
	api.HandleFunc("/videos/{id:[0-9]+}", h.GetVideo).Methods("GET")
	api.HandleFunc("/videos/{id:[0-9]+}", h.DeleteVideo).Methods("DELETE")
	api.HandleFunc("/videos/{id:[0-9]+}/reprocess", h.ReprocessVideo).Methods("POST")
	api.HandleFunc("/categories", h.ListCategories).Methods("GET")
	api.HandleFunc("/categories", h.CreateCategory).Methods("POST")

	// HLS delivery
	api.HandleFunc("/video/{id:[0-9]+}/{resolution:[0-9]+p}/index.m3u8", h.GetManifest).Methods("GET", "HEAD")
	api.HandleFunc("/video/{id:[0-9]+}/{resolution:[0-9]+p}/{segment:segment_[0-9]{3,}\\.ts}", h.GetSegment).Methods("GET", "HEAD")

	// Jobs
	api.HandleFunc("/jobs", h.ListJobs).Methods("GET")
	api.HandleFunc("/stats", h.GetStats).Methods("GET")
}
