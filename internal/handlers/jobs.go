package handlers

import (
	"net/http"

	"media-pipeline/internal/database"
	"media-pipeline/internal/logging"
)

var jobStatuses = map[string]bool{
	database.JobStatusSucceeded: true,
	database.JobStatusRetrying:  true,
	database.JobStatusFailed:    true,
}

// ListJobs returns the job ledger, optionally filtered by status.
// GET /api/jobs?status=failed
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status != "" && !jobStatuses[status] {
		writeJSONError(w, "Unknown status "+status, http.StatusBadRequest)
		return
	}

	runs, err := h.db.ListJobRuns(r.Context(), status)
	if err != nil {
		logging.Error("Failed to list jobs: %v", err)
		writeJSONError(w, "Failed to list jobs", http.StatusInternalServerError)
		return
	}
	writeJSONStatus(w, http.StatusOK, runs)
}

// StatsResponse summarizes the catalog and the job ledger.
type StatsResponse struct {
	TotalVideos     int            `json:"totalVideos"`
	TotalCategories int            `json:"totalCategories"`
	Jobs            map[string]int `json:"jobs"`
}

// GetStats returns catalog statistics.
// GET /api/stats
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.db.GetStats(r.Context())
	if err != nil {
		logging.Error("Failed to get stats: %v", err)
		writeJSONError(w, "Failed to get stats", http.StatusInternalServerError)
		return
	}
	writeJSONStatus(w, http.StatusOK, StatsResponse{
		TotalVideos:     stats.TotalVideos,
		TotalCategories: stats.TotalCategories,
		Jobs:            stats.JobsByStatus,
	})
}
