package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"media-pipeline/internal/database"
)

func TestListJobs(t *testing.T) {
	s := newTestServer(t, 0)
	ctx := context.Background()
	v := decodeVideo(t, s.do(uploadRequest(t, map[string]string{"title": "x"}, "", nil)))

	runs := []database.JobRun{
		{Key: "render:1:480", Kind: "render", VideoID: v.ID, Param: "480", Status: database.JobStatusSucceeded, Attempts: 1},
		{Key: "package:1:720", Kind: "package", VideoID: v.ID, Param: "720", Status: database.JobStatusFailed, Attempts: 3, LastError: "encode failed"},
	}
	for _, run := range runs {
		if err := s.db.RecordJobResult(ctx, run); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		query string
		code  int
		count int
	}{
		{"", http.StatusOK, 2},
		{"?status=failed", http.StatusOK, 1},
		{"?status=retrying", http.StatusOK, 0},
		{"?status=bogus", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := s.do(httptest.NewRequest(http.MethodGet, "/api/jobs"+tt.query, nil))
			if rec.Code != tt.code {
				t.Fatalf("Expected status %d, got %d", tt.code, rec.Code)
			}
			if tt.code != http.StatusOK {
				return
			}
			var got []database.JobRun
			if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
				t.Fatal(err)
			}
			if len(got) != tt.count {
				t.Errorf("Expected %d runs, got %d", tt.count, len(got))
			}
		})
	}
}

func TestGetStats(t *testing.T) {
	s := newTestServer(t, 0)
	s.do(uploadRequest(t, map[string]string{"title": "x"}, "", nil))

	rec := s.do(httptest.NewRequest(http.MethodGet, "/api/stats", nil))
	var stats StatsResponse
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
		t.Fatal(err)
	}
	if stats.TotalVideos != 1 {
		t.Errorf("Expected 1 video, got %d", stats.TotalVideos)
	}
}
