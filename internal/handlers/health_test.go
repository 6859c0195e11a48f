package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"media-pipeline/internal/startup"
)

func TestHealthCheck(t *testing.T) {
	s := newTestServer(t, 0)

	for _, path := range []string{"/health", "/healthz"} {
		rec := s.do(httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected status 200, got %d", path, rec.Code)
		}
		var resp HealthResponse
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatal(err)
		}
		if resp.Status != statusHealthy || !resp.Ready || resp.Database != "ok" {
			t.Errorf("Unexpected health response: %+v", resp)
		}
		if resp.Version != startup.Version {
			t.Errorf("Expected version %s, got %s", startup.Version, resp.Version)
		}
	}
}

func TestHealthCheckDatabaseDown(t *testing.T) {
	s := newTestServer(t, 0)
	_ = s.db.Close()

	rec := s.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503, got %d", rec.Code)
	}
	rec = s.do(httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected readyz 503, got %d", rec.Code)
	}
}

func TestLivenessCheck(t *testing.T) {
	s := newTestServer(t, 0)

	rec := s.do(httptest.NewRequest(http.MethodGet, "/livez", nil))
	if rec.Code != http.StatusOK || rec.Body.Len() == 0 {
		t.Errorf("Expected 200 with body, got %d", rec.Code)
	}

	rec = s.do(httptest.NewRequest(http.MethodHead, "/livez", nil))
	if rec.Code != http.StatusOK || rec.Body.Len() != 0 {
		t.Errorf("Expected 200 without body for HEAD, got %d with %d bytes", rec.Code, rec.Body.Len())
	}
}

func TestReadinessCheck(t *testing.T) {
	s := newTestServer(t, 0)
	rec := s.do(httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rec.Code)
	}
}

func TestGetVersion(t *testing.T) {
	s := newTestServer(t, 0)
	rec := s.do(httptest.NewRequest(http.MethodGet, "/version", nil))

	var info startup.BuildInfo
	if err := json.NewDecoder(rec.Body).Decode(&info); err != nil {
		t.Fatal(err)
	}
	if info.Version != startup.Version {
		t.Errorf("Expected version %s, got %s", startup.Version, info.Version)
	}
}
