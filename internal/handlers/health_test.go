package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHealth(t *testing.T) {
	original := engine
	engine = nil
	t.Cleanup(func() { engine = original })

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	Health(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected Content-Type application/json, got %q", ct)
	}

	var resp healthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != "ok" || resp.Database != "unconfigured" {
		t.Fatalf("unexpected health response: %+v", resp)
	}
	if resp.Time.IsZero() {
		t.Fatal("expected response time to be populated")
	}
}

func TestHealthPingsStore(t *testing.T) {
	svc := withTestEngine(t)

	w := doJSON(t, Health, http.MethodGet, "/healthz", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if resp := decodeBody[healthResponse](t, w); resp.Database != "ok" {
		t.Fatalf("expected reachable database, got %+v", resp)
	}

	sqlDB, err := svc.Store().DB().DB()
	if err != nil {
		t.Fatalf("failed to get sql db: %v", err)
	}
	if err := sqlDB.Close(); err != nil {
		t.Fatalf("failed to close sql db: %v", err)
	}

	w = doJSON(t, Health, http.MethodGet, "/healthz", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503 after the store closed, got %d", w.Code)
	}
	if resp := decodeBody[healthResponse](t, w); resp.Status != "degraded" || resp.Database != "unavailable" {
		t.Fatalf("unexpected health response: %+v", resp)
	}
}
