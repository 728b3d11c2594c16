package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/optikiln/optikiln/pkg/stores"
	"github.com/optikiln/optikiln/pkg/telemetry"
)

type fakeSource struct {
	recs    []stores.Recommendation
	lastRun time.Time
}

func (f *fakeSource) LatestRecommendations(context.Context) ([]stores.Recommendation, error) {
	return f.recs, nil
}

func (f *fakeSource) LastRun(context.Context) (time.Time, error) {
	return f.lastRun, nil
}

func newTestServer(source *fakeSource) *Server {
	cycles := telemetry.NewCycleLog(8)
	cycles.Add(telemetry.CycleRecord{Number: 7, Status: "success", Recommendations: 2})
	status := func() (string, []string) {
		return "/etc/optikiln/strategy.yaml", []string{"fuel_rate"}
	}
	return New(":0", source, cycles, nil, status, zerolog.Nop())
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func TestServer_Health(t *testing.T) {
	w := get(t, newTestServer(&fakeSource{}), "/healthz")
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
}

func TestServer_LatestRecommendations(t *testing.T) {
	source := &fakeSource{recs: []stores.Recommendation{
		{Cycle: 7, VariableID: "fuel_rate", Current: 10, Recommended: 12, Delta: 2},
	}}
	w := get(t, newTestServer(source), "/api/v1/recommendations/latest")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var body struct {
		Recommendations []stores.Recommendation `json:"recommendations"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(body.Recommendations) != 1 || body.Recommendations[0].VariableID != "fuel_rate" {
		t.Errorf("Unexpected body: %+v", body)
	}
}

func TestServer_LatestRecommendationsEmpty(t *testing.T) {
	w := get(t, newTestServer(&fakeSource{}), "/api/v1/recommendations/latest")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var body struct {
		Recommendations []stores.Recommendation `json:"recommendations"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if body.Recommendations == nil {
		t.Error("Expected an empty array, got null")
	}
}

func TestServer_RecentCycles(t *testing.T) {
	w := get(t, newTestServer(&fakeSource{}), "/api/v1/cycles")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var body struct {
		Cycles []telemetry.CycleRecord `json:"cycles"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(body.Cycles) != 1 || body.Cycles[0].Number != 7 {
		t.Errorf("Unexpected body: %+v", body)
	}
}

func TestServer_Status(t *testing.T) {
	lastRun := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	w := get(t, newTestServer(&fakeSource{lastRun: lastRun}), "/api/v1/status")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var status Status
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if status.Strategy != "/etc/optikiln/strategy.yaml" {
		t.Errorf("Unexpected strategy path: %s", status.Strategy)
	}
	if len(status.OptimizableVariables) != 1 || status.OptimizableVariables[0] != "fuel_rate" {
		t.Errorf("Unexpected optimizable variables: %v", status.OptimizableVariables)
	}
	if !status.LastRun.Equal(lastRun) {
		t.Errorf("Expected last run %v, got %v", lastRun, status.LastRun)
	}
	if status.LastCycle == nil || status.LastCycle.Number != 7 {
		t.Errorf("Unexpected last cycle: %+v", status.LastCycle)
	}
}
