package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mlim70/MPONC-Streamlined/internal/calibration"
	"github.com/mlim70/MPONC-Streamlined/internal/city"
	"github.com/mlim70/MPONC-Streamlined/internal/engine"
	"github.com/mlim70/MPONC-Streamlined/internal/persistence"
	"github.com/mlim70/MPONC-Streamlined/internal/transport"
)

func ptr(v float64) *float64 { return &v }

// seededServer stores one finished run with a single snapshot at step 10.
func seededServer(t *testing.T) (*Server, int64) {
	t.Helper()
	db, err := persistence.Open(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	run := engine.RunInfo{ID: "run-1", Params: engine.Params{Rho: 2, Alpha: 0.5}, Agents: 2, Steps: 10, Seed: 2050, Started: time.Now()}
	if err := db.BeginRun(ctx, run); err != nil {
		t.Fatalf("begin: %v", err)
	}
	byMode := make([]city.ModeEndowments, 2)
	byMode[0].Sum[transport.ModeCar] = 60000
	byMode[0].Count[transport.ModeCar] = 1
	snap := engine.Snapshot{
		Key:   engine.Key{Rho: 2, Alpha: 0.5, Agents: 2, Step: 10},
		RunID: "run-1",
		Locations: []city.SummaryRow{
			{Index: 0, ID: "A", Name: "Downtown", Population: 1, AvgIncome: 60000, AvgEndowment: 1,
				Beltline: ptr(1), Amenity: 1, ExpectedIncome: ptr(50000)},
			{Index: 1, ID: "B", Name: "Midtown", Population: 1, AvgIncome: 40000, Amenity: 0.25},
		},
		ByMode: byMode,
		Preferences: []engine.AgentPreference{
			{ID: 0, Mode: transport.ModeCar, Endowment: 60000, Location: 0, Average: []float64{0.7, 0.3}},
			{ID: 1, Mode: transport.ModeTransit, Endowment: 40000, Location: 1, Average: []float64{0.2, 0.8}},
		},
	}
	if err := db.SaveSnapshot(ctx, snap); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := db.FinishRun(ctx, "run-1", nil); err != nil {
		t.Fatalf("finish: %v", err)
	}
	snaps, err := db.ListSnapshots(ctx, "run-1")
	if err != nil || len(snaps) != 1 {
		t.Fatalf("list snapshots: %v %v", snaps, err)
	}
	return &Server{Store: db, Prefix: "atl"}, snaps[0].ID
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestRunsEndpoints(t *testing.T) {
	srv, _ := seededServer(t)
	h := srv.Handler()

	rec := get(t, h, "/api/v1/runs")
	if rec.Code != http.StatusOK {
		t.Fatalf("runs: %d", rec.Code)
	}
	runs := decode[[]persistence.RunRecord](t, rec)
	if len(runs) != 1 || runs[0].ID != "run-1" || runs[0].Status != persistence.StatusDone {
		t.Fatalf("unexpected runs %+v", runs)
	}

	rec = get(t, h, "/api/v1/runs?status=failed")
	if runs := decode[[]persistence.RunRecord](t, rec); len(runs) != 0 {
		t.Fatalf("status filter kept %+v", runs)
	}

	rec = get(t, h, "/api/v1/runs/run-1/snapshots")
	snaps := decode[[]persistence.SnapshotRecord](t, rec)
	if len(snaps) != 1 || snaps[0].Step != 10 {
		t.Fatalf("unexpected snapshots %+v", snaps)
	}

	if rec := get(t, h, "/api/v1/runs/missing"); rec.Code != http.StatusNotFound {
		t.Fatalf("missing run: %d", rec.Code)
	}
	if rec := get(t, h, "/api/v1/runs/missing/snapshots"); rec.Code != http.StatusNotFound {
		t.Fatalf("missing run snapshots: %d", rec.Code)
	}

	status := decode[map[string]any](t, get(t, h, "/api/v1/status"))
	if status["runs"] != float64(1) {
		t.Fatalf("unexpected status %v", status)
	}
}

func TestSnapshotEndpoints(t *testing.T) {
	srv, id := seededServer(t)
	h := srv.Handler()

	rec := get(t, h, fmt.Sprintf("/api/v1/snapshots/%d", id))
	if rec.Code != http.StatusOK {
		t.Fatalf("snapshot: %d %s", rec.Code, rec.Body.String())
	}
	body := decode[struct {
		Locations   []city.SummaryRow `json:"locations"`
		Calibration calibration.Fit   `json:"calibration"`
	}](t, rec)
	if len(body.Locations) != 2 || body.Locations[1].Beltline != nil {
		t.Fatalf("unexpected locations %+v", body.Locations)
	}
	if body.Calibration.Total != 10000 || body.Calibration.Matched != 1 {
		t.Fatalf("unexpected fit %+v", body.Calibration)
	}

	prefs := decode[[]engine.AgentPreference](t, get(t, h, fmt.Sprintf("/api/v1/snapshots/%d/preferences", id)))
	if len(prefs) != 2 || prefs[1].Average[1] != 0.8 {
		t.Fatalf("unexpected preferences %+v", prefs)
	}

	rec = get(t, h, fmt.Sprintf("/api/v1/snapshots/%d/csv", id))
	if ct := rec.Header().Get("Content-Type"); ct != "text/csv" {
		t.Fatalf("content type %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "atl_2_0.5_2_10_data.csv") {
		t.Fatalf("content disposition %q", cd)
	}
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	if len(lines) != 3 || !strings.Contains(lines[2], persistence.NA) {
		t.Fatalf("unexpected csv %q", rec.Body.String())
	}

	if rec := get(t, h, "/api/v1/snapshots/abc"); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad id: %d", rec.Code)
	}
	if rec := get(t, h, "/api/v1/snapshots/999"); rec.Code != http.StatusNotFound {
		t.Fatalf("missing snapshot: %d", rec.Code)
	}
}

func TestCalibrationRateLimited(t *testing.T) {
	srv, _ := seededServer(t)
	srv.Limiter = NewRateLimiter(1, time.Minute)
	h := srv.Handler()

	rec := get(t, h, "/api/v1/calibration")
	if rec.Code != http.StatusOK {
		t.Fatalf("calibration: %d", rec.Code)
	}
	entries := decode[[]calibration.Entry](t, rec)
	if len(entries) != 1 || entries[0].RunID != "run-1" || entries[0].Fit.Total != 10000 {
		t.Fatalf("unexpected ranking %+v", entries)
	}

	rec = get(t, h, "/api/v1/calibration")
	if rec.Code != http.StatusTooManyRequests || rec.Header().Get("Retry-After") == "" {
		t.Fatalf("expected 429 with Retry-After, got %d", rec.Code)
	}
}

func TestRateLimiterWindow(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	clock := time.Unix(0, 0)
	rl.now = func() time.Time { return clock }

	if !rl.Allow("a") || !rl.Allow("a") || rl.Allow("a") {
		t.Fatal("expected two requests per window")
	}
	if !rl.Allow("b") {
		t.Fatal("clients must not share a bucket")
	}
	if got := rl.RetryAfter("a"); got != 61 {
		t.Fatalf("retry after = %d, want 61", got)
	}

	clock = clock.Add(time.Minute)
	if !rl.Allow("a") {
		t.Fatal("window should reset")
	}

	clock = clock.Add(5 * time.Minute)
	rl.Allow("c")
	if _, ok := rl.buckets["b"]; ok {
		t.Fatal("stale bucket not swept")
	}
}

func TestCORS(t *testing.T) {
	srv, _ := seededServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/runs", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent || rec.Header().Get("Access-Control-Allow-Origin") != "http://localhost:5173" {
		t.Fatalf("preflight: %d %v", rec.Code, rec.Header())
	}
}
