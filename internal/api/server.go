// Package api provides the read-only HTTP API over stored runs and
// snapshots.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mlim70/MPONC-Streamlined/internal/calibration"
	"github.com/mlim70/MPONC-Streamlined/internal/city"
	"github.com/mlim70/MPONC-Streamlined/internal/engine"
	"github.com/mlim70/MPONC-Streamlined/internal/persistence"
)

// Store is the read side of the snapshot database.
type Store interface {
	ListRuns(ctx context.Context) ([]persistence.RunRecord, error)
	GetRun(ctx context.Context, id string) (persistence.RunRecord, error)
	ListSnapshots(ctx context.Context, runID string) ([]persistence.SnapshotRecord, error)
	GetSnapshot(ctx context.Context, id int64) (persistence.SnapshotRecord, error)
	LatestSnapshots(ctx context.Context) ([]persistence.SnapshotRecord, error)
	LoadSummary(ctx context.Context, snapshotID int64) ([]city.SummaryRow, error)
	LoadPreferences(ctx context.Context, snapshotID int64) ([]engine.AgentPreference, error)
}

// Server serves stored simulation output over HTTP.
type Server struct {
	Store  Store
	Port   int
	Prefix string // File name prefix for CSV downloads

	// Limits the endpoints that scan many snapshots. Nil disables limiting.
	Limiter *RateLimiter
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/status", s.handleStatus)
	mux.HandleFunc("GET /api/v1/runs", s.handleRuns)
	mux.HandleFunc("GET /api/v1/runs/{id}", s.handleRun)
	mux.HandleFunc("GET /api/v1/runs/{id}/snapshots", s.handleRunSnapshots)
	mux.HandleFunc("GET /api/v1/snapshots/{id}", s.handleSnapshot)
	mux.HandleFunc("GET /api/v1/snapshots/{id}/preferences", s.handlePreferences)
	mux.HandleFunc("GET /api/v1/snapshots/{id}/csv", s.handleSnapshotCSV)
	mux.HandleFunc("GET /api/v1/calibration", RateLimitMiddleware(s.Limiter, s.handleCalibration))

	return corsMiddleware(mux)
}

// Start serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", addr)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		slog.Info("HTTP API stopping")
		return srv.Shutdown(shutdownCtx)
	}
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Set CORS_ORIGINS to a comma-separated list of allowed origins.
// Localhost dev servers are always allowed.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	runs, err := s.Store.ListRuns(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	counts := map[string]int{}
	for _, run := range runs {
		counts[run.Status]++
	}
	writeJSON(w, map[string]any{
		"name":   "mponc",
		"runs":   len(runs),
		"status": counts,
	})
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.Store.ListRuns(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if status := r.URL.Query().Get("status"); status != "" {
		filtered := runs[:0]
		for _, run := range runs {
			if run.Status == status {
				filtered = append(filtered, run)
			}
		}
		runs = filtered
	}
	if runs == nil {
		runs = []persistence.RunRecord{}
	}
	writeJSON(w, runs)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.Store.GetRun(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, run)
}

func (s *Server) handleRunSnapshots(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.Store.GetRun(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	snaps, err := s.Store.ListSnapshots(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if snaps == nil {
		snaps = []persistence.SnapshotRecord{}
	}
	writeJSON(w, snaps)
}

// snapshotID parses the {id} path segment.
func snapshotID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: snapshot id %q", errBadRequest, r.PathValue("id"))
	}
	return id, nil
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	id, err := snapshotID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	snap, err := s.Store.GetSnapshot(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	rows, err := s.Store.LoadSummary(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{
		"snapshot":    snap,
		"locations":   rows,
		"calibration": calibration.Score(rows),
	})
}

func (s *Server) handlePreferences(w http.ResponseWriter, r *http.Request) {
	id, err := snapshotID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if _, err := s.Store.GetSnapshot(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	prefs, err := s.Store.LoadPreferences(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, prefs)
}

func (s *Server) handleSnapshotCSV(w http.ResponseWriter, r *http.Request) {
	id, err := snapshotID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	snap, err := s.Store.GetSnapshot(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	rows, err := s.Store.LoadSummary(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", snap.Key().FileStem(s.prefix())+"_data.csv"))
	if err := persistence.WriteSummaryCSV(w, rows); err != nil {
		slog.Error("csv export failed", "snapshot", id, "error", err)
	}
}

func (s *Server) handleCalibration(w http.ResponseWriter, r *http.Request) {
	snaps, err := s.Store.LatestSnapshots(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	entries := make([]calibration.Entry, 0, len(snaps))
	for _, snap := range snaps {
		rows, err := s.Store.LoadSummary(r.Context(), snap.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		entries = append(entries, calibration.Entry{Key: snap.Key(), RunID: snap.RunID, Fit: calibration.Score(rows)})
	}
	writeJSON(w, calibration.Rank(entries))
}

func (s *Server) prefix() string {
	if s.Prefix == "" {
		return "mponc"
	}
	return s.Prefix
}

var errBadRequest = errors.New("bad request")

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, persistence.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, errBadRequest):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		slog.Error("api request failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
