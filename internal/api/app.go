// Package api serves the local status API over HTTP.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/yairfalse/vahti/history"
	"github.com/yairfalse/vahti/internal/events"
	"github.com/yairfalse/vahti/types"
)

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 1000
)

// Refresher runs a status refresh on demand. Implemented by the daemon.
type Refresher interface {
	Refresh(ctx context.Context, trigger string) (*types.Snapshot, error)
}

type App struct {
	logger  zerolog.Logger
	broker  *events.Broker
	store   *history.Store
	refresh Refresher
	metrics prometheus.Gatherer
}

func NewApp(logger zerolog.Logger, broker *events.Broker, store *history.Store, refresh Refresher, metrics prometheus.Gatherer) *App {
	return &App{logger: logger, broker: broker, store: store, refresh: refresh, metrics: metrics}
}

func (a *App) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { writeText(w, http.StatusOK, "ok\n") })
	r.Get("/readyz", a.getReady)
	if a.metrics != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(a.metrics, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", a.getStatus)
		r.Post("/refresh", a.postRefresh)
		r.Get("/history", a.getHistory)
		r.Get("/watch", a.watchSnapshots)
	})

	return r
}

// getReady reports ready once the first refresh has published a snapshot.
func (a *App) getReady(w http.ResponseWriter, r *http.Request) {
	if a.broker.Latest() == nil {
		writeText(w, http.StatusServiceUnavailable, "no snapshot yet\n")
		return
	}
	writeText(w, http.StatusOK, "ready\n")
}

func (a *App) getStatus(w http.ResponseWriter, r *http.Request) {
	if snap := a.broker.Latest(); snap != nil {
		writeJSON(w, http.StatusOK, snap)
		return
	}

	// Cold cache after restart; fall back to the persisted snapshot.
	snap, err := a.store.Latest()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	if snap == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "no snapshot yet"})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (a *App) postRefresh(w http.ResponseWriter, r *http.Request) {
	snap, err := a.refresh.Refresh(r.Context(), "api")
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (a *App) getHistory(w http.ResponseWriter, r *http.Request) {
	since, limit, err := parseHistoryQuery(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}

	snaps, err := a.store.List(since, limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, snaps)
}

func parseHistoryQuery(r *http.Request) (time.Time, int, error) {
	v := r.URL.Query()

	var since time.Time
	if s := v.Get("since"); s != "" {
		t, err := parseTimeOrAgo(s)
		if err != nil {
			return time.Time{}, 0, fmt.Errorf("since: %w", err)
		}
		since = t
	}

	limit := defaultHistoryLimit
	if s := v.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			return time.Time{}, 0, fmt.Errorf("limit: must be a positive integer")
		}
		limit = n
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	return since, limit, nil
}

// parseTimeOrAgo accepts RFC3339 timestamps or bare durations meaning
// "that long ago", e.g. since=24h.
func parseTimeOrAgo(s string) (time.Time, error) {
	if strings.ContainsAny(s, "smhdw") && !strings.Contains(s, "T") {
		d, err := time.ParseDuration(s)
		if err != nil {
			return time.Time{}, err
		}
		return time.Now().UTC().Add(-d), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeText(w http.ResponseWriter, status int, s string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(s))
}
