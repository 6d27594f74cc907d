package recon

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"log/slog"

	"mendcore/internal/logevents"
)

// Handler serves log-derived incidents. It reads stored log events and
// reconstructs incident state on every request; nothing here writes to
// the incident store.
type Handler struct {
	Events   *logevents.Store
	Logger   *slog.Logger
	Lookback time.Duration
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	lookback := h.Lookback
	if lookback <= 0 {
		lookback = time.Hour
	}
	if raw := r.URL.Query().Get("lookback_minutes"); raw != "" {
		if mins, err := strconv.Atoi(raw); err == nil && mins > 0 {
			lookback = time.Duration(mins) * time.Minute
		}
	}

	filter := logevents.Filter{
		LogGroup: r.URL.Query().Get("group"),
		Since:    time.Now().UTC().Add(-lookback),
		Limit:    2000,
	}
	events, err := h.Events.List(r.Context(), filter)
	if err != nil {
		h.Logger.Error("list log events", "err", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	opts := Options{}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			opts.MaxIncidents = n
		}
	}

	var incidents []Incident
	switch r.URL.Query().Get("mode") {
	case "buckets":
		strict := r.URL.Query().Get("strict") != "false"
		incidents = BucketIncidents(events, BucketOptions{Options: opts, OnlyFaultCodes: strict})
	default:
		incidents = RebuildRouterIncidents(events, opts)
	}
	if incidents == nil {
		incidents = []Incident{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"incidents": incidents,
		"count":     len(incidents),
	})
}
