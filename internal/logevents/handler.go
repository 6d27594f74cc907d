package logevents

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"log/slog"
)

// FaultSink receives every ingested message so fault lines can kick off
// the autofix pipeline.
type FaultSink interface {
	HandleLine(message string)
}

type ingestRequest struct {
	LogGroup  string `json:"log_group"`
	LogStream string `json:"log_stream"`
	Events    []struct {
		Timestamp int64  `json:"timestamp"`
		Message   string `json:"message"`
	} `json:"events"`
}

// IngestHandler accepts shipped log batches from the external
// log-forwarding service.
type IngestHandler struct {
	Store       *Store
	Logger      *slog.Logger
	IngestToken string
	Sink        FaultSink
}

func (h *IngestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h.IngestToken != "" {
		if r.Header.Get("X-Api-Key") != h.IngestToken {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
	}

	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if req.LogGroup == "" || len(req.Events) == 0 {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	batch := make([]*Event, 0, len(req.Events))
	for _, e := range req.Events {
		if e.Message == "" {
			continue
		}
		batch = append(batch, &Event{
			LogGroup:    req.LogGroup,
			LogStream:   req.LogStream,
			TimestampMS: e.Timestamp,
			Message:     e.Message,
		})
	}
	if err := h.Store.InsertBatch(r.Context(), batch); err != nil {
		h.Logger.Error("insert log batch", "err", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	if h.Sink != nil {
		for _, e := range batch {
			h.Sink.HandleLine(e.Message)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]int{"ingested": len(batch)})
}

// QueryHandler lets operators inspect the raw shipped log lines.
type QueryHandler struct {
	Store  *Store
	Logger *slog.Logger
}

func (h *QueryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	filter := Filter{}
	filter.LogGroup = q.Get("group")
	if sinceStr := q.Get("since"); sinceStr != "" {
		if t, err := time.Parse(time.RFC3339, sinceStr); err == nil {
			filter.Since = t
		}
	}
	if untilStr := q.Get("until"); untilStr != "" {
		if t, err := time.Parse(time.RFC3339, untilStr); err == nil {
			filter.Until = t
		}
	}
	if limitStr := q.Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = l
		}
	}

	events, err := h.Store.List(r.Context(), filter)
	if err != nil {
		h.Logger.Error("list log events", "err", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(events)
}
