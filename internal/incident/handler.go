package incident

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"log/slog"

	"mendcore/internal/auth"
)

type ListHandler struct {
	Service *Service
	Logger  *slog.Logger
}

func (h *ListHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.list(w, r)
	case http.MethodPost:
		h.create(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *ListHandler) list(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}
	incs, err := h.Service.List(r.Context(), limit)
	if err != nil {
		h.Logger.Error("list incidents", "err", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, incs)
}

func (h *ListHandler) create(w http.ResponseWriter, r *http.Request) {
	op, ok := auth.OperatorFromContext(r.Context())
	if !ok {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if op.Role == auth.RoleReadOnly {
		w.WriteHeader(http.StatusForbidden)
		return
	}

	var payload struct {
		ErrorCode   string   `json:"error_code"`
		Symptoms    string   `json:"symptoms"`
		Breadcrumbs []string `json:"breadcrumbs"`
	}
	// Body is optional; an empty create still records an UNKNOWN incident.
	_ = json.NewDecoder(r.Body).Decode(&payload)
	if payload.ErrorCode == "" {
		payload.ErrorCode = "UNKNOWN"
	}

	inc, err := h.Service.Record(r.Context(), payload.ErrorCode, payload.Symptoms, payload.Breadcrumbs)
	if err != nil {
		h.Logger.Error("record incident", "err", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, inc)
}

// DetailHandler serves one incident and its lifecycle actions. The
// remediation-agent actions live in their own handler upstream:
//
//	GET  /api/v1/incidents/{id}
//	POST /api/v1/incidents/{id}/analyze
//	POST /api/v1/incidents/{id}/resolve
type DetailHandler struct {
	Service *Service
	Logger  *slog.Logger
}

func (h *DetailHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	op, ok := auth.OperatorFromContext(r.Context())
	if !ok {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	// Path is /api/v1/incidents/{id}[/action]
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) < 4 {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	id, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	action := ""
	if len(parts) > 4 {
		action = parts[4]
	}

	inc, err := h.Service.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
			return
		}
		h.Logger.Error("get incident", "id", id, "err", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	if action == "" {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, inc)
		return
	}

	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	switch action {
	case "analyze":
		writeJSON(w, http.StatusOK, h.Service.Analyze(r.Context(), inc))

	case "resolve":
		h.resolve(w, r, op, inc)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *DetailHandler) resolve(w http.ResponseWriter, r *http.Request, op *auth.Operator, inc *Incident) {
	if !op.CanApprove() {
		w.WriteHeader(http.StatusForbidden)
		return
	}

	var payload struct {
		RootCause    string `json:"root_cause"`
		Remediation  string `json:"remediation"`
		Verification string `json:"verification"`
		Resolved     *bool  `json:"resolved"`
	}
	_ = json.NewDecoder(r.Body).Decode(&payload)
	resolved := true
	if payload.Resolved != nil {
		resolved = *payload.Resolved
	}

	updated, err := h.Service.Resolve(r.Context(), inc,
		payload.RootCause, payload.Remediation, payload.Verification, resolved)
	if err != nil {
		h.Logger.Error("resolve incident", "incident", inc.ID, "err", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
