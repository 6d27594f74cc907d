package agent

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"log/slog"

	"mendcore/internal/auth"
	"mendcore/internal/incident"
	"mendcore/internal/playbook"
)

// CodeFixer turns an analyzed incident into a repository patch. *Fixer
// satisfies it; the handler keeps the interface so tests can fake the LLM.
type CodeFixer interface {
	Fix(ctx context.Context, inc *incident.Incident, analysis string) (string, error)
}

// ActionHandler serves the remediation-agent actions on an incident:
//
//	POST /api/v1/incidents/{id}/agent-plan
//	POST /api/v1/incidents/{id}/agent-execute
//	POST /api/v1/incidents/{id}/agent-fix
type ActionHandler struct {
	Incidents   *incident.Service
	Playbooks   *playbook.Table
	Fixer       CodeFixer
	Logger      *slog.Logger
	AutoApprove bool
}

func (h *ActionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	op, ok := auth.OperatorFromContext(r.Context())
	if !ok {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	// Path is /api/v1/incidents/{id}/agent-*
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) < 5 {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	id, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	inc, err := h.Incidents.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, incident.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
			return
		}
		h.Logger.Error("get incident", "id", id, "err", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	switch parts[4] {
	case "agent-plan":
		writeJSON(w, http.StatusOK, BuildPlan(inc, h.Playbooks))

	case "agent-execute":
		h.agentExecute(w, r, op, inc)

	case "agent-fix":
		h.agentFix(w, r, op, inc)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// agentExecute approves the current plan and hands back the execution
// payload for the remediation pipeline. It does not run the script here;
// execution stays in the unattended pipeline.
func (h *ActionHandler) agentExecute(w http.ResponseWriter, r *http.Request, op *auth.Operator, inc *incident.Incident) {
	if !op.CanApprove() {
		w.WriteHeader(http.StatusForbidden)
		return
	}

	var payload struct {
		Approve *bool `json:"approve"`
	}
	_ = json.NewDecoder(r.Body).Decode(&payload)
	approved := h.AutoApprove
	if payload.Approve != nil {
		approved = *payload.Approve
	}

	plan := BuildPlan(inc, h.Playbooks)
	result := ApprovePlan(plan, approved)

	if result.Status == StatusApprovedForPipeline {
		inc.Remediation = plan.SelectedAction.Summary
		if inc.RootCause == "" {
			inc.RootCause = plan.Evidence.RAGSummary
		}
		if err := h.Incidents.Update(r.Context(), inc); err != nil {
			h.Logger.Error("store approved plan", "incident", inc.ID, "err", err)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	}

	status := http.StatusBadRequest
	if result.Status == StatusApprovedForPipeline {
		status = http.StatusOK
	}
	writeJSON(w, status, result)
}

// agentFix asks the code-fix agent to patch the repository for this
// incident, using the stored retrieval snapshot as context.
func (h *ActionHandler) agentFix(w http.ResponseWriter, r *http.Request, op *auth.Operator, inc *incident.Incident) {
	if !op.CanApprove() {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	if h.Fixer == nil {
		writeJSON(w, http.StatusServiceUnavailable,
			map[string]string{"error": "code-fix agent is not configured"})
		return
	}

	summary, err := h.Fixer.Fix(r.Context(), inc, inc.RAGResponse)
	if err != nil {
		h.Logger.Error("agent fix", "incident", inc.ID, "err", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"summary": summary})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
