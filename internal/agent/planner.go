// Package agent implements the deterministic remediation workflow: plan,
// approval gate, executor, and the LLM fix agent.
//
// The planner only ever selects from the build-time playbook table; model
// output can contribute evidence text but can never name an action.
package agent

import (
	"encoding/json"
	"math"
	"strings"

	"mendcore/internal/fault"
	"mendcore/internal/incident"
	"mendcore/internal/playbook"
)

const (
	DecisionReadyForApproval     = "ready_for_approval"
	DecisionManualTriageRequired = "manual_triage_required"
)

// SelectedAction is the action portion of a plan. FaultCode is empty for
// the manual-triage fallback.
type SelectedAction struct {
	FaultCode        string `json:"fault_code"`
	ActionID         string `json:"action_id"`
	ScriptPath       string `json:"script_path"`
	Summary          string `json:"summary"`
	VerificationHint string `json:"verification_hint"`
}

// EvidenceSummary condenses the retrieval snapshot backing a plan.
type EvidenceSummary struct {
	RAGSummary           string `json:"rag_summary"`
	RetrievedMemoryCount int    `json:"retrieved_memory_count"`
	RetrievedFileCount   int    `json:"retrieved_file_count"`
}

// Plan is an approval-gated remediation proposal for one incident.
type Plan struct {
	IncidentID       int64           `json:"incident_id"`
	Workflow         []string        `json:"workflow"`
	Decision         string          `json:"decision"`
	RequiresApproval bool            `json:"requires_approval"`
	Confidence       float64         `json:"confidence"`
	SelectedAction   SelectedAction  `json:"selected_action"`
	Evidence         EvidenceSummary `json:"evidence"`
}

// workflowSteps labels the stages of the remediation pipeline for
// operators; the planner itself only produces the proposal.
var workflowSteps = []string{
	"detect",
	"retrieve_context",
	"propose_fix",
	"await_approval",
	"execute_playbook",
	"verify_health",
}

type ragPayload struct {
	Content           string            `json:"content"`
	RetrievedMemories []json.RawMessage `json:"retrieved_memories"`
	RetrievedFiles    []string          `json:"retrieved_files"`
}

// parseRAGPayload tolerates missing or malformed evidence: anything that
// fails to decode is treated as empty.
func parseRAGPayload(raw string) ragPayload {
	var p ragPayload
	if raw == "" {
		return p
	}
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return ragPayload{}
	}
	return p
}

// inferFaultCode picks the effective fault code for planning: the
// incident's own code when it is in the playbook, else the first code
// whose keyword set matches the evidence content.
func inferFaultCode(inc *incident.Incident, payload ragPayload) fault.Code {
	if code := fault.Code(inc.ErrorCode); fault.IsKnown(code) {
		return code
	}
	content := strings.ToLower(payload.Content)
	for _, code := range fault.KnownCodes() {
		if fault.ContainsKeyword(code, content) {
			return code
		}
	}
	return ""
}

// computeConfidence scores the plan in [0, 0.99]. A missing fault code
// always scores 0.
func computeConfidence(inc *incident.Incident, payload ragPayload, code fault.Code) float64 {
	if code == "" {
		return 0.0
	}

	score := 0.35
	if inc.ErrorCode == string(code) {
		score = 0.65
	}
	if len(payload.RetrievedMemories) > 0 {
		score += 0.15
	}
	if len(payload.RetrievedFiles) > 0 {
		score += 0.10
	}
	if len(inc.Breadcrumbs) > 0 {
		crumbs := strings.ToLower(strings.Join(inc.Breadcrumbs, " "))
		if fault.ContainsKeyword(code, crumbs) {
			score += 0.10
		}
	}
	if fault.ContainsKeyword(code, strings.ToLower(payload.Content)) {
		score += 0.10
	}

	return math.Round(math.Min(score, 0.99)*100) / 100
}

// BuildPlan derives a remediation plan from incident state and evidence.
// Pure function: no I/O, no mutation of the incident.
func BuildPlan(inc *incident.Incident, table *playbook.Table) Plan {
	payload := parseRAGPayload(inc.RAGResponse)
	code := inferFaultCode(inc, payload)
	confidence := computeConfidence(inc, payload, code)

	var decision string
	var selected SelectedAction
	if spec, ok := table.ForCode(code); code != "" && ok {
		decision = DecisionReadyForApproval
		selected = SelectedAction{
			FaultCode:        string(code),
			ActionID:         spec.ActionID,
			ScriptPath:       spec.ScriptPath,
			Summary:          spec.Summary,
			VerificationHint: spec.VerificationHint,
		}
	} else {
		triage := playbook.ManualTriage()
		decision = DecisionManualTriageRequired
		selected = SelectedAction{
			ActionID:         triage.ActionID,
			Summary:          triage.Summary,
			VerificationHint: triage.VerificationHint,
		}
	}

	return Plan{
		IncidentID:       inc.ID,
		Workflow:         workflowSteps,
		Decision:         decision,
		RequiresApproval: true,
		Confidence:       confidence,
		SelectedAction:   selected,
		Evidence: EvidenceSummary{
			RAGSummary:           payload.Content,
			RetrievedMemoryCount: len(payload.RetrievedMemories),
			RetrievedFileCount:   len(payload.RetrievedFiles),
		},
	}
}
