package agent

import "mendcore/internal/playbook"

const (
	StatusApprovalRequired    = "approval_required"
	StatusBlocked             = "blocked"
	StatusApprovedForPipeline = "approved_for_pipeline"
	StatusExecuted            = "executed"
	StatusFailed              = "failed"
)

// Execution is the payload handed to the executor once a plan clears the
// gate.
type Execution struct {
	ActionID         string `json:"action_id"`
	ScriptPath       string `json:"script_path"`
	VerificationHint string `json:"verification_hint"`
}

// Approval is the gate's verdict on a plan.
type Approval struct {
	Status    string     `json:"status"`
	Message   string     `json:"message"`
	Execution *Execution `json:"execution,omitempty"`
	Plan      Plan       `json:"plan"`
}

// ApprovePlan converts a plan into an execution payload when the approval
// flag is set. Manual-triage plans can never be approved for execution.
// Pure function.
func ApprovePlan(plan Plan, approved bool) Approval {
	if !approved {
		return Approval{
			Status:  StatusApprovalRequired,
			Message: "Set approve=true to execute the selected remediation playbook.",
			Plan:    plan,
		}
	}

	if plan.SelectedAction.ActionID == playbook.ManualTriageActionID {
		return Approval{
			Status:  StatusBlocked,
			Message: "No safe playbook available; manual triage required.",
			Plan:    plan,
		}
	}

	return Approval{
		Status:  StatusApprovedForPipeline,
		Message: "Execute the selected remediation script in CI/CD, then run verification checks.",
		Execution: &Execution{
			ActionID:         plan.SelectedAction.ActionID,
			ScriptPath:       plan.SelectedAction.ScriptPath,
			VerificationHint: plan.SelectedAction.VerificationHint,
		},
		Plan: plan,
	}
}
