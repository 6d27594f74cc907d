// Package playbook holds the fixed table of remediation actions.
//
// The table is compiled into the binary; it is never derived from request
// bodies, incident text, or model output. That is the safety boundary: the
// planner can only ever select from this set.
package playbook

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"mendcore/internal/fault"
)

//go:embed playbooks.yaml
var playbookData []byte

// ActionSpec is one static remediation action for a known fault.
type ActionSpec struct {
	FaultCode        fault.Code `yaml:"fault_code"`
	ActionID         string     `yaml:"action_id"`
	ScriptPath       string     `yaml:"script_path"`
	Summary          string     `yaml:"summary"`
	VerificationHint string     `yaml:"verification_hint"`
}

// ManualTriageActionID marks the fallback pseudo-action the planner emits
// when no playbook matches. It carries no script and can never execute.
const ManualTriageActionID = "manual_triage"

// ManualTriage returns the fixed fallback action.
func ManualTriage() ActionSpec {
	return ActionSpec{
		ActionID:         ManualTriageActionID,
		Summary:          "No deterministic playbook matched this incident.",
		VerificationHint: "Escalate to on-call and attach logs + RAG output.",
	}
}

type playbookFile struct {
	Playbooks []ActionSpec `yaml:"playbooks"`
}

// Table is the immutable fault-code to action mapping.
type Table struct {
	byCode map[fault.Code]ActionSpec
}

// Load parses the embedded playbook definitions. It fails if any entry
// names an unknown fault code or a code appears twice.
func Load() (*Table, error) {
	var pf playbookFile
	if err := yaml.Unmarshal(playbookData, &pf); err != nil {
		return nil, fmt.Errorf("unmarshal embedded playbooks: %w", err)
	}
	byCode := make(map[fault.Code]ActionSpec, len(pf.Playbooks))
	for _, spec := range pf.Playbooks {
		if !fault.IsKnown(spec.FaultCode) {
			return nil, fmt.Errorf("playbook %s references unknown fault code %q", spec.ActionID, spec.FaultCode)
		}
		if _, dup := byCode[spec.FaultCode]; dup {
			return nil, fmt.Errorf("duplicate playbook for fault code %q", spec.FaultCode)
		}
		if spec.ActionID == "" || spec.ScriptPath == "" {
			return nil, fmt.Errorf("playbook for %q is missing action_id or script_path", spec.FaultCode)
		}
		byCode[spec.FaultCode] = spec
	}
	return &Table{byCode: byCode}, nil
}

// ForCode looks up the action for a fault code.
func (t *Table) ForCode(code fault.Code) (ActionSpec, bool) {
	spec, ok := t.byCode[code]
	return spec, ok
}

// Allowlist returns the set of script paths the executor may run.
func (t *Table) Allowlist() map[string]struct{} {
	allow := make(map[string]struct{}, len(t.byCode))
	for _, spec := range t.byCode {
		allow[spec.ScriptPath] = struct{}{}
	}
	return allow
}
