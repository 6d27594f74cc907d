package agent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// ExecutionResult captures one playbook script run. The executor relays
// output without interpreting it; success is the return code alone.
type ExecutionResult struct {
	ActionID         string `json:"action_id"`
	ScriptPath       string `json:"script_path"`
	ReturnCode       int    `json:"return_code"`
	Stdout           string `json:"stdout"`
	Stderr           string `json:"stderr"`
	VerificationHint string `json:"verification_hint"`
}

// Result is the executor's verdict: executed, failed, or blocked by one of
// the safety checks. Safety rejections are values, not errors; an
// unattended pipeline has to be able to branch on them.
type Result struct {
	Status  string           `json:"status"`
	Message string           `json:"message"`
	Result  *ExecutionResult `json:"execution_result"`
}

// Executor runs allow-listed remediation scripts under a trusted root.
type Executor struct {
	ProjectRoot string
	Timeout     time.Duration
	Allowlist   map[string]struct{}
}

func NewExecutor(projectRoot string, timeout time.Duration, allowlist map[string]struct{}) *Executor {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Executor{ProjectRoot: projectRoot, Timeout: timeout, Allowlist: allowlist}
}

// Execute runs an approved payload's script. Checks run in order and any
// failure short-circuits without executing anything:
// approved status, allow-list membership, containment inside the project
// root, script existence. Only then does the subprocess run, bounded by
// the timeout.
func (e *Executor) Execute(ctx context.Context, approval Approval) Result {
	if approval.Status != StatusApprovedForPipeline {
		return Result{
			Status:  StatusBlocked,
			Message: "Execution payload is not approved.",
		}
	}
	if approval.Execution == nil {
		return Result{
			Status:  StatusBlocked,
			Message: "Execution payload is missing the action to run.",
		}
	}

	scriptPath := approval.Execution.ScriptPath
	if _, ok := e.Allowlist[scriptPath]; !ok {
		return Result{
			Status:  StatusBlocked,
			Message: "Script path is not in the approved playbook allow-list.",
		}
	}

	root, err := filepath.Abs(e.ProjectRoot)
	if err != nil {
		return Result{
			Status:  StatusBlocked,
			Message: fmt.Sprintf("Cannot resolve project root: %v", err),
		}
	}
	scriptAbs := filepath.Clean(filepath.Join(root, scriptPath))
	rel, err := filepath.Rel(root, scriptAbs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return Result{
			Status:  StatusBlocked,
			Message: "Script path resolves outside the project root.",
		}
	}

	if _, err := os.Stat(scriptAbs); err != nil {
		return Result{
			Status:  StatusFailed,
			Message: fmt.Sprintf("Script not found: %s", scriptPath),
		}
	}

	runCtx, cancel := context.WithTimeout(ctx, e.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "bash", scriptAbs)
	cmd.Dir = root
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	returnCode := 0
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			returnCode = exitErr.ExitCode()
		} else {
			returnCode = -1
		}
	}

	status := StatusExecuted
	message := "Remediation playbook executed."
	if returnCode != 0 {
		status = StatusFailed
		message = "Remediation playbook failed."
		if runCtx.Err() == context.DeadlineExceeded {
			message = "Remediation playbook timed out."
		}
	}

	return Result{
		Status:  status,
		Message: message,
		Result: &ExecutionResult{
			ActionID:         approval.Execution.ActionID,
			ScriptPath:       scriptPath,
			ReturnCode:       returnCode,
			Stdout:           strings.TrimSpace(stdout.String()),
			Stderr:           strings.TrimSpace(stderr.String()),
			VerificationHint: approval.Execution.VerificationHint,
		},
	}
}
