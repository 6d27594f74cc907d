package autofix

import (
	"context"
	"time"

	"log/slog"

	"mendcore/internal/agent"
	"mendcore/internal/fault"
	"mendcore/internal/incident"
	"mendcore/internal/playbook"
)

const runTimeout = 5 * time.Minute

// Pipeline drives the full remediation loop for faults detected in
// shipped logs. It satisfies logevents.FaultSink.
type Pipeline struct {
	Incidents   *incident.Service
	Playbooks   *playbook.Table
	Executor    *agent.Executor
	Gate        *Gate
	Logger      *slog.Logger
	AutoApprove bool
}

// HandleLine inspects one log line and, if it is a fresh fault event,
// kicks off a remediation run in the background. Ingest latency must not
// depend on RAG or script execution time.
func (p *Pipeline) HandleLine(message string) {
	ev := fault.ParseLogLine(message)
	if ev == nil {
		return
	}
	if !p.Gate.Admit(ev) {
		p.Logger.Debug("duplicate fault suppressed",
			"code", ev.Code, "route", ev.Route, "reason", ev.Reason)
		return
	}
	p.Logger.Info("fault detected", "code", ev.Code, "route", ev.Route)
	go p.run(ev)
}

func (p *Pipeline) run(ev *fault.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	symptoms, breadcrumbs, _ := fault.PipelineInputs(ev)
	inc, err := p.Incidents.Record(ctx, string(ev.Code), symptoms, breadcrumbs)
	if err != nil {
		p.Logger.Error("record fault incident", "code", ev.Code, "err", err)
		return
	}

	inc = p.Incidents.Analyze(ctx, inc)

	plan := agent.BuildPlan(inc, p.Playbooks)
	approval := agent.ApprovePlan(plan, p.AutoApprove)
	if approval.Status != agent.StatusApprovedForPipeline {
		p.Logger.Info("remediation held",
			"incident", inc.ID, "status", approval.Status, "decision", plan.Decision)
		// The held outcome is still an outcome: persist which action was
		// selected and why it did not run, leaving the incident open.
		if _, err := p.Incidents.Resolve(ctx, inc,
			rootCauseFor(plan, inc, ev),
			plan.SelectedAction.Summary,
			approval.Message,
			false,
		); err != nil {
			p.Logger.Error("record held run", "incident", inc.ID, "err", err)
		}
		return
	}

	result := p.Executor.Execute(ctx, approval)

	rootCause := rootCauseFor(plan, inc, ev)
	verification := result.Message
	if result.Result != nil && result.Result.VerificationHint != "" {
		verification = result.Result.VerificationHint
	}

	if _, err := p.Incidents.Resolve(ctx, inc,
		rootCause,
		plan.SelectedAction.Summary,
		verification,
		result.Status == agent.StatusExecuted,
	); err != nil {
		p.Logger.Error("resolve fault incident", "incident", inc.ID, "err", err)
		return
	}
	p.Logger.Info("autofix run finished",
		"incident", inc.ID, "action", plan.SelectedAction.ActionID, "status", result.Status)
}

func rootCauseFor(plan agent.Plan, inc *incident.Incident, ev *fault.Event) string {
	if plan.Evidence.RAGSummary != "" {
		return plan.Evidence.RAGSummary
	}
	if inc.RootCause != "" {
		return inc.RootCause
	}
	return "Auto-detected " + string(ev.Code)
}
