// Package fault defines the closed set of known fault codes and the
// parser for structured fault log lines.
package fault

import "strings"

// Code is a machine-readable identifier for a known injected failure mode.
type Code string

const (
	CodeSQLInjection       Code = "FAULT_SQL_INJECTION_TEST"
	CodeExternalAPILatency Code = "FAULT_EXTERNAL_API_LATENCY"
	CodeDBTimeout          Code = "FAULT_DB_TIMEOUT"
)

// KnownCodes returns the fault codes the remediation pipeline understands.
func KnownCodes() []Code {
	return []Code{CodeSQLInjection, CodeExternalAPILatency, CodeDBTimeout}
}

func IsKnown(c Code) bool {
	switch c {
	case CodeSQLInjection, CodeExternalAPILatency, CodeDBTimeout:
		return true
	}
	return false
}

// ExtractCode returns the first known fault code appearing anywhere in the
// message, or "" if none does.
func ExtractCode(message string) Code {
	for _, c := range KnownCodes() {
		if strings.Contains(message, string(c)) {
			return c
		}
	}
	return ""
}

// Keywords maps each fault code to evidence-text markers used both for
// code inference and confidence scoring. Matching is case-insensitive
// against already-lowercased text.
var Keywords = map[Code][]string{
	CodeSQLInjection: {
		"invalid sql",
		"syntax error",
		"programmingerror",
		"rollback",
	},
	CodeExternalAPILatency: {
		"timeout",
		"upstream",
		"connectionerror",
		"latency",
		"retry",
	},
	CodeDBTimeout: {
		"pg_sleep",
		"queuepool",
		"pool exhaustion",
		"statement_timeout",
		"db timeout",
	},
}

// ContainsKeyword reports whether text (lowercased by the caller) mentions
// any keyword registered for the given code.
func ContainsKeyword(code Code, loweredText string) bool {
	for _, kw := range Keywords[code] {
		if strings.Contains(loweredText, kw) {
			return true
		}
	}
	return false
}

// Event is an ephemeral fault signal parsed from a single log line.
// It is consumed by the autofix pipeline and never persisted.
type Event struct {
	Code    Code
	Route   string
	Reason  string
	Latency string
}

// ParseLogLine parses a structured fault log line into an Event.
//
// A line matches only when its first whitespace-delimited token begins
// with FAULT_; that token is the code. Remaining key=value tokens become
// fields. A missing route makes the line invalid and yields nil.
func ParseLogLine(message string) *Event {
	if !strings.Contains(message, "FAULT_") {
		return nil
	}
	parts := strings.Fields(message)
	if len(parts) == 0 {
		return nil
	}
	code := parts[0]
	if !strings.HasPrefix(code, "FAULT_") {
		return nil
	}

	fields := make(map[string]string)
	for _, token := range parts[1:] {
		key, value, ok := strings.Cut(token, "=")
		if !ok {
			continue
		}
		fields[key] = value
	}
	if fields["route"] == "" {
		return nil
	}

	return &Event{
		Code:    Code(code),
		Route:   fields["route"],
		Reason:  fields["reason"],
		Latency: fields["latency"],
	}
}

// PipelineInputs derives the symptoms, breadcrumbs and metric snapshot
// fed into incident recording for an auto-detected fault event.
func PipelineInputs(ev *Event) (symptoms string, breadcrumbs []string, metrics map[string]string) {
	switch ev.Code {
	case CodeSQLInjection:
		return "Invalid SQL executed on /test-fault/run",
			[]string{"invalid_sql_executed", "test_fault_endpoint"},
			map[string]string{"route": ev.Route, "reason": ev.Reason}
	case CodeExternalAPILatency:
		reason := ev.Reason
		if reason == "" {
			reason = "external_failure"
		}
		detail := reason
		switch reason {
		case "external_timeout":
			detail = "timeout"
		case "upstream_failure":
			detail = "upstream_500"
		case "connection_error":
			detail = "connection_refused"
		}
		return "External API failure on " + ev.Route,
			[]string{"external_api_call", detail},
			map[string]string{"route": ev.Route, "reason": reason, "latency": ev.Latency}
	case CodeDBTimeout:
		return "DB timeout or pool exhaustion on /test-fault/db-timeout",
			[]string{"pg_sleep_executed", "queue_pool_limit"},
			map[string]string{"route": ev.Route, "reason": ev.Reason, "latency": ev.Latency}
	}
	return "Unknown fault", nil, map[string]string{"route": ev.Route, "reason": ev.Reason}
}
