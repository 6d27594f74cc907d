// Package recon rebuilds incident lifecycle state from raw log lines.
//
// Log text is the only source of truth on this path, so parsing is split
// from state: every line is first classified into a typed Line, and only
// then folded by the reconstructor. The fold never touches regexes and
// the parser never touches state.
package recon

import (
	"encoding/json"
	"regexp"
	"strings"

	"mendcore/internal/fault"
)

type LineKind int

const (
	KindNoise LineKind = iota
	KindRequestStart
	KindRequestEnd
	KindProcessingError
	KindEvidencePayload
	KindRemediationOutput
	KindDashboardFailure
)

// EvidencePayload is the structured analysis blob the remediation function
// logs after querying the RAG service.
type EvidencePayload struct {
	Content  string
	ThreadID string
}

// Line is one classified log line.
type Line struct {
	Kind      LineKind
	RequestID string          // request start/end
	FaultCode fault.Code      // processing error
	Evidence  *EvidencePayload
	Output    string // remediation output text
	Action    string // dashboard failure action
}

const (
	evidenceMarker    = "BACKBOARD_ANALYSIS:"
	remediationMarker = "AGENT_OUTPUT:"
)

var (
	startReqRE  = regexp.MustCompile(`^START RequestId:\s*([a-f0-9-]+)`)
	endReqRE    = regexp.MustCompile(`^END RequestId:\s*([a-f0-9-]+)`)
	errProcRE   = regexp.MustCompile(`^ERROR processing\s+(FAULT_[A-Z0-9_]+):`)
	dashboardRE = regexp.MustCompile(`^DASHBOARD\s+(.+?)\s+failed:`)

	faultRE   = regexp.MustCompile(`\b(FAULT_[A-Z0-9_]+)\b`)
	routeRE   = regexp.MustCompile(`\broute=(\S+)`)
	latencyRE = regexp.MustCompile(`\blatency=([0-9]+\.[0-9]+)`)
)

// ParseLine classifies one trimmed log line. Anything unrecognized is
// Noise; the fold ignores it.
func ParseLine(message string) Line {
	msg := strings.TrimSpace(message)
	if msg == "" {
		return Line{Kind: KindNoise}
	}

	if m := startReqRE.FindStringSubmatch(msg); m != nil {
		return Line{Kind: KindRequestStart, RequestID: m[1]}
	}
	if m := endReqRE.FindStringSubmatch(msg); m != nil {
		return Line{Kind: KindRequestEnd, RequestID: m[1]}
	}
	if m := errProcRE.FindStringSubmatch(msg); m != nil {
		return Line{Kind: KindProcessingError, FaultCode: fault.Code(m[1])}
	}
	if strings.HasPrefix(msg, evidenceMarker) {
		if payload := parseEvidencePayload(msg); payload != nil {
			return Line{Kind: KindEvidencePayload, Evidence: payload}
		}
		return Line{Kind: KindNoise}
	}
	if strings.HasPrefix(msg, remediationMarker) {
		return Line{
			Kind:   KindRemediationOutput,
			Output: strings.TrimSpace(msg[len(remediationMarker):]),
		}
	}
	if m := dashboardRE.FindStringSubmatch(msg); m != nil {
		return Line{Kind: KindDashboardFailure, Action: m[1]}
	}
	return Line{Kind: KindNoise}
}

// parseEvidencePayload decodes the JSON after the evidence marker.
// Undecodable payloads are dropped.
func parseEvidencePayload(msg string) *EvidencePayload {
	raw := strings.TrimSpace(msg[len(evidenceMarker):])
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return nil
	}
	payload := &EvidencePayload{}
	switch v := obj["content"].(type) {
	case string:
		payload.Content = v
	case nil:
	default:
		b, _ := json.Marshal(v)
		payload.Content = string(b)
	}
	if tid, ok := obj["thread_id"].(string); ok {
		payload.ThreadID = tid
	}
	return payload
}
