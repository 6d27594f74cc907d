package recon

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"mendcore/internal/fault"
	"mendcore/internal/logevents"
)

const (
	DefaultMaxIncidents     = 50
	DefaultLogsPerIncident  = 10
	defaultBucketLogsPerInc = 8
	remediationSummaryLimit = 1000
)

// Options bounds the output of a reconstruction pass.
type Options struct {
	MaxIncidents    int
	LogsPerIncident int
}

func (o Options) withDefaults(logsDefault int) Options {
	if o.MaxIncidents <= 0 {
		o.MaxIncidents = DefaultMaxIncidents
	}
	if o.LogsPerIncident <= 0 {
		o.LogsPerIncident = logsDefault
	}
	return o
}

// RebuildRouterIncidents replays remediation-worker logs in timestamp
// order and rebuilds the incident lifecycle the worker executed: a fault
// is detected, evidence arrives, remediation output closes it. One
// incident is kept per fault code; repeated faults for the same code
// merge into it.
func RebuildRouterIncidents(events []logevents.Event, opts Options) []Incident {
	if len(events) == 0 {
		return nil
	}
	opts = opts.withDefaults(DefaultLogsPerIncident)

	ordered := make([]logevents.Event, len(events))
	copy(ordered, events)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].TimestampMS < ordered[j].TimestampMS
	})

	var (
		requestID          string
		lastFaultByRequest = map[string]fault.Code{}
		byCode             = map[fault.Code]*Incident{}
	)

	getOrCreate := func(code fault.Code, openedAt time.Time, group string) *Incident {
		if inc, ok := byCode[code]; ok {
			return inc
		}
		inc := &Incident{
			ID:              "FR-" + stableID(string(code), strconv.FormatInt(openedAt.Unix(), 10)),
			TimestampOpened: openedAt,
			IncidentType:    guessType(string(code)),
			Severity:        guessSeverity(string(code), string(code)),
			Status:          StatusDetected,
			Route:           "-",
			ErrorCode:       string(code),
			Symptoms: Symptoms{
				ErrorRate:        "—",
				ErrorRateValue:   1,
				LatencyP95:       "—",
				Endpoint:         "-",
				LogMarker:        string(code),
				AffectedRequests: 1,
			},
			Breadcrumbs: Breadcrumbs{
				MetricSnapshot: MetricSnapshot{
					FailedRequests: 1,
					Timestamp:      openedAt,
				},
				CorrelatedEvents: []string{"log_group=" + group},
			},
			RootCause: RootCause{
				Source:      "router",
				Explanation: "Pending evidence retrieval",
			},
		}
		byCode[code] = inc
		return inc
	}

	for _, ev := range ordered {
		line := ParseLine(ev.Message)
		ts := ev.Timestamp()

		switch line.Kind {
		case KindRequestStart:
			requestID = line.RequestID

		case KindRequestEnd:
			if requestID == line.RequestID {
				requestID = ""
			}

		case KindProcessingError:
			if !fault.IsKnown(line.FaultCode) {
				continue
			}
			inc := getOrCreate(line.FaultCode, ts, ev.LogGroup)
			inc.Status = StatusInProgress
			inc.RootCause.Explanation = "Remediation worker failed while processing this incident"
			inc.Breadcrumbs.RecentLogs = append(inc.Breadcrumbs.RecentLogs,
				fmt.Sprintf("%s %s", ts.Format(time.RFC3339Nano), strings.TrimSpace(ev.Message)))
			if requestID != "" {
				lastFaultByRequest[requestID] = line.FaultCode
			}

		case KindEvidencePayload:
			code := fault.ExtractCode(line.Evidence.Content)
			if code == "" && requestID != "" {
				code = lastFaultByRequest[requestID]
			}
			if code == "" {
				continue
			}
			inc := getOrCreate(code, ts, ev.LogGroup)
			inc.Status = StatusInProgress
			inc.RootCause = RootCause{
				Source:      "rag",
				Explanation: line.Evidence.Content,
			}
			inc.Breadcrumbs.RecentLogs = append(inc.Breadcrumbs.RecentLogs,
				ts.Format(time.RFC3339Nano)+" "+strings.TrimSuffix(evidenceMarker, ":"))
			if line.Evidence.ThreadID != "" {
				inc.Breadcrumbs.CorrelatedEvents = append(inc.Breadcrumbs.CorrelatedEvents,
					"thread_id="+line.Evidence.ThreadID)
			}
			if requestID != "" {
				lastFaultByRequest[requestID] = code
			}

		case KindRemediationOutput:
			var code fault.Code
			if requestID != "" {
				code = lastFaultByRequest[requestID]
			}
			if code == "" {
				code = fault.ExtractCode(line.Output)
			}
			if code == "" {
				continue
			}
			inc := getOrCreate(code, ts, ev.LogGroup)
			resolved := ts
			inc.Status = StatusResolved
			inc.TimestampResolved = &resolved
			summary := line.Output
			if rs := []rune(summary); len(rs) > remediationSummaryLimit {
				summary = string(rs[:remediationSummaryLimit])
			}
			inc.Remediation = Remediation{
				ActionType:         "agent_autofix",
				Summary:            summary,
				ExecutionTimestamp: &resolved,
			}
			success := true
			inc.Verification = Verification{
				HealthCheckStatus: "unknown",
				Success:           &success,
			}
			inc.Breadcrumbs.RecentLogs = append(inc.Breadcrumbs.RecentLogs,
				ts.Format(time.RFC3339Nano)+" "+strings.TrimSuffix(remediationMarker, ":"))
		}
	}

	out := make([]Incident, 0, len(byCode))
	for _, inc := range byCode {
		logs := inc.Breadcrumbs.RecentLogs
		if len(logs) > opts.LogsPerIncident {
			logs = logs[len(logs)-opts.LogsPerIncident:]
		}
		inc.Breadcrumbs.RecentLogs = logs
		inc.Symptoms.AffectedRequests = len(logs)
		if inc.Symptoms.AffectedRequests < 1 {
			inc.Symptoms.AffectedRequests = 1
		}
		out = append(out, *inc)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].TimestampOpened.After(out[j].TimestampOpened)
	})
	if len(out) > opts.MaxIncidents {
		out = out[:opts.MaxIncidents]
	}
	return out
}

func stableID(parts ...string) string {
	sum := sha1.Sum([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])[:10]
}

func guessSeverity(errorCode, message string) string {
	msg := strings.ToLower(message)
	code := strings.ToLower(errorCode)
	switch {
	case strings.Contains(msg, "critical") || strings.Contains(msg, "panic"):
		return "critical"
	case strings.Contains(msg, "traceback") || strings.Contains(msg, "exception"):
		return "high"
	case strings.Contains(code, "db") || strings.Contains(msg, "timeout"):
		return "critical"
	case strings.Contains(code, "sql"):
		return "high"
	default:
		return "medium"
	}
}

func guessType(errorCode string) string {
	ec := strings.ToUpper(errorCode)
	switch {
	case strings.Contains(ec, "EXTERNAL_API"):
		return "External API Timeout"
	case strings.Contains(ec, "DB"):
		return "Database Issues"
	case strings.Contains(ec, "SQL"):
		return "SQL Errors"
	case strings.Contains(ec, "CONNECTION"):
		return "Connection Errors"
	default:
		return "Application Error"
	}
}
