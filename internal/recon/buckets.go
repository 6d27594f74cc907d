package recon

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"mendcore/internal/fault"
	"mendcore/internal/logevents"
)

// Lines the bucketer never treats as incident signal.
var noisePrefixes = []string{
	"INIT_START",
	"START RequestId:",
	"END RequestId:",
	"REPORT RequestId:",
	evidenceMarker,
	"TOOL_CALL:",
	"TOOL_RESULT:",
	remediationMarker,
}

var nonWordRE = regexp.MustCompile(`\W+`)

// BucketOptions controls the generic log-to-incident grouping.
type BucketOptions struct {
	Options
	// OnlyFaultCodes keeps strict mode: only lines mentioning a known
	// fault code become incidents. When false, any error-looking line
	// is bucketed.
	OnlyFaultCodes bool
}

// BucketIncidents collapses error-looking log lines into one incident
// per (error code, route) pair. It makes no lifecycle claims: every
// bucket comes out in the detected state.
func BucketIncidents(events []logevents.Event, opts BucketOptions) []Incident {
	if len(events) == 0 {
		return nil
	}
	opts.Options = opts.Options.withDefaults(defaultBucketLogsPerInc)

	filtered := filterSignal(events, opts.OnlyFaultCodes)

	type bucketKey struct {
		errorCode string
		route     string
	}
	buckets := map[bucketKey][]logevents.Event{}
	for _, ev := range filtered {
		key := bucketKey{
			errorCode: extractErrorCode(ev.Message, opts.OnlyFaultCodes),
			route:     extractRoute(ev.Message),
		}
		buckets[key] = append(buckets[key], ev)
	}

	keys := make([]bucketKey, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return newestTS(buckets[keys[i]]) > newestTS(buckets[keys[j]])
	})
	if len(keys) > opts.MaxIncidents {
		keys = keys[:opts.MaxIncidents]
	}

	out := make([]Incident, 0, len(keys))
	for _, key := range keys {
		evs := buckets[key]
		sort.Slice(evs, func(i, j int) bool {
			return evs[i].TimestampMS > evs[j].TimestampMS
		})
		newest := evs[0]
		count := len(evs)

		var latency float64
		var hasLatency bool
		for _, ev := range evs {
			if v, ok := extractLatencySeconds(ev.Message); ok {
				latency, hasLatency = v, true
				break
			}
		}

		errorRateValue := count * 5
		if errorRateValue > 100 {
			errorRateValue = 100
		}
		if errorRateValue < 1 {
			errorRateValue = 1
		}

		latencyP95 := "—"
		var avgLatency string
		if hasLatency {
			latencyP95 = fmt.Sprintf("%.2fs", latency)
			avgLatency = latencyP95
		}

		recentLogs := make([]string, 0, opts.LogsPerIncident)
		for _, ev := range evs {
			if len(recentLogs) == opts.LogsPerIncident {
				break
			}
			recentLogs = append(recentLogs,
				ev.Timestamp().Format(time.RFC3339Nano)+" "+ev.Message)
		}

		correlated := []string{"log_group=" + newest.LogGroup}
		if newest.LogStream != "" {
			correlated = append(correlated, "log_stream="+newest.LogStream)
		}

		out = append(out, Incident{
			ID: "CW-" + stableID(key.errorCode, key.route,
				strconv.FormatInt(newest.TimestampMS, 10)),
			TimestampOpened: newest.Timestamp(),
			IncidentType:    guessType(key.errorCode),
			Severity:        guessSeverity(key.errorCode, newest.Message),
			Status:          StatusDetected,
			Route:           key.route,
			ErrorCode:       key.errorCode,
			Symptoms: Symptoms{
				ErrorRate:        strconv.Itoa(errorRateValue) + "%",
				ErrorRateValue:   errorRateValue,
				LatencyP95:       latencyP95,
				LatencyP95Value:  latency,
				Endpoint:         key.route,
				LogMarker:        key.errorCode,
				AffectedRequests: count,
			},
			Breadcrumbs: Breadcrumbs{
				RecentLogs: recentLogs,
				MetricSnapshot: MetricSnapshot{
					FailedRequests: count,
					AvgLatency:     avgLatency,
					Timestamp:      newest.Timestamp(),
				},
				CorrelatedEvents: correlated,
			},
			RootCause: RootCause{
				Source:      "logs",
				Explanation: "Pending evidence retrieval (log-derived incident)",
			},
		})
	}
	return out
}

func newestTS(evs []logevents.Event) int64 {
	var max int64
	for _, ev := range evs {
		if ev.TimestampMS > max {
			max = ev.TimestampMS
		}
	}
	return max
}

func filterSignal(events []logevents.Event, onlyFaultCodes bool) []logevents.Event {
	var filtered []logevents.Event
	for _, ev := range events {
		msg := strings.TrimSpace(ev.Message)
		if msg == "" || hasNoisePrefix(msg) {
			continue
		}

		if onlyFaultCodes {
			if fault.ExtractCode(msg) != "" {
				filtered = append(filtered, ev)
			}
			continue
		}

		hasFault := strings.Contains(msg, "FAULT_")
		hasRoute := strings.Contains(msg, "route=")
		hasErrorWord := strings.Contains(msg, "ERROR")
		hasTraceback := strings.Contains(msg, "Traceback") || strings.Contains(msg, "Exception")
		isDashboardFailure := strings.HasPrefix(msg, "DASHBOARD ") &&
			strings.Contains(strings.ToLower(msg), "failed")

		if (hasFault && hasRoute) || isDashboardFailure || hasErrorWord || hasTraceback {
			filtered = append(filtered, ev)
		}
	}
	return filtered
}

func hasNoisePrefix(msg string) bool {
	for _, p := range noisePrefixes {
		if strings.HasPrefix(msg, p) {
			return true
		}
	}
	return false
}

// extractErrorCode infers a grouping code from one line, trying the most
// specific signal first and degrading to the generic "ERROR".
func extractErrorCode(message string, onlyFaultCodes bool) string {
	if onlyFaultCodes {
		if code := fault.ExtractCode(message); code != "" {
			return string(code)
		}
	}

	if m := dashboardRE.FindStringSubmatch(message); m != nil {
		action := strings.ToUpper(nonWordRE.ReplaceAllString(strings.TrimSpace(m[1]), "_"))
		return "DASHBOARD_" + action + "_FAILED"
	}

	if m := faultRE.FindStringSubmatch(message); m != nil {
		return m[1]
	}

	if i, j := strings.Index(message, "{"), strings.LastIndex(message, "}"); i >= 0 && j > i {
		var obj map[string]any
		if err := json.Unmarshal([]byte(message[i:j+1]), &obj); err == nil {
			if ec, ok := obj["error_code"].(string); ok && ec != "" {
				return ec
			}
			if ec, ok := obj["code"].(string); ok && ec != "" {
				return ec
			}
		}
	}

	lower := strings.ToLower(message)
	if strings.Contains(lower, "traceback") || strings.Contains(lower, "exception") {
		return "UNCAUGHT_EXCEPTION"
	}
	return "ERROR"
}

func extractRoute(message string) string {
	if m := routeRE.FindStringSubmatch(message); m != nil {
		return m[1]
	}
	if strings.HasPrefix(message, "DASHBOARD emit failed") {
		return "/incidents/stream"
	}
	if strings.HasPrefix(message, "DASHBOARD create incident failed") {
		return "/incidents/"
	}
	return "-"
}

func extractLatencySeconds(message string) (float64, bool) {
	m := latencyRE.FindStringSubmatch(message)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
