package recon

import "time"

// Incident is a lifecycle record rebuilt purely from log lines. It is a
// read model for the dashboard and is never persisted.
type Incident struct {
	ID                string       `json:"id"`
	TimestampOpened   time.Time    `json:"timestamp_opened"`
	TimestampResolved *time.Time   `json:"timestamp_resolved"`
	IncidentType      string       `json:"incident_type"`
	Severity          string       `json:"severity"`
	Status            string       `json:"status"`
	Route             string       `json:"route"`
	ErrorCode         string       `json:"error_code"`
	Symptoms          Symptoms     `json:"symptoms"`
	Breadcrumbs       Breadcrumbs  `json:"breadcrumbs"`
	RootCause         RootCause    `json:"root_cause"`
	Remediation       Remediation  `json:"remediation"`
	Verification      Verification `json:"verification"`
}

const (
	StatusDetected   = "detected"
	StatusInProgress = "in_progress"
	StatusResolved   = "resolved"
)

type Symptoms struct {
	ErrorRate        string  `json:"error_rate"`
	ErrorRateValue   int     `json:"error_rate_value"`
	LatencyP95       string  `json:"latency_p95"`
	LatencyP95Value  float64 `json:"latency_p95_value"`
	Endpoint         string  `json:"endpoint"`
	LogMarker        string  `json:"log_marker"`
	AffectedRequests int     `json:"affected_requests"`
}

type MetricSnapshot struct {
	FailedRequests int       `json:"failed_requests"`
	AvgLatency     string    `json:"avg_latency,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

type Breadcrumbs struct {
	RecentLogs       []string       `json:"recent_logs"`
	MetricSnapshot   MetricSnapshot `json:"metric_snapshot"`
	CorrelatedEvents []string       `json:"correlated_events"`
}

type RootCause struct {
	Source          string   `json:"source"`
	ConfidenceScore *float64 `json:"confidence_score"`
	Explanation     string   `json:"explanation"`
}

type Remediation struct {
	ActionType         string     `json:"action_type,omitempty"`
	Summary            string     `json:"summary,omitempty"`
	ExecutionTimestamp *time.Time `json:"execution_timestamp"`
}

type Verification struct {
	HealthCheckStatus string `json:"health_check_status"`
	Success           *bool  `json:"success"`
}
