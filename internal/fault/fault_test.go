package fault

import (
	"reflect"
	"testing"
)

func TestParseLogLine(t *testing.T) {
	tests := []struct {
		name string
		line string
		want *Event
	}{
		{
			name: "sql injection",
			line: "FAULT_SQL_INJECTION_TEST route=/test-fault/run reason=invalid_sql",
			want: &Event{Code: CodeSQLInjection, Route: "/test-fault/run", Reason: "invalid_sql"},
		},
		{
			name: "external api with latency",
			line: "FAULT_EXTERNAL_API_LATENCY route=/test-fault/external-api reason=external_timeout latency=8.01",
			want: &Event{
				Code:    CodeExternalAPILatency,
				Route:   "/test-fault/external-api",
				Reason:  "external_timeout",
				Latency: "8.01",
			},
		},
		{
			name: "db timeout",
			line: "FAULT_DB_TIMEOUT route=/test-fault/db-timeout reason=pg_sleep latency=5.20",
			want: &Event{
				Code:    CodeDBTimeout,
				Route:   "/test-fault/db-timeout",
				Reason:  "pg_sleep",
				Latency: "5.20",
			},
		},
		{
			name: "code not first token",
			line: "ERROR processing FAULT_DB_TIMEOUT: route=/x",
			want: nil,
		},
		{
			name: "missing route",
			line: "FAULT_DB_TIMEOUT reason=pg_sleep",
			want: nil,
		},
		{
			name: "no fault marker",
			line: "GET /healthz 200",
			want: nil,
		},
		{
			name: "empty line",
			line: "",
			want: nil,
		},
		{
			name: "malformed tokens ignored",
			line: "FAULT_DB_TIMEOUT garbage route=/db reason=pg_sleep",
			want: &Event{Code: CodeDBTimeout, Route: "/db", Reason: "pg_sleep"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseLogLine(tt.line)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("ParseLogLine(%q) = %+v, want %+v", tt.line, got, tt.want)
			}
		})
	}
}

func TestParseLogLineAcceptsUnknownCodes(t *testing.T) {
	got := ParseLogLine("FAULT_SOMETHING_NEW route=/x")
	if got == nil {
		t.Fatal("expected event for unknown fault code")
	}
	if IsKnown(got.Code) {
		t.Fatalf("FAULT_SOMETHING_NEW should not be a known code")
	}
}

func TestExtractCode(t *testing.T) {
	if got := ExtractCode("analysis mentions FAULT_DB_TIMEOUT in passing"); got != CodeDBTimeout {
		t.Fatalf("got %q", got)
	}
	if got := ExtractCode("nothing here"); got != "" {
		t.Fatalf("got %q, want empty", got)
	}
}

func TestPipelineInputsExternalReasonMapping(t *testing.T) {
	tests := []struct {
		reason string
		detail string
	}{
		{"external_timeout", "timeout"},
		{"upstream_failure", "upstream_500"},
		{"connection_error", "connection_refused"},
		{"", "external_failure"},
		{"weird_reason", "weird_reason"},
	}
	for _, tt := range tests {
		ev := &Event{Code: CodeExternalAPILatency, Route: "/test-fault/external-api", Reason: tt.reason}
		_, crumbs, metrics := PipelineInputs(ev)
		if len(crumbs) != 2 || crumbs[0] != "external_api_call" || crumbs[1] != tt.detail {
			t.Fatalf("reason %q: breadcrumbs = %v, want [external_api_call %s]", tt.reason, crumbs, tt.detail)
		}
		wantReason := tt.reason
		if wantReason == "" {
			wantReason = "external_failure"
		}
		if metrics["reason"] != wantReason {
			t.Fatalf("reason %q: metrics reason = %q", tt.reason, metrics["reason"])
		}
	}
}

func TestPipelineInputsUnknownCode(t *testing.T) {
	symptoms, crumbs, metrics := PipelineInputs(&Event{Code: "FAULT_NEW", Route: "/r", Reason: "x"})
	if symptoms != "Unknown fault" {
		t.Fatalf("symptoms = %q", symptoms)
	}
	if crumbs != nil {
		t.Fatalf("breadcrumbs = %v, want nil", crumbs)
	}
	if metrics["route"] != "/r" {
		t.Fatalf("metrics = %v", metrics)
	}
}
