package autofix

import (
	"testing"
	"time"

	"mendcore/internal/fault"
)

func TestGateAdmitsFirstAndSuppressesBurst(t *testing.T) {
	now := time.Unix(1700000000, 0)
	g := NewGate(2 * time.Second)
	g.now = func() time.Time { return now }

	ev := &fault.Event{Code: fault.CodeDBTimeout, Route: "/test-fault/db-timeout", Reason: "pg_sleep"}

	if !g.Admit(ev) {
		t.Fatal("first event must be admitted")
	}
	if g.Admit(ev) {
		t.Fatal("duplicate inside the window must be suppressed")
	}

	now = now.Add(1999 * time.Millisecond)
	if g.Admit(ev) {
		t.Fatal("duplicate at window edge must still be suppressed")
	}

	now = now.Add(time.Millisecond)
	if !g.Admit(ev) {
		t.Fatal("event after the window must be re-admitted")
	}
}

func TestGateKeysOnCodeRouteReason(t *testing.T) {
	now := time.Unix(1700000000, 0)
	g := NewGate(2 * time.Second)
	g.now = func() time.Time { return now }

	base := &fault.Event{Code: fault.CodeDBTimeout, Route: "/a", Reason: "pg_sleep"}
	if !g.Admit(base) {
		t.Fatal("base event must be admitted")
	}

	variants := []*fault.Event{
		{Code: fault.CodeSQLInjection, Route: "/a", Reason: "pg_sleep"},
		{Code: fault.CodeDBTimeout, Route: "/b", Reason: "pg_sleep"},
		{Code: fault.CodeDBTimeout, Route: "/a", Reason: "lock_wait"},
	}
	for i, ev := range variants {
		if !g.Admit(ev) {
			t.Fatalf("variant %d must be admitted; it differs from the base key", i)
		}
	}

	if g.Admit(base) {
		t.Fatal("base key must still be suppressed")
	}
}

func TestGateSuppressionDoesNotExtendWindow(t *testing.T) {
	now := time.Unix(1700000000, 0)
	g := NewGate(2 * time.Second)
	g.now = func() time.Time { return now }

	ev := &fault.Event{Code: fault.CodeExternalAPILatency, Route: "/x", Reason: "external_timeout"}
	if !g.Admit(ev) {
		t.Fatal("first event must be admitted")
	}

	// Keep hammering inside the window; the deadline must not slide.
	for i := 0; i < 3; i++ {
		now = now.Add(500 * time.Millisecond)
		if g.Admit(ev) {
			t.Fatalf("hammered duplicate %d must be suppressed", i)
		}
	}

	now = now.Add(600 * time.Millisecond) // 2.1s after first admit
	if !g.Admit(ev) {
		t.Fatal("event must be re-admitted one window after the first admit")
	}
}
