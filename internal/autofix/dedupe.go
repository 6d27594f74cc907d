// Package autofix turns fault log lines into unattended remediation runs:
// parse, dedupe, record, analyze, plan, gate, execute, resolve.
package autofix

import (
	"strings"
	"sync"
	"time"

	"mendcore/internal/fault"
)

// Gate suppresses duplicate fault events. Log shippers redeliver and a
// single fault often emits several identical lines in a burst; admitting
// each one would open one incident per line.
type Gate struct {
	window time.Duration

	mu       sync.Mutex
	lastSeen map[string]time.Time

	now func() time.Time
}

func NewGate(window time.Duration) *Gate {
	if window <= 0 {
		window = 2 * time.Second
	}
	return &Gate{
		window:   window,
		lastSeen: make(map[string]time.Time),
		now:      time.Now,
	}
}

// Admit reports whether the event should open a new pipeline run. The
// first event for a (code, route, reason) key is admitted; repeats inside
// the window are dropped and refresh nothing, so a sustained fault is
// re-admitted once per window.
func (g *Gate) Admit(ev *fault.Event) bool {
	key := strings.Join([]string{string(ev.Code), ev.Route, ev.Reason}, ":")
	now := g.now()

	g.mu.Lock()
	defer g.mu.Unlock()

	if seen, ok := g.lastSeen[key]; ok && now.Sub(seen) < g.window {
		return false
	}
	g.lastSeen[key] = now
	return true
}
