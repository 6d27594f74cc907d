package httpserver

import (
	"encoding/json"
	"net/http"
	"strings"

	"log/slog"

	"mendcore/internal/agent"
	"mendcore/internal/auth"
	"mendcore/internal/incident"
	"mendcore/internal/logevents"
	"mendcore/internal/playbook"
	"mendcore/internal/rag"
	"mendcore/internal/recon"
	"mendcore/internal/stream"
)

// Deps carries everything the router wires together.
type Deps struct {
	Logger      *slog.Logger
	AuthSvc     *auth.Service
	Incidents   *incident.Service
	Playbooks   *playbook.Table
	Fixer       agent.CodeFixer
	RAG         *rag.Service
	EventStore  *logevents.Store
	Sink        logevents.FaultSink
	Hub         *stream.Hub
	IngestToken string
	AutoApprove bool
}

func NewRouter(d Deps) http.Handler {
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	// Auth
	mux.Handle("/api/v1/auth/login", loginHandler(d.AuthSvc, d.Logger))

	secured := auth.JWTMiddleware(d.AuthSvc)

	// Log ingest + inspection. Ingest authenticates with the shipper
	// token, not operator JWTs.
	ingestHandler := &logevents.IngestHandler{
		Store:       d.EventStore,
		Logger:      d.Logger,
		IngestToken: d.IngestToken,
		Sink:        d.Sink,
	}
	mux.Handle("/api/v1/ingest/logs", ingestHandler)

	queryHandler := &logevents.QueryHandler{
		Store:  d.EventStore,
		Logger: d.Logger,
	}
	mux.Handle("/api/v1/logs", secured(queryHandler))

	reconHandler := &recon.Handler{
		Events: d.EventStore,
		Logger: d.Logger,
	}
	mux.Handle("/api/v1/logs/incidents", secured(reconHandler))

	// Incidents. Agent actions have their own handler; everything else
	// under the prefix goes to the detail handler.
	listHandler := &incident.ListHandler{
		Service: d.Incidents,
		Logger:  d.Logger,
	}
	detailHandler := &incident.DetailHandler{
		Service: d.Incidents,
		Logger:  d.Logger,
	}
	agentHandler := &agent.ActionHandler{
		Incidents:   d.Incidents,
		Playbooks:   d.Playbooks,
		Fixer:       d.Fixer,
		Logger:      d.Logger,
		AutoApprove: d.AutoApprove,
	}
	mux.Handle("/api/v1/incidents", secured(listHandler))
	mux.Handle("/api/v1/incidents/", secured(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// /api/v1/incidents/{id}/agent-*
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		if len(parts) > 4 && strings.HasPrefix(parts[4], "agent-") {
			agentHandler.ServeHTTP(w, r)
			return
		}
		detailHandler.ServeHTTP(w, r)
	})))

	// Live updates for the dashboard.
	mux.Handle("/api/v1/incidents/stream", d.Hub)

	// RAG administration, admin only.
	setupHandler := &rag.SetupHandler{
		Service: d.RAG,
		Logger:  d.Logger,
	}
	seedHandler := &rag.SeedHandler{
		Service: d.RAG,
		Logger:  d.Logger,
	}
	mux.Handle("/api/v1/rag/setup-assistant",
		secured(auth.RequireRole(setupHandler.ServeHTTP, auth.RoleAdmin)))
	mux.Handle("/api/v1/rag/seed-kb",
		secured(auth.RequireRole(seedHandler.ServeHTTP, auth.RoleAdmin)))

	// CORS wrapper (simple, for local UI/tools).
	return withCORS(mux)
}
