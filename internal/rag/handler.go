package rag

import (
	"encoding/json"
	"errors"
	"net/http"

	"log/slog"
)

// SetupHandler bootstraps the retrieval assistant and conversation
// thread. One-time operation; the router restricts it to admins. The
// returned ids go into the environment before the next restart.
type SetupHandler struct {
	Service *Service
	Logger  *slog.Logger
}

func (h *SetupHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	assistantID, threadID, err := h.Service.Setup(r.Context(), "Incident Analysis Assistant")
	if err != nil {
		h.Logger.Error("assistant setup", "err", err)
		w.WriteHeader(http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"assistant_id": assistantID,
		"thread_id":    threadID,
		"message": "Save assistant_id as MENDCORE_RAG_ASSISTANT_ID and " +
			"thread_id as MENDCORE_RAG_THREAD_ID in the environment",
	})
}

// SeedHandler uploads the bundled resolved-incident documents so the
// retriever has history to draw on before the first real incident.
type SeedHandler struct {
	Service *Service
	Logger  *slog.Logger
}

func (h *SeedHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	results, err := h.Service.SeedKnowledgeBase(r.Context())
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, ErrNoThread) {
			status = http.StatusBadRequest
		}
		h.Logger.Error("seed knowledge base", "err", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}

	uploaded, failed := 0, 0
	for _, res := range results {
		if res.DocumentID != "" {
			uploaded++
		} else {
			failed++
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"uploaded": uploaded,
		"failed":   failed,
		"results":  results,
	})
}
