package incident

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"mendcore/internal/rag"
)

// Recorder is the persistence surface the service needs. *Store satisfies
// it; tests substitute in-memory fakes.
type Recorder interface {
	Create(ctx context.Context, inc *Incident) error
	Get(ctx context.Context, id int64) (*Incident, error)
	Update(ctx context.Context, inc *Incident) error
	List(ctx context.Context, limit int) ([]Incident, error)
}

// Retriever queries the RAG oracle and indexes documents back into it.
type Retriever interface {
	QuerySimilar(ctx context.Context, symptoms string, markers []string, metrics map[string]string) (*rag.Response, error)
	IndexDocument(ctx context.Context, content, filename string) (string, error)
}

// Publisher fans an event out to live subscribers, best-effort.
type Publisher interface {
	Publish(event string, payload any)
}

// Service owns the incident lifecycle: record, analyze, resolve.
type Service struct {
	store     Recorder
	retriever Retriever
	publisher Publisher
	logger    *slog.Logger
}

func NewService(store Recorder, retriever Retriever, publisher Publisher, logger *slog.Logger) *Service {
	return &Service{
		store:     store,
		retriever: retriever,
		publisher: publisher,
		logger:    logger,
	}
}

func (s *Service) publish(event string, inc *Incident) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(event, inc)
}

// Record persists a new incident. Persistence failure propagates: there is
// no meaningful incident without a durable identity.
func (s *Service) Record(ctx context.Context, errorCode, symptoms string, breadcrumbs []string) (*Incident, error) {
	inc := &Incident{
		ErrorCode:   errorCode,
		Symptoms:    symptoms,
		Breadcrumbs: breadcrumbs,
	}
	if err := s.store.Create(ctx, inc); err != nil {
		return nil, fmt.Errorf("create incident: %w", err)
	}
	s.logger.Info("incident recorded", "id", inc.ID, "code", inc.ErrorCode)
	s.publish("created", inc)
	return inc, nil
}

// Analyze runs the evidence retriever for an incident and stores the
// resulting snapshot. Retrieval failure is non-fatal: the incident comes
// back unmodified and the error is only logged.
func (s *Service) Analyze(ctx context.Context, inc *Incident) *Incident {
	resp, err := s.retriever.QuerySimilar(ctx, inc.Symptoms, inc.Breadcrumbs, nil)
	if err != nil {
		s.logger.Error("rag query failed", "incident", inc.ID, "err", err)
		return inc
	}

	queryJSON, _ := json.Marshal(map[string]any{
		"symptoms": inc.Symptoms,
		"markers":  inc.Breadcrumbs,
	})
	memories := resp.RetrievedMemories
	if memories == nil {
		memories = []json.RawMessage{}
	}
	files := resp.RetrievedFiles
	if files == nil {
		files = []string{}
	}
	responseJSON, _ := json.Marshal(map[string]any{
		"content":            resp.Content,
		"retrieved_memories": memories,
		"retrieved_files":    files,
	})

	inc.RAGQuery = string(queryJSON)
	inc.RAGResponse = string(responseJSON)
	inc.RAGConfidence = nil // the retriever does not score its answers

	if inc.RootCause == "" && resp.Content != "" {
		inc.RootCause = resp.Content
	}

	if err := s.store.Update(ctx, inc); err != nil {
		s.logger.Error("store analysis result", "incident", inc.ID, "err", err)
		return inc
	}
	s.publish("analyzed", inc)
	return inc
}

// Resolve closes an incident with caller-supplied outcome fields, then
// indexes the resolved record into the knowledge base best-effort.
func (s *Service) Resolve(ctx context.Context, inc *Incident, rootCause, remediation, verification string, resolved bool) (*Incident, error) {
	inc.RootCause = rootCause
	inc.Remediation = remediation
	inc.Verification = verification
	inc.Resolved = resolved
	if err := s.store.Update(ctx, inc); err != nil {
		return nil, fmt.Errorf("update incident: %w", err)
	}

	docID, err := s.retriever.IndexDocument(ctx, inc.ToDocument(), fmt.Sprintf("incident_%d.txt", inc.ID))
	if err != nil {
		s.logger.Error("index resolved incident", "incident", inc.ID, "err", err)
	} else if docID != "" {
		inc.RAGDocID = docID
		if err := s.store.Update(ctx, inc); err != nil {
			s.logger.Error("store doc id", "incident", inc.ID, "err", err)
		}
	}

	s.logger.Info("incident resolved", "id", inc.ID, "doc", inc.RAGDocID)
	s.publish("resolved", inc)
	return inc, nil
}

// Get and List pass through to the store for handlers.
func (s *Service) Get(ctx context.Context, id int64) (*Incident, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, limit int) ([]Incident, error) {
	return s.store.List(ctx, limit)
}

// Update exposes in-place persistence for the agent endpoints.
func (s *Service) Update(ctx context.Context, inc *Incident) error {
	return s.store.Update(ctx, inc)
}
