package rag

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"
)

//go:embed kb/*.txt
var kbDocs embed.FS

// ErrNoThread is returned when retrieval is attempted before the assistant
// and thread have been bootstrapped.
var ErrNoThread = errors.New("rag thread is not configured; run assistant setup first")

// Service wires the RAG client to the configured assistant/thread and owns
// query construction. All methods block until the service answers.
type Service struct {
	client      *Client
	assistantID string
	threadID    string
	provider    string
	model       string
	logger      *slog.Logger
}

func NewService(client *Client, assistantID, threadID, provider, model string, logger *slog.Logger) *Service {
	return &Service{
		client:      client,
		assistantID: assistantID,
		threadID:    threadID,
		provider:    provider,
		model:       model,
		logger:      logger,
	}
}

// BuildQuery renders the natural-language retrieval query from incident
// symptoms, ordered markers, and an optional metric snapshot.
func BuildQuery(symptoms string, markers []string, metrics map[string]string) string {
	parts := []string{"New incident detected:\nSymptoms: " + symptoms}
	if len(markers) > 0 {
		parts = append(parts, "Markers: "+strings.Join(markers, ", "))
	}
	if len(metrics) > 0 {
		keys := make([]string, 0, len(metrics))
		for k := range metrics {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]string, 0, len(keys))
		for _, k := range keys {
			pairs = append(pairs, k+"="+metrics[k])
		}
		parts = append(parts, "Metrics: "+strings.Join(pairs, ", "))
	}
	parts = append(parts, "What are the closest past incidents and recommended remediations?")
	return strings.Join(parts, "\n")
}

// QuerySimilar retrieves similar past incidents for the given symptoms.
func (s *Service) QuerySimilar(ctx context.Context, symptoms string, markers []string, metrics map[string]string) (*Response, error) {
	if s.threadID == "" {
		return nil, ErrNoThread
	}
	query := BuildQuery(symptoms, markers, metrics)
	resp, err := s.client.AddMessage(ctx, s.threadID, query, s.provider, s.model)
	if err != nil {
		return nil, err
	}
	s.logger.Info("rag query returned",
		"memories", len(resp.RetrievedMemories),
		"files", len(resp.RetrievedFiles))
	return resp, nil
}

// IndexDocument uploads a document to the assistant store for future
// retrieval and returns the assigned document ID.
func (s *Service) IndexDocument(ctx context.Context, content, filename string) (string, error) {
	if s.assistantID == "" {
		return "", errors.New("rag assistant is not configured")
	}
	doc, err := s.client.UploadDocument(ctx, s.assistantID, content, filename)
	if err != nil {
		return "", err
	}
	return doc.DocumentID, nil
}

const defaultSystemPrompt = "You are an incident analysis assistant. Use the documents " +
	"stored for past incident diagnosis and remediation to suggest root " +
	"cause analysis and safe remediation actions."

// Setup provisions a fresh assistant plus an initial thread. The returned
// IDs should be persisted into the environment for subsequent runs.
func (s *Service) Setup(ctx context.Context, name string) (assistantID, threadID string, err error) {
	if name == "" {
		name = "Incident RAG Assistant"
	}
	assistant, err := s.client.CreateAssistant(ctx, name, defaultSystemPrompt)
	if err != nil {
		return "", "", fmt.Errorf("create assistant: %w", err)
	}
	thread, err := s.client.CreateThread(ctx, assistant.AssistantID)
	if err != nil {
		return "", "", fmt.Errorf("create thread: %w", err)
	}
	s.logger.Info("rag assistant created",
		"assistant_id", assistant.AssistantID,
		"thread_id", thread.ThreadID)
	return assistant.AssistantID, thread.ThreadID, nil
}

// SeedResult reports the outcome of one knowledge-base upload.
type SeedResult struct {
	Filename   string `json:"filename"`
	DocumentID string `json:"document_id,omitempty"`
	Error      string `json:"error,omitempty"`
}

// SeedKnowledgeBase uploads the embedded resolved-incident examples so the
// retrieval pipeline has historical context before the first live incident.
// Upload failures are collected per document, not fatal.
func (s *Service) SeedKnowledgeBase(ctx context.Context) ([]SeedResult, error) {
	if s.assistantID == "" {
		return nil, errors.New("rag assistant is not configured")
	}
	entries, err := fs.ReadDir(kbDocs, "kb")
	if err != nil {
		return nil, err
	}
	var results []SeedResult
	for _, e := range entries {
		content, err := fs.ReadFile(kbDocs, "kb/"+e.Name())
		if err != nil {
			return nil, err
		}
		res := SeedResult{Filename: e.Name()}
		doc, err := s.client.UploadDocument(ctx, s.assistantID, string(content), e.Name())
		if err != nil {
			s.logger.Warn("seed upload failed", "filename", e.Name(), "err", err)
			res.Error = err.Error()
		} else {
			res.DocumentID = doc.DocumentID
		}
		results = append(results, res)
	}
	return results, nil
}
