// Package rag integrates with the hosted retrieval-augmented generation
// service used for incident analysis.
//
// The service exposes assistants with document stores and conversation
// threads; posting a message to a thread performs vector retrieval over the
// indexed documents and returns the model answer alongside the retrieval
// metadata.
package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Response is the answer to one retrieval query.
type Response struct {
	Content           string            `json:"content"`
	RetrievedMemories []json.RawMessage `json:"retrieved_memories"`
	RetrievedFiles    []string          `json:"retrieved_files"`
}

type AssistantInfo struct {
	AssistantID string `json:"assistant_id"`
	Name        string `json:"name"`
}

type ThreadInfo struct {
	ThreadID string `json:"thread_id"`
}

type DocumentInfo struct {
	DocumentID string `json:"document_id"`
	Filename   string `json:"filename"`
	Status     string `json:"status"`
}

// Client is a thin wrapper over the RAG service REST API.
// Auth is an X-API-Key header.
type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpc:   &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("X-API-Key", c.apiKey)
	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("rag service returned %d: %s", resp.StatusCode, truncate(string(body), 200))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode rag response: %w", err)
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

// CreateAssistant provisions a new assistant with a system prompt.
func (c *Client) CreateAssistant(ctx context.Context, name, systemPrompt string) (*AssistantInfo, error) {
	var info AssistantInfo
	err := c.postJSON(ctx, "/assistants", map[string]string{
		"name":          name,
		"system_prompt": systemPrompt,
	}, &info)
	if err != nil {
		return nil, err
	}
	if info.Name == "" {
		info.Name = name
	}
	return &info, nil
}

// CreateThread creates a conversation thread under an assistant.
func (c *Client) CreateThread(ctx context.Context, assistantID string) (*ThreadInfo, error) {
	var info ThreadInfo
	err := c.postJSON(ctx, "/assistants/"+assistantID+"/threads", map[string]string{}, &info)
	if err != nil {
		return nil, err
	}
	return &info, nil
}

// UploadDocument adds a text document to an assistant's store. The service
// expects a multipart file upload, so the content is wrapped as an
// in-memory text file.
func (c *Client) UploadDocument(ctx context.Context, assistantID, content, filename string) (*DocumentInfo, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, err
	}
	if _, err := io.WriteString(part, content); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/assistants/"+assistantID+"/documents", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var info DocumentInfo
	if err := c.do(req, &info); err != nil {
		return nil, err
	}
	if info.Filename == "" {
		info.Filename = filename
	}
	return &info, nil
}

// AddMessage posts a message to a thread and returns the retrieval-augmented
// answer. The service takes form-encoded fields on this endpoint.
func (c *Client) AddMessage(ctx context.Context, threadID, content, llmProvider, modelName string) (*Response, error) {
	form := url.Values{
		"content":      {content},
		"llm_provider": {llmProvider},
		"model_name":   {modelName},
		"memory":       {"Auto"},
		"stream":       {"false"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/threads/"+threadID+"/messages", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var raw struct {
		Content           string            `json:"content"`
		Message           string            `json:"message"`
		RetrievedMemories []json.RawMessage `json:"retrieved_memories"`
		RetrievedFiles    []string          `json:"retrieved_files"`
	}
	if err := c.do(req, &raw); err != nil {
		return nil, err
	}
	answer := raw.Content
	if answer == "" {
		answer = raw.Message
	}
	return &Response{
		Content:           answer,
		RetrievedMemories: raw.RetrievedMemories,
		RetrievedFiles:    raw.RetrievedFiles,
	}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
