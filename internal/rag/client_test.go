package rag

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestAddMessageSendsFormAndDecodesAnswer(t *testing.T) {
	var gotPath, gotKey, gotContentType string
	var gotForm map[string][]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("X-API-Key")
		gotContentType = r.Header.Get("Content-Type")
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		gotForm = r.PostForm

		_ = json.NewEncoder(w).Encode(map[string]any{
			"content":            "similar incident: pool exhaustion",
			"retrieved_memories": []map[string]any{{"id": 1}},
			"retrieved_files":    []string{"kb_db_timeout_001.txt"},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret-key")
	resp, err := c.AddMessage(context.Background(), "th-1", "what happened?", "openai", "gpt-4o")
	if err != nil {
		t.Fatalf("AddMessage: %v", err)
	}

	if gotPath != "/threads/th-1/messages" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotKey != "secret-key" {
		t.Fatalf("api key header = %q", gotKey)
	}
	if !strings.HasPrefix(gotContentType, "application/x-www-form-urlencoded") {
		t.Fatalf("content type = %q", gotContentType)
	}
	for key, want := range map[string]string{
		"content":      "what happened?",
		"llm_provider": "openai",
		"model_name":   "gpt-4o",
		"memory":       "Auto",
		"stream":       "false",
	} {
		if got := gotForm[key]; len(got) != 1 || got[0] != want {
			t.Fatalf("form[%s] = %v, want %q", key, got, want)
		}
	}

	if resp.Content != "similar incident: pool exhaustion" {
		t.Fatalf("content = %q", resp.Content)
	}
	if len(resp.RetrievedMemories) != 1 || len(resp.RetrievedFiles) != 1 {
		t.Fatalf("retrieval metadata = %d memories, %d files",
			len(resp.RetrievedMemories), len(resp.RetrievedFiles))
	}
}

func TestAddMessageFallsBackToMessageField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"message": "the answer"})
	}))
	defer srv.Close()

	resp, err := NewClient(srv.URL, "k").AddMessage(context.Background(), "th", "q", "openai", "m")
	if err != nil {
		t.Fatalf("AddMessage: %v", err)
	}
	if resp.Content != "the answer" {
		t.Fatalf("content = %q", resp.Content)
	}
}

func TestClientSurfacesHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "thread not found", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "k").AddMessage(context.Background(), "th", "q", "openai", "m")
	if err == nil {
		t.Fatal("expected error for 404")
	}
	if !strings.Contains(err.Error(), "404") {
		t.Fatalf("error = %v", err)
	}
}

func TestUploadDocumentMultipart(t *testing.T) {
	var gotFilename, gotBody string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
			return
		}
		defer file.Close()
		gotFilename = header.Filename
		buf := new(strings.Builder)
		if _, err := io.Copy(buf, file); err != nil {
			t.Errorf("read file: %v", err)
		}
		gotBody = buf.String()

		_ = json.NewEncoder(w).Encode(map[string]string{"document_id": "doc-9"})
	}))
	defer srv.Close()

	doc, err := NewClient(srv.URL, "k").UploadDocument(context.Background(),
		"asst-1", "Incident: FAULT_DB_TIMEOUT resolved", "incident_4.txt")
	if err != nil {
		t.Fatalf("UploadDocument: %v", err)
	}
	if doc.DocumentID != "doc-9" {
		t.Fatalf("document id = %q", doc.DocumentID)
	}
	if gotFilename != "incident_4.txt" {
		t.Fatalf("filename = %q", gotFilename)
	}
	if gotBody != "Incident: FAULT_DB_TIMEOUT resolved" {
		t.Fatalf("body = %q", gotBody)
	}
}

func TestBuildQuery(t *testing.T) {
	q := BuildQuery("DB timeout on /db",
		[]string{"pg_sleep_executed", "queue_pool_limit"},
		map[string]string{"route": "/db", "latency": "5.2"})

	want := "New incident detected:\n" +
		"Symptoms: DB timeout on /db\n" +
		"Markers: pg_sleep_executed, queue_pool_limit\n" +
		"Metrics: latency=5.2, route=/db\n" +
		"What are the closest past incidents and recommended remediations?"
	if q != want {
		t.Fatalf("query = %q, want %q", q, want)
	}
}

func TestBuildQueryOmitsEmptySections(t *testing.T) {
	q := BuildQuery("something broke", nil, nil)
	if strings.Contains(q, "Markers:") || strings.Contains(q, "Metrics:") {
		t.Fatalf("query should omit empty sections: %q", q)
	}
}
