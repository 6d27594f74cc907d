package incident

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"log/slog"

	"mendcore/internal/rag"
)

type fakeStore struct {
	nextID    int64
	created   []*Incident
	updated   []*Incident
	createErr error
	updateErr error
}

func (f *fakeStore) Create(ctx context.Context, inc *Incident) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.nextID++
	inc.ID = f.nextID
	cp := *inc
	f.created = append(f.created, &cp)
	return nil
}

func (f *fakeStore) Get(ctx context.Context, id int64) (*Incident, error) {
	for _, inc := range f.created {
		if inc.ID == id {
			return inc, nil
		}
	}
	return nil, ErrNotFound
}

func (f *fakeStore) Update(ctx context.Context, inc *Incident) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	cp := *inc
	f.updated = append(f.updated, &cp)
	return nil
}

func (f *fakeStore) List(ctx context.Context, limit int) ([]Incident, error) {
	out := make([]Incident, 0, len(f.created))
	for _, inc := range f.created {
		out = append(out, *inc)
	}
	return out, nil
}

type fakeRetriever struct {
	resp     *rag.Response
	queryErr error
	indexed  []string
	docID    string
	indexErr error
}

func (f *fakeRetriever) QuerySimilar(ctx context.Context, symptoms string, markers []string, metrics map[string]string) (*rag.Response, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.resp, nil
}

func (f *fakeRetriever) IndexDocument(ctx context.Context, content, filename string) (string, error) {
	if f.indexErr != nil {
		return "", f.indexErr
	}
	f.indexed = append(f.indexed, filename)
	return f.docID, nil
}

type fakePublisher struct {
	events []string
}

func (f *fakePublisher) Publish(event string, payload any) {
	f.events = append(f.events, event)
}

func newTestService(store *fakeStore, ret *fakeRetriever, pub *fakePublisher) *Service {
	return NewService(store, ret, pub, slog.Default())
}

func TestRecordPersistsAndPublishes(t *testing.T) {
	store := &fakeStore{}
	pub := &fakePublisher{}
	svc := newTestService(store, &fakeRetriever{}, pub)

	inc, err := svc.Record(context.Background(), "FAULT_DB_TIMEOUT",
		"DB timeout on /db", []string{"pg_sleep_executed"})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if inc.ID == 0 {
		t.Fatal("incident did not get an id")
	}
	if len(store.created) != 1 {
		t.Fatalf("created %d incidents", len(store.created))
	}
	if len(pub.events) != 1 || pub.events[0] != "created" {
		t.Fatalf("published %v", pub.events)
	}
}

func TestRecordPropagatesStoreFailure(t *testing.T) {
	store := &fakeStore{createErr: errors.New("db down")}
	svc := newTestService(store, &fakeRetriever{}, &fakePublisher{})

	if _, err := svc.Record(context.Background(), "FAULT_DB_TIMEOUT", "", nil); err == nil {
		t.Fatal("expected error when the store fails")
	}
}

func TestAnalyzeStoresRetrievalSnapshot(t *testing.T) {
	store := &fakeStore{}
	ret := &fakeRetriever{
		resp: &rag.Response{
			Content:           "looks like pool exhaustion",
			RetrievedMemories: []json.RawMessage{json.RawMessage(`{"id":1}`)},
			RetrievedFiles:    []string{"kb_db_timeout_001.txt"},
		},
	}
	pub := &fakePublisher{}
	svc := newTestService(store, ret, pub)

	inc := &Incident{ID: 1, ErrorCode: "FAULT_DB_TIMEOUT",
		Symptoms: "DB timeout", Breadcrumbs: []string{"pg_sleep_executed"}}
	got := svc.Analyze(context.Background(), inc)

	if got.RAGResponse == "" || got.RAGQuery == "" {
		t.Fatal("retrieval snapshot not stored")
	}
	var snapshot struct {
		Content           string            `json:"content"`
		RetrievedMemories []json.RawMessage `json:"retrieved_memories"`
		RetrievedFiles    []string          `json:"retrieved_files"`
	}
	if err := json.Unmarshal([]byte(got.RAGResponse), &snapshot); err != nil {
		t.Fatalf("rag_response is not JSON: %v", err)
	}
	if snapshot.Content != "looks like pool exhaustion" {
		t.Fatalf("content = %q", snapshot.Content)
	}
	if got.RootCause != "looks like pool exhaustion" {
		t.Fatalf("root cause = %q", got.RootCause)
	}
	if got.RAGConfidence != nil {
		t.Fatal("retriever must not assign a confidence score")
	}
	if len(store.updated) != 1 {
		t.Fatalf("updated %d times", len(store.updated))
	}
	if len(pub.events) != 1 || pub.events[0] != "analyzed" {
		t.Fatalf("published %v", pub.events)
	}
}

func TestAnalyzeKeepsExistingRootCause(t *testing.T) {
	svc := newTestService(&fakeStore{}, &fakeRetriever{
		resp: &rag.Response{Content: "new theory"},
	}, &fakePublisher{})

	inc := &Incident{ID: 1, RootCause: "operator-confirmed cause"}
	got := svc.Analyze(context.Background(), inc)

	if got.RootCause != "operator-confirmed cause" {
		t.Fatalf("root cause overwritten: %q", got.RootCause)
	}
}

func TestAnalyzeRetrievalFailureIsNonFatal(t *testing.T) {
	store := &fakeStore{}
	pub := &fakePublisher{}
	svc := newTestService(store, &fakeRetriever{queryErr: errors.New("rag 502")}, pub)

	inc := &Incident{ID: 1, ErrorCode: "FAULT_DB_TIMEOUT"}
	got := svc.Analyze(context.Background(), inc)

	if got.RAGResponse != "" {
		t.Fatal("failed retrieval must leave the incident unmodified")
	}
	if len(store.updated) != 0 {
		t.Fatal("failed retrieval must not write to the store")
	}
	if len(pub.events) != 0 {
		t.Fatalf("published %v", pub.events)
	}
}

func TestResolveUpdatesAndIndexes(t *testing.T) {
	store := &fakeStore{}
	ret := &fakeRetriever{docID: "doc-7"}
	pub := &fakePublisher{}
	svc := newTestService(store, ret, pub)

	inc := &Incident{ID: 4, ErrorCode: "FAULT_DB_TIMEOUT"}
	got, err := svc.Resolve(context.Background(), inc,
		"pool exhaustion", "applied timeout playbook", "probe healthy", true)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !got.Resolved || got.RootCause != "pool exhaustion" {
		t.Fatalf("incident = %+v", got)
	}
	if got.RAGDocID != "doc-7" {
		t.Fatalf("doc id = %q", got.RAGDocID)
	}
	if len(ret.indexed) != 1 || ret.indexed[0] != "incident_4.txt" {
		t.Fatalf("indexed %v", ret.indexed)
	}
	// Update for the resolution fields, then again for the doc id.
	if len(store.updated) != 2 {
		t.Fatalf("updated %d times", len(store.updated))
	}
	if len(pub.events) != 1 || pub.events[0] != "resolved" {
		t.Fatalf("published %v", pub.events)
	}
}

func TestResolveSwallowsIndexFailure(t *testing.T) {
	store := &fakeStore{}
	svc := newTestService(store, &fakeRetriever{indexErr: errors.New("upload failed")}, &fakePublisher{})

	inc := &Incident{ID: 5}
	got, err := svc.Resolve(context.Background(), inc, "rc", "rem", "ver", true)
	if err != nil {
		t.Fatalf("indexing failure must not fail resolution: %v", err)
	}
	if got.RAGDocID != "" {
		t.Fatalf("doc id = %q", got.RAGDocID)
	}
}

func TestResolvePropagatesUpdateFailure(t *testing.T) {
	store := &fakeStore{updateErr: errors.New("db down")}
	svc := newTestService(store, &fakeRetriever{}, &fakePublisher{})

	if _, err := svc.Resolve(context.Background(), &Incident{ID: 6}, "", "", "", true); err == nil {
		t.Fatal("expected error when the store fails")
	}
}

func TestToDocumentRendersAllFields(t *testing.T) {
	inc := &Incident{
		ID:           9,
		ErrorCode:    "FAULT_DB_TIMEOUT",
		Symptoms:     "DB timeout",
		Breadcrumbs:  []string{"pg_sleep_executed", "queue_pool_limit"},
		RootCause:    "pool exhaustion",
		Remediation:  "applied timeout playbook",
		Verification: "probe healthy",
		Resolved:     true,
	}
	doc := inc.ToDocument()
	for _, want := range []string{
		"IncidentID: 9",
		"ErrorCode: FAULT_DB_TIMEOUT",
		"Breadcrumbs: pg_sleep_executed, queue_pool_limit",
		"Resolved: true",
	} {
		if !strings.Contains(doc, want) {
			t.Fatalf("document missing %q:\n%s", want, doc)
		}
	}
}
