package incident

import (
	"fmt"
	"strings"
	"time"
)

// Incident is the durable record of one detected fault and its remediation
// lifecycle. DetectedAt and ErrorCode are fixed at creation; evidence and
// resolution fields fill in as the pipeline advances.
type Incident struct {
	ID         int64     `json:"id"`
	DetectedAt time.Time `json:"detected_at"`
	ErrorCode  string    `json:"error_code"`
	Symptoms   string    `json:"symptoms"`

	// Breadcrumbs are ordered log markers; insertion order matters for
	// keyword inference downstream.
	Breadcrumbs []string `json:"breadcrumbs"`

	RootCause    string `json:"root_cause"`
	Remediation  string `json:"remediation"`
	Verification string `json:"verification"`
	Resolved     bool   `json:"resolved"`

	// Evidence snapshot from the retriever: the query sent and the raw
	// response, both serialized JSON. Empty string means not yet analyzed.
	RAGQuery      string   `json:"rag_query"`
	RAGResponse   string   `json:"rag_response"`
	RAGConfidence *float64 `json:"rag_confidence"`

	// Document ID assigned when the resolved incident is indexed back
	// into the knowledge base.
	RAGDocID string `json:"rag_doc_id"`

	UpdatedAt time.Time `json:"updated_at"`
}

// ToDocument renders the incident as a plain-text document for indexing
// into the RAG store.
func (i *Incident) ToDocument() string {
	var b strings.Builder
	fmt.Fprintf(&b, "IncidentID: %d\n", i.ID)
	fmt.Fprintf(&b, "ErrorCode: %s\n", i.ErrorCode)
	fmt.Fprintf(&b, "Symptoms: %s\n", i.Symptoms)
	fmt.Fprintf(&b, "Breadcrumbs: %s\n", strings.Join(i.Breadcrumbs, ", "))
	fmt.Fprintf(&b, "RootCause: %s\n", i.RootCause)
	fmt.Fprintf(&b, "Remediation: %s\n", i.Remediation)
	fmt.Fprintf(&b, "Verification: %s\n", i.Verification)
	fmt.Fprintf(&b, "Resolved: %t\n", i.Resolved)
	return b.String()
}
