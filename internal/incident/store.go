package incident

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"
)

var ErrNotFound = errors.New("incident not found")

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const incidentColumns = `id, detected_at, error_code, symptoms, breadcrumbs,
	root_cause, remediation, verification, resolved,
	rag_query, rag_response, rag_confidence, rag_doc_id, updated_at`

func (s *Store) Create(ctx context.Context, inc *Incident) error {
	if inc.DetectedAt.IsZero() {
		inc.DetectedAt = time.Now().UTC()
	}
	if inc.Breadcrumbs == nil {
		inc.Breadcrumbs = []string{}
	}
	const q = `
		INSERT INTO incidents
		(detected_at, error_code, symptoms, breadcrumbs,
		 root_cause, remediation, verification, resolved,
		 rag_query, rag_response, rag_confidence, rag_doc_id, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		RETURNING id, updated_at
	`
	row := s.db.QueryRowContext(ctx, q,
		inc.DetectedAt,
		inc.ErrorCode,
		inc.Symptoms,
		pq.Array(inc.Breadcrumbs),
		inc.RootCause,
		inc.Remediation,
		inc.Verification,
		inc.Resolved,
		inc.RAGQuery,
		inc.RAGResponse,
		inc.RAGConfidence,
		inc.RAGDocID,
		time.Now().UTC(),
	)
	return row.Scan(&inc.ID, &inc.UpdatedAt)
}

func (s *Store) Get(ctx context.Context, id int64) (*Incident, error) {
	const q = `SELECT ` + incidentColumns + ` FROM incidents WHERE id = $1`
	inc, err := scanIncident(s.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return inc, nil
}

// Update writes every mutable field back in place and bumps updated_at.
// error_code and detected_at are immutable after creation.
func (s *Store) Update(ctx context.Context, inc *Incident) error {
	const q = `
		UPDATE incidents SET
			symptoms = $1, breadcrumbs = $2,
			root_cause = $3, remediation = $4, verification = $5, resolved = $6,
			rag_query = $7, rag_response = $8, rag_confidence = $9, rag_doc_id = $10,
			updated_at = $11
		WHERE id = $12
		RETURNING updated_at
	`
	row := s.db.QueryRowContext(ctx, q,
		inc.Symptoms,
		pq.Array(inc.Breadcrumbs),
		inc.RootCause,
		inc.Remediation,
		inc.Verification,
		inc.Resolved,
		inc.RAGQuery,
		inc.RAGResponse,
		inc.RAGConfidence,
		inc.RAGDocID,
		time.Now().UTC(),
		inc.ID,
	)
	if err := row.Scan(&inc.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// List returns incidents ordered by most recent first.
func (s *Store) List(ctx context.Context, limit int) ([]Incident, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	const q = `SELECT ` + incidentColumns + ` FROM incidents ORDER BY detected_at DESC LIMIT $1`
	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *inc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIncident(row rowScanner) (*Incident, error) {
	var inc Incident
	var crumbs pq.StringArray
	var confidence sql.NullFloat64
	if err := row.Scan(
		&inc.ID, &inc.DetectedAt, &inc.ErrorCode, &inc.Symptoms, &crumbs,
		&inc.RootCause, &inc.Remediation, &inc.Verification, &inc.Resolved,
		&inc.RAGQuery, &inc.RAGResponse, &confidence, &inc.RAGDocID, &inc.UpdatedAt,
	); err != nil {
		return nil, err
	}
	inc.Breadcrumbs = []string(crumbs)
	if confidence.Valid {
		v := confidence.Float64
		inc.RAGConfidence = &v
	}
	return &inc, nil
}
