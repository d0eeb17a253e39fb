package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/lohnlab/tarifbot/internal/interview"
	"github.com/lohnlab/tarifbot/internal/retrieval"
)

// SaveResult writes the completed interview and its audit citations.
// Tables: interview_results, result_citations.
func (s *Store) SaveResult(ctx context.Context, sessionID string, tenantID uuid.UUID, state *interview.FormState, citations []retrieval.Citation) error {
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal form state: %w", err)
	}

	var grossMonthly, netto float64
	if r := state.Data.CalculationResult; r != nil {
		grossMonthly = r.GrossMonthly
		netto = r.Netto
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	resultID := uuid.New()
	_, err = tx.Exec(ctx, `
		INSERT INTO interview_results (id, session_ref, tenant_id, form_state, gross_monthly, netto, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())`,
		resultID, sessionID, tenantID, stateJSON, grossMonthly, netto,
	)
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}

	for _, c := range citations {
		_, err = tx.Exec(ctx, `
			INSERT INTO result_citations (id, result_id, document_id, document_name, pages, similarity)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			uuid.New(), resultID, c.DocumentID, c.DocumentName, c.Pages, c.Similarity,
		)
		if err != nil {
			return fmt.Errorf("insert citation: %w", err)
		}
	}

	// The draft mirror is superseded by the final result.
	if _, err := tx.Exec(ctx, `DELETE FROM interview_drafts WHERE session_ref = $1`, sessionID); err != nil {
		return fmt.Errorf("delete draft: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// UpsertDraft mirrors the in-flight form state server-side so a crashed
// client can resume mid-interview.
func (s *Store) UpsertDraft(ctx context.Context, sessionID string, tenantID uuid.UUID, state *interview.FormState) error {
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal form state: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO interview_drafts (session_ref, tenant_id, form_state, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (session_ref) DO UPDATE SET form_state = $3, updated_at = now()`,
		sessionID, tenantID, stateJSON,
	)
	if err != nil {
		return fmt.Errorf("upsert draft: %w", err)
	}
	return nil
}

// GetDraft loads the mirrored form state for a session, if any.
func (s *Store) GetDraft(ctx context.Context, sessionID string) (*interview.FormState, error) {
	var stateJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT form_state FROM interview_drafts WHERE session_ref = $1`,
		sessionID,
	).Scan(&stateJSON)
	if err != nil {
		return nil, fmt.Errorf("select draft: %w", err)
	}
	var state interview.FormState
	if err := json.Unmarshal(stateJSON, &state); err != nil {
		return nil, fmt.Errorf("unmarshal form state: %w", err)
	}
	return &state, nil
}

// GetCitations returns the audit citations stored with a session's result.
func (s *Store) GetCitations(ctx context.Context, sessionID string) ([]retrieval.Citation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT c.document_id, c.document_name, c.pages, c.similarity
		FROM result_citations c
		JOIN interview_results r ON r.id = c.result_id
		WHERE r.session_ref = $1
		ORDER BY c.similarity DESC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("select citations: %w", err)
	}
	defer rows.Close()

	var citations []retrieval.Citation
	for rows.Next() {
		var c retrieval.Citation
		if err := rows.Scan(&c.DocumentID, &c.DocumentName, &c.Pages, &c.Similarity); err != nil {
			return nil, fmt.Errorf("scan citation: %w", err)
		}
		citations = append(citations, c)
	}
	return citations, rows.Err()
}
