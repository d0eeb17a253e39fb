package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/lohnlab/tarifbot/internal/anthropic"
	"github.com/lohnlab/tarifbot/internal/calc"
	"github.com/lohnlab/tarifbot/internal/extract"
	"github.com/lohnlab/tarifbot/internal/intent"
	"github.com/lohnlab/tarifbot/internal/interview"
	"github.com/lohnlab/tarifbot/internal/retrieval"
	"github.com/lohnlab/tarifbot/internal/validate"
)

type noOracle struct{}

func (noOracle) Complete(context.Context, string, []anthropic.Message, int) (string, error) {
	return "", errors.New("oracle unavailable")
}

type fakeDrafts struct {
	upserts   int
	citations []retrieval.Citation
	err       error
}

func (f *fakeDrafts) UpsertDraft(context.Context, string, uuid.UUID, *interview.FormState) error {
	f.upserts++
	return f.err
}

func (f *fakeDrafts) GetCitations(context.Context, string) ([]retrieval.Citation, error) {
	return f.citations, f.err
}

func testServer(drafts DraftStore) *Server {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := interview.New(interview.Deps{
		Classifier: intent.New(noOracle{}, logger),
		Extractor:  extract.New(noOracle{}, logger),
		Validator:  validate.New(logger),
		Calculator: calc.NewTaxEngine(calc.NewStaticTariffTable()),
		Oracle:     noOracle{},
		Logger:     logger,
	})
	return NewServer(8460, "secret", engine, drafts, uuid.New(), logger)
}

func TestHealthEndpoint(t *testing.T) {
	srv := testServer(nil)

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}

	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %q", body["status"])
	}
}

func TestStatusEndpoint(t *testing.T) {
	srv := testServer(nil)

	req := httptest.NewRequest("GET", "/api/v1/status", nil)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}

	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["service"] != "tarifbot" {
		t.Errorf("expected service tarifbot, got %q", body["service"])
	}
}

func TestChatEndpoint_RequiresMessage(t *testing.T) {
	srv := testServer(nil)

	req := httptest.NewRequest("POST", "/api/v1/chat", strings.NewReader(`{"message": "  "}`))
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestChatEndpoint_AssignsSession(t *testing.T) {
	drafts := &fakeDrafts{}
	srv := testServer(drafts)

	req := httptest.NewRequest("POST", "/api/v1/chat",
		strings.NewReader(`{"message": "Was ist die Entgeltgruppe?"}`))
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var body ChatResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.SessionID == "" {
		t.Error("expected a generated session_id")
	}
	if body.FormState == nil || body.FormState.Section != "job_details" {
		t.Errorf("unexpected form state: %+v", body.FormState)
	}
	if body.Text == "" {
		t.Error("expected a reply text")
	}
	if drafts.upserts != 1 {
		t.Errorf("draft mirrored %d times, want 1", drafts.upserts)
	}
}

func TestCitationsEndpoint_Auth(t *testing.T) {
	drafts := &fakeDrafts{citations: []retrieval.Citation{
		{DocumentID: uuid.New(), DocumentName: "TVöD Entgelttabelle", Pages: "3-5", Similarity: 0.81},
	}}
	srv := testServer(drafts)

	req := httptest.NewRequest("GET", "/api/v1/sessions/abc/citations", nil)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", w.Code)
	}

	req = httptest.NewRequest("GET", "/api/v1/sessions/abc/citations", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w = httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", w.Code)
	}

	var body struct {
		SessionID string               `json:"session_id"`
		Citations []retrieval.Citation `json:"citations"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(body.Citations) != 1 || body.Citations[0].DocumentName != "TVöD Entgelttabelle" {
		t.Errorf("unexpected citations: %+v", body.Citations)
	}
}

func TestNotFoundEndpoint(t *testing.T) {
	srv := testServer(nil)

	req := httptest.NewRequest("GET", "/nonexistent", nil)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}
