package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/lohnlab/tarifbot/internal/interview"
	"github.com/lohnlab/tarifbot/internal/retrieval"
)

// DraftStore mirrors in-flight interviews server-side and serves the
// admin citation view. Optional; the chat endpoint works without it.
type DraftStore interface {
	UpsertDraft(ctx context.Context, sessionID string, tenantID uuid.UUID, state *interview.FormState) error
	GetCitations(ctx context.Context, sessionID string) ([]retrieval.Citation, error)
}

type Server struct {
	router   *chi.Mux
	port     int
	engine   *interview.Engine
	drafts   DraftStore
	tenantID uuid.UUID
	logger   *slog.Logger
}

func NewServer(port int, apiToken string, engine *interview.Engine, drafts DraftStore, tenantID uuid.UUID, logger *slog.Logger) *Server {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)

	s := &Server{
		router:   router,
		port:     port,
		engine:   engine,
		drafts:   drafts,
		tenantID: tenantID,
		logger:   logger,
	}

	router.Get("/health", s.health)
	router.Get("/api/v1/status", s.status)
	router.Post("/api/v1/chat", s.chat)

	// Admin-only: the citation audit trail is never shown to end users.
	router.Route("/api/v1/sessions", func(r chi.Router) {
		r.Use(bearerAuth(apiToken))
		r.Get("/{sessionID}/citations", s.citations)
	})

	return s
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.logger.Info("API server starting", "addr", addr)
	return http.ListenAndServe(addr, s.router)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "tarifbot",
		"status":  "ready",
	})
}

// ChatResponse wraps the engine's reply with the session handle the client
// must echo back on the next turn.
type ChatResponse struct {
	SessionID string `json:"session_id"`
	*interview.Response
}

func (s *Server) chat(w http.ResponseWriter, r *http.Request) {
	var req interview.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	resp := s.engine.HandleTurn(r.Context(), req)

	if s.drafts != nil && resp.FormState != nil {
		if err := s.drafts.UpsertDraft(r.Context(), req.SessionID, s.tenantID, resp.FormState); err != nil {
			s.logger.Warn("draft mirror not updated", "session_id", req.SessionID, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, ChatResponse{SessionID: req.SessionID, Response: resp})
}

func (s *Server) citations(w http.ResponseWriter, r *http.Request) {
	if s.drafts == nil {
		writeError(w, http.StatusServiceUnavailable, "persistence not configured")
		return
	}
	sessionID := chi.URLParam(r, "sessionID")
	citations, err := s.drafts.GetCitations(r.Context(), sessionID)
	if err != nil {
		s.logger.Error("citation lookup failed", "session_id", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "citation lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"citations":  citations,
	})
}

func bearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				writeError(w, http.StatusServiceUnavailable, "admin API disabled")
				return
			}
			auth := r.Header.Get("Authorization")
			if auth != "Bearer "+token {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
