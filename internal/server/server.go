// Package server exposes chat sessions over HTTP for the statistics chat
// page. Handlers move session snapshots and actions; rendering happens
// client-side.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"statchat/internal/archive"
	"statchat/internal/export"
	"statchat/internal/ratelimit"
	"statchat/internal/session"
	"statchat/internal/store"
	"statchat/internal/util"
	"statchat/pkg/domain"
)

// Config wires required dependencies for the HTTP server. History, Exporter
// and AskLimiter are optional; their endpoints report unavailability when
// unset.
type Config struct {
	Sessions       *session.Manager
	Tokens         store.TokenStore
	History        archive.TranscriptStore
	Exporter       *export.Exporter
	AskLimiter     *ratelimit.FixedWindowLimiter
	Suggestions    []string
	Models         []string
	TrustedProxies *util.TrustedProxies
}

// Server exposes HTTP endpoints for the chat gateway.
type Server struct {
	sessions    *session.Manager
	tokens      store.TokenStore
	history     archive.TranscriptStore
	exporter    *export.Exporter
	askLimiter  *ratelimit.FixedWindowLimiter
	suggestions []string
	models      []string
	trusted     *util.TrustedProxies
	mux         *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.Sessions == nil {
		return nil, errors.New("session manager is required")
	}
	if cfg.Tokens == nil {
		return nil, errors.New("token store is required")
	}
	s := &Server{
		sessions:    cfg.Sessions,
		tokens:      cfg.Tokens,
		history:     cfg.History,
		exporter:    cfg.Exporter,
		askLimiter:  cfg.AskLimiter,
		suggestions: cfg.Suggestions,
		models:      cfg.Models,
		trusted:     cfg.TrustedProxies,
		mux:         http.NewServeMux(),
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler with the middleware chain applied.
func (s *Server) Router() http.Handler {
	return util.WithSecurityHeaders(util.WithCORS(util.WithRequestID(util.WithRequestLog(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	s.mux.HandleFunc("/api/session", s.handleSession)
	s.mux.Handle("/api/ask", s.withSession(s.handleAsk))
	s.mux.Handle("/api/model", s.withSession(s.handleModel))
	s.mux.Handle("/api/quick", s.withSession(s.handleQuick))
	s.mux.Handle("/api/error/dismiss", s.withSession(s.handleDismissError))
	s.mux.HandleFunc("/api/suggestions", s.handleSuggestions)
	s.mux.Handle("/api/history", s.withSession(s.handleHistory))
	s.mux.Handle("/api/export", s.withSession(s.handleExport))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// sessionHandler receives the resolved live session.
type sessionHandler func(http.ResponseWriter, *http.Request, *session.Session)

func (s *Server) withSession(next sessionHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		id, ok, err := s.tokens.SessionID(token)
		if err != nil {
			util.LoggerFromContext(r.Context()).Error("resolve session token", "err", err)
			writeError(w, http.StatusInternalServerError, "session lookup failed")
			return
		}
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		sess, ok := s.sessions.Get(id)
		if !ok {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		next(w, r, sess)
	})
}

// POST creates a session and issues its token; GET returns the snapshot.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		sess := s.sessions.Create()
		token, err := s.tokens.Issue(sess.ID())
		if err != nil {
			util.LoggerFromContext(r.Context()).Error("issue session token", "err", err)
			writeError(w, http.StatusInternalServerError, "could not create session")
			return
		}
		writeJSON(w, http.StatusCreated, sessionResponse{
			Token: token,
			State: sess.Snapshot(),
		})
	case http.MethodGet:
		s.withSession(func(w http.ResponseWriter, _ *http.Request, sess *session.Session) {
			writeJSON(w, http.StatusOK, sess.Snapshot())
		}).ServeHTTP(w, r)
	case http.MethodDelete:
		s.withSession(func(w http.ResponseWriter, r *http.Request, sess *session.Session) {
			token, _ := bearerToken(r)
			if err := s.tokens.Revoke(token); err != nil {
				util.LoggerFromContext(r.Context()).Error("revoke session token", "err", err)
				writeError(w, http.StatusInternalServerError, "could not end session")
				return
			}
			s.sessions.Remove(sess.ID())
			w.WriteHeader(http.StatusNoContent)
		}).ServeHTTP(w, r)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowAsk(w, r) {
		return
	}
	var req askRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	s.submit(w, r, sess, req.Question)
}

func (s *Server) handleQuick(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowAsk(w, r) {
		return
	}
	var req quickRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := sess.QuickFill(r.Context(), req.Text); err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request, sess *session.Session, question string) {
	if err := sess.Submit(r.Context(), question); err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleModel(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req modelRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := sess.SelectModel(domain.Model(strings.TrimSpace(req.Model))); err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleDismissError(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	sess.DismissError()
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, suggestionsResponse{
		Items:  append([]string{}, s.suggestions...),
		Models: append([]string{}, s.models...),
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	if s.history == nil {
		writeError(w, http.StatusNotImplemented, "history is not configured")
		return
	}
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	msgs, err := s.history.List(r.Context(), sess.ID(), limit)
	if err != nil {
		util.LoggerFromContext(r.Context()).Error("list history", "session_id", sess.ID(), "err", err)
		writeError(w, http.StatusInternalServerError, "could not load history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": msgs,
		"count": len(msgs),
	})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if s.exporter == nil {
		writeError(w, http.StatusNotImplemented, "export is not configured")
		return
	}
	url, err := s.exporter.Export(r.Context(), sess.Snapshot())
	if err != nil {
		util.LoggerFromContext(r.Context()).Error("export transcript", "session_id", sess.ID(), "err", err)
		writeError(w, http.StatusUnprocessableEntity, "could not export transcript")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

func (s *Server) allowAsk(w http.ResponseWriter, r *http.Request) bool {
	if s.askLimiter == nil {
		return true
	}
	if s.askLimiter.Allow(util.ClientIP(r, s.trusted)) {
		return true
	}
	w.Header().Set("Retry-After", "60")
	writeError(w, http.StatusTooManyRequests, "too many questions, slow down")
	return false
}

func writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrAskInFlight):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, session.ErrEmptyQuestion), errors.Is(err, session.ErrUnknownModel):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

type askRequest struct {
	Question string `json:"question"`
}

type quickRequest struct {
	Text string `json:"text"`
}

type modelRequest struct {
	Model string `json:"model"`
}

type sessionResponse struct {
	Token string              `json:"token"`
	State domain.SessionState `json:"state"`
}

type suggestionsResponse struct {
	Items  []string `json:"items"`
	Models []string `json:"models"`
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
