package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alfredjeanlab/klicker/internal/metrics"
	"github.com/alfredjeanlab/klicker/internal/model"
	"github.com/alfredjeanlab/klicker/internal/presence"
	"github.com/alfredjeanlab/klicker/internal/store"
)

// NewHTTPHandler returns an http.Handler with all routes registered.
// Writes require a Bearer token from POST /v1/auth/anonymous; reads are open.
// gatherer and hm may be nil, which disables /metrics and request metrics.
func (s *SessionServer) NewHTTPHandler(gatherer prometheus.Gatherer, hm *metrics.HTTP) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/auth/anonymous", s.handleSignIn)
	mux.HandleFunc("POST /v1/sessions", RequireUser(s.issuer.Verify, s.handleCreateSession))
	mux.HandleFunc("GET /v1/sessions", s.handleListSessions)
	mux.HandleFunc("GET /v1/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("POST /v1/sessions/{id}/commands", RequireUser(s.issuer.Verify, s.handleSendCommand))
	mux.HandleFunc("PUT /v1/active", RequireUser(s.issuer.Verify, s.handleSetActive))
	mux.HandleFunc("GET /v1/active", s.handleGetActive)
	mux.HandleFunc("POST /v1/bridges/heartbeat", s.handleHeartbeat)
	mux.HandleFunc("GET /v1/bridges", s.handleListBridges)
	mux.HandleFunc("GET /v1/events/stream", s.handleEventStream)
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	mux.HandleFunc("GET /{$}", s.handleIndex)
	if gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	var h http.Handler = mux
	if hm != nil {
		h = hm.Middleware(h)
	}
	return RecoveryMiddleware(h)
}

// handleHealth handles GET /v1/health.
func (s *SessionServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleSignIn handles POST /v1/auth/anonymous.
func (s *SessionServer) handleSignIn(w http.ResponseWriter, _ *http.Request) {
	id, err := s.SignInAnonymously()
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, id)
}

// handleCreateSession handles POST /v1/sessions.
func (s *SessionServer) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.CreateSession(r.Context(), UIDFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

// handleListSessions handles GET /v1/sessions.
func (s *SessionServer) handleListSessions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := model.SessionFilter{PresenterUID: q.Get("presenter")}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		filter.Limit = n
	}

	sessions, err := s.ListSessions(r.Context(), filter)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if sessions == nil {
		sessions = []*model.Session{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

// handleGetSession handles GET /v1/sessions/{id}.
func (s *SessionServer) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.GetSession(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

type sendCommandRequest struct {
	Command string `json:"command"`
}

// handleSendCommand handles POST /v1/sessions/{id}/commands.
func (s *SessionServer) handleSendCommand(w http.ResponseWriter, r *http.Request) {
	var req sendCommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	sess, err := s.SendCommand(r.Context(), r.PathValue("id"), UIDFromContext(r.Context()), req.Command)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

type setActiveRequest struct {
	SessionID string `json:"sessionId"`
}

// handleSetActive handles PUT /v1/active.
func (s *SessionServer) handleSetActive(w http.ResponseWriter, r *http.Request) {
	var req setActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	p, err := s.SetActiveSession(r.Context(), req.SessionID, UIDFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleGetActive handles GET /v1/active.
func (s *SessionServer) handleGetActive(w http.ResponseWriter, r *http.Request) {
	p, err := s.GetActive(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleHeartbeat handles POST /v1/bridges/heartbeat.
func (s *SessionServer) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	var hb presence.Heartbeat
	if err := json.NewDecoder(r.Body).Decode(&hb); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.RecordHeartbeat(hb); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListBridges handles GET /v1/bridges.
func (s *SessionServer) handleListBridges(w http.ResponseWriter, r *http.Request) {
	liveOnly := r.URL.Query().Get("live") == "true"
	writeJSON(w, http.StatusOK, map[string]any{"bridges": s.ListBridges(liveOnly)})
}

// writeServiceError maps a SessionServer error onto an HTTP status.
func writeServiceError(w http.ResponseWriter, err error) {
	var ie inputError
	switch {
	case errors.As(err, &ie):
		writeError(w, http.StatusBadRequest, ie.Error())
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		slog.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
