// ABOUTME: HTTP surface for the passkey ceremony endpoints
// ABOUTME: Maps ceremony results and errors onto JSON responses and status codes

package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/2389/passgate/internal/ceremony"
	"github.com/2389/passgate/internal/session"
)

// Server exposes the registration and login ceremonies over HTTP.
type Server struct {
	ceremonies *ceremony.Manager
	sessions   *session.Issuer
	logger     *slog.Logger
}

// New creates an HTTP server around the given ceremony manager and session issuer.
func New(ceremonies *ceremony.Manager, sessions *session.Issuer) *Server {
	return &Server{
		ceremonies: ceremonies,
		sessions:   sessions,
		logger:     slog.Default().With("component", "web"),
	}
}

// RegisterRoutes registers all endpoints on the mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /register/options", s.handleRegisterOptions)
	mux.HandleFunc("POST /register/complete", s.handleRegisterComplete)
	mux.HandleFunc("POST /login/options", s.handleLoginOptions)
	mux.HandleFunc("POST /login/complete", s.handleLoginComplete)
	mux.HandleFunc("GET /check-username/{username}", s.handleCheckUsername)
	mux.HandleFunc("GET /session", s.handleSession)
	mux.HandleFunc("GET /logout", s.handleLogout)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /", http.FileServerFS(staticFS))
}

// usernameRequest is the body for the two options endpoints.
type usernameRequest struct {
	Username string `json:"username"`
}

// completeRequest carries the authenticator response back to the server.
type completeRequest struct {
	Username string          `json:"username"`
	Response json.RawMessage `json:"response"`
}

func (s *Server) handleRegisterOptions(w http.ResponseWriter, r *http.Request) {
	var req usernameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, ceremony.ErrInvalidUsername)
		return
	}

	options, err := s.ceremonies.StartRegistration(req.Username)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.logger.Info("registration started", "username", req.Username)
	s.writeJSON(w, http.StatusOK, options)
}

func (s *Server) handleRegisterComplete(w http.ResponseWriter, r *http.Request) {
	var req completeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, ceremony.ErrInvalidResponse)
		return
	}

	if err := s.ceremonies.CompleteRegistration(req.Username, req.Response); err != nil {
		s.writeError(w, err)
		return
	}

	username, err := ceremony.NormalizeUsername(req.Username)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.sessions.BindSession(w, username); err != nil {
		s.logger.Error("failed to bind session", "error", err)
		s.writeError(w, err)
		return
	}

	s.logger.Info("registration completed", "username", username)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"ok":       true,
		"message":  "registered",
		"username": username,
		"redirect": "/",
	})
}

func (s *Server) handleLoginOptions(w http.ResponseWriter, r *http.Request) {
	var req usernameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, ceremony.ErrInvalidUsername)
		return
	}

	options, err := s.ceremonies.StartLogin(req.Username)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.logger.Info("login started", "username", req.Username)
	s.writeJSON(w, http.StatusOK, options)
}

func (s *Server) handleLoginComplete(w http.ResponseWriter, r *http.Request) {
	var req completeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, ceremony.ErrInvalidResponse)
		return
	}

	result, err := s.ceremonies.CompleteLogin(req.Username, req.Response)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if err := s.sessions.BindSession(w, result.Username); err != nil {
		s.logger.Error("failed to bind session", "error", err)
		s.writeError(w, err)
		return
	}

	s.logger.Info("login completed", "username", result.Username, "login_count", result.LoginCount)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"ok":         true,
		"username":   result.Username,
		"loginCount": result.LoginCount,
		"lastLogin":  result.LastLogin,
		"redirect":   "/",
	})
}

func (s *Server) handleCheckUsername(w http.ResponseWriter, r *http.Request) {
	available, err := s.ceremonies.Available(r.PathValue("username"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"available": available})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	username, err := s.sessions.Username(r)
	if err != nil {
		s.writeJSON(w, http.StatusOK, map[string]any{"loggedIn": false})
		return
	}

	body := map[string]any{
		"loggedIn": true,
		"user":     username,
	}
	if rec, err := s.ceremonies.Lookup(username); err == nil {
		body["loginCount"] = rec.LoginCount
		body["lastLogin"] = rec.LastLogin
	}
	s.writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	session.ClearSession(w)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("failed to encode response", "error", err)
	}
}

// errorBody is the envelope for all error responses.
type errorBody struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	code := "internal"

	switch {
	case errors.Is(err, ceremony.ErrInvalidUsername),
		errors.Is(err, ceremony.ErrInvalidResponse):
		status, code = http.StatusBadRequest, "invalid_input"
	case errors.Is(err, ceremony.ErrUsernameTaken),
		errors.Is(err, ceremony.ErrCredentialTaken):
		status, code = http.StatusConflict, "conflict"
	case errors.Is(err, ceremony.ErrUserNotFound),
		errors.Is(err, ceremony.ErrUserNotRegistered),
		errors.Is(err, ceremony.ErrCredentialNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, ceremony.ErrChallengeMismatch):
		status, code = http.StatusBadRequest, "challenge_mismatch"
	case errors.Is(err, ceremony.ErrVerificationFailed):
		status, code = http.StatusUnauthorized, "verification_failed"
	case errors.Is(err, ceremony.ErrPersistenceFailed):
		status, code = http.StatusInternalServerError, "persistence_failed"
		s.logger.Error("persistence failure", "error", err)
	default:
		s.logger.Error("unexpected error", "error", err)
	}

	s.writeJSON(w, status, errorBody{Error: code, Message: err.Error()})
}
