package httpapi

import (
	"net/http"
	"time"

	"github.com/cvchat/cvchat/internal/auth"
)

type loginRequest struct {
	Password string `json:"password"`
}

type loginResponse struct {
	Authenticated bool      `json:"authenticated"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// login issues a session for candidate, registers its conversation and sets
// the cookie. On failure the 401 has already been written.
func (s *Server) login(w http.ResponseWriter, candidate string) (auth.Session, bool) {
	sess, ok := s.manager.Issue(candidate)
	if !ok {
		writeError(w, http.StatusUnauthorized, "verification_failed", "incorrect password")
		return auth.Session{}, false
	}

	expiresAt := s.manager.ExpiresAt(sess)
	value, err := s.cookies.sign(sess.ID, sess.IssuedAt, expiresAt)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "cookie_error", err.Error())
		return auth.Session{}, false
	}

	s.store.Create(sess)
	s.setSessionCookie(w, value, expiresAt)
	s.logger.Info("session issued", "expires_at", expiresAt, "live", s.store.Len())
	return sess, true
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	sess, ok := s.login(w, req.Password)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{
		Authenticated: true,
		ExpiresAt:     s.manager.ExpiresAt(sess),
	})
}

func (s *Server) handleLink(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	q := r.URL.Query()
	candidate, ok := auth.CandidateFromQuery(q)
	if !ok {
		writeError(w, http.StatusBadRequest, "missing_token", "token query parameter is required")
		return
	}

	sess, ok := s.login(w, candidate)
	if !ok {
		return
	}
	if q.Get("redirect") == "1" {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{
		Authenticated: true,
		ExpiresAt:     s.manager.ExpiresAt(sess),
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	conv := conversationFromContext(r.Context())
	s.store.Delete(conv.Session.ID)
	s.clearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
}
