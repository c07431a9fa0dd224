// Package httpapi serves the password-gated chat over JSON/HTTP.
package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/cvchat/cvchat/internal/agent"
	"github.com/cvchat/cvchat/internal/auth"
	"github.com/cvchat/cvchat/internal/session"
)

// Options configures a Server.
type Options struct {
	// CookieSecret signs session cookies. Empty means a random per-process key,
	// so restarting the server logs everyone out.
	CookieSecret string

	// SecureCookies sets the Secure attribute on the session cookie.
	SecureCookies bool

	// Subject names the resume owner in the welcome payload.
	Subject string

	Logger *slog.Logger
}

type Server struct {
	manager *auth.Manager
	store   session.Store
	gateway *agent.Gateway
	cookies *cookieSigner
	subject string
	secure  bool
	logger  *slog.Logger
	mux     *http.ServeMux
}

func NewServer(m *auth.Manager, st session.Store, gw *agent.Gateway, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		manager: m,
		store:   st,
		gateway: gw,
		cookies: newCookieSigner(opts.CookieSecret),
		subject: opts.Subject,
		secure:  opts.SecureCookies,
		logger:  logger,
		mux:     http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = recoverMiddleware(s.logger, h)
	h = loggingMiddleware(s.logger, h)
	h = requestIDMiddleware(h)
	return h
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/", s.handleRoot)

	s.mux.HandleFunc("/v1/auth/login", s.handleLogin)
	s.mux.HandleFunc("/v1/auth/link", s.handleLink)
	s.mux.HandleFunc("/v1/auth/logout", s.withSession(s.handleLogout))

	s.mux.HandleFunc("/v1/session", s.withSession(s.handleSessionStatus))
	s.mux.HandleFunc("/v1/welcome", s.withSession(s.handleWelcome))
	s.mux.HandleFunc("/v1/messages", s.withSession(s.handleMessages))
	s.mux.HandleFunc("/v1/chat", s.withSession(s.handleChat))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": s.store.Len(),
		"time":     time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// handleRoot accepts shareable links of the form /?token=<secret>.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeError(w, http.StatusNotFound, "not_found", "not found")
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	if candidate, ok := auth.CandidateFromQuery(r.URL.Query()); ok {
		if _, ok := s.login(w, candidate); !ok {
			return
		}
		// Drop the secret from the address bar.
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"name":  "cvchat",
		"login": "/v1/auth/login",
	})
}
