package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/cvchat/cvchat/internal/session"
	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-Id"

type contextKey string

const ctxConversation contextKey = "conversation"

func conversationFromContext(ctx context.Context) *session.Conversation {
	c, _ := ctx.Value(ctxConversation).(*session.Conversation)
	return c
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(requestIDHeader) == "" {
			r.Header.Set(requestIDHeader, uuid.NewString())
		}
		w.Header().Set(requestIDHeader, r.Header.Get(requestIDHeader))
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func loggingMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"request_id", r.Header.Get(requestIDHeader),
			"duration", time.Since(start))
	})
}

func recoverMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error("handler panic", "path", r.URL.Path, "panic", rec)
				writeError(w, http.StatusInternalServerError, "panic", "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// withSession resolves the cookie to a live conversation. Expired sessions are
// removed on sight and answered with session_expired so the client asks for
// the password again.
func (s *Server) withSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(sessionCookieName)
		if err != nil || cookie.Value == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
			return
		}
		sid, err := s.cookies.parse(cookie.Value)
		if err != nil {
			s.logger.Warn("session cookie rejected", "error", err)
			s.clearSessionCookie(w)
			writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
			return
		}

		conv, err := s.store.Get(sid)
		if errors.Is(err, session.ErrNotFound) {
			s.clearSessionCookie(w)
			writeError(w, http.StatusUnauthorized, "session_expired", "session expired, please log in again")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "store_error", err.Error())
			return
		}
		if !s.manager.IsValid(conv.Session) {
			s.store.Delete(sid)
			s.clearSessionCookie(w)
			writeError(w, http.StatusUnauthorized, "session_expired", "session expired, please log in again")
			return
		}

		next(w, r.WithContext(context.WithValue(r.Context(), ctxConversation, conv)))
	}
}
