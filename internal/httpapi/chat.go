package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/cvchat/cvchat/internal/agent"
	"github.com/cvchat/cvchat/internal/provider"
	"github.com/cvchat/cvchat/internal/session"
	"github.com/cvchat/cvchat/internal/usage"
)

type chatRequest struct {
	Message string `json:"message"`
}

type sessionStatus struct {
	IssuedAt         time.Time `json:"issued_at"`
	ExpiresAt        time.Time `json:"expires_at"`
	RemainingSeconds int       `json:"remaining_seconds"`
	TotalTokens      int       `json:"total_tokens"`
	EstimatedCost    float64   `json:"estimated_cost"`
	ExactCost        float64   `json:"exact_cost"`
	Turns            int       `json:"turns"`
}

type welcomeResponse struct {
	Message            string   `json:"message"`
	SuggestedQuestions []string `json:"suggested_questions"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	var req chatRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	msg := strings.TrimSpace(req.Message)
	if msg == "" {
		writeError(w, http.StatusBadRequest, "empty_message", "message is required")
		return
	}

	conv := conversationFromContext(r.Context())
	release, ok := conv.Begin()
	if !ok {
		writeError(w, http.StatusConflict, "busy", "a response is already being generated for this session")
		return
	}
	defer release()

	env := s.gateway.Respond(r.Context(), msg, conv.Turns())

	conv.Append(provider.RoleUser, msg)
	conv.Append(provider.RoleAssistant, env.Response)
	if env.TokensUsed != nil {
		conv.RecordUsage(s.gateway.Model(), env.TokensUsed.Input, env.TokensUsed.Output)
	}

	writeJSON(w, http.StatusOK, env)
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	conv := conversationFromContext(r.Context())
	turns := conv.Turns()
	if turns == nil {
		turns = []session.Turn{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": turns})
}

func (s *Server) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	conv := conversationFromContext(r.Context())
	total := conv.TotalTokens()
	writeJSON(w, http.StatusOK, sessionStatus{
		IssuedAt:         conv.Session.IssuedAt,
		ExpiresAt:        s.manager.ExpiresAt(conv.Session),
		RemainingSeconds: int(s.manager.Remaining(conv.Session).Seconds()),
		TotalTokens:      total,
		EstimatedCost:    usage.EstimateCost(total),
		ExactCost:        conv.Costs().SessionCost(),
		Turns:            conv.Costs().Turns(),
	})
}

func (s *Server) handleWelcome(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, welcomeResponse{
		Message:            agent.WelcomeMessage(s.subject),
		SuggestedQuestions: agent.SuggestedQuestions(s.subject),
	})
}
