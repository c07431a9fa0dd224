// Package agent turns visitor questions into bounded provider exchanges
// grounded on the fixed resume context.
package agent

import (
	"context"
	"log/slog"
	"time"

	"github.com/cvchat/cvchat/internal/provider"
	"github.com/cvchat/cvchat/internal/session"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// ApologyText is the displayable response for any failed exchange.
const ApologyText = "I apologize, but I encountered an error processing your request. Please try again."

// Defaults applied when Options leave a field zero.
const (
	DefaultMaxTokens     = 1000
	DefaultHistoryWindow = 10
)

// TokenUsage is the per-exchange token report.
type TokenUsage struct {
	Input  int `json:"input"`
	Output int `json:"output"`
	Total  int `json:"total"`
}

// Envelope is the uniform result of Respond. Response is always displayable.
type Envelope struct {
	Success    bool        `json:"success"`
	Response   string      `json:"response"`
	Error      string      `json:"error,omitempty"`
	TokensUsed *TokenUsage `json:"tokens_used,omitempty"`
}

// Options configures a Gateway.
type Options struct {
	Model         string
	MaxTokens     int
	HistoryWindow int
	Logger        *slog.Logger
	Tracer        trace.Tracer
}

// Gateway composes provider requests from a fixed system context and a
// bounded window of prior turns.
type Gateway struct {
	provider      provider.Provider
	systemPrompt  string
	model         string
	maxTokens     int
	historyWindow int
	logger        *slog.Logger
	tracer        trace.Tracer
}

// NewGateway creates a Gateway. systemPrompt is usually BuildSystemContext's
// output and is never modified afterwards. A negative HistoryWindow sends no
// history; zero means DefaultHistoryWindow.
func NewGateway(p provider.Provider, systemPrompt string, opts Options) *Gateway {
	g := &Gateway{
		provider:      p,
		systemPrompt:  systemPrompt,
		model:         opts.Model,
		maxTokens:     opts.MaxTokens,
		historyWindow: opts.HistoryWindow,
		logger:        opts.Logger,
		tracer:        opts.Tracer,
	}
	if g.model == "" {
		g.model = p.DefaultModel()
	}
	if g.maxTokens <= 0 {
		g.maxTokens = DefaultMaxTokens
	}
	if g.historyWindow == 0 {
		g.historyWindow = DefaultHistoryWindow
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	if g.tracer == nil {
		g.tracer = noop.NewTracerProvider().Tracer("cvchat")
	}
	return g
}

// Model returns the model identifier sent with every request.
func (g *Gateway) Model() string { return g.model }

// SystemPrompt returns the fixed system context.
func (g *Gateway) SystemPrompt() string { return g.systemPrompt }

// BuildRequest assembles the outgoing request: the last historyWindow prior
// turns in order, followed by the new user message.
func (g *Gateway) BuildRequest(userMessage string, prior []session.Turn) *provider.ChatRequest {
	msgs := session.ToMessages(session.Window(prior, g.historyWindow))
	msgs = append(msgs, provider.Message{Role: provider.RoleUser, Content: userMessage})
	return &provider.ChatRequest{
		Model:        g.model,
		Messages:     msgs,
		SystemPrompt: g.systemPrompt,
		MaxTokens:    g.maxTokens,
	}
}

// Respond performs exactly one provider exchange. Failures never escape: they
// come back as an unsuccessful Envelope carrying ApologyText and the error.
func (g *Gateway) Respond(ctx context.Context, userMessage string, prior []session.Turn) Envelope {
	req := g.BuildRequest(userMessage, prior)

	ctx, span := g.tracer.Start(ctx, "cvchat.respond", trace.WithAttributes(
		attribute.String("llm.provider", g.provider.Name()),
		attribute.String("llm.model", g.model),
		attribute.Int("llm.messages", len(req.Messages)),
	))
	defer span.End()

	start := time.Now()
	completion, err := provider.Complete(ctx, g.provider, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		g.logger.Error("provider exchange failed",
			"provider", g.provider.Name(),
			"model", g.model,
			"messages", len(req.Messages),
			"duration", time.Since(start),
			"error", err)
		return Envelope{
			Success:  false,
			Error:    err.Error(),
			Response: ApologyText,
		}
	}

	tokens := &TokenUsage{
		Input:  completion.Usage.InputTokens,
		Output: completion.Usage.OutputTokens,
		Total:  completion.Usage.Total(),
	}
	span.SetAttributes(
		attribute.Int("llm.tokens.input", tokens.Input),
		attribute.Int("llm.tokens.output", tokens.Output),
	)
	g.logger.Info("provider exchange",
		"provider", g.provider.Name(),
		"model", g.model,
		"messages", len(req.Messages),
		"input_tokens", tokens.Input,
		"output_tokens", tokens.Output,
		"duration", time.Since(start))

	return Envelope{
		Success:    true,
		Response:   completion.Text,
		TokensUsed: tokens,
	}
}
