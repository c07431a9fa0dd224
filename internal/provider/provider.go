// Package provider defines the completion-provider boundary and its shared
// types. Each adapter (anthropic.go, openai.go) implements Provider and
// normalizes its vendor's streaming response into a uniform Event sequence.
package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ── Messages ────────────────────────────────────────────────────────────────

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of the outgoing conversation.
type Message struct {
	Role    Role
	Content string
}

// ChatRequest is the provider-neutral request.
type ChatRequest struct {
	Model        string
	Messages     []Message
	SystemPrompt string
	MaxTokens    int
}

// ── Streaming events ────────────────────────────────────────────────────────

type EventType int

const (
	// EventTextDelta carries an incremental piece of completion text.
	EventTextDelta EventType = iota

	// EventDone ends the stream and carries token usage.
	EventDone

	// EventError ends the stream with a failure.
	EventError
)

// Event is one item of a provider stream.
type Event struct {
	Type      EventType
	TextDelta string
	Usage     *Usage
	Error     error
}

// Usage records token consumption of a single call.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Total returns input + output.
func (u Usage) Total() int { return u.InputTokens + u.OutputTokens }

// ── Provider ────────────────────────────────────────────────────────────────

// Provider is the interface every completion backend implements.
type Provider interface {
	// Chat starts a streaming completion. The returned channel emits events
	// until EventDone or EventError and is then closed. Callers must drain it.
	Chat(ctx context.Context, req *ChatRequest) (<-chan Event, error)

	// Name returns the provider identifier, e.g. "anthropic", "openai".
	Name() string

	// DefaultModel returns the model used when the request leaves it empty.
	DefaultModel() string
}

// Completion is a fully drained response.
type Completion struct {
	Text  string
	Usage Usage
}

// ErrEmptyCompletion is returned when a stream finishes without text.
var ErrEmptyCompletion = errors.New("provider returned an empty completion")

// Complete runs a single blocking exchange: it starts the stream, collects
// every text delta and returns the final text with usage. The channel is
// always drained so the adapter goroutine can exit.
func Complete(ctx context.Context, p Provider, req *ChatRequest) (*Completion, error) {
	events, err := p.Chat(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", p.Name(), err)
	}

	var (
		text    strings.Builder
		usage   Usage
		done    bool
		failure error
	)
	for ev := range events {
		switch ev.Type {
		case EventTextDelta:
			text.WriteString(ev.TextDelta)
		case EventDone:
			done = true
			if ev.Usage != nil {
				usage = *ev.Usage
			}
		case EventError:
			if failure == nil {
				failure = ev.Error
			}
		}
	}

	if failure != nil {
		return nil, failure
	}
	if !done && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if text.Len() == 0 {
		return nil, ErrEmptyCompletion
	}
	return &Completion{Text: text.String(), Usage: usage}, nil
}
