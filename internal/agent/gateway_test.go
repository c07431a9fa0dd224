package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/cvchat/cvchat/internal/provider"
	"github.com/cvchat/cvchat/internal/session"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

// fakeProvider answers every request with a fixed reply and records it.
type fakeProvider struct {
	reply   string
	usage   provider.Usage
	chatErr error
	got     *provider.ChatRequest
	calls   int
}

func (f *fakeProvider) Name() string         { return "fake" }
func (f *fakeProvider) DefaultModel() string { return "fake-model" }

func (f *fakeProvider) Chat(_ context.Context, req *provider.ChatRequest) (<-chan provider.Event, error) {
	f.calls++
	f.got = req
	if f.chatErr != nil {
		return nil, f.chatErr
	}
	ch := make(chan provider.Event, 2)
	ch <- provider.Event{Type: provider.EventTextDelta, TextDelta: f.reply}
	u := f.usage
	ch <- provider.Event{Type: provider.EventDone, Usage: &u}
	close(ch)
	return ch, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func priorTurns(n int) []session.Turn {
	base := time.Unix(1_700_000_000, 0)
	turns := make([]session.Turn, n)
	for i := range turns {
		role := provider.RoleUser
		if i%2 == 1 {
			role = provider.RoleAssistant
		}
		turns[i] = session.NewTurn(role, fmt.Sprintf("turn-%d", i), base.Add(time.Duration(i)*time.Second))
	}
	return turns
}

func TestRespond_Success(t *testing.T) {
	p := &fakeProvider{reply: "Engineer", usage: provider.Usage{InputTokens: 50, OutputTokens: 10}}
	g := NewGateway(p, "system", Options{Model: "claude-3-haiku-20240307", Logger: quietLogger()})

	env := g.Respond(context.Background(), "What is his current role?", nil)

	if !env.Success {
		t.Fatalf("Success = false, error = %q", env.Error)
	}
	if env.Response != "Engineer" {
		t.Errorf("Response = %q, want Engineer", env.Response)
	}
	if env.Error != "" {
		t.Errorf("Error = %q, want empty", env.Error)
	}
	if env.TokensUsed == nil {
		t.Fatal("TokensUsed is nil")
	}
	if *env.TokensUsed != (TokenUsage{Input: 50, Output: 10, Total: 60}) {
		t.Errorf("TokensUsed = %+v", *env.TokensUsed)
	}
	if p.calls != 1 {
		t.Errorf("provider calls = %d, want 1", p.calls)
	}

	req := p.got
	if req.Model != "claude-3-haiku-20240307" || req.MaxTokens != 1000 || req.SystemPrompt != "system" {
		t.Errorf("request = %+v", req)
	}
	if len(req.Messages) != 1 || req.Messages[0].Content != "What is his current role?" {
		t.Errorf("Messages = %+v", req.Messages)
	}
}

func TestRespond_TotalIsSum(t *testing.T) {
	cases := []provider.Usage{{}, {InputTokens: 1}, {OutputTokens: 7}, {InputTokens: 1234, OutputTokens: 567}}
	for _, u := range cases {
		p := &fakeProvider{reply: "ok", usage: u}
		env := NewGateway(p, "s", Options{Logger: quietLogger()}).Respond(context.Background(), "q", nil)
		if env.TokensUsed == nil || env.TokensUsed.Total != u.InputTokens+u.OutputTokens {
			t.Errorf("usage %+v: TokensUsed = %+v", u, env.TokensUsed)
		}
	}
}

func TestRespond_Failure(t *testing.T) {
	p := &fakeProvider{chatErr: errors.New("connection refused")}
	g := NewGateway(p, "system", Options{Logger: quietLogger()})

	env := g.Respond(context.Background(), "hello", priorTurns(3))

	if env.Success {
		t.Fatal("Success = true for failed exchange")
	}
	if env.Response != ApologyText {
		t.Errorf("Response = %q", env.Response)
	}
	if !strings.Contains(env.Error, "connection refused") {
		t.Errorf("Error = %q", env.Error)
	}
	if env.TokensUsed != nil {
		t.Errorf("TokensUsed = %+v, want nil", env.TokensUsed)
	}
}

func TestRespond_EmptyCompletionIsFailure(t *testing.T) {
	p := &fakeProvider{reply: ""}
	env := NewGateway(p, "s", Options{Logger: quietLogger()}).Respond(context.Background(), "q", nil)
	if env.Success || env.Response == "" || env.Error == "" {
		t.Errorf("envelope = %+v", env)
	}
}

func TestBuildRequest_Window(t *testing.T) {
	g := NewGateway(&fakeProvider{}, "s", Options{Logger: quietLogger()})

	for _, n := range []int{0, 1, 9, 10, 11, 25} {
		prior := priorTurns(n)
		req := g.BuildRequest("new question", prior)

		want := n
		if want > DefaultHistoryWindow {
			want = DefaultHistoryWindow
		}
		if len(req.Messages) != want+1 {
			t.Fatalf("n=%d: len(Messages) = %d, want %d", n, len(req.Messages), want+1)
		}

		// The kept turns are the most recent ones, in order.
		for i := 0; i < want; i++ {
			src := prior[n-want+i]
			if req.Messages[i].Content != src.Content || req.Messages[i].Role != src.Role {
				t.Errorf("n=%d: Messages[%d] = %+v, want %q", n, i, req.Messages[i], src.Content)
			}
		}
		last := req.Messages[len(req.Messages)-1]
		if last.Role != provider.RoleUser || last.Content != "new question" {
			t.Errorf("n=%d: last message = %+v", n, last)
		}
	}
}

func TestBuildRequest_CustomAndDisabledWindow(t *testing.T) {
	g := NewGateway(&fakeProvider{}, "s", Options{HistoryWindow: 4, Logger: quietLogger()})
	if got := len(g.BuildRequest("q", priorTurns(12)).Messages); got != 5 {
		t.Errorf("window 4: len(Messages) = %d, want 5", got)
	}

	g = NewGateway(&fakeProvider{}, "s", Options{HistoryWindow: -1, Logger: quietLogger()})
	if got := len(g.BuildRequest("q", priorTurns(12)).Messages); got != 1 {
		t.Errorf("disabled window: len(Messages) = %d, want 1", got)
	}
}

func TestNewGateway_Defaults(t *testing.T) {
	g := NewGateway(&fakeProvider{}, "fixed", Options{})
	if g.Model() != "fake-model" {
		t.Errorf("Model() = %q", g.Model())
	}
	if g.SystemPrompt() != "fixed" {
		t.Errorf("SystemPrompt() = %q", g.SystemPrompt())
	}
	req := g.BuildRequest("q", nil)
	if req.MaxTokens != DefaultMaxTokens {
		t.Errorf("MaxTokens = %d", req.MaxTokens)
	}
}

func TestRespond_SystemPromptUnchanged(t *testing.T) {
	sys := BuildSystemContext("Name: Jane Doe\nRole: Engineer", "Jane")
	p := &fakeProvider{reply: "ok"}
	g := NewGateway(p, sys, Options{Logger: quietLogger()})

	g.Respond(context.Background(), "one", nil)
	first := p.got.SystemPrompt
	g.Respond(context.Background(), "two", priorTurns(4))
	if p.got.SystemPrompt != first || first != sys {
		t.Error("system prompt changed between exchanges")
	}
}

// recordingTracer returns a tracer whose ended spans land in the recorder.
func recordingTracer(t *testing.T) (trace.Tracer, *tracetest.SpanRecorder) {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return tp.Tracer("gateway-test"), sr
}

func spanAttrs(span sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	out := make(map[attribute.Key]attribute.Value)
	for _, kv := range span.Attributes() {
		out[kv.Key] = kv.Value
	}
	return out
}

func TestRespond_RecordsSpan(t *testing.T) {
	tracer, sr := recordingTracer(t)
	p := &fakeProvider{reply: "Engineer", usage: provider.Usage{InputTokens: 50, OutputTokens: 10}}
	g := NewGateway(p, "system", Options{Model: "claude-3-haiku-20240307", Logger: quietLogger(), Tracer: tracer})

	g.Respond(context.Background(), "What is his current role?", priorTurns(2))

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("ended spans = %d, want 1", len(spans))
	}
	span := spans[0]
	if span.Name() != "cvchat.respond" {
		t.Errorf("span name = %q", span.Name())
	}
	if span.Status().Code == codes.Error {
		t.Errorf("status = %+v, want non-error", span.Status())
	}

	attrs := spanAttrs(span)
	checks := []struct {
		key  attribute.Key
		want attribute.Value
	}{
		{"llm.provider", attribute.StringValue("fake")},
		{"llm.model", attribute.StringValue("claude-3-haiku-20240307")},
		{"llm.messages", attribute.IntValue(3)},
		{"llm.tokens.input", attribute.IntValue(50)},
		{"llm.tokens.output", attribute.IntValue(10)},
	}
	for _, c := range checks {
		got, ok := attrs[c.key]
		if !ok {
			t.Errorf("attribute %s missing", c.key)
			continue
		}
		if got != c.want {
			t.Errorf("attribute %s = %v, want %v", c.key, got.Emit(), c.want.Emit())
		}
	}
}

func TestRespond_FailureMarksSpan(t *testing.T) {
	tracer, sr := recordingTracer(t)
	p := &fakeProvider{chatErr: errors.New("upstream unavailable")}
	g := NewGateway(p, "system", Options{Logger: quietLogger(), Tracer: tracer})

	g.Respond(context.Background(), "hi", nil)

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("ended spans = %d, want 1", len(spans))
	}
	span := spans[0]
	if span.Status().Code != codes.Error {
		t.Errorf("status code = %v, want Error", span.Status().Code)
	}
	if !strings.Contains(span.Status().Description, "upstream unavailable") {
		t.Errorf("status description = %q", span.Status().Description)
	}
	if len(span.Events()) == 0 || span.Events()[0].Name != "exception" {
		t.Errorf("expected a recorded exception event, got %+v", span.Events())
	}
	if _, ok := spanAttrs(span)["llm.tokens.input"]; ok {
		t.Error("failed exchange should not report token attributes")
	}
}
