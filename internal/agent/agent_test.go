package agent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/cvchat/cvchat/internal/auth"
	"github.com/cvchat/cvchat/internal/config"
	"github.com/cvchat/cvchat/internal/provider"
	"github.com/cvchat/cvchat/internal/secrets"
	"github.com/cvchat/cvchat/internal/tui"
)

type stepClock struct{ t time.Time }

func (c *stepClock) Now() time.Time { return c.t }

func newTestAgent(t *testing.T, ui tui.IO, p *fakeProvider) (*Agent, *stepClock) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Auth.AccessPassword = "s3cr3t"
	v := auth.NewVerifier(quietLogger(), auth.DefaultTiers(secrets.NewMapStore(nil), cfg)...)
	clock := &stepClock{t: time.Unix(1_700_000_000, 0)}
	m := auth.NewManager(v, time.Hour, auth.WithClock(clock.Now))
	gw := NewGateway(p, BuildSystemContext("Role: Engineer", "Jane"), Options{Logger: quietLogger()})
	return New(gw, m, ui, "Jane"), clock
}

func TestRun_AuthenticatesAndAnswers(t *testing.T) {
	ui := tui.NewBufferIO([]string{"wrong", "s3cr3t"}, []string{"What is his current role?", "/usage"})
	p := &fakeProvider{reply: "Engineer", usage: provider.Usage{InputTokens: 50, OutputTokens: 10}}
	a, _ := newTestAgent(t, ui, p)

	if err := a.Run(context.Background()); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if errs := ui.Errors(); len(errs) != 1 || !strings.Contains(errs[0], "Incorrect password") {
		t.Errorf("Errors() = %v", errs)
	}
	if replies := ui.Replies(); len(replies) != 1 || replies[0] != "Engineer" {
		t.Errorf("Replies() = %v", replies)
	}
	if ui.Tokens() != 60 {
		t.Errorf("Tokens() = %d, want 60", ui.Tokens())
	}
	out := ui.Output()
	if !strings.Contains(out, "Welcome!") {
		t.Error("welcome message not shown")
	}
	if !strings.Contains(out, "Tokens used: 60") {
		t.Errorf("usage report missing:\n%s", out)
	}
	if got := len(a.Conversation().Turns()); got != 2 {
		t.Errorf("turns = %d, want 2", got)
	}
}

func TestAuthenticate_GivesUp(t *testing.T) {
	ui := tui.NewBufferIO([]string{"a", "b", "c", "s3cr3t"}, nil)
	a, _ := newTestAgent(t, ui, &fakeProvider{reply: "x"})

	if err := a.Authenticate(); !errors.Is(err, ErrVerificationFailed) {
		t.Fatalf("Authenticate() = %v, want ErrVerificationFailed", err)
	}
	if a.Conversation() != nil {
		t.Error("no conversation should exist after failed authentication")
	}
}

func TestRun_NoPasswordInput(t *testing.T) {
	ui := tui.NewBufferIO(nil, []string{"hello"})
	p := &fakeProvider{reply: "x"}
	a, _ := newTestAgent(t, ui, p)

	if err := a.Run(context.Background()); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if p.calls != 0 {
		t.Error("provider must not be called without authentication")
	}
}

// expiringIO advances the clock past the session timeout after the first
// question has been read.
type expiringIO struct {
	*tui.BufferIO
	clock *stepClock
	reads int
}

func (e *expiringIO) ReadInput() (string, error) {
	e.reads++
	if e.reads == 2 {
		e.clock.t = e.clock.t.Add(time.Hour)
	}
	return e.BufferIO.ReadInput()
}

func TestRun_ExpiredSessionReprompts(t *testing.T) {
	buf := tui.NewBufferIO([]string{"s3cr3t", "s3cr3t"}, []string{"first", "dropped", "second"})
	ui := &expiringIO{BufferIO: buf}
	p := &fakeProvider{reply: "ok", usage: provider.Usage{InputTokens: 5, OutputTokens: 5}}
	a, clock := newTestAgent(t, ui, p)
	ui.clock = clock

	if err := a.Run(context.Background()); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if p.calls != 2 {
		t.Errorf("provider calls = %d, want 2", p.calls)
	}
	if !strings.Contains(buf.Output(), "session has expired") {
		t.Error("expiry notice not shown")
	}
	// The second session starts empty: only the last question was sent.
	if len(p.got.Messages) != 1 || p.got.Messages[0].Content != "second" {
		t.Errorf("messages after re-auth = %+v", p.got.Messages)
	}
	if a.Conversation().TotalTokens() != 10 {
		t.Errorf("TotalTokens = %d, want 10", a.Conversation().TotalTokens())
	}
}

func TestRun_LogoutStartsFreshConversation(t *testing.T) {
	ui := tui.NewBufferIO([]string{"s3cr3t", "s3cr3t"}, []string{"one", "/logout", "two", "/quit", "never"})
	p := &fakeProvider{reply: "ok"}
	a, _ := newTestAgent(t, ui, p)

	if err := a.Run(context.Background()); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if p.calls != 2 {
		t.Errorf("provider calls = %d, want 2", p.calls)
	}
	if len(p.got.Messages) != 1 {
		t.Errorf("history leaked across logout: %+v", p.got.Messages)
	}
	if !strings.Contains(ui.Output(), "Bye.") {
		t.Error("quit message not shown")
	}
}

func TestRun_ProviderFailureContinues(t *testing.T) {
	ui := tui.NewBufferIO([]string{"s3cr3t"}, []string{"q1", "/history"})
	p := &fakeProvider{chatErr: errors.New("timeout")}
	a, _ := newTestAgent(t, ui, p)

	if err := a.Run(context.Background()); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if replies := ui.Replies(); len(replies) != 1 || replies[0] != ApologyText {
		t.Errorf("Replies() = %v", replies)
	}
	if !strings.Contains(ui.Output(), "assistant: "+ApologyText[:20]) {
		t.Errorf("history should include the apology turn:\n%s", ui.Output())
	}
}

func TestRunOnce(t *testing.T) {
	p := &fakeProvider{reply: "Engineer", usage: provider.Usage{InputTokens: 50, OutputTokens: 10}}
	a, _ := newTestAgent(t, tui.NewBufferIO(nil, nil), p)

	env, err := a.RunOnce(context.Background(), "s3cr3t", "What is his current role?")
	if err != nil {
		t.Fatalf("RunOnce() error: %v", err)
	}
	if env.Response != "Engineer" || env.TokensUsed.Total != 60 {
		t.Errorf("envelope = %+v", env)
	}

	if _, err := a.RunOnce(context.Background(), "nope", "q"); !errors.Is(err, ErrVerificationFailed) {
		t.Errorf("RunOnce(wrong password) = %v", err)
	}

	p.chatErr = errors.New("down")
	env, err = a.RunOnce(context.Background(), "s3cr3t", "q")
	if err == nil || env.Response != ApologyText {
		t.Errorf("RunOnce(failing provider) = %+v, %v", env, err)
	}
}

func TestFormatHistory(t *testing.T) {
	if got := formatHistory(nil); got != "No messages yet." {
		t.Errorf("formatHistory(nil) = %q", got)
	}
	got := formatHistory(priorTurns(2))
	if strings.Count(got, "\n") != 1 || !strings.Contains(got, "user: turn-0") {
		t.Errorf("formatHistory = %q", got)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short\nline", 200); got != "short line" {
		t.Errorf("truncate = %q", got)
	}

	s := strings.Repeat("é", 150) + strings.Repeat("日", 100)
	got := truncate(s, 200)
	if !utf8.ValidString(got) {
		t.Fatalf("truncate produced invalid UTF-8: %q", got)
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("truncate should mark the cut: %q", got)
	}
	if n := utf8.RuneCountInString(strings.TrimSuffix(got, "...")); n != 200 {
		t.Errorf("kept %d runes, want 200", n)
	}

	// 150 two-byte runes fit in 200 runes even though they take 300 bytes.
	exact := strings.Repeat("é", 150)
	if got := truncate(exact, 200); got != exact {
		t.Errorf("truncate cut a string that fits: %q", got)
	}
}
