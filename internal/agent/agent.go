package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cvchat/cvchat/internal/auth"
	"github.com/cvchat/cvchat/internal/provider"
	"github.com/cvchat/cvchat/internal/session"
	"github.com/cvchat/cvchat/internal/tui"
	"github.com/cvchat/cvchat/internal/usage"
)

// ErrVerificationFailed is returned when the password gate is not passed.
var ErrVerificationFailed = errors.New("incorrect password")

// DefaultMaxAttempts bounds password prompts per authentication round.
const DefaultMaxAttempts = 3

// Agent is the terminal chat: it gates the conversation behind the password,
// re-prompts when the session expires and relays questions to the Gateway.
type Agent struct {
	gateway     *Gateway
	manager     *auth.Manager
	io          tui.IO
	subject     string
	maxAttempts int

	conv *session.Conversation
}

// New creates an Agent. Pass tui.NewPlainIO() for a plain terminal.
func New(gw *Gateway, m *auth.Manager, ui tui.IO, subject string) *Agent {
	return &Agent{
		gateway:     gw,
		manager:     m,
		io:          ui,
		subject:     subject,
		maxAttempts: DefaultMaxAttempts,
	}
}

// Conversation returns the current conversation, or nil before login.
func (a *Agent) Conversation() *session.Conversation { return a.conv }

// Authenticate prompts for the password until it verifies, input ends or
// maxAttempts is reached. Success starts a fresh conversation.
func (a *Agent) Authenticate() error {
	for attempt := 1; attempt <= a.maxAttempts; attempt++ {
		pw, err := a.io.ReadPassword("Password: ")
		if err != nil {
			return err
		}
		if a.login(pw) {
			return nil
		}
		a.io.Error("Incorrect password. Please try again.")
	}
	return ErrVerificationFailed
}

func (a *Agent) login(candidate string) bool {
	sess, ok := a.manager.Issue(candidate)
	if !ok {
		return false
	}
	a.conv = session.New(sess)
	a.io.SetTokens(0)
	return true
}

// Run starts the interactive REPL loop.
func (a *Agent) Run(ctx context.Context) error {
	if err := a.Authenticate(); err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}
	a.showWelcome()

	for {
		input, err := a.io.ReadInput()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		if input == "" {
			continue
		}

		if !a.manager.IsValid(a.conv.Session) {
			if isQuit(input) {
				return nil
			}
			a.io.SystemMessage("Your session has expired. Please enter the password again.")
			a.conv = nil
			if err := a.Authenticate(); err != nil {
				if err == io.EOF {
					return nil
				}
				return err
			}
			a.showWelcome()
			continue
		}

		if strings.HasPrefix(input, "/") {
			handled, shouldQuit, err := a.handleSlashCommand(input)
			if err != nil {
				if err == io.EOF {
					return nil
				}
				return err
			}
			if shouldQuit {
				return nil
			}
			if handled {
				continue
			}
		}

		a.ask(ctx, input)
		if ctx.Err() != nil {
			a.io.SystemMessage("\nInterrupted.")
			return ctx.Err()
		}
	}
}

// RunOnce verifies password, answers a single prompt and returns. A failed
// exchange is reported as an error after the apology has been shown.
func (a *Agent) RunOnce(ctx context.Context, password, prompt string) (Envelope, error) {
	if !a.login(password) {
		return Envelope{}, ErrVerificationFailed
	}
	env := a.ask(ctx, prompt)
	if !env.Success {
		return env, errors.New(env.Error)
	}
	return env, nil
}

// ask performs one exchange and records both turns.
func (a *Agent) ask(ctx context.Context, input string) Envelope {
	release, ok := a.conv.Begin()
	if !ok {
		a.io.Error("A response is already being generated.")
		return Envelope{Response: ApologyText, Error: "busy"}
	}
	defer release()

	a.io.UserMessage(input)
	a.io.ThinkingStart()

	env := a.gateway.Respond(ctx, input, a.conv.Turns())

	a.conv.Append(provider.RoleUser, input)
	a.conv.Append(provider.RoleAssistant, env.Response)
	if env.TokensUsed != nil {
		a.conv.RecordUsage(a.gateway.Model(), env.TokensUsed.Input, env.TokensUsed.Output)
	}
	a.io.TextDone(env.Response)
	a.io.SetTokens(a.conv.TotalTokens())
	return env
}

func (a *Agent) showWelcome() {
	var sb strings.Builder
	sb.WriteString(WelcomeMessage(a.subject))
	sb.WriteString("\n\nSuggested questions:")
	for _, q := range SuggestedQuestions(a.subject) {
		sb.WriteString("\n  - " + q)
	}
	sb.WriteString("\n\nType /help for commands.")
	a.io.SystemMessage(sb.String())
}

// Report returns the current usage figures.
func (a *Agent) Report() tui.UsageReport {
	total := a.conv.TotalTokens()
	return tui.UsageReport{
		TotalTokens:   total,
		EstimatedCost: usage.EstimateCost(total),
		ExactCost:     a.conv.Costs().SessionCost(),
		Turns:         a.conv.Costs().Turns(),
		Remaining:     a.manager.Remaining(a.conv.Session),
	}
}

// handleSlashCommand processes built-in commands.
// Returns (handled, shouldQuit, err).
func (a *Agent) handleSlashCommand(input string) (bool, bool, error) {
	cmd := strings.Fields(input)[0]

	if isQuit(cmd) {
		a.io.SystemMessage("Bye.")
		return true, true, nil
	}

	switch cmd {
	case "/logout":
		a.conv = nil
		a.io.SystemMessage("Logged out.")
		if err := a.Authenticate(); err != nil {
			return true, false, err
		}
		a.showWelcome()
		return true, false, nil
	case "/usage", "/cost":
		a.io.SystemMessage(tui.FormatUsage(a.Report()))
		return true, false, nil
	case "/history":
		a.io.SystemMessage(formatHistory(a.conv.Turns()))
		return true, false, nil
	case "/welcome":
		a.showWelcome()
		return true, false, nil
	case "/help":
		a.io.SystemMessage(helpText)
		return true, false, nil
	default:
		return false, false, nil
	}
}

func isQuit(input string) bool {
	switch strings.TrimSpace(input) {
	case "/quit", "/exit", "/q":
		return true
	}
	return false
}

const helpText = `Available commands:
  /help       Show this help message
  /welcome    Show the welcome message and suggested questions
  /history    Show the conversation so far
  /usage      Show tokens used, estimated cost and session time left
  /logout     End the session and ask for the password again
  /quit       Exit`

func formatHistory(turns []session.Turn) string {
	if len(turns) == 0 {
		return "No messages yet."
	}
	var sb strings.Builder
	for i, t := range turns {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "[%s] %s: %s", t.CreatedAt.Format("15:04"), t.Role, truncate(t.Content, 200))
	}
	return sb.String()
}

// truncate shortens s to maxLen runes, appending "..." if cut.
func truncate(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}
