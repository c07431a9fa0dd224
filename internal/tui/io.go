// Package tui implements the terminal front ends of the chat: a plain
// line-oriented console and a scripted buffer used for non-interactive runs
// and tests.
package tui

// IO is everything the chat loop needs from a front end.
type IO interface {
	// ReadInput blocks for the next line of user input. It returns io.EOF
	// when input is exhausted.
	ReadInput() (string, error)

	// ReadPassword prompts for the shared secret without echoing it.
	ReadPassword(prompt string) (string, error)

	UserMessage(text string)
	ThinkingStart()
	TextDone(fullText string)
	SystemMessage(text string)
	Error(msg string)
	SetTokens(n int)
}
