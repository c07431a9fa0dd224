package tui

import (
	"io"
	"strings"
	"sync"
)

// BufferIO replays scripted input and captures everything written to it.
// Used for non-interactive runs and tests.
type BufferIO struct {
	mu        sync.Mutex
	inputs    []string
	passwords []string
	out       strings.Builder
	system    []string
	errors    []string
	replies   []string
	tokens    int
}

var _ IO = (*BufferIO)(nil)

// NewBufferIO creates a BufferIO that answers password prompts from
// passwords and input prompts from inputs, then reports io.EOF.
func NewBufferIO(passwords, inputs []string) *BufferIO {
	return &BufferIO{passwords: passwords, inputs: inputs}
}

// Output returns all captured text in display order.
func (b *BufferIO) Output() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.out.String()
}

// Replies returns the assistant texts passed to TextDone.
func (b *BufferIO) Replies() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.replies...)
}

// SystemMessages returns the captured system lines.
func (b *BufferIO) SystemMessages() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.system...)
}

// Errors returns the captured error lines.
func (b *BufferIO) Errors() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.errors...)
}

// Tokens returns the last value passed to SetTokens.
func (b *BufferIO) Tokens() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tokens
}

func (b *BufferIO) ReadInput() (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return pop(&b.inputs)
}

func (b *BufferIO) ReadPassword(_ string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return pop(&b.passwords)
}

func pop(queue *[]string) (string, error) {
	if len(*queue) == 0 {
		return "", io.EOF
	}
	v := (*queue)[0]
	*queue = (*queue)[1:]
	return v, nil
}

func (b *BufferIO) UserMessage(_ string) {}
func (b *BufferIO) ThinkingStart()       {}

func (b *BufferIO) TextDone(fullText string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.replies = append(b.replies, fullText)
	b.out.WriteString(fullText + "\n")
}

func (b *BufferIO) SystemMessage(text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.system = append(b.system, text)
	b.out.WriteString(text + "\n")
}

func (b *BufferIO) Error(msg string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.errors = append(b.errors, msg)
	b.out.WriteString("error: " + msg + "\n")
}

func (b *BufferIO) SetTokens(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokens = n
}
