package tui

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// PlainIO implements IO using plain terminal output and a line scanner.
type PlainIO struct {
	in      io.Reader
	out     io.Writer
	errOut  io.Writer
	scanner *bufio.Scanner
	tokens  int
}

var _ IO = (*PlainIO)(nil)

// NewPlainIO creates a PlainIO on stdin/stdout/stderr.
func NewPlainIO() *PlainIO {
	return NewPlainIOFrom(os.Stdin, os.Stdout, os.Stderr)
}

// NewPlainIOFrom creates a PlainIO on the given streams.
func NewPlainIOFrom(in io.Reader, out, errOut io.Writer) *PlainIO {
	s := bufio.NewScanner(in)
	s.Buffer(make([]byte, 1024*1024), 1024*1024)
	return &PlainIO{in: in, out: out, errOut: errOut, scanner: s}
}

func (p *PlainIO) ReadInput() (string, error) {
	fmt.Fprint(p.out, "\n> ")
	return p.readLine()
}

// ReadPassword disables echo when input is a terminal and falls back to a
// plain line read otherwise (pipes, tests).
func (p *PlainIO) ReadPassword(prompt string) (string, error) {
	fmt.Fprint(p.out, prompt)
	if f, ok := p.in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(p.out)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}
	return p.readLine()
}

func (p *PlainIO) readLine() (string, error) {
	if !p.scanner.Scan() {
		if err := p.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.TrimSpace(p.scanner.Text()), nil
}

func (p *PlainIO) UserMessage(_ string) {
	// Plain terminal: the user already sees what they typed.
}

func (p *PlainIO) ThinkingStart() {
	fmt.Fprintln(p.out)
}

func (p *PlainIO) TextDone(fullText string) {
	fmt.Fprintln(p.out, fullText)
}

func (p *PlainIO) SystemMessage(text string) {
	fmt.Fprintln(p.out, text)
}

func (p *PlainIO) Error(msg string) {
	fmt.Fprintf(p.errOut, "error: %s\n", msg)
}

func (p *PlainIO) SetTokens(n int) {
	p.tokens = n
}
