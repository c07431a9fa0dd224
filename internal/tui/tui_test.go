package tui

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"time"
)

func TestPlainIO_ReadInput(t *testing.T) {
	var out, errOut bytes.Buffer
	p := NewPlainIOFrom(strings.NewReader("  hello  \nsecond\n"), &out, &errOut)

	got, err := p.ReadInput()
	if err != nil || got != "hello" {
		t.Fatalf("ReadInput() = %q, %v", got, err)
	}
	got, _ = p.ReadInput()
	if got != "second" {
		t.Errorf("ReadInput() = %q", got)
	}
	if _, err := p.ReadInput(); err != io.EOF {
		t.Errorf("expected io.EOF, got %v", err)
	}
	if !strings.Contains(out.String(), "> ") {
		t.Error("prompt not written")
	}
}

func TestPlainIO_ReadPasswordFromPipe(t *testing.T) {
	var out bytes.Buffer
	p := NewPlainIOFrom(strings.NewReader("s3cr3t\nnext\n"), &out, io.Discard)

	pw, err := p.ReadPassword("Password: ")
	if err != nil || pw != "s3cr3t" {
		t.Fatalf("ReadPassword() = %q, %v", pw, err)
	}
	if out.String() != "Password: " {
		t.Errorf("out = %q", out.String())
	}
	// The scanner is shared, so the next line is still available.
	if got, _ := p.ReadInput(); got != "next" {
		t.Errorf("ReadInput() after password = %q", got)
	}
}

func TestPlainIO_Output(t *testing.T) {
	var out, errOut bytes.Buffer
	p := NewPlainIOFrom(strings.NewReader(""), &out, &errOut)

	p.TextDone("Engineer")
	p.SystemMessage("Bye.")
	p.Error("boom")

	if out.String() != "Engineer\nBye.\n" {
		t.Errorf("out = %q", out.String())
	}
	if errOut.String() != "error: boom\n" {
		t.Errorf("errOut = %q", errOut.String())
	}
}

func TestBufferIO(t *testing.T) {
	b := NewBufferIO([]string{"pw"}, []string{"q1"})

	if pw, _ := b.ReadPassword("Password: "); pw != "pw" {
		t.Errorf("ReadPassword() = %q", pw)
	}
	if _, err := b.ReadPassword("Password: "); err != io.EOF {
		t.Errorf("expected io.EOF, got %v", err)
	}
	if in, _ := b.ReadInput(); in != "q1" {
		t.Errorf("ReadInput() = %q", in)
	}

	b.TextDone("answer")
	b.SystemMessage("note")
	b.Error("bad")
	b.SetTokens(60)

	if got := b.Replies(); len(got) != 1 || got[0] != "answer" {
		t.Errorf("Replies() = %v", got)
	}
	if got := b.SystemMessages(); len(got) != 1 || got[0] != "note" {
		t.Errorf("SystemMessages() = %v", got)
	}
	if got := b.Errors(); len(got) != 1 || got[0] != "bad" {
		t.Errorf("Errors() = %v", got)
	}
	if b.Tokens() != 60 {
		t.Errorf("Tokens() = %d", b.Tokens())
	}
	if b.Output() != "answer\nnote\nerror: bad\n" {
		t.Errorf("Output() = %q", b.Output())
	}
}

func TestFormatUsage(t *testing.T) {
	s := FormatUsage(UsageReport{
		TotalTokens:   1234567,
		EstimatedCost: 0.5,
		ExactCost:     0.75,
		Turns:         1,
		Remaining:     30 * time.Minute,
	})
	for _, want := range []string{"1,234,567", "$0.50", "$0.75", "1 turn)", "in 30 minutes"} {
		if !strings.Contains(s, want) {
			t.Errorf("FormatUsage missing %q:\n%s", want, s)
		}
	}
}

func TestFormatRemaining(t *testing.T) {
	if got := FormatRemaining(0); got != "now" {
		t.Errorf("FormatRemaining(0) = %q", got)
	}
	if got := FormatRemaining(-time.Minute); got != "now" {
		t.Errorf("FormatRemaining(-1m) = %q", got)
	}
	if got := FormatRemaining(90 * time.Minute); !strings.HasPrefix(got, "in ") || !strings.Contains(got, "hour") {
		t.Errorf("FormatRemaining(90m) = %q", got)
	}
}

func TestFormatTokens(t *testing.T) {
	if got := FormatTokens(999); got != "999" {
		t.Errorf("FormatTokens(999) = %q", got)
	}
	if got := FormatTokens(12000); !strings.HasPrefix(got, "12") || !strings.HasSuffix(got, "k") {
		t.Errorf("FormatTokens(12000) = %q", got)
	}
}
