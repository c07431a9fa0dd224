package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/cvchat/cvchat/internal/usage"
	"github.com/dustin/go-humanize"
)

// UsageReport is the session status shown by /usage and after each answer.
type UsageReport struct {
	TotalTokens   int
	EstimatedCost float64
	ExactCost     float64
	Turns         int
	Remaining     time.Duration
}

// FormatUsage renders r as a short multi-line block.
func FormatUsage(r UsageReport) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Tokens used: %s\n", humanize.Comma(int64(r.TotalTokens)))
	fmt.Fprintf(&sb, "Estimated cost: %s (exact: %s over %d %s)\n",
		usage.FormatDollars(r.EstimatedCost),
		usage.FormatDollars(r.ExactCost),
		r.Turns, pluralize(r.Turns, "turn", "turns"))
	fmt.Fprintf(&sb, "Session expires %s", FormatRemaining(r.Remaining))
	return sb.String()
}

// FormatRemaining renders a session lifetime like "in 59 minutes".
func FormatRemaining(d time.Duration) string {
	if d <= 0 {
		return "now"
	}
	base := time.Unix(0, 0)
	return "in " + strings.TrimSpace(humanize.RelTime(base, base.Add(d), "", ""))
}

// FormatTokens renders a compact token count, e.g. "12k".
func FormatTokens(n int) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	return strings.ReplaceAll(humanize.SIWithDigits(float64(n), 1, ""), " ", "")
}

func pluralize(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
