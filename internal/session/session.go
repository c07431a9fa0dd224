// Package session holds per-session conversation state: the issued access
// grant, the displayed turn history and usage totals. Nothing here outlives
// the process.
package session

import (
	"sync"
	"time"

	"github.com/cvchat/cvchat/internal/auth"
	"github.com/cvchat/cvchat/internal/provider"
	"github.com/cvchat/cvchat/internal/usage"
)

// Conversation is the isolated state of one authenticated session.
type Conversation struct {
	Session auth.Session

	mu          sync.Mutex
	turns       []Turn
	totalTokens int
	costs       *usage.CostTracker
	busy        bool
	now         func() time.Time
}

// New creates an empty conversation for s.
func New(s auth.Session) *Conversation {
	return &Conversation{
		Session: s,
		costs:   usage.NewCostTracker(nil),
		now:     time.Now,
	}
}

// Append adds a turn to the displayed history and returns it.
func (c *Conversation) Append(role provider.Role, content string) Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := NewTurn(role, content, c.now())
	c.turns = append(c.turns, t)
	return t
}

// Turns returns a copy of the full displayed history.
func (c *Conversation) Turns() []Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Turn, len(c.turns))
	copy(out, c.turns)
	return out
}

// RecordUsage folds one exchange's token counts into the running totals.
func (c *Conversation) RecordUsage(model string, in, out int) {
	c.mu.Lock()
	c.totalTokens = usage.Accumulate(c.totalTokens, in+out)
	c.mu.Unlock()
	c.costs.RecordTurn(model, in, out)
}

// TotalTokens returns the session's accumulated token count.
func (c *Conversation) TotalTokens() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalTokens
}

// Costs returns the exact per-turn cost ledger.
func (c *Conversation) Costs() *usage.CostTracker { return c.costs }

// Begin claims the conversation for one provider exchange. ok is false when
// another exchange is already in flight; otherwise release must be called.
func (c *Conversation) Begin() (release func(), ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		return nil, false
	}
	c.busy = true
	return func() {
		c.mu.Lock()
		c.busy = false
		c.mu.Unlock()
	}, true
}
