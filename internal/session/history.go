package session

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/cvchat/cvchat/internal/provider"
	"github.com/oklog/ulid/v2"
)

// Turn is one displayed message of a conversation.
type Turn struct {
	ID        string        `json:"id"`
	Role      provider.Role `json:"role"`
	Content   string        `json:"content"`
	CreatedAt time.Time     `json:"created_at"`
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewTurn stamps a turn with a ULID so IDs are unique and sort chronologically.
func NewTurn(role provider.Role, content string, at time.Time) Turn {
	entropyMu.Lock()
	id := ulid.MustNew(ulid.Timestamp(at), entropy).String()
	entropyMu.Unlock()
	return Turn{ID: id, Role: role, Content: content, CreatedAt: at}
}

// Window returns the last n turns in their original order. The result shares
// no backing array with turns. n <= 0 yields no history.
func Window(turns []Turn, n int) []Turn {
	if n <= 0 || len(turns) == 0 {
		return nil
	}
	if len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	out := make([]Turn, len(turns))
	copy(out, turns)
	return out
}

// ToMessages converts turns to provider messages.
func ToMessages(turns []Turn) []provider.Message {
	msgs := make([]provider.Message, 0, len(turns))
	for _, t := range turns {
		msgs = append(msgs, provider.Message{Role: t.Role, Content: t.Content})
	}
	return msgs
}
