package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cvchat/cvchat/internal/auth"
)

// ErrNotFound is returned when no conversation exists for a session ID.
var ErrNotFound = errors.New("session not found")

// Store holds live conversations keyed by auth.Session.ID.
type Store interface {
	Create(s auth.Session) *Conversation
	Get(id string) (*Conversation, error)
	Delete(id string)
	Sweep(valid func(auth.Session) bool) int
	Len() int
}

// MemoryStore is the in-process Store. Restarting the process drops every
// session, which forces visitors to authenticate again.
type MemoryStore struct {
	mu    sync.RWMutex
	convs map[string]*Conversation
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{convs: make(map[string]*Conversation)}
}

// Create registers a fresh conversation for s, replacing any previous one
// with the same session ID.
func (m *MemoryStore) Create(s auth.Session) *Conversation {
	c := New(s)
	m.mu.Lock()
	m.convs[s.ID] = c
	m.mu.Unlock()
	return c
}

func (m *MemoryStore) Get(id string) (*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.convs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return c, nil
}

func (m *MemoryStore) Delete(id string) {
	m.mu.Lock()
	delete(m.convs, id)
	m.mu.Unlock()
}

// Sweep removes every conversation whose session is no longer valid and
// returns how many were removed.
func (m *MemoryStore) Sweep(valid func(auth.Session) bool) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, c := range m.convs {
		if !valid(c.Session) {
			delete(m.convs, id)
			n++
		}
	}
	return n
}

func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.convs)
}

// RunSweeper calls st.Sweep every interval until ctx is done.
func RunSweeper(ctx context.Context, st Store, valid func(auth.Session) bool, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		interval = time.Minute
	}

	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := st.Sweep(valid); n > 0 {
				logger.Info("expired sessions removed", "count", n, "live", st.Len())
			}
		}
	}
}
