package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/cvchat/cvchat/internal/config"
)

// TokenParam is the query parameter that carries the shared secret in
// shareable links, e.g. https://host/?token=s3cr3t.
const TokenParam = "token"

// DefaultTimeout is the lifetime of an issued session.
const DefaultTimeout = time.Hour

// Session is an issued access grant. The token is opaque: it identifies the
// session to its owner and is never compared against a secret. ID is random
// per issuance and is what stores and cookies key on, since legacy tokens
// repeat for logins within the same second.
type Session struct {
	ID       string    `json:"id"`
	Token    string    `json:"token"`
	IssuedAt time.Time `json:"issued_at"`
}

// Manager issues sessions and checks their age.
type Manager struct {
	verifier *Verifier
	timeout  time.Duration
	scheme   string
	now      func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithTokenScheme selects config.TokenSchemeRandom or config.TokenSchemeLegacy.
func WithTokenScheme(scheme string) Option {
	return func(m *Manager) { m.scheme = scheme }
}

// NewManager creates a Manager. A non-positive timeout means DefaultTimeout.
func NewManager(v *Verifier, timeout time.Duration, opts ...Option) *Manager {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	m := &Manager{
		verifier: v,
		timeout:  timeout,
		scheme:   config.TokenSchemeRandom,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Timeout returns the session lifetime.
func (m *Manager) Timeout() time.Duration { return m.timeout }

// Verify exposes the underlying credential check.
func (m *Manager) Verify(candidate string) bool { return m.verifier.Verify(candidate) }

// Issue verifies candidate and, on success, returns a fresh session.
func (m *Manager) Issue(candidate string) (Session, bool) {
	if !m.verifier.Verify(candidate) {
		return Session{}, false
	}
	now := m.now()
	return Session{
		ID:       uuid.NewString(),
		Token:    m.newToken(candidate, now),
		IssuedAt: now,
	}, true
}

// IsValid reports whether s is younger than the timeout. A session issued in
// the future (clock skew) has negative age and is valid.
func (m *Manager) IsValid(s Session) bool {
	return m.now().Sub(s.IssuedAt) < m.timeout
}

// Remaining returns how long s stays valid, clamped to [0, timeout].
func (m *Manager) Remaining(s Session) time.Duration {
	left := m.timeout - m.now().Sub(s.IssuedAt)
	switch {
	case left < 0:
		return 0
	case left > m.timeout:
		return m.timeout
	}
	return left
}

// ExpiresAt returns the instant s stops being valid.
func (m *Manager) ExpiresAt(s Session) time.Time {
	return s.IssuedAt.Add(m.timeout)
}

// CandidateFromQuery extracts the shared secret from link parameters.
func CandidateFromQuery(params url.Values) (string, bool) {
	v := params.Get(TokenParam)
	if v == "" {
		return "", false
	}
	return v, true
}

func (m *Manager) newToken(candidate string, now time.Time) string {
	if m.scheme == config.TokenSchemeLegacy {
		return LegacyToken(candidate, now)
	}
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand does not fail on supported platforms.
		return LegacyToken(candidate, now)
	}
	return hex.EncodeToString(b)
}

// LegacyToken builds the v1 token format, sha256("<secret>_<unix>").
// Anyone who knows the secret and the issuance second can rebuild it.
func LegacyToken(candidate string, now time.Time) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s_%d", candidate, now.Unix())))
	return hex.EncodeToString(sum[:])
}
