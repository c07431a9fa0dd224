// Package auth implements the shared-secret gate: credential verification
// against layered reference secrets and time-bounded session issuance.
package auth

import (
	"crypto/subtle"
	"errors"
	"log/slog"
	"sync"

	"github.com/cvchat/cvchat/internal/config"
	"github.com/cvchat/cvchat/internal/secrets"
	"golang.org/x/crypto/bcrypt"
)

// DefaultPassword is compared against when no secret is configured at all.
const DefaultPassword = "default_password"

// Method says how a tier's reference value is compared with a candidate.
type Method int

const (
	// MethodBcrypt compares against a bcrypt hash.
	MethodBcrypt Method = iota
	// MethodPlain compares byte-for-byte. Local/offline fallback only.
	MethodPlain
)

func (m Method) String() string {
	if m == MethodBcrypt {
		return "bcrypt"
	}
	return "plain"
}

// Tier is one reference-secret source. Lookup reports whether the tier is
// configured; the first configured tier that can be evaluated decides.
type Tier struct {
	Name   string
	Method Method
	Lookup func() (string, bool)
}

// Verifier checks a presented secret against an ordered list of tiers.
type Verifier struct {
	tiers  []Tier
	logger *slog.Logger

	warnOnce sync.Once
}

// NewVerifier creates a Verifier over explicit tiers.
func NewVerifier(logger *slog.Logger, tiers ...Tier) *Verifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Verifier{tiers: tiers, logger: logger}
}

// DefaultTiers builds the standard lookup order:
//  1. PASSWORD_HASH in the secrets file (bcrypt)
//  2. PASSWORD_HASH from the environment / config file (bcrypt)
//  3. ACCESS_PASSWORD from the environment / config file, else DefaultPassword (plain)
//
// cfg.Auth already carries the environment overrides applied by config.Load.
func DefaultTiers(store secrets.Store, cfg *config.Config) []Tier {
	tiers := make([]Tier, 0, 3)
	if store != nil {
		tiers = append(tiers, Tier{
			Name:   store.Name(),
			Method: MethodBcrypt,
			Lookup: func() (string, bool) { return store.Lookup("PASSWORD_HASH") },
		})
	}
	tiers = append(tiers,
		Tier{
			Name:   "environment",
			Method: MethodBcrypt,
			Lookup: func() (string, bool) {
				return cfg.Auth.PasswordHash, cfg.Auth.PasswordHash != ""
			},
		},
		Tier{
			Name:   "plain",
			Method: MethodPlain,
			Lookup: func() (string, bool) {
				if cfg.Auth.AccessPassword != "" {
					return cfg.Auth.AccessPassword, true
				}
				return DefaultPassword, true
			},
		},
	)
	return tiers
}

// Verify reports whether candidate matches the first usable tier.
// It never returns an error: a tier whose comparison fails for reasons other
// than a mismatch (malformed hash, unsupported cost) is skipped.
func (v *Verifier) Verify(candidate string) bool {
	for _, tier := range v.tiers {
		ref, ok := tier.Lookup()
		if !ok {
			continue
		}

		switch tier.Method {
		case MethodBcrypt:
			err := bcrypt.CompareHashAndPassword([]byte(ref), []byte(candidate))
			if err == nil {
				return true
			}
			if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
				return false
			}
			v.logger.Warn("password hash unusable, falling through",
				"tier", tier.Name, "error", err)

		case MethodPlain:
			v.warnOnce.Do(func() {
				v.logger.Warn("using plain-text password comparison; configure PASSWORD_HASH for hosted deployments",
					"tier", tier.Name)
			})
			return subtle.ConstantTimeCompare([]byte(ref), []byte(candidate)) == 1
		}
	}
	return false
}

// HashPassword returns a bcrypt hash suitable for PASSWORD_HASH.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
