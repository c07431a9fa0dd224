package httpapi

import (
	"crypto/rand"
	"errors"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const sessionCookieName = "cvchat_session"

type sessionClaims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

type cookieSigner struct {
	key []byte
}

func newCookieSigner(secret string) *cookieSigner {
	if secret != "" {
		return &cookieSigner{key: []byte(secret)}
	}
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic("failed to generate cookie key: " + err.Error())
	}
	return &cookieSigner{key: b}
}

func (c *cookieSigner) sign(sessionID string, issuedAt, expiresAt time.Time) (string, error) {
	claims := sessionClaims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(c.key)
}

// parse checks the signature and returns the session id. Expiry is decided by
// auth.Manager against the stored session, not by the token's exp claim.
func (c *cookieSigner) parse(tokenStr string) (string, error) {
	var claims sessionClaims
	_, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (any, error) {
		return c.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithoutClaimsValidation())
	if err != nil {
		return "", err
	}
	if claims.SessionID == "" {
		return "", errors.New("cookie has no session id")
	}
	return claims.SessionID, nil
}

func (s *Server) setSessionCookie(w http.ResponseWriter, value string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    value,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
