// Package auth issues and verifies anonymous presenter identities.
//
// A presenter signs in once per browser or CLI state file and keeps the
// returned token; the token subject is the presenter uid stamped on every
// session and command it writes.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"

	"github.com/alfredjeanlab/klicker/internal/idgen"
)

// Issuer is the iss claim on every token.
const Issuer = "klicker"

var ErrInvalidToken = errors.New("invalid token")

// Identity is the result of an anonymous sign-in.
type Identity struct {
	UID       string    `json:"uid"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// TokenIssuer signs HS256 tokens for anonymous presenters.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	clock  clockwork.Clock
}

func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	return NewTokenIssuerWithClock(secret, ttl, clockwork.NewRealClock())
}

func NewTokenIssuerWithClock(secret string, ttl time.Duration, clock clockwork.Clock) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, clock: clock}
}

// SignInAnonymously mints a fresh uid and a token for it.
func (i *TokenIssuer) SignInAnonymously() (*Identity, error) {
	uid, err := idgen.AnonymousUID()
	if err != nil {
		return nil, fmt.Errorf("generating uid: %w", err)
	}
	now := i.clock.Now()
	exp := now.Add(i.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    Issuer,
		Subject:   uid,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return nil, fmt.Errorf("signing token: %w", err)
	}
	return &Identity{UID: uid, Token: signed, ExpiresAt: exp.UTC()}, nil
}

// Verify checks the signature, issuer and expiry and returns the uid.
func (i *TokenIssuer) Verify(tokenString string) (string, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return "", ErrInvalidToken
	}
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.clock.Now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !strings.HasPrefix(claims.Subject, idgen.AnonymousPrefix) {
		return "", fmt.Errorf("%w: unexpected subject %q", ErrInvalidToken, claims.Subject)
	}
	return claims.Subject, nil
}
