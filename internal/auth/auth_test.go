package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
)

func TestSignInAndVerify(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	iss := NewTokenIssuerWithClock("s3cret", time.Hour, clock)

	id, err := iss.SignInAnonymously()
	if err != nil {
		t.Fatalf("SignInAnonymously: %v", err)
	}
	if !strings.HasPrefix(id.UID, "anon-") {
		t.Errorf("UID = %q, want anon- prefix", id.UID)
	}
	if !id.ExpiresAt.Equal(clock.Now().Add(time.Hour)) {
		t.Errorf("ExpiresAt = %v", id.ExpiresAt)
	}

	uid, err := iss.Verify(id.Token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if uid != id.UID {
		t.Errorf("Verify uid = %q, want %q", uid, id.UID)
	}
}

func TestSignInDistinctUIDs(t *testing.T) {
	iss := NewTokenIssuer("s3cret", time.Hour)
	a, err := iss.SignInAnonymously()
	if err != nil {
		t.Fatal(err)
	}
	b, err := iss.SignInAnonymously()
	if err != nil {
		t.Fatal(err)
	}
	if a.UID == b.UID {
		t.Errorf("two sign-ins returned the same uid %q", a.UID)
	}
}

func TestVerifyExpired(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	iss := NewTokenIssuerWithClock("s3cret", time.Hour, clock)

	id, err := iss.SignInAnonymously()
	if err != nil {
		t.Fatal(err)
	}
	clock.Advance(2 * time.Hour)

	if _, err := iss.Verify(id.Token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Verify expired token: err = %v, want ErrInvalidToken", err)
	}
}

func TestVerifyRejects(t *testing.T) {
	iss := NewTokenIssuer("s3cret", time.Hour)
	other := NewTokenIssuer("other", time.Hour)
	foreign, err := other.SignInAnonymously()
	if err != nil {
		t.Fatal(err)
	}

	now := time.Now()
	wrongIssuer, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    "someone-else",
		Subject:   "anon-abc",
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}).SignedString([]byte("s3cret"))
	if err != nil {
		t.Fatal(err)
	}
	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:  Issuer,
		Subject: "anon-abc",
	}).SignedString([]byte("s3cret"))
	if err != nil {
		t.Fatal(err)
	}
	badSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    Issuer,
		Subject:   "admin",
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}).SignedString([]byte("s3cret"))
	if err != nil {
		t.Fatal(err)
	}

	for _, tc := range []struct {
		name  string
		token string
	}{
		{"Empty", ""},
		{"Garbage", "not.a.token"},
		{"WrongSecret", foreign.Token},
		{"WrongIssuer", wrongIssuer},
		{"NoExpiry", noExpiry},
		{"BadSubject", badSubject},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := iss.Verify(tc.token); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("Verify(%s) err = %v, want ErrInvalidToken", tc.name, err)
			}
		})
	}
}
