package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func sign(t *testing.T, secret string, c claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	s, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func TestVerifyAccepts(t *testing.T) {
	v := NewVerifier("s3cret")
	tok := sign(t, "s3cret", claims{jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}})

	sub, err := v.Verify(tok)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if sub != "user-1" {
		t.Errorf("subject = %q, want user-1", sub)
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	v := NewVerifier("s3cret")
	tok := sign(t, "s3cret", claims{jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	}})

	if _, err := v.Verify(tok); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	v := NewVerifier("s3cret")
	tok := sign(t, "other-secret", claims{jwt.RegisteredClaims{Subject: "user-1"}})

	if _, err := v.Verify(tok); err == nil {
		t.Fatal("expected wrong-secret token to be rejected")
	}
}

func TestVerifyRejectsEmpty(t *testing.T) {
	v := NewVerifier("s3cret")
	if _, err := v.Verify(""); err == nil {
		t.Fatal("expected empty token to be rejected")
	}
	if _, err := v.Verify("   "); err == nil {
		t.Fatal("expected whitespace token to be rejected")
	}
}

func TestVerifyRejectsMissingSecret(t *testing.T) {
	v := NewVerifier("")
	tok := sign(t, "anything", claims{jwt.RegisteredClaims{Subject: "user-1"}})
	if _, err := v.Verify(tok); err == nil {
		t.Fatal("expected verifier with no secret to reject every token")
	}
}
