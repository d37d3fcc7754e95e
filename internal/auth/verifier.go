// Package auth verifies the signed token carried on the websocket handshake
// and HTTP bearer-authenticated endpoints. Credential issuance and the
// signing key's lifecycle are external collaborators; this package only
// verifies.
package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken covers every verification failure: missing, malformed,
// expired, or wrong-signature tokens all close the handshake with BAD_DATA
// or return HTTP 401 — the caller does not need to distinguish further.
var ErrInvalidToken = errors.New("auth: invalid token")

// claims is the minimal claim set the gateway relies on: the subject is the
// user ID registered in the presence directory and local session table.
type claims struct {
	jwt.RegisteredClaims
}

// Verifier checks HMAC-signed tokens against a single shared secret.
type Verifier struct {
	secret []byte
}

// NewVerifier constructs a Verifier. An empty secret is accepted by the
// constructor (so a misconfigured pod fails at Verify time, loudly, per
// request, rather than at startup for every code path that touches config).
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify parses and validates tokenString, returning the subject (user ID)
// on success.
func (v *Verifier) Verify(tokenString string) (string, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return "", ErrInvalidToken
	}
	if len(v.secret) == 0 {
		return "", fmt.Errorf("%w: verifier has no secret configured", ErrInvalidToken)
	}

	parsed, err := jwt.ParseWithClaims(tokenString, &claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return "", ErrInvalidToken
	}

	c, ok := parsed.Claims.(*claims)
	if !ok || c.Subject == "" {
		return "", ErrInvalidToken
	}
	return c.Subject, nil
}
