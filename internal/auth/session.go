// Package auth mints and validates the session tokens the HTTP and
// WebSocket layers use to recover a caller's user id. OAuth/JWT issuance
// proper is out of scope (spec.md §1 lists it among the external
// collaborators); this package only covers the one integration point the
// core needs — turning a validated provider identity (or, in dev builds,
// the test-login shortcut) into a bearer token, and turning that token back
// into a user id on every subsequent request.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// claims is the JWT payload minted for a session. The user id travels in
// the custom "uid" claim (Subject is left unset); ID is a random jti so two
// sessions minted in the same second remain distinguishable.
type claims struct {
	UserID int64 `json:"uid"`
	jwt.RegisteredClaims
}

// Issuer mints and parses session tokens signed with a single shared
// secret (config.Config.JWTSecret), the same HS256 scheme
// github.com/golang-jwt/jwt/v5 documents as its baseline example and the
// scheme most of the pack's other retrieved manifests reach for when they
// need bearer sessions.
type Issuer struct {
	secret []byte
	ttl    time.Duration
}

// NewIssuer builds an Issuer. ttl is the session lifetime; spec.md names no
// explicit value, so a generous default is applied by the caller
// (cmd/server wires 7 days) since reconnect/grace-period semantics are the
// runtime's concern, not the token's.
func NewIssuer(secret string, ttl time.Duration) *Issuer {
	return &Issuer{secret: []byte(secret), ttl: ttl}
}

// Mint issues a signed session token for userID.
func (i *Issuer) Mint(userID int64) (string, error) {
	now := time.Now()
	c := claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return token.SignedString(i.secret)
}

// Verify parses and validates a session token, returning the user id it
// carries.
func (i *Issuer) Verify(tokenString string) (int64, error) {
	var c claims
	token, err := jwt.ParseWithClaims(tokenString, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil {
		return 0, err
	}
	if !token.Valid {
		return 0, errors.New("invalid session token")
	}
	return c.UserID, nil
}
