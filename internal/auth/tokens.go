// Package auth verifies caller identity tokens and issues the short-lived
// access grants that unlock password protected links.
package auth

import (
	"errors"
	"fmt"
	"time"

	"shortlink/internal/domain"

	"github.com/golang-jwt/jwt/v5"
)

// grantAudience marks access grants so they cannot pass as identity tokens
// and the other way round.
const grantAudience = "link-access"

var ErrInvalidGrant = errors.New("invalid access grant")

// GrantClaims binds a grant to one link and one browser session
type GrantClaims struct {
	LinkID    string `json:"lid"`
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// Tokens signs and verifies HS256 tokens with a shared secret
type Tokens struct {
	secret   []byte
	issuer   string
	grantTTL time.Duration
	now      func() time.Time
}

// NewTokens creates a token service
func NewTokens(secret, issuer string, grantTTL time.Duration) *Tokens {
	return &Tokens{
		secret:   []byte(secret),
		issuer:   issuer,
		grantTTL: grantTTL,
		now:      time.Now,
	}
}

func (t *Tokens) parser() *jwt.Parser {
	return jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.now),
		jwt.WithExpirationRequired(),
	)
}

func (t *Tokens) key(*jwt.Token) (interface{}, error) {
	return t.secret, nil
}

// IssueIdentity mints an identity token for ownerID. Production identities
// come from the account service; this is used by tooling and tests.
func (t *Tokens) IssueIdentity(ownerID string, ttl time.Duration) (string, error) {
	now := t.now()
	claims := jwt.RegisteredClaims{
		Subject:   ownerID,
		Issuer:    t.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// ParseIdentity returns the owner id carried in a bearer token
func (t *Tokens) ParseIdentity(tokenString string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := t.parser().ParseWithClaims(tokenString, claims, t.key)
	if err != nil || !token.Valid {
		return "", fmt.Errorf("%w: %v", domain.ErrUnauthenticated, err)
	}
	for _, aud := range claims.Audience {
		if aud == grantAudience {
			return "", fmt.Errorf("%w: access grant used as identity", domain.ErrUnauthenticated)
		}
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: token has no subject", domain.ErrUnauthenticated)
	}
	return claims.Subject, nil
}

// IssueGrant returns a token proving sessionID passed linkID's password
func (t *Tokens) IssueGrant(linkID, sessionID string) (string, time.Time, error) {
	now := t.now()
	expiresAt := now.Add(t.grantTTL)
	claims := &GrantClaims{
		LinkID:    linkID,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Audience:  jwt.ClaimStrings{grantAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign access grant: %w", err)
	}
	return signed, expiresAt, nil
}

// VerifyGrant checks that grant is unexpired and was issued for this link
// and session
func (t *Tokens) VerifyGrant(grant, linkID, sessionID string) error {
	if grant == "" {
		return ErrInvalidGrant
	}
	claims := &GrantClaims{}
	p := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.now),
		jwt.WithExpirationRequired(),
		jwt.WithAudience(grantAudience),
	)
	token, err := p.ParseWithClaims(grant, claims, t.key)
	if err != nil || !token.Valid {
		return fmt.Errorf("%w: %v", ErrInvalidGrant, err)
	}
	if claims.LinkID != linkID || claims.SessionID != sessionID {
		return fmt.Errorf("%w: issued for another link or session", ErrInvalidGrant)
	}
	return nil
}
