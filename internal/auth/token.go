package auth

import (
	"errors"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/spec-kit/storefront-auth/internal/config"
	"github.com/spec-kit/storefront-auth/internal/domain"
)

// TokenClass selects which of the two independently keyed token kinds
// a codec operation targets. An access token and a refresh token for
// the same principal are never interchangeable.
type TokenClass string

const (
	TokenClassAccess  TokenClass = "access"
	TokenClassRefresh TokenClass = "refresh"
)

// Verification failure taxonomy. Expired is the only recoverable case
// (via the refresh fallback); the others are terminal for the request.
var (
	ErrTokenExpired       = errors.New("token expired")
	ErrTokenMalformed     = errors.New("token malformed")
	ErrTokenClassMismatch = errors.New("token class mismatch")
)

// Principal is the identity baked into a token at issuance and
// recovered from it at verification. Immutable for the request.
type Principal struct {
	UserID string
	Email  string
	Role   domain.Role
	Name   string
}

// CredentialPair bundles the two tokens minted together at login or
// refresh time. Both carry the same issuance instant.
type CredentialPair struct {
	AccessToken     string
	RefreshToken    string
	AccessExpiresAt time.Time
}

// Claims describes the JWT payload for both token classes.
type Claims struct {
	UserID string      `json:"userId"`
	Email  string      `json:"email"`
	Role   domain.Role `json:"role"`
	Name   string      `json:"name"`
	Class  TokenClass  `json:"type"`
	jwt.RegisteredClaims
}

// Principal rebuilds the identity carried by verified claims.
func (c *Claims) Principal() *Principal {
	return &Principal{UserID: c.UserID, Email: c.Email, Role: c.Role, Name: c.Name}
}

// TokenCodec signs and verifies compact HS256 tokens. Pure CPU work,
// no I/O; safe for concurrent use once constructed.
type TokenCodec struct {
	secrets map[TokenClass][]byte
	ttls    map[TokenClass]time.Duration
	now     func() time.Time
}

// NewTokenCodec builds a codec from per-class secrets and TTLs.
func NewTokenCodec(cfg config.AuthConfig) *TokenCodec {
	return &TokenCodec{
		secrets: map[TokenClass][]byte{
			TokenClassAccess:  []byte(cfg.AccessTokenSecret),
			TokenClassRefresh: []byte(cfg.RefreshTokenSecret),
		},
		ttls: map[TokenClass]time.Duration{
			TokenClassAccess:  cfg.AccessTokenTTL,
			TokenClassRefresh: cfg.RefreshTokenTTL,
		},
		now: time.Now,
	}
}

// TTL returns the lifetime configured for the given class.
func (tc *TokenCodec) TTL(class TokenClass) time.Duration {
	return tc.ttls[class]
}

// Issue stamps issuance and expiry on the principal's claims and signs
// them with the class-specific secret.
func (tc *TokenCodec) Issue(p *Principal, class TokenClass) (string, time.Time, error) {
	secret, ok := tc.secrets[class]
	if !ok {
		return "", time.Time{}, ErrTokenClassMismatch
	}

	issuedAt := tc.now()
	expiresAt := issuedAt.Add(tc.ttls[class])
	claims := &Claims{
		UserID: p.UserID,
		Email:  p.Email,
		Role:   p.Role,
		Name:   p.Name,
		Class:  class,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// IssuePair mints one token of each class from the same principal.
func (tc *TokenCodec) IssuePair(p *Principal) (*CredentialPair, error) {
	access, accessExp, err := tc.Issue(p, TokenClassAccess)
	if err != nil {
		return nil, err
	}
	refresh, _, err := tc.Issue(p, TokenClassRefresh)
	if err != nil {
		return nil, err
	}
	return &CredentialPair{
		AccessToken:     access,
		RefreshToken:    refresh,
		AccessExpiresAt: accessExp,
	}, nil
}

// Verify validates the token against the expected class's secret and
// lifetime. It never mutates or extends the token. Failures map to the
// taxonomy above: ErrTokenExpired when only time has run out,
// ErrTokenClassMismatch when the token was minted for the other class,
// ErrTokenMalformed for anything structurally or cryptographically bad.
func (tc *TokenCodec) Verify(tokenStr string, class TokenClass) (*Claims, error) {
	secret, ok := tc.secrets[class]
	if !ok {
		return nil, ErrTokenClassMismatch
	}

	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return secret, nil
	}, jwt.WithTimeFunc(tc.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		// The classes are independently keyed, so a cross-class token
		// fails signature verification. Distinguish that from a forgery
		// by peeking at the unverified class claim.
		if embedded, ok := unverifiedClass(tokenStr); ok && embedded != class {
			return nil, ErrTokenClassMismatch
		}
		return nil, ErrTokenMalformed
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrTokenMalformed
	}
	if claims.Class != class {
		return nil, ErrTokenClassMismatch
	}
	return claims, nil
}

func unverifiedClass(tokenStr string) (TokenClass, bool) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, claims); err != nil {
		return "", false
	}
	return claims.Class, claims.Class != ""
}
