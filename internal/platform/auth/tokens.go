package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/carevault/carevault/internal/domain/actor"
)

// Token uses distinguish short-lived access tokens from refresh tokens.
// A refresh token can only be exchanged at the refresh endpoint; it never
// authenticates a request directly.
const (
	TokenUseAccess  = "access"
	TokenUseRefresh = "refresh"
)

// Claims is the signed token payload.
type Claims struct {
	jwt.RegisteredClaims
	Role     string `json:"role"`
	TokenUse string `json:"use"`
}

// TokenIssuer signs and verifies HS256 tokens.
type TokenIssuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewTokenIssuer(secret string, accessTTL, refreshTTL time.Duration) *TokenIssuer {
	return &TokenIssuer{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// Issue signs a token for the actor with the given use. The issued-at claim
// is what staleness checks compare against the actor's credential-change
// timestamp, so it is always set.
func (t *TokenIssuer) Issue(a *actor.Actor, use string) (string, error) {
	if use != TokenUseAccess && use != TokenUseRefresh {
		return "", fmt.Errorf("unknown token use %q", use)
	}
	ttl := t.accessTTL
	if use == TokenUseRefresh {
		ttl = t.refreshTTL
	}
	now := t.now().UTC()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   a.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role:     string(a.Role),
		TokenUse: use,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a signed token, requiring the given use.
// It returns typed errors so callers can map them to responses and audit
// entries without string matching.
func (t *TokenIssuer) Verify(signed, expectedUse string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(signed, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return t.secret, nil
	}, jwt.WithTimeFunc(t.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredCredential
		}
		return nil, ErrInvalidCredential
	}
	if claims.TokenUse != expectedUse {
		return nil, ErrInvalidCredential
	}
	if claims.IssuedAt == nil {
		return nil, ErrInvalidCredential
	}
	if _, err := uuid.Parse(claims.Subject); err != nil {
		return nil, ErrInvalidCredential
	}
	return claims, nil
}

// SubjectID returns the claims subject as a UUID. Verify already validated
// the format.
func (c *Claims) SubjectID() uuid.UUID {
	id, _ := uuid.Parse(c.Subject)
	return id
}
