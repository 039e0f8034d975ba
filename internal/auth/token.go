package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	RoleFacilitator = "facilitator"
	RoleParticipant = "participant"
)

// Identity is what a verified credential resolves to.
type Identity struct {
	SessionID string `json:"sessionId"`
	Email     string `json:"email"`
	Role      string `json:"role"`
}

type Claims struct {
	SessionID string `json:"sessionId"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	jwt.RegisteredClaims
}

func (c Claims) Identity() Identity {
	return Identity{SessionID: c.SessionID, Email: c.Email, Role: c.Role}
}

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("expired token")
	ErrRevokedToken = errors.New("revoked token")
	// ErrUnknownCredential is what a Registry returns for a jti it does not
	// hold, whether it was never saved, expired or revoked.
	ErrUnknownCredential = errors.New("credential not found or expired")
)

// IssueToken signs a session credential (HS256) for one participant. Both
// time claims come from the caller so they share one clock.
func IssueToken(secret []byte, identity Identity, jti string, issuedAt, expiresAt time.Time) (string, error) {
	claims := Claims{
		SessionID: identity.SessionID,
		Email:     identity.Email,
		Role:      identity.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   identity.Email,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}

func ParseToken(secret []byte, token string) (Claims, error) {
	return ParseTokenAt(secret, token, time.Now())
}

// ParseTokenAt is ParseToken with expiry judged at now.
func ParseTokenAt(secret []byte, token string, now time.Time) (Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Claims{}, ErrInvalidToken
	}
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrExpiredToken
		}
		return Claims{}, ErrInvalidToken
	}
	if claims.SessionID == "" || claims.Email == "" || claims.ID == "" {
		return Claims{}, ErrInvalidToken
	}
	if claims.Role != RoleFacilitator && claims.Role != RoleParticipant {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}

// Registry tracks which issued credentials are still live.
type Registry interface {
	Lookup(ctx context.Context, jti string) (Identity, error)
}

// Gate validates opaque session credentials into identities. A nil registry
// means credentials are only checked for signature and expiry.
type Gate struct {
	secret   []byte
	registry Registry
}

func NewGate(secret []byte, registry Registry) *Gate {
	return &Gate{secret: secret, registry: registry}
}

func (g *Gate) Verify(ctx context.Context, credential string) (Identity, error) {
	claims, err := ParseToken(g.secret, credential)
	if err != nil {
		return Identity{}, err
	}
	if g.registry != nil {
		registered, err := g.registry.Lookup(ctx, claims.ID)
		if errors.Is(err, ErrUnknownCredential) {
			return Identity{}, ErrRevokedToken
		}
		if err != nil {
			return Identity{}, fmt.Errorf("check credential: %w", err)
		}
		if registered != claims.Identity() {
			return Identity{}, ErrInvalidToken
		}
	}
	return claims.Identity(), nil
}
