package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestIssueAndParseToken(t *testing.T) {
	secret := []byte("secret")
	issued, err := IssueToken(secret, Identity{
		SessionID: "s1",
		Email:     "avery@example.com",
		Role:      RoleFacilitator,
	}, "jti-1", time.Now(), time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	claims, err := ParseToken(secret, issued)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if claims.SessionID != "s1" || claims.Email != "avery@example.com" || claims.Role != RoleFacilitator {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.ID != "jti-1" {
		t.Fatalf("jti = %q, want jti-1", claims.ID)
	}
	if claims.Identity().Role != RoleFacilitator {
		t.Fatal("expected facilitator identity")
	}
}

func TestTokenUsesCallerClock(t *testing.T) {
	secret := []byte("secret")
	issuedAt := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	expiresAt := issuedAt.Add(168 * time.Hour)
	issued, err := IssueToken(secret, Identity{SessionID: "s1", Email: "a@b.c", Role: RoleParticipant}, "jti-1", issuedAt, expiresAt)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}

	claims, err := ParseTokenAt(secret, issued, issuedAt.Add(time.Hour))
	if err != nil {
		t.Fatalf("ParseTokenAt() error = %v", err)
	}
	if !claims.IssuedAt.Time.Equal(issuedAt) || !claims.ExpiresAt.Time.Equal(expiresAt) {
		t.Fatalf("iat = %v, exp = %v", claims.IssuedAt.Time, claims.ExpiresAt.Time)
	}
	if _, err := ParseTokenAt(secret, issued, expiresAt.Add(time.Second)); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("ParseTokenAt() after expiry error = %v, want ErrExpiredToken", err)
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	secret := []byte("secret")
	issued, err := IssueToken(secret, Identity{SessionID: "s1", Email: "a@b.c", Role: RoleParticipant}, "jti-1", time.Now().Add(-time.Hour), time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	_, err = ParseToken(secret, issued)
	if !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("ParseToken() error = %v, want ErrExpiredToken", err)
	}
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	issued, err := IssueToken([]byte("secret"), Identity{SessionID: "s1", Email: "a@b.c", Role: RoleParticipant}, "jti-1", time.Now(), time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	if _, err := ParseToken([]byte("other"), issued); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("ParseToken() error = %v, want ErrInvalidToken", err)
	}
}

func TestParseTokenRejectsGarbageAndUnknownRole(t *testing.T) {
	secret := []byte("secret")
	if _, err := ParseToken(secret, "not-a-token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("ParseToken(garbage) error = %v", err)
	}
	if _, err := ParseToken(secret, "   "); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("ParseToken(blank) error = %v", err)
	}

	claims := Claims{
		SessionID: "s1",
		Email:     "a@b.c",
		Role:      "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        "jti-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := ParseToken(secret, signed); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("ParseToken(unknown role) error = %v, want ErrInvalidToken", err)
	}
}

type fakeRegistry struct {
	issued map[string]Identity
	err    error
}

func (f fakeRegistry) Lookup(_ context.Context, jti string) (Identity, error) {
	if f.err != nil {
		return Identity{}, f.err
	}
	identity, ok := f.issued[jti]
	if !ok {
		return Identity{}, ErrUnknownCredential
	}
	return identity, nil
}

func TestGateVerify(t *testing.T) {
	secret := []byte("secret")
	issued, err := IssueToken(secret, Identity{SessionID: "s1", Email: "a@b.c", Role: RoleParticipant}, "jti-1", time.Now(), time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	ctx := context.Background()

	identity, err := NewGate(secret, nil).Verify(ctx, issued)
	if err != nil {
		t.Fatalf("Verify() without registry error = %v", err)
	}
	if identity.SessionID != "s1" || identity.Email != "a@b.c" {
		t.Fatalf("unexpected identity: %+v", identity)
	}

	registered := Identity{SessionID: "s1", Email: "a@b.c", Role: RoleParticipant}
	if _, err := NewGate(secret, fakeRegistry{issued: map[string]Identity{"jti-1": registered}}).Verify(ctx, issued); err != nil {
		t.Fatalf("Verify() with active credential error = %v", err)
	}
	if _, err := NewGate(secret, fakeRegistry{issued: map[string]Identity{}}).Verify(ctx, issued); !errors.Is(err, ErrRevokedToken) {
		t.Fatalf("Verify() revoked error = %v, want ErrRevokedToken", err)
	}
	boom := errors.New("redis down")
	if _, err := NewGate(secret, fakeRegistry{err: boom}).Verify(ctx, issued); !errors.Is(err, boom) {
		t.Fatalf("Verify() registry failure error = %v, want wrapped %v", err, boom)
	}
	other := Identity{SessionID: "s1", Email: "a@b.c", Role: RoleFacilitator}
	if _, err := NewGate(secret, fakeRegistry{issued: map[string]Identity{"jti-1": other}}).Verify(ctx, issued); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("Verify() mismatched registry identity error = %v, want ErrInvalidToken", err)
	}
}
