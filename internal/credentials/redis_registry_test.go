package credentials

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"retro/api/internal/auth"
)

func setupTestRedis(t *testing.T) (*RedisRegistry, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	registry, err := NewRedisRegistry("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("failed to create redis registry: %v", err)
	}
	t.Cleanup(func() { _ = registry.Close() })
	return registry, s
}

func TestNewRedisRegistry(t *testing.T) {
	registry, _ := setupTestRedis(t)
	if err := registry.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestNewRedisRegistryRejectsBadURL(t *testing.T) {
	if _, err := NewRedisRegistry("not a url"); err == nil {
		t.Fatal("expected error for invalid redis url")
	}
}

func TestSaveAndLookupCredential(t *testing.T) {
	registry, _ := setupTestRedis(t)
	ctx := context.Background()
	identity := auth.Identity{SessionID: "s1", Email: "avery@example.com", Role: auth.RoleFacilitator}

	if err := registry.Save(ctx, "jti-1", identity, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := registry.Lookup(ctx, "jti-1")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if got != identity {
		t.Errorf("Lookup = %+v, want %+v", got, identity)
	}
}

func TestSaveRejectsExpired(t *testing.T) {
	registry, _ := setupTestRedis(t)
	err := registry.Save(context.Background(), "jti-1", auth.Identity{SessionID: "s1"}, time.Now().Add(-time.Second))
	if err == nil {
		t.Fatal("expected error for already expired credential")
	}
}

func TestCredentialExpires(t *testing.T) {
	registry, s := setupTestRedis(t)
	ctx := context.Background()

	if err := registry.Save(ctx, "jti-1", auth.Identity{SessionID: "s1", Email: "a@b.c"}, time.Now().Add(time.Minute)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	s.FastForward(2 * time.Minute)

	if _, err := registry.Lookup(ctx, "jti-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Lookup error = %v, want ErrNotFound", err)
	}
}

func TestRevokeSessionIsolation(t *testing.T) {
	registry, _ := setupTestRedis(t)
	ctx := context.Background()
	expiresAt := time.Now().Add(time.Hour)

	for _, tc := range []struct {
		jti     string
		session string
	}{
		{jti: "a1", session: "s1"},
		{jti: "a2", session: "s1"},
		{jti: "b1", session: "s2"},
	} {
		if err := registry.Save(ctx, tc.jti, auth.Identity{SessionID: tc.session, Email: tc.jti + "@example.com"}, expiresAt); err != nil {
			t.Fatalf("Save(%s) failed: %v", tc.jti, err)
		}
	}

	removed, err := registry.RevokeSession(ctx, "s1")
	if err != nil {
		t.Fatalf("RevokeSession failed: %v", err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}

	for _, jti := range []string{"a1", "a2"} {
		if _, err := registry.Lookup(ctx, jti); !errors.Is(err, ErrNotFound) {
			t.Errorf("Lookup(%s) error = %v, want ErrNotFound", jti, err)
		}
	}
	if _, err := registry.Lookup(ctx, "b1"); err != nil {
		t.Errorf("expected credential of another session to survive, Lookup(b1) error = %v", err)
	}
}

func TestRevokeUnknownSession(t *testing.T) {
	registry, _ := setupTestRedis(t)
	removed, err := registry.RevokeSession(context.Background(), "missing")
	if err != nil {
		t.Fatalf("RevokeSession failed: %v", err)
	}
	if removed != 0 {
		t.Errorf("removed = %d, want 0", removed)
	}
}

func TestRegistryBacksGate(t *testing.T) {
	registry, _ := setupTestRedis(t)
	ctx := context.Background()
	secret := []byte("secret")
	identity := auth.Identity{SessionID: "s1", Email: "a@b.c", Role: auth.RoleParticipant}
	expiresAt := time.Now().Add(time.Hour)

	token, err := auth.IssueToken(secret, identity, "jti-1", time.Now(), expiresAt)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}
	if err := registry.Save(ctx, "jti-1", identity, expiresAt); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	gate := auth.NewGate(secret, registry)
	if _, err := gate.Verify(ctx, token); err != nil {
		t.Fatalf("Verify before revoke failed: %v", err)
	}
	if _, err := registry.RevokeSession(ctx, "s1"); err != nil {
		t.Fatalf("RevokeSession failed: %v", err)
	}
	if _, err := gate.Verify(ctx, token); !errors.Is(err, auth.ErrRevokedToken) {
		t.Fatalf("Verify after revoke error = %v, want ErrRevokedToken", err)
	}
}
