package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Addr != ":3000" {
		t.Fatalf("Addr = %q, want :3000", cfg.Addr)
	}
	if cfg.CredentialTTL != 7*24*time.Hour {
		t.Fatalf("CredentialTTL = %v, want 168h", cfg.CredentialTTL)
	}
	if cfg.CORSOrigin != cfg.ClientURL {
		t.Fatalf("CORSOrigin = %q, want fallback to ClientURL %q", cfg.CORSOrigin, cfg.ClientURL)
	}
	if cfg.SMTPHost != "" {
		t.Fatal("expected SMTP to be unconfigured by default")
	}
}

func TestLoadTrimsClientURL(t *testing.T) {
	t.Setenv("RETRO_CLIENT_URL", " https://retro.example.com/ ")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ClientURL != "https://retro.example.com" {
		t.Fatalf("ClientURL = %q", cfg.ClientURL)
	}
}

func TestLoadRejectsInvalidDuration(t *testing.T) {
	t.Setenv("RETRO_CREDENTIAL_TTL", "soon")
	_, err := Load()
	if err == nil {
		t.Fatal("expected Load() to fail for invalid duration")
	}
	if !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("error = %v, want parse env prefix", err)
	}
}

func TestLoadRejectsNonPositiveTTL(t *testing.T) {
	t.Setenv("RETRO_CREDENTIAL_TTL", "0s")
	if _, err := Load(); err == nil {
		t.Fatal("expected Load() to fail for zero TTL")
	}
}
