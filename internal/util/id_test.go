package util

import (
	"strings"
	"testing"
)

func TestNewIDPrefix(t *testing.T) {
	id := NewID("note")
	if !strings.HasPrefix(id, "note_") {
		t.Fatalf("NewID() = %q, want note_ prefix", id)
	}
	if len(id) != len("note_")+32 {
		t.Fatalf("NewID() length = %d, want %d", len(id), len("note_")+32)
	}
	if NewID("note") == id {
		t.Fatal("expected distinct ids")
	}
}

func TestShortID(t *testing.T) {
	if got := len(ShortID(10)); got != 10 {
		t.Fatalf("len(ShortID(10)) = %d, want 10", got)
	}
	if got := len(ShortID(0)); got != 32 {
		t.Fatalf("len(ShortID(0)) = %d, want 32", got)
	}
}
