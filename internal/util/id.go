package util

import (
	"strings"

	"github.com/google/uuid"
)

// NewID returns a random identifier, optionally namespaced as "<prefix>_<hex>".
func NewID(prefix string) string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	if prefix == "" {
		return raw
	}
	return prefix + "_" + raw
}

// ShortID returns the first n hex characters of a random identifier. Session ids
// travel in magic links, so they are kept short.
func ShortID(n int) string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	if n <= 0 || n > len(raw) {
		return raw
	}
	return raw[:n]
}
