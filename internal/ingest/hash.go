package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// normalizeForHash collapses whitespace and lowercases content so refresh
// comparisons are stable across trivial markup churn.
func normalizeForHash(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	fields := strings.Fields(s)
	return strings.ToLower(strings.Join(fields, " "))
}

// ContentHash computes a SHA-256 hash for the normalised content.
func ContentHash(content string) string {
	norm := normalizeForHash(content)
	sum := sha256.Sum256([]byte(norm))
	return hex.EncodeToString(sum[:])
}
