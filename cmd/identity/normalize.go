package identity

import "strings"

// NormalizeEmail performs case-insensitive canonicalization.
// No two accounts may share a normalized email; the store enforces the
// uniqueness on this form, never on the raw address.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
