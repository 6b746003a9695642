package app

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
)

// minSecretBytes is the floor for the HMAC/JWT signing key.
// We measure bytes, not runes, because the key is used as raw bytes.
const minSecretBytes = 32

// ValidateSecurityConfig enforces the startup security policy.
//
// A configured database means a real deployment: the signing key must be
// present and long enough, and cookies must stay Secure unless explicitly
// overridden. In store-less dev mode a missing key is tolerated; New
// generates an ephemeral one.
func ValidateSecurityConfig(cfg Config) error {
	if cfg.SecretKey != "" && len(cfg.SecretKey) < minSecretBytes {
		return fmt.Errorf("security policy: REPTRACK_SECRET_KEY is too short (min %d bytes)", minSecretBytes)
	}
	if cfg.DatabaseURL != "" && cfg.SecretKey == "" {
		return errors.New("security policy: REPTRACK_SECRET_KEY is required when a database is configured")
	}
	return nil
}

// ephemeralSecret mints a random signing key for dev runs.
// Sessions and pending verification links die with the process.
func ephemeralSecret() (string, error) {
	buf := make([]byte, minSecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawStdEncoding.EncodeToString(buf), nil
}
