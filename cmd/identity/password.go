package identity

import (
	"errors"

	"reptrack/cmd/security/password"
)

// hashCfg is the canonical hashing configuration. It is immutable for the
// process lifetime; parameter changes roll out via new hashes only.
var hashCfg = password.DefaultConfig()

// HashPassword returns a PHC-style Argon2id hash of the plaintext.
func HashPassword(plain string) (string, error) {
	enc, err := hashCfg.Hash(plain)
	if err != nil {
		switch {
		case errors.Is(err, password.ErrPasswordTooShort):
			return "", OpError{Op: "identity.HashPassword", Kind: ErrInvalidInput, Msg: "password too short"}
		case errors.Is(err, password.ErrPasswordTooLong):
			return "", OpError{Op: "identity.HashPassword", Kind: ErrInvalidInput, Msg: "password too long"}
		default:
			return "", err
		}
	}
	return enc, nil
}

// VerifyPassword checks a plaintext against a stored hash.
// A malformed stored hash reports as a mismatch, not an error, so login
// responses stay uniform.
func VerifyPassword(plain, encoded string) bool {
	ok, err := hashCfg.Verify(encoded, plain)
	if err != nil {
		return false
	}
	return ok
}

// MinPasswordLength is the registration/reset policy baseline.
func MinPasswordLength() int { return hashCfg.Policy.MinLength }
