package token

import "time"

// Config defines all runtime configuration for the token subsystem.
//
// The signing secret is shared by both token kinds; the type claim is
// what keeps an access token from being replayed as a refresh token.
type Config struct {
	// Issuer is the value set in the "iss" claim.
	Issuer string

	// Secret is the HS256 signing key. At least 32 bytes.
	Secret []byte

	// AccessTTL defines the lifetime of access tokens.
	AccessTTL time.Duration

	// RefreshTTL defines the lifetime of refresh tokens.
	RefreshTTL time.Duration

	// Leeway is the allowed clock skew during validation.
	Leeway time.Duration
}

// DefaultConfig returns token defaults matching the cookie lifetimes
// the web layer advertises.
func DefaultConfig() Config {
	return Config{
		Issuer:     "reptrack",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 24 * time.Hour,
		Leeway:     30 * time.Second,
	}
}

func (c Config) validate() error {
	if len(c.Secret) < 32 {
		return ErrConfig
	}
	if c.Issuer == "" || c.AccessTTL <= 0 || c.RefreshTTL <= 0 || c.Leeway < 0 {
		return ErrConfig
	}
	// A refresh token that outlives its access token is the whole point.
	if c.RefreshTTL < c.AccessTTL {
		return ErrConfig
	}
	return nil
}
