package authapi

import "time"

// Config controls auth API behavior and cookie scoping.
type Config struct {
	// BackendURL is the public base URL of this service, used to build
	// verification links. No trailing slash.
	BackendURL string

	// FrontendURL is the web client base URL, used for verify-email
	// redirects and reset links. No trailing slash.
	FrontendURL string

	AccessCookieName  string
	RefreshCookieName string

	// AccessCookiePath spans the whole API; RefreshCookiePath is
	// narrowed to the auth prefix so the refresh token only travels to
	// the endpoints that can use it.
	AccessCookiePath  string
	RefreshCookiePath string

	// CookieSecure should only be disabled for plain-HTTP local dev.
	// SameSite=None cookies are rejected by browsers without Secure.
	CookieSecure bool

	TrustProxy   bool
	MaxBodyBytes int64

	LoginMax    int
	LoginWindow time.Duration
}

// DefaultConfig returns the production cookie layout and limits.
func DefaultConfig() Config {
	return Config{
		AccessCookieName:  "access_token",
		RefreshCookieName: "refresh_token",
		AccessCookiePath:  "/",
		RefreshCookiePath: "/api/v1/users/",
		CookieSecure:      true,
		MaxBodyBytes:      1 << 20,
		LoginMax:          5,
		LoginWindow:       time.Minute,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.AccessCookieName == "" {
		c.AccessCookieName = d.AccessCookieName
	}
	if c.RefreshCookieName == "" {
		c.RefreshCookieName = d.RefreshCookieName
	}
	if c.AccessCookiePath == "" {
		c.AccessCookiePath = d.AccessCookiePath
	}
	if c.RefreshCookiePath == "" {
		c.RefreshCookiePath = d.RefreshCookiePath
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = d.MaxBodyBytes
	}
	if c.LoginMax <= 0 {
		c.LoginMax = d.LoginMax
	}
	if c.LoginWindow <= 0 {
		c.LoginWindow = d.LoginWindow
	}
	return c
}
