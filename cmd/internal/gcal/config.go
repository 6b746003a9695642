package gcal

import (
	"time"

	"golang.org/x/oauth2"
)

// Config describes the Google OAuth application and calendar API
// endpoints. The URLs are overridable so tests can stand in for Google.
type Config struct {
	ClientID     string
	ClientSecret string

	// RedirectURL is this service's oauth2callback endpoint as
	// registered with Google.
	RedirectURL string

	// FrontendProfileURL is where the browser lands after a completed
	// authorization.
	FrontendProfileURL string

	Scopes []string

	AuthURL   string
	TokenURL  string
	RevokeURL string

	// CalendarAPIBase fronts the Calendar REST API. No trailing slash.
	CalendarAPIBase string

	// HTTPTimeout bounds every call to Google; the fallback on timeout
	// is "clear bundle, report disconnected", never an unbounded wait.
	HTTPTimeout time.Duration

	// StateTTL bounds how long a consent round trip may take.
	StateTTL time.Duration
}

// DefaultConfig points at the real Google endpoints.
func DefaultConfig() Config {
	return Config{
		Scopes: []string{
			"https://www.googleapis.com/auth/calendar.events",
			"https://www.googleapis.com/auth/calendar.readonly",
		},
		AuthURL:         "https://accounts.google.com/o/oauth2/auth",
		TokenURL:        "https://oauth2.googleapis.com/token",
		RevokeURL:       "https://oauth2.googleapis.com/revoke",
		CalendarAPIBase: "https://www.googleapis.com/calendar/v3",
		HTTPTimeout:     10 * time.Second,
		StateTTL:        10 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if len(c.Scopes) == 0 {
		c.Scopes = d.Scopes
	}
	if c.AuthURL == "" {
		c.AuthURL = d.AuthURL
	}
	if c.TokenURL == "" {
		c.TokenURL = d.TokenURL
	}
	if c.RevokeURL == "" {
		c.RevokeURL = d.RevokeURL
	}
	if c.CalendarAPIBase == "" {
		c.CalendarAPIBase = d.CalendarAPIBase
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = d.HTTPTimeout
	}
	if c.StateTTL <= 0 {
		c.StateTTL = d.StateTTL
	}
	return c
}

func (c Config) oauth() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		RedirectURL:  c.RedirectURL,
		Scopes:       c.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  c.AuthURL,
			TokenURL: c.TokenURL,
		},
	}
}
