package token

import (
	"crypto/rand"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
)

const (
	// TypeAccess and TypeRefresh are the values of the token_type claim.
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

// Claims is the session token payload.
type Claims struct {
	jwt.RegisteredClaims

	TokenType string `json:"token_type"`
}

// AccountID returns the subject claim.
func (c Claims) AccountID() string { return c.Subject }

// Manager issues and verifies session tokens.
type Manager struct {
	cfg Config
}

// NewManager validates cfg and builds a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Manager{cfg: cfg}, nil
}

// AccessTTL reports the configured access-token lifetime. The web layer
// uses it to keep cookie max-age in step with token expiry.
func (m *Manager) AccessTTL() time.Duration { return m.cfg.AccessTTL }

// RefreshTTL reports the configured refresh-token lifetime.
func (m *Manager) RefreshTTL() time.Duration { return m.cfg.RefreshTTL }

// IssueAccess signs a new access token for accountID.
func (m *Manager) IssueAccess(accountID string, now time.Time) (string, time.Time, error) {
	exp := now.Add(m.cfg.AccessTTL)
	signed, err := m.sign(Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.cfg.Issuer,
			Subject:   accountID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		TokenType: TypeAccess,
	})
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// IssueRefresh signs a new refresh token for accountID. The returned
// jti identifies this grant in the revocation ledger.
func (m *Manager) IssueRefresh(accountID string, now time.Time) (signed, jti string, exp time.Time, err error) {
	jti = ulid.MustNew(ulid.Timestamp(now), rand.Reader).String()
	exp = now.Add(m.cfg.RefreshTTL)
	signed, err = m.sign(Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.cfg.Issuer,
			Subject:   accountID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        jti,
		},
		TokenType: TypeRefresh,
	})
	if err != nil {
		return "", "", time.Time{}, err
	}
	return signed, jti, exp, nil
}

// VerifyAccess parses and validates an access token.
func (m *Manager) VerifyAccess(raw string, now time.Time) (Claims, error) {
	return m.verify(raw, TypeAccess, now)
}

// VerifyRefresh parses and validates a refresh token. Revocation is the
// ledger's concern; a verified token may still have been revoked.
func (m *Manager) VerifyRefresh(raw string, now time.Time) (Claims, error) {
	c, err := m.verify(raw, TypeRefresh, now)
	if err != nil {
		return Claims{}, err
	}
	if c.ID == "" {
		return Claims{}, ErrInvalidToken
	}
	return c, nil
}

func (m *Manager) sign(c Claims) (string, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(m.cfg.Secret)
	if err != nil {
		return "", ErrConfig
	}
	return signed, nil
}

func (m *Manager) verify(raw, wantType string, now time.Time) (Claims, error) {
	var claims Claims

	// A fresh parser per call carries the verification clock.
	p := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(m.cfg.Leeway),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)

	parsed, err := p.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		return m.cfg.Secret, nil
	})
	if err != nil || !parsed.Valid {
		return Claims{}, ErrInvalidToken
	}
	if claims.TokenType != wantType || claims.Subject == "" {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}
