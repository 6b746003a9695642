package identity

import (
	"context"
	"time"
)

// Account is RepTrack's single principal type.
//
// Accounts are created inactive at registration and activated exactly
// once by a valid email-verification token. The Google credential
// bundle is mutated only by the calendar credential manager; the
// session subsystem never touches it.
type Account struct {
	ID        string
	Email     string
	EmailNorm string

	FirstName *string
	LastName  *string

	PasswordHash string
	Active       bool
	LastLogin    *time.Time

	Google GoogleCredentials

	CreatedAt time.Time
}

// GoogleCredentials is the third-party OAuth bundle embedded in the account.
// Either all three fields are present (a complete bundle) or the bundle is
// treated as absent; partially populated rows are never considered connected.
type GoogleCredentials struct {
	AccessToken  *string
	RefreshToken *string
	Expiry       *time.Time
}

// Present reports whether the bundle is complete.
func (g GoogleCredentials) Present() bool {
	return g.AccessToken != nil && g.RefreshToken != nil && g.Expiry != nil
}

// CreateAccountInput describes a registration request.
// PasswordHash must already be hashed; the store never sees plaintext.
type CreateAccountInput struct {
	Email        string
	PasswordHash string
	Now          time.Time
}

// ProfileUpdate carries a partial profile change. Nil fields are left as-is.
type ProfileUpdate struct {
	FirstName *string
	LastName  *string
}

// Store is the credential-store persistence boundary.
type Store interface {
	CreateAccount(ctx context.Context, in CreateAccountInput) (Account, error)

	// GetByEmail resolves an account by case-insensitive email match.
	GetByEmail(ctx context.Context, email string) (Account, error)
	GetByID(ctx context.Context, id string) (Account, error)

	// Activate flips the active flag. Idempotent at the store level; the
	// action-token fingerprint is what makes activation single-shot.
	Activate(ctx context.Context, id string, now time.Time) error

	SetPassword(ctx context.Context, id string, passwordHash string) error
	UpdateProfile(ctx context.Context, id string, upd ProfileUpdate) (Account, error)

	// TouchLastLogin is best-effort bookkeeping; callers must not abort
	// a login when it fails.
	TouchLastLogin(ctx context.Context, id string, now time.Time) error

	// SetGoogleCredentials persists a complete bundle; ClearGoogleCredentials
	// nulls all three fields unconditionally.
	SetGoogleCredentials(ctx context.Context, id string, creds GoogleCredentials) error
	ClearGoogleCredentials(ctx context.Context, id string) error
}
