package ledger

import (
	"context"
	"time"
)

// Entry is one revoked refresh grant.
type Entry struct {
	JTI       string
	AccountID string
	ExpiresAt time.Time
	RevokedAt time.Time
}

// Store is the revocation persistence boundary.
type Store interface {
	// Add records a revoked jti. Adding the same jti twice is a no-op;
	// logout must stay idempotent.
	Add(ctx context.Context, e Entry) error

	// Contains reports whether jti has been revoked.
	Contains(ctx context.Context, jti string) (bool, error)
}
