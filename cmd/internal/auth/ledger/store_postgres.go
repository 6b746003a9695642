package ledger

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store over PostgreSQL.
//
// The pgx pool is owned by the caller; this store must NOT close it.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("ledger: nil pool")
	}
	return &PostgresStore{pool: pool}, nil
}

// Add inserts a revoked jti. ON CONFLICT DO NOTHING keeps revocation
// idempotent under concurrent logout and refresh.
func (s *PostgresStore) Add(ctx context.Context, e Entry) error {
	if e.JTI == "" {
		return fmt.Errorf("ledger: empty jti")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO revoked_tokens (jti, account_id, expires_at, revoked_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (jti) DO NOTHING`,
		e.JTI, e.AccountID, e.ExpiresAt, e.RevokedAt,
	)
	if err != nil {
		return fmt.Errorf("ledger: add: %w", err)
	}
	return nil
}

// Contains reports whether jti appears in the ledger.
func (s *PostgresStore) Contains(ctx context.Context, jti string) (bool, error) {
	var found bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM revoked_tokens WHERE jti = $1)`,
		jti,
	).Scan(&found)
	if err != nil {
		return false, fmt.Errorf("ledger: contains: %w", err)
	}
	return found, nil
}

// Prune deletes entries whose tokens have expired on their own.
func (s *PostgresStore) Prune(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM revoked_tokens WHERE expires_at < now()`)
	if err != nil {
		return 0, fmt.Errorf("ledger: prune: %w", err)
	}
	return tag.RowsAffected(), nil
}
