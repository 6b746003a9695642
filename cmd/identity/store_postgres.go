package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
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
		return nil, fmt.Errorf("identity: nil pool")
	}
	return &PostgresStore{pool: pool}, nil
}

const accountColumns = `
	id, email, email_norm, first_name, last_name,
	password_hash, active, last_login,
	google_access_token, google_refresh_token, google_token_expiry,
	created_at`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(
		&a.ID,
		&a.Email,
		&a.EmailNorm,
		&a.FirstName,
		&a.LastName,
		&a.PasswordHash,
		&a.Active,
		&a.LastLogin,
		&a.Google.AccessToken,
		&a.Google.RefreshToken,
		&a.Google.Expiry,
		&a.CreatedAt,
	)
	return a, err
}

// CreateAccount inserts a new inactive account.
func (s *PostgresStore) CreateAccount(ctx context.Context, in CreateAccountInput) (Account, error) {
	const op = "identity.CreateAccount"

	email := in.Email
	if NormalizeEmail(email) == "" {
		return Account{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "email is required"}
	}
	if in.PasswordHash == "" {
		return Account{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "password hash is required"}
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	id, err := NewULID(now)
	if err != nil {
		return Account{}, err
	}

	norm := NormalizeEmail(email)
	_, err = s.pool.Exec(ctx, `
		INSERT INTO accounts (
			id, email, email_norm, password_hash, active, created_at
		) VALUES ($1, $2, $3, $4, FALSE, $5)
	`, id, email, norm, in.PasswordHash, now)
	if err != nil {
		if pgIsUniqueViolation(err) {
			return Account{}, ConflictError{Op: op, Field: "email"}
		}
		return Account{}, err
	}

	return Account{
		ID:           id,
		Email:        email,
		EmailNorm:    norm,
		PasswordHash: in.PasswordHash,
		Active:       false,
		CreatedAt:    now,
	}, nil
}

// GetByEmail resolves an account by case-insensitive email match.
func (s *PostgresStore) GetByEmail(ctx context.Context, email string) (Account, error) {
	const op = "identity.GetByEmail"

	a, err := scanAccount(s.pool.QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE email_norm = $1
	`, NormalizeEmail(email)))
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, NotFoundError{Op: op, Resource: "account"}
	}
	if err != nil {
		return Account{}, err
	}
	return a, nil
}

// GetByID loads an account by its ULID.
func (s *PostgresStore) GetByID(ctx context.Context, id string) (Account, error) {
	const op = "identity.GetByID"

	a, err := scanAccount(s.pool.QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE id = $1
	`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, NotFoundError{Op: op, Resource: "account"}
	}
	if err != nil {
		return Account{}, err
	}
	return a, nil
}

// Activate flips the active flag (idempotent).
func (s *PostgresStore) Activate(ctx context.Context, id string, now time.Time) error {
	const op = "identity.Activate"

	tag, err := s.pool.Exec(ctx, `
		UPDATE accounts SET active = TRUE WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return NotFoundError{Op: op, Resource: "account"}
	}
	return nil
}

// SetPassword replaces the stored password hash.
func (s *PostgresStore) SetPassword(ctx context.Context, id string, passwordHash string) error {
	const op = "identity.SetPassword"

	if passwordHash == "" {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "password hash is required"}
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE accounts SET password_hash = $2 WHERE id = $1
	`, id, passwordHash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return NotFoundError{Op: op, Resource: "account"}
	}
	return nil
}

// UpdateProfile applies a partial profile change and returns the fresh row.
func (s *PostgresStore) UpdateProfile(ctx context.Context, id string, upd ProfileUpdate) (Account, error) {
	const op = "identity.UpdateProfile"

	a, err := scanAccount(s.pool.QueryRow(ctx, `
		UPDATE accounts
		SET first_name = COALESCE($2, first_name),
		    last_name  = COALESCE($3, last_name)
		WHERE id = $1
		RETURNING `+accountColumns+`
	`, id, upd.FirstName, upd.LastName))
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, NotFoundError{Op: op, Resource: "account"}
	}
	if err != nil {
		return Account{}, err
	}
	return a, nil
}

// TouchLastLogin records a successful login timestamp.
func (s *PostgresStore) TouchLastLogin(ctx context.Context, id string, now time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE accounts SET last_login = $2 WHERE id = $1
	`, id, now)
	return err
}

// SetGoogleCredentials persists a complete OAuth bundle.
func (s *PostgresStore) SetGoogleCredentials(ctx context.Context, id string, creds GoogleCredentials) error {
	const op = "identity.SetGoogleCredentials"

	tag, err := s.pool.Exec(ctx, `
		UPDATE accounts
		SET google_access_token  = $2,
		    google_refresh_token = $3,
		    google_token_expiry  = $4
		WHERE id = $1
	`, id, creds.AccessToken, creds.RefreshToken, creds.Expiry)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return NotFoundError{Op: op, Resource: "account"}
	}
	return nil
}

// ClearGoogleCredentials nulls the entire bundle (idempotent).
func (s *PostgresStore) ClearGoogleCredentials(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE accounts
		SET google_access_token  = NULL,
		    google_refresh_token = NULL,
		    google_token_expiry  = NULL
		WHERE id = $1
	`, id)
	return err
}

func pgIsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23505" // unique_violation
}
