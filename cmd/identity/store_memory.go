package identity

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests and DB-less development mode.
// It mirrors PostgresStore semantics, including the email_norm uniqueness
// rule, but provides no durability.
type MemoryStore struct {
	mu      sync.Mutex
	byID    map[string]*Account
	byEmail map[string]string // email_norm -> id
}

// NewMemoryStore creates an empty in-memory credential store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[string]*Account),
		byEmail: make(map[string]string),
	}
}

func (s *MemoryStore) CreateAccount(_ context.Context, in CreateAccountInput) (Account, error) {
	const op = "identity.CreateAccount"

	norm := NormalizeEmail(in.Email)
	if norm == "" {
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

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byEmail[norm]; exists {
		return Account{}, ConflictError{Op: op, Field: "email"}
	}

	a := Account{
		ID:           id,
		Email:        in.Email,
		EmailNorm:    norm,
		PasswordHash: in.PasswordHash,
		Active:       false,
		CreatedAt:    now,
	}
	s.byID[id] = &a
	s.byEmail[norm] = id
	return a, nil
}

func (s *MemoryStore) GetByEmail(_ context.Context, email string) (Account, error) {
	const op = "identity.GetByEmail"

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byEmail[NormalizeEmail(email)]
	if !ok {
		return Account{}, NotFoundError{Op: op, Resource: "account"}
	}
	return snapshot(s.byID[id]), nil
}

func (s *MemoryStore) GetByID(_ context.Context, id string) (Account, error) {
	const op = "identity.GetByID"

	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.byID[id]
	if !ok {
		return Account{}, NotFoundError{Op: op, Resource: "account"}
	}
	return snapshot(a), nil
}

func (s *MemoryStore) Activate(_ context.Context, id string, _ time.Time) error {
	const op = "identity.Activate"

	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.byID[id]
	if !ok {
		return NotFoundError{Op: op, Resource: "account"}
	}
	a.Active = true
	return nil
}

func (s *MemoryStore) SetPassword(_ context.Context, id string, passwordHash string) error {
	const op = "identity.SetPassword"

	if passwordHash == "" {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "password hash is required"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.byID[id]
	if !ok {
		return NotFoundError{Op: op, Resource: "account"}
	}
	a.PasswordHash = passwordHash
	return nil
}

func (s *MemoryStore) UpdateProfile(_ context.Context, id string, upd ProfileUpdate) (Account, error) {
	const op = "identity.UpdateProfile"

	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.byID[id]
	if !ok {
		return Account{}, NotFoundError{Op: op, Resource: "account"}
	}
	if upd.FirstName != nil {
		v := *upd.FirstName
		a.FirstName = &v
	}
	if upd.LastName != nil {
		v := *upd.LastName
		a.LastName = &v
	}
	return snapshot(a), nil
}

func (s *MemoryStore) TouchLastLogin(_ context.Context, id string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a, ok := s.byID[id]; ok {
		t := now
		a.LastLogin = &t
	}
	return nil
}

func (s *MemoryStore) SetGoogleCredentials(_ context.Context, id string, creds GoogleCredentials) error {
	const op = "identity.SetGoogleCredentials"

	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.byID[id]
	if !ok {
		return NotFoundError{Op: op, Resource: "account"}
	}
	a.Google = cloneCreds(creds)
	return nil
}

func (s *MemoryStore) ClearGoogleCredentials(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a, ok := s.byID[id]; ok {
		a.Google = GoogleCredentials{}
	}
	return nil
}

// snapshot copies an account so callers cannot reach into store state
// through the credential pointers.
func snapshot(a *Account) Account {
	out := *a
	out.Google = cloneCreds(a.Google)
	if a.FirstName != nil {
		v := *a.FirstName
		out.FirstName = &v
	}
	if a.LastName != nil {
		v := *a.LastName
		out.LastName = &v
	}
	if a.LastLogin != nil {
		v := *a.LastLogin
		out.LastLogin = &v
	}
	return out
}

func cloneCreds(c GoogleCredentials) GoogleCredentials {
	var out GoogleCredentials
	if c.AccessToken != nil {
		v := *c.AccessToken
		out.AccessToken = &v
	}
	if c.RefreshToken != nil {
		v := *c.RefreshToken
		out.RefreshToken = &v
	}
	if c.Expiry != nil {
		v := *c.Expiry
		out.Expiry = &v
	}
	return out
}
