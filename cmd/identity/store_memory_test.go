package identity

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStore_EmailResolutionIsCaseInsensitive(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ctx := context.Background()

	created, err := s.CreateAccount(ctx, CreateAccountInput{
		Email:        "Lifter@Example.COM",
		PasswordHash: "x",
		Now:          time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	if created.Email != "Lifter@Example.COM" {
		t.Fatalf("original email casing must be preserved, got %q", created.Email)
	}
	if created.EmailNorm != "lifter@example.com" {
		t.Fatalf("email_norm not folded: %q", created.EmailNorm)
	}

	got, err := s.GetByEmail(ctx, "  LIFTER@example.com ")
	if err != nil {
		t.Fatalf("get by email: %v", err)
	}
	if got.ID != created.ID {
		t.Fatalf("resolved wrong account: got %s want %s", got.ID, created.ID)
	}
}

func TestMemoryStore_DuplicateEmailConflictsAcrossCasing(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ctx := context.Background()

	if _, err := s.CreateAccount(ctx, CreateAccountInput{Email: "dup@example.com", PasswordHash: "x"}); err != nil {
		t.Fatalf("create account: %v", err)
	}

	_, err := s.CreateAccount(ctx, CreateAccountInput{Email: "DUP@EXAMPLE.COM", PasswordHash: "x"})
	if err == nil {
		t.Fatalf("expected conflict, got nil")
	}
	if !IsConflict(err) {
		t.Fatalf("expected conflict error, got: %v", err)
	}
}

func TestMemoryStore_ActivateAndSetPassword(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ctx := context.Background()

	a, err := s.CreateAccount(ctx, CreateAccountInput{Email: "a@example.com", PasswordHash: "old"})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	if a.Active {
		t.Fatalf("new account must start inactive")
	}

	if err := s.Activate(ctx, a.ID, time.Now().UTC()); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if err := s.SetPassword(ctx, a.ID, "new"); err != nil {
		t.Fatalf("set password: %v", err)
	}

	got, err := s.GetByID(ctx, a.ID)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if !got.Active {
		t.Fatalf("expected active account")
	}
	if got.PasswordHash != "new" {
		t.Fatalf("password hash not replaced: %q", got.PasswordHash)
	}

	if err := s.Activate(ctx, "01UNKNOWN", time.Now().UTC()); !IsNotFound(err) {
		t.Fatalf("expected not-found for unknown id, got: %v", err)
	}
}

func TestMemoryStore_UpdateProfilePartial(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ctx := context.Background()

	a, err := s.CreateAccount(ctx, CreateAccountInput{Email: "p@example.com", PasswordHash: "x"})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}

	first := "Ada"
	upd, err := s.UpdateProfile(ctx, a.ID, ProfileUpdate{FirstName: &first})
	if err != nil {
		t.Fatalf("update profile: %v", err)
	}
	if upd.FirstName == nil || *upd.FirstName != "Ada" {
		t.Fatalf("first name not applied: %+v", upd.FirstName)
	}
	if upd.LastName != nil {
		t.Fatalf("last name must remain unset")
	}

	last := "Lovelace"
	upd, err = s.UpdateProfile(ctx, a.ID, ProfileUpdate{LastName: &last})
	if err != nil {
		t.Fatalf("update profile: %v", err)
	}
	if upd.FirstName == nil || *upd.FirstName != "Ada" {
		t.Fatalf("first name lost on partial update")
	}
	if upd.LastName == nil || *upd.LastName != "Lovelace" {
		t.Fatalf("last name not applied: %+v", upd.LastName)
	}
}

func TestMemoryStore_GoogleBundleRoundTrip(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ctx := context.Background()

	a, err := s.CreateAccount(ctx, CreateAccountInput{Email: "g@example.com", PasswordHash: "x"})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	if a.Google.Present() {
		t.Fatalf("new account must not be connected")
	}

	access, refresh := "access", "refresh"
	expiry := time.Now().UTC().Add(time.Hour)
	if err := s.SetGoogleCredentials(ctx, a.ID, GoogleCredentials{
		AccessToken:  &access,
		RefreshToken: &refresh,
		Expiry:       &expiry,
	}); err != nil {
		t.Fatalf("set google credentials: %v", err)
	}

	got, err := s.GetByID(ctx, a.ID)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if !got.Google.Present() {
		t.Fatalf("expected complete bundle")
	}

	// Mutating the returned copy must not leak into the store.
	*got.Google.AccessToken = "tampered"
	again, err := s.GetByID(ctx, a.ID)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if *again.Google.AccessToken != "access" {
		t.Fatalf("store leaked internal pointer")
	}

	if err := s.ClearGoogleCredentials(ctx, a.ID); err != nil {
		t.Fatalf("clear google credentials: %v", err)
	}
	got, err = s.GetByID(ctx, a.ID)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if got.Google.AccessToken != nil || got.Google.RefreshToken != nil || got.Google.Expiry != nil {
		t.Fatalf("bundle not fully cleared: %+v", got.Google)
	}
}

func TestMemoryStore_TouchLastLogin(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ctx := context.Background()

	a, err := s.CreateAccount(ctx, CreateAccountInput{Email: "t@example.com", PasswordHash: "x"})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	if a.LastLogin != nil {
		t.Fatalf("last login must start nil")
	}

	now := time.Now().UTC()
	if err := s.TouchLastLogin(ctx, a.ID, now); err != nil {
		t.Fatalf("touch last login: %v", err)
	}
	got, err := s.GetByID(ctx, a.ID)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if got.LastLogin == nil || !got.LastLogin.Equal(now) {
		t.Fatalf("last login not recorded: %+v", got.LastLogin)
	}
}
