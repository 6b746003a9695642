package actiontoken

import (
	"errors"
	"testing"
	"time"

	"reptrack/cmd/identity"
)

func testCodec(t *testing.T) *Codec {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Secret = []byte("0123456789abcdef0123456789abcdef")
	c, err := NewCodec(cfg)
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	return c
}

func testAccount() identity.Account {
	return identity.Account{
		ID:           "01ACCOUNT",
		PasswordHash: "$argon2id$v=19$m=65536,t=3,p=2$salt$hash",
		Active:       false,
	}
}

func TestNewCodec_RejectsBadConfig(t *testing.T) {
	t.Parallel()

	good := DefaultConfig()
	good.Secret = []byte("0123456789abcdef0123456789abcdef")

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"short secret", func(c *Config) { c.Secret = []byte("short") }},
		{"zero bucket", func(c *Config) { c.BucketSize = 0 }},
		{"zero window", func(c *Config) { c.Window = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := good
			tc.mutate(&cfg)
			if _, err := NewCodec(cfg); !errors.Is(err, ErrConfig) {
				t.Fatalf("expected ErrConfig, got %v", err)
			}
		})
	}
}

func TestVerificationTokenRoundTrip(t *testing.T) {
	t.Parallel()

	c := testCodec(t)
	a := testAccount()
	now := time.Now().UTC()

	tok, err := c.Issue(EmailVerification, a, now)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := c.Validate(EmailVerification, a, tok, now); err != nil {
		t.Fatalf("validate fresh token: %v", err)
	}
	if err := c.Validate(EmailVerification, a, tok, now.Add(23*time.Hour)); err != nil {
		t.Fatalf("validate within window: %v", err)
	}
}

func TestActivationInvalidatesVerificationToken(t *testing.T) {
	t.Parallel()

	c := testCodec(t)
	a := testAccount()
	now := time.Now().UTC()

	tok, err := c.Issue(EmailVerification, a, now)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	a.Active = true
	if err := c.Validate(EmailVerification, a, tok, now); !errors.Is(err, ErrInvalid) {
		t.Fatalf("token survived activation: %v", err)
	}
}

func TestPasswordChangeInvalidatesResetToken(t *testing.T) {
	t.Parallel()

	c := testCodec(t)
	a := testAccount()
	a.Active = true
	now := time.Now().UTC()

	tok, err := c.Issue(PasswordReset, a, now)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := c.Validate(PasswordReset, a, tok, now); err != nil {
		t.Fatalf("validate fresh token: %v", err)
	}

	a.PasswordHash = "$argon2id$v=19$m=65536,t=3,p=2$other$other"
	if err := c.Validate(PasswordReset, a, tok, now); !errors.Is(err, ErrInvalid) {
		t.Fatalf("token survived password change: %v", err)
	}
}

func TestLoginInvalidatesResetToken(t *testing.T) {
	t.Parallel()

	c := testCodec(t)
	a := testAccount()
	a.Active = true
	now := time.Now().UTC()

	tok, err := c.Issue(PasswordReset, a, now)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	login := now.Add(time.Minute)
	a.LastLogin = &login
	if err := c.Validate(PasswordReset, a, tok, now.Add(2*time.Minute)); !errors.Is(err, ErrInvalid) {
		t.Fatalf("token survived login: %v", err)
	}
}

func TestTokenExpiresAfterWindow(t *testing.T) {
	t.Parallel()

	c := testCodec(t)
	a := testAccount()
	now := time.Now().UTC()

	tok, err := c.Issue(EmailVerification, a, now)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	err = c.Validate(EmailVerification, a, tok, now.Add(25*time.Hour))
	if !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestCrossFamilyTokensRejected(t *testing.T) {
	t.Parallel()

	c := testCodec(t)
	a := testAccount()
	a.Active = true
	now := time.Now().UTC()

	reset, err := c.Issue(PasswordReset, a, now)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := c.Validate(EmailVerification, a, reset, now); !errors.Is(err, ErrInvalid) {
		t.Fatalf("reset token accepted as verification: %v", err)
	}
}

func TestValidateRejectsMalformedTokens(t *testing.T) {
	t.Parallel()

	c := testCodec(t)
	a := testAccount()
	now := time.Now().UTC()

	for _, tok := range []string{"", "nodash", "-sig", "zzzzzzzzzzzzzzzzzz-sig", "1x2-%%%"} {
		if err := c.Validate(EmailVerification, a, tok, now); !errors.Is(err, ErrInvalid) {
			t.Fatalf("malformed token %q: got %v", tok, err)
		}
	}
}

func TestUIDRoundTrip(t *testing.T) {
	t.Parallel()

	uid := EncodeUID("01ACCOUNT")
	id, err := DecodeUID(uid)
	if err != nil {
		t.Fatalf("decode uid: %v", err)
	}
	if id != "01ACCOUNT" {
		t.Fatalf("uid round trip mismatch: %q", id)
	}

	if _, err := DecodeUID("!!!"); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for garbage uid, got %v", err)
	}
}
