package actiontoken

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"reptrack/cmd/identity"
)

// Family selects which account action a token authorizes.
type Family string

const (
	EmailVerification Family = "verify"
	PasswordReset     Family = "reset"
)

var (
	// ErrConfig indicates invalid codec configuration.
	ErrConfig = errors.New("actiontoken: invalid configuration")

	// ErrInvalid is returned for malformed tokens, wrong-family tokens,
	// and tokens whose fingerprinted state has changed.
	ErrInvalid = errors.New("actiontoken: invalid token")

	// ErrExpired is returned for tokens that were once valid but have
	// aged out of the acceptance window. The verify-email redirect
	// distinguishes this case from ErrInvalid.
	ErrExpired = errors.New("actiontoken: expired token")
)

// Config defines codec parameters.
type Config struct {
	// Secret is the MAC key. At least 32 bytes.
	Secret []byte

	// BucketSize is the issue-time granularity. Tokens minted within
	// the same bucket for the same account state are identical.
	BucketSize time.Duration

	// Window is how many past buckets Validate accepts.
	Window int
}

// DefaultConfig accepts tokens for 24 hours at 1-hour granularity.
func DefaultConfig() Config {
	return Config{
		BucketSize: time.Hour,
		Window:     24,
	}
}

// Codec issues and validates action tokens.
type Codec struct {
	cfg Config
}

// NewCodec validates cfg and builds a Codec.
func NewCodec(cfg Config) (*Codec, error) {
	if len(cfg.Secret) < 32 || cfg.BucketSize <= 0 || cfg.Window < 1 {
		return nil, ErrConfig
	}
	return &Codec{cfg: cfg}, nil
}

// Lifetime reports how long an issued token stays acceptable.
func (c *Codec) Lifetime() time.Duration {
	return time.Duration(c.cfg.Window) * c.cfg.BucketSize
}

// Issue mints a token of the given family for the account's current state.
func (c *Codec) Issue(f Family, a identity.Account, now time.Time) (string, error) {
	if a.ID == "" {
		return "", ErrInvalid
	}
	bucket := now.Unix() / int64(c.cfg.BucketSize/time.Second)
	return c.encode(f, a, bucket), nil
}

// Validate checks a token of the given family against the account's
// current state. Any change to the fingerprinted fields since issue
// makes the token ErrInvalid; a token older than the window is
// ErrExpired.
func (c *Codec) Validate(f Family, a identity.Account, tok string, now time.Time) error {
	bucketStr, _, ok := strings.Cut(tok, "-")
	if !ok || a.ID == "" {
		return ErrInvalid
	}
	bucket, err := strconv.ParseInt(bucketStr, 36, 64)
	if err != nil || bucket < 0 {
		return ErrInvalid
	}

	want := c.encode(f, a, bucket)
	if !hmac.Equal([]byte(tok), []byte(want)) {
		return ErrInvalid
	}

	nowBucket := now.Unix() / int64(c.cfg.BucketSize/time.Second)
	age := nowBucket - bucket
	if age < 0 {
		return ErrInvalid
	}
	if age >= int64(c.cfg.Window) {
		return ErrExpired
	}
	return nil
}

func (c *Codec) encode(f Family, a identity.Account, bucket int64) string {
	mac := hmac.New(sha256.New, c.cfg.Secret)
	fmt.Fprintf(mac, "%s|%s|%s|%d", a.ID, f, fingerprint(f, a), bucket)
	sig := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
	return strconv.FormatInt(bucket, 36) + "-" + sig
}

// fingerprint captures the account state whose mutation must kill
// outstanding tokens of the family.
func fingerprint(f Family, a identity.Account) string {
	switch f {
	case PasswordReset:
		// Changing the password or logging in consumes reset tokens.
		var lastLogin int64
		if a.LastLogin != nil {
			lastLogin = a.LastLogin.Unix()
		}
		return fmt.Sprintf("%s|%d", a.PasswordHash, lastLogin)
	default:
		// Activation consumes verification tokens.
		return fmt.Sprintf("%t|%s", a.Active, a.PasswordHash)
	}
}

// EncodeUID renders an account id for use in an email link path.
func EncodeUID(id string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(id))
}

// DecodeUID reverses EncodeUID.
func DecodeUID(s string) (string, error) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil || len(b) == 0 {
		return "", ErrInvalid
	}
	return string(b), nil
}
