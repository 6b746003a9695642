package token

import "errors"

var (
	// ErrConfig indicates invalid or missing token configuration.
	ErrConfig = errors.New("token: invalid configuration")

	// ErrInvalidToken is returned for any token that fails verification:
	// bad signature, wrong algorithm, expired, wrong type claim, or
	// missing subject. Callers get no further detail on purpose.
	ErrInvalidToken = errors.New("token: invalid token")
)
