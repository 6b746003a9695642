// Package identity implements RepTrack's credential store.
//
// It owns the durable account record (email, password hash, activation
// flag, last-login timestamp, Google OAuth credential fields) and the
// password hashing primitives used by the auth API.
//
// This package is intentionally dependency-light and security-first.
package identity
