// Package token issues and verifies the signed session tokens.
//
// Two token kinds exist: short-lived access tokens and longer-lived
// refresh tokens. Both are HS256 JWTs carrying the account id as the
// subject; refresh tokens additionally carry a ULID jti so individual
// grants can be revoked through the ledger.
package token
