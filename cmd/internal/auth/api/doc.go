// Package authapi exposes the account and session HTTP surface under
// /api/v1/users/: login, refresh, logout, registration with email
// verification, password reset, password change, and profile.
//
// Sessions are cookie-delivered JWT pairs. The access cookie spans the
// whole API; the refresh cookie is scoped to the auth prefix so it only
// travels to the endpoints that can use it. Refresh tokens rotate on
// every use and the spent jti lands in the revocation ledger.
package authapi
