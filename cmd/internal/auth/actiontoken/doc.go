// Package actiontoken signs single-purpose account tokens for email
// links: email verification and password reset.
//
// Tokens are stateless. Instead of a server-side table, each token
// binds a time bucket to a fingerprint of volatile account state, so
// performing the action (activating the account, changing the
// password) invalidates every outstanding token of that family.
package actiontoken
