// Package ledger records revoked refresh-token grants.
//
// Every refresh rotation and logout appends the spent jti here; a jti
// present in the ledger is dead regardless of its signature. Rows
// become garbage once the token's own expiry passes, so the ledger can
// be pruned by expiry without affecting correctness.
package ledger
