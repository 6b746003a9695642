// Package password provides Argon2id password hashing for RepTrack.
//
// It is the single source of truth for hashing parameters and password
// policy. Hashes use the PHC string format so parameters travel with
// the hash and older hashes stay verifiable after parameter bumps.
package password
