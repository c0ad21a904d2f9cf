// Package password implements password hashing and verification with
// Argon2id.
//
// # Output format
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// The [Hasher] supports transparent parameter upgrades: if a stored hash
// was produced with weaker parameters, [Hasher.NeedsRehash] returns true so
// the caller can re-hash on the next successful login.
//
// Accounts created through an OAuth provider store an unusable digest
// (see [UnusableDigest]) that no plaintext can ever match.
//
// This package owns hashing and verification only; callers supply
// plaintext and receive digests, and plaintext is never logged.
package password
