// Package internal contains helpers that are intentionally private to
// authcore: the opaque ledger token codec (random id + secret, secret
// stored only as a hash) and the Redis rate limit primitives under
// internal/rate.
package internal
