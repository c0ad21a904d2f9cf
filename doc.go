// Package authcore implements an identity and access engine: password login,
// OAuth2 sign-in against external providers, stateless JWT access and refresh
// tokens, and single-use email tokens for address verification and password
// reset.
//
// Engine methods are safe for concurrent use once the engine has been
// assembled through [Builder.Build]. Storage is pluggable behind [UserStore]
// and [LinkStore]; a Postgres implementation ships in store/postgres. Redis
// backs the single-use token ledger and the login throttle.
//
// Bearer tokens are verified without any backend round-trip. Account state
// (active flag, role) is re-read from the store on [Engine.Authenticate] and
// [Engine.RequireRole], so deactivating a user takes effect on their next
// request rather than at token expiry.
package authcore
