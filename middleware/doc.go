// Package middleware provides net/http middleware built on the authcore
// engine.
//
// [RequireAuth] verifies the bearer access token; [RequireRole] additionally
// gates on the account's current role. Both attach the resulting
// [authcore.Principal] to the request context, retrievable with
// [PrincipalFromContext], and stamp the context with the client IP and
// user agent so engine audit events carry them.
//
// The package translates HTTP semantics into engine calls and nothing more:
// it never parses tokens or touches storage itself.
package middleware
