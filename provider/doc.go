// Package provider implements the OAuth2 adapters for the supported
// upstream identity providers (Google, Discord, Facebook, X) behind a
// single [Adapter] interface, plus the immutable [Registry] the engine
// resolves them from.
//
// Adapters normalize provider payloads into [Identity] and classify
// failures into sentinel errors so the engine can distinguish a rejected
// authorization code from an unreachable provider or a malformed payload
// without knowing provider specifics.
package provider
