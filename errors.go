package authcore

import "errors"

var (
	// ErrUnauthorized reports a request with no valid access token.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden reports an authenticated principal lacking the
	// required role.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidCredentials covers unknown account, password-less
	// account, and wrong password alike so a caller cannot tell them
	// apart.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserNotFound is returned by UserStore implementations when no
	// record matches.
	ErrUserNotFound = errors.New("user not found")
	// ErrLinkNotFound is returned by LinkStore implementations when no
	// provider link matches.
	ErrLinkNotFound = errors.New("oauth link not found")
	// ErrConflict reports a uniqueness violation (email, username, or
	// provider link).
	ErrConflict = errors.New("resource already exists")
	// ErrTermsNotAccepted rejects registration without an explicit terms
	// agreement.
	ErrTermsNotAccepted = errors.New("terms of service not accepted")
	// ErrAccountInactive reports a correct login against a deactivated
	// account.
	ErrAccountInactive = errors.New("account inactive")
	// ErrAccountUnverified reports a login blocked on pending email
	// verification.
	ErrAccountUnverified = errors.New("account unverified")
	// ErrPasswordPolicy reports a password rejected by length policy.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrTokenInvalid reports a bearer token that failed verification for
	// any reason, including wrong token type.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrTokenInvalidOrExpired reports an ephemeral email token that is
	// unknown, already redeemed, expired, or of the wrong kind. The cases
	// are deliberately indistinguishable.
	ErrTokenInvalidOrExpired = errors.New("token invalid or expired")
	// ErrLoginRateLimited reports an exhausted login attempt budget.
	ErrLoginRateLimited = errors.New("login rate limited")
	// ErrEmailRequestRateLimited reports an exhausted budget for
	// email-sending operations (reset requests, verification resends).
	ErrEmailRequestRateLimited = errors.New("email request rate limited")
	// ErrCallbackRateLimited reports an exhausted budget for failed OAuth
	// callbacks from one client IP.
	ErrCallbackRateLimited = errors.New("oauth callback rate limited")
	// ErrProviderNotConfigured reports an OAuth flow against an unknown
	// or unconfigured provider.
	ErrProviderNotConfigured = errors.New("oauth provider not configured")
	// ErrMissingCode reports an OAuth callback with neither code nor
	// provider error.
	ErrMissingCode = errors.New("authorization code missing")
	// ErrProviderDeclined reports a callback carrying a provider error
	// parameter (user denied consent or provider-side failure).
	ErrProviderDeclined = errors.New("provider declined authorization")
	// ErrTokenExchangeFailed reports a failed code-for-token exchange.
	ErrTokenExchangeFailed = errors.New("token exchange failed")
	// ErrIdentityFetchFailed reports a failed or unusable identity fetch.
	ErrIdentityFetchFailed = errors.New("identity fetch failed")
	// ErrEmailNotAvailable reports a provider identity without an email
	// address, which account resolution requires.
	ErrEmailNotAvailable = errors.New("provider identity has no email")
	// ErrProviderIdentityConflict reports a provider identity that cannot
	// be linked because the target account already holds a different
	// identity from the same provider.
	ErrProviderIdentityConflict = errors.New("conflicting provider identity")
	// ErrLedgerUnavailable reports that the ephemeral token backend could
	// not be reached.
	ErrLedgerUnavailable = errors.New("token ledger unavailable")
	// ErrStoreUnavailable reports a user store failure that is not a
	// lookup miss or conflict.
	ErrStoreUnavailable = errors.New("credential store unavailable")
	// ErrEngineNotReady reports use of an Engine that was not built
	// through the Builder.
	ErrEngineNotReady = errors.New("engine not initialized")
)
