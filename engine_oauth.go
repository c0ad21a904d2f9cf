package authcore

import (
	"context"
	"errors"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/finity-labs/authcore/internal/rate"
	"github.com/finity-labs/authcore/password"
	"github.com/finity-labs/authcore/provider"
)

// OAuthInitiate returns the authorization URL the browser should be
// redirected to for the named provider. The state value is echoed back on
// the callback; the transport layer owns generating and checking it.
func (e *Engine) OAuthInitiate(ctx context.Context, providerName, state string) (string, error) {
	if e.providers == nil {
		return "", ErrProviderNotConfigured
	}
	adapter, ok := e.providers.Get(providerName)
	if !ok {
		return "", ErrProviderNotConfigured
	}

	e.metricInc(MetricOAuthInitiate)
	e.emitAudit(ctx, auditEventOAuthInitiate, true, "", adapter.Name(), nil, nil)
	return adapter.AuthorizationURL(state), nil
}

// OAuthCallback completes an authorization-code exchange and resolves the
// remote identity to a local account.
//
// Resolution order: an existing link for (provider, provider user ID) wins;
// otherwise an account with the same email is linked; otherwise a new
// verified account is provisioned with an unusable password digest. The
// provider asserting the email is what justifies skipping verification.
func (e *Engine) OAuthCallback(ctx context.Context, providerName, code, errorParam string) (*OAuthResult, error) {
	if e.users == nil || e.links == nil {
		return nil, ErrEngineNotReady
	}
	if e.providers == nil {
		return nil, ErrProviderNotConfigured
	}
	adapter, ok := e.providers.Get(providerName)
	if !ok {
		return nil, ErrProviderNotConfigured
	}
	name := adapter.Name()

	if e.rateLimiter != nil {
		if err := e.rateLimiter.CheckCallback(ctx, clientIPFromContext(ctx)); err != nil {
			if errors.Is(err, rate.ErrRateLimited) {
				e.metricInc(MetricRateLimitHit)
				e.emitAudit(ctx, auditEventOAuthCallbackRateLimited, false, "", name, ErrCallbackRateLimited, nil)
				return nil, ErrCallbackRateLimited
			}
			log.Printf("authcore: callback throttle check failed: %v", err)
		}
	}

	if errorParam != "" {
		return nil, e.failCallback(ctx, name, ErrProviderDeclined, map[string]string{"provider_error": errorParam})
	}
	if code == "" {
		return nil, e.failCallback(ctx, name, ErrMissingCode, nil)
	}

	accessToken, err := adapter.Exchange(ctx, code)
	if err != nil {
		return nil, e.failCallback(ctx, name, ErrTokenExchangeFailed, map[string]string{"cause": err.Error()})
	}

	identity, err := adapter.FetchIdentity(ctx, accessToken)
	if err != nil {
		if errors.Is(err, provider.ErrEmailNotAvailable) {
			return nil, e.failCallback(ctx, name, ErrEmailNotAvailable, nil)
		}
		return nil, e.failCallback(ctx, name, ErrIdentityFetchFailed, map[string]string{"cause": err.Error()})
	}

	result, err := e.resolveIdentity(ctx, name, identity)
	if err != nil {
		return nil, err
	}

	pair, err := e.mintPair(result.User)
	if err != nil {
		return nil, err
	}
	result.Tokens = *pair

	e.metricInc(MetricOAuthCallbackSuccess)
	e.emitAudit(ctx, auditEventOAuthCallbackSuccess, true, result.User.ID, name, nil, nil)
	return result, nil
}

// resolveIdentity maps a provider identity onto a local user, creating the
// link and, if needed, the account. Conflict errors from the stores indicate
// a concurrent callback for the same identity; one retry through the lookup
// path settles the race.
func (e *Engine) resolveIdentity(ctx context.Context, name string, identity *provider.Identity) (*OAuthResult, error) {
	userID, err := e.links.FindUser(ctx, name, identity.ProviderUserID)
	if err == nil {
		user, err := e.users.FindByID(ctx, userID)
		if err != nil {
			return nil, storeErr(err)
		}
		if !user.Active {
			return nil, ErrAccountInactive
		}
		return &OAuthResult{User: user}, nil
	}
	if !errors.Is(err, ErrLinkNotFound) {
		return nil, storeErr(err)
	}

	email := strings.ToLower(identity.Email)
	user, err := e.users.FindByEmail(ctx, email)
	switch {
	case err == nil:
		if !user.Active {
			return nil, ErrAccountInactive
		}
		if err := e.createLink(ctx, name, identity, user.ID); err != nil {
			return nil, err
		}
		e.metricInc(MetricOAuthAccountLinked)
		e.emitAudit(ctx, auditEventOAuthAccountLinked, true, user.ID, name, nil, nil)
		return &OAuthResult{User: user, Linked: true}, nil
	case errors.Is(err, ErrUserNotFound):
		user, err = e.provisionOAuthUser(ctx, name, identity, email)
		if err != nil {
			return nil, err
		}
		if err := e.createLink(ctx, name, identity, user.ID); err != nil {
			return nil, err
		}
		e.metricInc(MetricOAuthAccountCreated)
		e.emitAudit(ctx, auditEventOAuthAccountCreated, true, user.ID, name, nil, nil)
		return &OAuthResult{User: user, Created: true}, nil
	default:
		return nil, storeErr(err)
	}
}

func (e *Engine) provisionOAuthUser(ctx context.Context, name string, identity *provider.Identity, email string) (*User, error) {
	digest, err := password.UnusableDigest()
	if err != nil {
		return nil, storeErr(err)
	}
	now := time.Now().UTC()
	user := &User{
		Email:          email,
		FullName:       identity.Name,
		PasswordDigest: digest,
		Role:           e.config.Account.DefaultRole,
		Active:         true,
		Verified:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := e.users.Create(ctx, user); err != nil {
		if errors.Is(err, ErrConflict) {
			// Lost a race with a concurrent registration for the
			// same email. Adopt the winner's account.
			existing, ferr := e.users.FindByEmail(ctx, email)
			if ferr != nil {
				return nil, storeErr(ferr)
			}
			if !existing.Active {
				return nil, ErrAccountInactive
			}
			return existing, nil
		}
		return nil, storeErr(err)
	}
	return user, nil
}

// createLink records the provider identity against a user. A conflict means
// another callback created the link first; the link is accepted as long as
// it points at the same user, otherwise the identity is already bound to a
// different account.
func (e *Engine) createLink(ctx context.Context, name string, identity *provider.Identity, userID string) error {
	link := &OAuthLink{
		UserID:         userID,
		Provider:       name,
		ProviderUserID: identity.ProviderUserID,
		Email:          strings.ToLower(identity.Email),
		CreatedAt:      time.Now().UTC(),
	}
	err := e.links.Create(ctx, link)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrConflict) {
		return storeErr(err)
	}
	existingID, lerr := e.links.FindUser(ctx, name, identity.ProviderUserID)
	if lerr == nil && existingID == userID {
		return nil
	}
	return ErrProviderIdentityConflict
}

func (e *Engine) failCallback(ctx context.Context, name string, sentinel error, metadata map[string]string) error {
	e.metricInc(MetricOAuthCallbackFailure)
	if ip := clientIPFromContext(ctx); ip != "" && e.rateLimiter != nil {
		if err := e.rateLimiter.IncrementCallbackFailure(ctx, ip); err != nil && !errors.Is(err, rate.ErrRateLimited) {
			log.Printf("authcore: callback throttle increment failed: %v", err)
		}
	}
	e.emitAudit(ctx, auditEventOAuthCallbackFailure, false, "", name, sentinel, func() map[string]string {
		return metadata
	})
	return sentinel
}

// LoginRedirectURL builds the frontend URL a successful callback should
// redirect to, carrying the token pair in the fragment so tokens never hit
// server logs or Referer headers.
func (e *Engine) LoginRedirectURL(pair TokenPair) string {
	frag := url.Values{}
	frag.Set("access_token", pair.AccessToken)
	frag.Set("refresh_token", pair.RefreshToken)
	return e.config.OAuth.FrontendURL + "/oauth/complete#" + frag.Encode()
}

// ErrorRedirectURL builds the frontend URL for a failed callback. Only the
// stable error code is exposed, never provider internals.
func (e *Engine) ErrorRedirectURL(err error) string {
	q := url.Values{}
	q.Set("error", OAuthErrorCode(err))
	return e.config.OAuth.FrontendURL + "/oauth/error?" + q.Encode()
}

// OAuthErrorCode maps callback errors to the stable codes surfaced to the
// frontend.
func OAuthErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrProviderDeclined):
		return "provider_declined"
	case errors.Is(err, ErrMissingCode):
		return "missing_code"
	case errors.Is(err, ErrCallbackRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrProviderNotConfigured):
		return "provider_not_configured"
	case errors.Is(err, ErrTokenExchangeFailed):
		return "exchange_failed"
	case errors.Is(err, ErrIdentityFetchFailed):
		return "identity_fetch_failed"
	case errors.Is(err, ErrEmailNotAvailable):
		return "email_not_available"
	case errors.Is(err, ErrProviderIdentityConflict):
		return "identity_conflict"
	case errors.Is(err, ErrAccountInactive):
		return "account_inactive"
	default:
		return "internal_error"
	}
}
