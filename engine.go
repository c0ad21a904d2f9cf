package authcore

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/finity-labs/authcore/internal/rate"
	"github.com/finity-labs/authcore/password"
	"github.com/finity-labs/authcore/provider"
	"github.com/finity-labs/authcore/token"
)

// Engine is the authentication core. It owns no transport and no schema:
// persistence arrives through [UserStore] and [LinkStore], outbound mail
// through [EmailSender], and HTTP integration lives in the middleware
// package. Construct an Engine through the [Builder]; its zero value is
// unusable.
type Engine struct {
	config      Config
	users       UserStore
	links       LinkStore
	providers   *provider.Registry
	email       EmailSender
	ledger      *tokenLedger
	rateLimiter *rate.Limiter
	audit       *auditDispatcher
	metrics     *Metrics
	hasher      *password.Hasher
	codec       *token.Codec
}

// Close stops background workers. Safe to call on a nil engine.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns how many audit events were shed under load.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of all counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

/*
====================================
LOGIN
====================================
*/

// Login authenticates an email+password pair and returns a fresh token
// pair. Unknown account, password-less account, and wrong password all
// yield ErrInvalidCredentials; only after the password is proven correct
// do ErrAccountInactive or ErrAccountUnverified surface, so the error
// never leaks whether an email is registered.
func (e *Engine) Login(ctx context.Context, email, pass string) (*TokenPair, error) {
	if e == nil || e.users == nil {
		return nil, ErrEngineNotReady
	}

	ip := clientIPFromContext(ctx)

	if e.rateLimiter != nil {
		if err := e.rateLimiter.CheckLogin(ctx, email, ip); err != nil {
			if errors.Is(err, rate.ErrRateLimited) {
				e.metricInc(MetricLoginRateLimited)
				e.metricInc(MetricRateLimitHit)
				e.emitAudit(ctx, auditEventLoginRateLimited, false, "", "", ErrLoginRateLimited, nil)
				return nil, ErrLoginRateLimited
			}
			log.Printf("authcore: login throttle check failed: %v", err)
		}
	}

	if email == "" || pass == "" {
		return nil, e.failLogin(ctx, email, ip, "")
	}

	user, err := e.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, e.failLogin(ctx, email, ip, "")
		}
		return nil, storeErr(err)
	}

	if user.PasswordDigest == "" || password.IsUnusable(user.PasswordDigest) {
		return nil, e.failLogin(ctx, email, ip, user.ID)
	}

	ok, err := e.hasher.Verify(pass, user.PasswordDigest)
	if err != nil || !ok {
		return nil, e.failLogin(ctx, email, ip, user.ID)
	}

	if !user.Active {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, user.ID, "", ErrAccountInactive, nil)
		return nil, ErrAccountInactive
	}

	if e.config.Login.RequireVerified && !user.Verified && user.Role != RoleAdmin {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, user.ID, "", ErrAccountUnverified, nil)
		return nil, ErrAccountUnverified
	}

	if e.config.Password.UpgradeOnLogin {
		e.maybeUpgradeDigest(ctx, user, pass)
	}

	pair, err := e.mintPair(user)
	if err != nil {
		return nil, err
	}

	if e.rateLimiter != nil {
		if err := e.rateLimiter.ResetLogin(ctx, email, ip); err != nil {
			log.Printf("authcore: login throttle reset failed: %v", err)
		}
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, user.ID, "", nil, nil)

	return pair, nil
}

func (e *Engine) failLogin(ctx context.Context, email, ip, userID string) error {
	if e.rateLimiter != nil {
		if err := e.rateLimiter.IncrementLogin(ctx, email, ip); err != nil && !errors.Is(err, rate.ErrRateLimited) {
			log.Printf("authcore: login throttle increment failed: %v", err)
		}
	}
	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, auditEventLoginFailure, false, userID, "", ErrInvalidCredentials, nil)
	return ErrInvalidCredentials
}

// maybeUpgradeDigest transparently re-hashes a password stored with weaker
// parameters. Failures only log: the login already succeeded.
func (e *Engine) maybeUpgradeDigest(ctx context.Context, user *User, pass string) {
	needs, err := e.hasher.NeedsRehash(user.PasswordDigest)
	if err != nil || !needs {
		return
	}

	digest, err := e.hasher.Hash(pass)
	if err != nil {
		return
	}

	user.PasswordDigest = digest
	if err := e.users.Save(ctx, user); err != nil {
		log.Printf("authcore: password digest upgrade failed for user %s: %v", user.ID, err)
	}
}

/*
====================================
REFRESH
====================================
*/

// RefreshToken exchanges a valid refresh token for a brand-new pair. The
// account is re-fetched so deactivation takes effect on the next refresh.
// The presented refresh token is not invalidated: revocation is out of
// scope for the stateless bearer model, which bounds the damage window of
// a leaked token by RefreshTTL.
func (e *Engine) RefreshToken(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if e == nil || e.users == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.codec.VerifyRefresh(refreshToken)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, "", "", ErrTokenInvalid, nil)
		return nil, ErrTokenInvalid
	}

	user, err := e.users.FindByID(ctx, claims.UserID())
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.metricInc(MetricRefreshFailure)
			e.emitAudit(ctx, auditEventRefreshInvalid, false, claims.UserID(), "", ErrTokenInvalid, nil)
			return nil, ErrTokenInvalid
		}
		return nil, storeErr(err)
	}
	if !user.Active {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, user.ID, "", ErrAccountInactive, nil)
		return nil, ErrTokenInvalid
	}

	pair, err := e.mintPair(user)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, user.ID, "", nil, nil)

	return pair, nil
}

/*
====================================
AUTHENTICATION / AUTHORIZATION
====================================
*/

// Authenticate validates an access token and returns the live principal.
// The store record is consulted on every call, so deactivation or a role
// change is effective immediately rather than at token expiry.
func (e *Engine) Authenticate(ctx context.Context, accessToken string) (*Principal, error) {
	user, err := e.authenticateUser(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	return &Principal{
		UserID:   user.ID,
		Email:    user.Email,
		Role:     user.Role,
		Verified: user.Verified,
	}, nil
}

func (e *Engine) authenticateUser(ctx context.Context, accessToken string) (*User, error) {
	if e == nil || e.users == nil {
		return nil, ErrEngineNotReady
	}

	start := time.Now()
	defer func() {
		if e.metrics != nil {
			e.metrics.Observe(MetricAuthenticateLatency, time.Since(start))
		}
	}()

	claims, err := e.codec.VerifyAccess(accessToken)
	if err != nil {
		return nil, ErrUnauthorized
	}

	user, err := e.users.FindByID(ctx, claims.UserID())
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, storeErr(err)
	}
	if !user.Active {
		return nil, ErrUnauthorized
	}

	return user, nil
}

// Me returns the live account record for a valid access token.
func (e *Engine) Me(ctx context.Context, accessToken string) (*User, error) {
	return e.authenticateUser(ctx, accessToken)
}

// RequireRole enforces the authorization gate for a previously
// authenticated principal. The role is re-read from the store, so a
// demotion is effective immediately even while old access tokens live.
func (e *Engine) RequireRole(ctx context.Context, p *Principal, role Role) error {
	if e == nil || e.users == nil {
		return ErrEngineNotReady
	}
	if p == nil {
		return ErrUnauthorized
	}

	user, err := e.users.FindByID(ctx, p.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrUnauthorized
		}
		return storeErr(err)
	}
	if !user.Active {
		return ErrUnauthorized
	}

	if user.Role != role {
		e.metricInc(MetricForbidden)
		e.emitAudit(ctx, auditEventAccessDenied, false, user.ID, "", ErrForbidden, func() map[string]string {
			return map[string]string{"required_role": string(role)}
		})
		return ErrForbidden
	}

	return nil
}

// Authorize is Authenticate followed by RequireRole.
func (e *Engine) Authorize(ctx context.Context, accessToken string, role Role) (*Principal, error) {
	p, err := e.Authenticate(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	if err := e.RequireRole(ctx, p, role); err != nil {
		return nil, err
	}
	return p, nil
}

// Logout acknowledges a client-side token discard. Bearer tokens are not
// tracked server-side, so there is nothing to revoke; the call validates
// the token and records the event for audit trails.
func (e *Engine) Logout(ctx context.Context, accessToken string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	claims, err := e.codec.VerifyAccess(accessToken)
	if err != nil {
		return ErrUnauthorized
	}

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogout, true, claims.UserID(), "", nil, nil)

	return nil
}

/*
====================================
HELPERS
====================================
*/

func (e *Engine) mintPair(user *User) (*TokenPair, error) {
	access, err := e.codec.MintAccess(user.ID, user.Email)
	if err != nil {
		return nil, err
	}
	refresh, err := e.codec.MintRefresh(user.ID, user.Email)
	if err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// storeErr wraps unexpected store failures under ErrStoreUnavailable while
// preserving the cause for logs.
func storeErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
