package authcore

import (
	"context"
	"errors"
	"strings"

	"github.com/finity-labs/authcore/password"
)

// ForgotPassword issues a single-use reset token for the given email and
// hands it to the configured EmailSender. The response is identical whether
// or not the address belongs to an account, so callers cannot probe for
// registered emails. Only infrastructure failures are surfaced.
func (e *Engine) ForgotPassword(ctx context.Context, email string) error {
	if e.users == nil || e.ledger == nil {
		return ErrEngineNotReady
	}

	email = strings.ToLower(strings.TrimSpace(email))
	if e.rateLimiter != nil {
		if err := e.rateLimiter.CheckEmailRequest(ctx, email); err != nil {
			e.metricInc(MetricRateLimitHit)
			e.emitAudit(ctx, auditEventEmailRequestRateLimited, false, "", "", ErrEmailRequestRateLimited, func() map[string]string {
				return map[string]string{"email": email}
			})
			return ErrEmailRequestRateLimited
		}
	}

	e.metricInc(MetricPasswordResetRequest)

	user, err := e.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.emitAudit(ctx, auditEventPasswordResetRequest, true, "", "", nil, func() map[string]string {
				return map[string]string{"known_account": "false"}
			})
			return nil
		}
		return storeErr(err)
	}
	if !user.Active {
		return nil
	}

	opaque, err := e.ledger.Issue(ctx, user.ID, kindPasswordReset, e.config.Ledger.ResetTTL)
	if err != nil {
		return ErrLedgerUnavailable
	}

	e.emitAudit(ctx, auditEventPasswordResetRequest, true, user.ID, "", nil, nil)
	e.sendEmail(ctx, user, EmailPasswordReset, opaque)
	return nil
}

// ResetPassword redeems a reset token and replaces the account's password
// digest. A token minted for email verification is rejected, and the failed
// redemption still destroys it. Setting a password this way works for
// accounts provisioned through an identity provider that never had one.
func (e *Engine) ResetPassword(ctx context.Context, opaque, newPassword string) error {
	if e.users == nil || e.ledger == nil || e.hasher == nil {
		return ErrEngineNotReady
	}

	userID, err := e.ledger.Consume(ctx, opaque, kindPasswordReset)
	if err != nil {
		if errors.Is(err, errLedgerRedisUnavailable) {
			return ErrLedgerUnavailable
		}
		e.metricInc(MetricPasswordResetConfirmFailure)
		e.emitAudit(ctx, auditEventPasswordResetFailure, false, "", "", ErrTokenInvalidOrExpired, nil)
		return ErrTokenInvalidOrExpired
	}

	digest, err := e.hasher.Hash(newPassword)
	if err != nil {
		if errors.Is(err, password.ErrPasswordTooShort) || errors.Is(err, password.ErrPasswordTooLong) {
			e.metricInc(MetricPasswordResetConfirmFailure)
			e.emitAudit(ctx, auditEventPasswordResetFailure, false, userID, "", ErrPasswordPolicy, nil)
			return ErrPasswordPolicy
		}
		return storeErr(err)
	}

	user, err := e.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.metricInc(MetricPasswordResetConfirmFailure)
			e.emitAudit(ctx, auditEventPasswordResetFailure, false, userID, "", ErrTokenInvalidOrExpired, nil)
			return ErrTokenInvalidOrExpired
		}
		return storeErr(err)
	}

	user.PasswordDigest = digest
	if err := e.users.Save(ctx, user); err != nil {
		return storeErr(err)
	}

	if e.rateLimiter != nil {
		_ = e.rateLimiter.ResetLogin(ctx, user.Email, clientIPFromContext(ctx))
	}

	e.metricInc(MetricPasswordResetConfirmSuccess)
	e.emitAudit(ctx, auditEventPasswordResetConfirm, true, user.ID, "", nil, nil)
	return nil
}
