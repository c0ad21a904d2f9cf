package authcore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/finity-labs/authcore/password"
)

// Register provisions a new password-backed account.
//
// The caller must have accepted the terms of service when the engine is
// configured to require it. The email address becomes the login identifier;
// username and full name are optional profile fields. On success a
// verification token is issued and handed to the configured EmailSender,
// and when auto-login is enabled the result carries a fresh token pair.
//
// Uniqueness is ultimately decided by the user store: the advisory lookups
// here only shortcut the common case, and a concurrent insert still surfaces
// as ErrConflict from Create.
func (e *Engine) Register(ctx context.Context, in RegisterInput) (*RegisterResult, error) {
	if e.users == nil || e.hasher == nil {
		return nil, ErrEngineNotReady
	}

	if e.config.Account.RequireTerms && !in.AgreedToTerms {
		e.emitAudit(ctx, auditEventRegisterFailure, false, "", "", ErrTermsNotAccepted, func() map[string]string {
			return map[string]string{"reason": "terms_not_accepted"}
		})
		return nil, ErrTermsNotAccepted
	}

	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" || !strings.Contains(email, "@") {
		e.emitAudit(ctx, auditEventRegisterFailure, false, "", "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{"reason": "invalid_email"}
		})
		return nil, ErrInvalidCredentials
	}

	digest, err := e.hasher.Hash(in.Password)
	if err != nil {
		if errors.Is(err, password.ErrPasswordTooShort) || errors.Is(err, password.ErrPasswordTooLong) {
			e.emitAudit(ctx, auditEventRegisterFailure, false, "", "", ErrPasswordPolicy, func() map[string]string {
				return map[string]string{"email": email, "reason": "password_policy"}
			})
			return nil, ErrPasswordPolicy
		}
		return nil, storeErr(err)
	}

	// Advisory pre-checks. The store's unique constraints remain the
	// authority under concurrent registration.
	if _, err := e.users.FindByEmail(ctx, email); err == nil {
		return nil, e.registerDuplicate(ctx, email)
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, storeErr(err)
	}
	if in.Username != "" {
		if _, err := e.users.FindByUsername(ctx, in.Username); err == nil {
			return nil, e.registerDuplicate(ctx, email)
		} else if !errors.Is(err, ErrUserNotFound) {
			return nil, storeErr(err)
		}
	}

	now := time.Now().UTC()
	user := &User{
		Email:          email,
		Username:       in.Username,
		FullName:       in.FullName,
		PasswordDigest: digest,
		Role:           e.config.Account.DefaultRole,
		Active:         true,
		Verified:       false,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := e.users.Create(ctx, user); err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, e.registerDuplicate(ctx, email)
		}
		return nil, storeErr(err)
	}

	e.metricInc(MetricRegisterSuccess)
	e.emitAudit(ctx, auditEventRegisterSuccess, true, user.ID, "", nil, func() map[string]string {
		return map[string]string{"email": email}
	})

	e.issueVerification(ctx, user)
	e.sendEmail(ctx, user, EmailWelcome, "")

	result := &RegisterResult{User: user}
	if e.config.Account.AutoLogin {
		pair, err := e.mintPair(user)
		if err != nil {
			return nil, err
		}
		result.Tokens = pair
	}
	return result, nil
}

// ResendVerification issues a fresh verification token for the given email.
// Unknown addresses and already-verified accounts return nil so the response
// does not reveal whether an account exists.
func (e *Engine) ResendVerification(ctx context.Context, email string) error {
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

	user, err := e.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil
		}
		return storeErr(err)
	}
	if user.Verified || !user.Active {
		return nil
	}

	e.issueVerification(ctx, user)
	return nil
}

// issueVerification mints a single-use verification token and dispatches the
// verification email. Failures are recorded but never abort the caller: a
// registered account must not be rolled back because SMTP is down.
func (e *Engine) issueVerification(ctx context.Context, user *User) {
	if e.ledger == nil {
		return
	}
	opaque, err := e.ledger.Issue(ctx, user.ID, kindEmailVerification, e.config.Ledger.VerificationTTL)
	if err != nil {
		e.metricInc(MetricEmailVerificationFailure)
		e.emitAudit(ctx, auditEventVerificationFailure, false, user.ID, "", ErrLedgerUnavailable, nil)
		return
	}
	e.metricInc(MetricEmailVerificationIssued)
	e.emitAudit(ctx, auditEventVerificationIssued, true, user.ID, "", nil, nil)
	e.sendEmail(ctx, user, EmailVerification, opaque)
}

// sendEmail delivers through the configured sender, if any. Delivery failure
// is observable through metrics and audit but never propagated.
func (e *Engine) sendEmail(ctx context.Context, user *User, kind EmailKind, token string) {
	if e.email == nil {
		return
	}
	if err := e.email.Send(ctx, user.Email, kind, token); err != nil {
		e.metricInc(MetricEmailDeliveryFailure)
		e.emitAudit(ctx, auditEventEmailDeliveryFailure, false, user.ID, "", err, func() map[string]string {
			return map[string]string{"kind": string(kind)}
		})
	}
}

func (e *Engine) registerDuplicate(ctx context.Context, email string) error {
	e.metricInc(MetricRegisterDuplicate)
	e.emitAudit(ctx, auditEventRegisterDuplicate, false, "", "", ErrConflict, func() map[string]string {
		return map[string]string{"email": email}
	})
	return ErrConflict
}
