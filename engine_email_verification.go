package authcore

import (
	"context"
	"errors"
)

// VerifyEmail redeems a verification token and marks the account verified.
//
// The token is single-use: whether redemption succeeds or fails against the
// account lookup, the ledger entry is already gone and the same token cannot
// be replayed. Verifying an already-verified account is a no-op success so
// double-clicked email links do not surface errors.
func (e *Engine) VerifyEmail(ctx context.Context, opaque string) error {
	if e.users == nil || e.ledger == nil {
		return ErrEngineNotReady
	}

	userID, err := e.ledger.Consume(ctx, opaque, kindEmailVerification)
	if err != nil {
		if errors.Is(err, errLedgerRedisUnavailable) {
			return ErrLedgerUnavailable
		}
		e.metricInc(MetricEmailVerificationFailure)
		e.emitAudit(ctx, auditEventVerificationFailure, false, "", "", ErrTokenInvalidOrExpired, nil)
		return ErrTokenInvalidOrExpired
	}

	user, err := e.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.metricInc(MetricEmailVerificationFailure)
			e.emitAudit(ctx, auditEventVerificationFailure, false, userID, "", ErrTokenInvalidOrExpired, nil)
			return ErrTokenInvalidOrExpired
		}
		return storeErr(err)
	}

	if !user.Verified {
		user.Verified = true
		if err := e.users.Save(ctx, user); err != nil {
			return storeErr(err)
		}
	}

	e.metricInc(MetricEmailVerificationSuccess)
	e.emitAudit(ctx, auditEventVerificationConfirm, true, user.ID, "", nil, nil)
	return nil
}
