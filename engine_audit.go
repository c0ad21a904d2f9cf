package authcore

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventLoginSuccess             = "login_success"
	auditEventLoginFailure             = "login_failure"
	auditEventLoginRateLimited         = "login_rate_limited"
	auditEventRefreshSuccess           = "refresh_success"
	auditEventRefreshInvalid           = "refresh_invalid"
	auditEventRegisterSuccess          = "register_success"
	auditEventRegisterDuplicate        = "register_duplicate"
	auditEventRegisterFailure          = "register_failure"
	auditEventVerificationIssued       = "email_verification_issued"
	auditEventVerificationConfirm      = "email_verification_confirm"
	auditEventVerificationFailure      = "email_verification_failure"
	auditEventPasswordResetRequest     = "password_reset_request"
	auditEventPasswordResetConfirm     = "password_reset_confirm"
	auditEventPasswordResetFailure     = "password_reset_failure"
	auditEventEmailDeliveryFailure     = "email_delivery_failure"
	auditEventOAuthInitiate            = "oauth_initiate"
	auditEventOAuthCallbackSuccess     = "oauth_callback_success"
	auditEventOAuthCallbackFailure     = "oauth_callback_failure"
	auditEventOAuthAccountCreated      = "oauth_account_created"
	auditEventOAuthAccountLinked       = "oauth_account_linked"
	auditEventOAuthCallbackRateLimited = "oauth_callback_rate_limited"
	auditEventAccessDenied             = "access_denied"
	auditEventLogout                   = "logout"
	auditEventEmailRequestRateLimited  = "email_request_rate_limited"
)

// AuditErrorCode is the stable machine-readable error label carried on
// audit events.
type AuditErrorCode string

const (
	auditErrUnauthorized       AuditErrorCode = "unauthorized"
	auditErrForbidden          AuditErrorCode = "forbidden"
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrUserNotFound       AuditErrorCode = "user_not_found"
	auditErrAccountInactive    AuditErrorCode = "account_inactive"
	auditErrAccountUnverified  AuditErrorCode = "account_unverified"
	auditErrPasswordPolicy     AuditErrorCode = "password_policy"
	auditErrTermsNotAccepted   AuditErrorCode = "terms_not_accepted"
	auditErrDuplicate          AuditErrorCode = "duplicate"
	auditErrProviderDeclined   AuditErrorCode = "provider_declined"
	auditErrProviderConfig     AuditErrorCode = "provider_not_configured"
	auditErrMissingCode        AuditErrorCode = "missing_code"
	auditErrTokenExchange      AuditErrorCode = "token_exchange_failed"
	auditErrIdentityFetch      AuditErrorCode = "identity_fetch_failed"
	auditErrEmailNotAvailable  AuditErrorCode = "email_not_available"
	auditErrIdentityConflict   AuditErrorCode = "provider_identity_conflict"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	providerName string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}
	if ua := userAgentFromContext(ctx); ua != "" {
		if metadata == nil {
			metadata = map[string]string{}
		}
		metadata["user_agent"] = ua
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		UserID:    userID,
		Provider:  providerName,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrUnauthorized):
		return auditErrUnauthorized
	case errors.Is(err, ErrForbidden):
		return auditErrForbidden
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrLoginRateLimited),
		errors.Is(err, ErrEmailRequestRateLimited),
		errors.Is(err, ErrCallbackRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrTokenInvalid),
		errors.Is(err, ErrTokenInvalidOrExpired):
		return auditErrInvalidToken
	case errors.Is(err, ErrUserNotFound):
		return auditErrUserNotFound
	case errors.Is(err, ErrAccountInactive):
		return auditErrAccountInactive
	case errors.Is(err, ErrAccountUnverified):
		return auditErrAccountUnverified
	case errors.Is(err, ErrPasswordPolicy):
		return auditErrPasswordPolicy
	case errors.Is(err, ErrTermsNotAccepted):
		return auditErrTermsNotAccepted
	case errors.Is(err, ErrConflict):
		return auditErrDuplicate
	case errors.Is(err, ErrProviderDeclined):
		return auditErrProviderDeclined
	case errors.Is(err, ErrProviderNotConfigured):
		return auditErrProviderConfig
	case errors.Is(err, ErrMissingCode):
		return auditErrMissingCode
	case errors.Is(err, ErrTokenExchangeFailed):
		return auditErrTokenExchange
	case errors.Is(err, ErrEmailNotAvailable):
		return auditErrEmailNotAvailable
	case errors.Is(err, ErrIdentityFetchFailed):
		return auditErrIdentityFetch
	case errors.Is(err, ErrProviderIdentityConflict):
		return auditErrIdentityConflict
	case errors.Is(err, ErrLedgerUnavailable),
		errors.Is(err, ErrStoreUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
