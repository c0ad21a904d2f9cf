package authcore

import (
	"context"
	"time"
)

// Role is the coarse authorization tier carried on every account.
type Role string

const (
	// RoleUser is the default tier for self-registered accounts.
	RoleUser Role = "user"
	// RoleAdmin grants access to privileged operations.
	RoleAdmin Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// User is the account record exchanged with the [UserStore]. ID assignment
// is owned by the store; every other field is owned by the engine.
type User struct {
	ID             string
	Email          string
	Username       string
	FullName       string
	PasswordDigest string
	Role           Role
	Active         bool
	Verified       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// UserStore is the interface callers implement to persist accounts.
// Lookups return [ErrUserNotFound] on a miss; Create returns [ErrConflict]
// when the email or username is already taken. The store is the single
// authority on uniqueness — the engine's pre-checks are advisory only.
type UserStore interface {
	FindByID(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByUsername(ctx context.Context, username string) (*User, error)
	Create(ctx context.Context, user *User) error
	Save(ctx context.Context, user *User) error
}

// OAuthLink binds one external provider identity to one local account.
type OAuthLink struct {
	UserID         string
	Provider       string
	ProviderUserID string
	Email          string
	CreatedAt      time.Time
}

// LinkStore persists OAuth links. FindUser returns [ErrLinkNotFound] on a
// miss; Create returns [ErrConflict] when either uniqueness constraint
// ((provider, provider_user_id) or (provider, user_id)) is violated.
type LinkStore interface {
	FindUser(ctx context.Context, provider, providerUserID string) (string, error)
	Create(ctx context.Context, link *OAuthLink) error
}

// EmailKind selects the template an [EmailSender] should render.
type EmailKind string

const (
	// EmailWelcome is sent after registration and carries a verification
	// token.
	EmailWelcome EmailKind = "welcome"
	// EmailVerification carries a fresh verification token on resend.
	EmailVerification EmailKind = "verification"
	// EmailPasswordReset carries a password reset token.
	EmailPasswordReset EmailKind = "password_reset"
)

// EmailSender delivers outbound mail. Delivery is a collaborator concern;
// the engine only hands over the recipient, the template kind, and the
// single-use token to embed.
type EmailSender interface {
	Send(ctx context.Context, to string, kind EmailKind, token string) error
}

// TokenPair is the access+refresh pair issued on successful
// authentication.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// Principal is the authenticated caller produced by [Engine.Authenticate].
// Fields reflect the live store record, not the token payload.
type Principal struct {
	UserID   string
	Email    string
	Role     Role
	Verified bool
}

// RegisterInput is the input for [Engine.Register].
type RegisterInput struct {
	Email         string
	Password      string
	Username      string
	FullName      string
	AgreedToTerms bool
}

// RegisterResult is returned by [Engine.Register]. Tokens is nil unless
// [AccountConfig.AutoLogin] is enabled.
type RegisterResult struct {
	User   *User
	Tokens *TokenPair
}

// OAuthResult is returned by [Engine.OAuthCallback].
type OAuthResult struct {
	User   *User
	Tokens TokenPair
	// Created reports that a brand-new account was provisioned for this
	// identity.
	Created bool
	// Linked reports that the identity was attached to a pre-existing
	// account matched by email.
	Linked bool
}
