package postgres

import (
	"context"
	"errors"

	authcore "github.com/finity-labs/authcore"
)

// EnsureAdmin creates a verified admin account with the given email and
// password digest if no account with that email exists. It reports whether
// the account was created. Intended for first-boot seeding.
func EnsureAdmin(ctx context.Context, store *UserStore, email, passwordDigest string) (bool, error) {
	_, err := store.FindByEmail(ctx, email)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, authcore.ErrUserNotFound) {
		return false, err
	}

	user := &authcore.User{
		Email:          email,
		PasswordDigest: passwordDigest,
		Role:           authcore.RoleAdmin,
		Active:         true,
		Verified:       true,
	}
	if err := store.Create(ctx, user); err != nil {
		if errors.Is(err, authcore.ErrConflict) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
