package authcore

import (
	"context"
	"errors"
	"testing"

	"github.com/finity-labs/authcore/password"
)

func TestLoginSuccess(t *testing.T) {
	f := buildEngine(t, nil)
	f.register(t, "alice@example.com", "correct horse battery")

	pair, err := f.engine.Login(context.Background(), "alice@example.com", "correct horse battery")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("Login returned empty tokens")
	}
	if pair.AccessToken == pair.RefreshToken {
		t.Fatal("access and refresh tokens must differ")
	}
	if got := f.engine.MetricsSnapshot().Counters[MetricLoginSuccess]; got != 1 {
		t.Errorf("login success counter = %d, want 1", got)
	}
}

func TestLoginWrongPasswordAndUnknownEmailIndistinguishable(t *testing.T) {
	f := buildEngine(t, nil)
	f.register(t, "alice@example.com", "correct horse battery")
	ctx := context.Background()

	_, errWrongPass := f.engine.Login(ctx, "alice@example.com", "wrong password!")
	_, errNoUser := f.engine.Login(ctx, "nobody@example.com", "wrong password!")

	if !errors.Is(errWrongPass, ErrInvalidCredentials) {
		t.Fatalf("wrong password err = %v, want ErrInvalidCredentials", errWrongPass)
	}
	if !errors.Is(errNoUser, ErrInvalidCredentials) {
		t.Fatalf("unknown email err = %v, want ErrInvalidCredentials", errNoUser)
	}
	if errWrongPass.Error() != errNoUser.Error() {
		t.Fatalf("error text differs: %q vs %q", errWrongPass, errNoUser)
	}
}

func TestLoginEmptyCredentialsRejected(t *testing.T) {
	f := buildEngine(t, nil)

	if _, err := f.engine.Login(context.Background(), "", ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("empty login err = %v, want ErrInvalidCredentials", err)
	}
}

func TestLoginInactiveAccount(t *testing.T) {
	f := buildEngine(t, nil)
	res := f.register(t, "alice@example.com", "correct horse battery")

	user := f.users.mustGet(t, res.User.ID)
	user.Active = false
	f.users.put(user)

	if _, err := f.engine.Login(context.Background(), "alice@example.com", "correct horse battery"); !errors.Is(err, ErrAccountInactive) {
		t.Fatalf("inactive login err = %v, want ErrAccountInactive", err)
	}
}

func TestLoginUnverifiedGate(t *testing.T) {
	f := buildEngine(t, func(cfg *Config) {
		cfg.Login.RequireVerified = true
	})
	res := f.register(t, "alice@example.com", "correct horse battery")
	ctx := context.Background()

	if _, err := f.engine.Login(ctx, "alice@example.com", "correct horse battery"); !errors.Is(err, ErrAccountUnverified) {
		t.Fatalf("unverified login err = %v, want ErrAccountUnverified", err)
	}

	// Admins bypass the verification gate.
	user := f.users.mustGet(t, res.User.ID)
	user.Role = RoleAdmin
	f.users.put(user)

	if _, err := f.engine.Login(ctx, "alice@example.com", "correct horse battery"); err != nil {
		t.Fatalf("admin login failed: %v", err)
	}
}

func TestLoginRateLimited(t *testing.T) {
	f := buildEngine(t, func(cfg *Config) {
		cfg.Throttle.Enabled = true
		cfg.Throttle.MaxLoginAttempts = 3
	})
	f.register(t, "alice@example.com", "correct horse battery")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := f.engine.Login(ctx, "alice@example.com", "bad password!!"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d err = %v, want ErrInvalidCredentials", i, err)
		}
	}

	// The correct password is refused while the cooldown holds.
	if _, err := f.engine.Login(ctx, "alice@example.com", "correct horse battery"); !errors.Is(err, ErrLoginRateLimited) {
		t.Fatalf("throttled login err = %v, want ErrLoginRateLimited", err)
	}
}

func TestLoginSuccessResetsThrottle(t *testing.T) {
	f := buildEngine(t, func(cfg *Config) {
		cfg.Throttle.Enabled = true
		cfg.Throttle.MaxLoginAttempts = 3
	})
	f.register(t, "alice@example.com", "correct horse battery")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, _ = f.engine.Login(ctx, "alice@example.com", "bad password!!")
	}
	if _, err := f.engine.Login(ctx, "alice@example.com", "correct horse battery"); err != nil {
		t.Fatalf("login before limit failed: %v", err)
	}

	// Counter was reset; two more bad attempts must not trip the limit.
	for i := 0; i < 2; i++ {
		if _, err := f.engine.Login(ctx, "alice@example.com", "bad password!!"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("post-reset attempt err = %v, want ErrInvalidCredentials", err)
		}
	}
}

func TestLoginUnusableDigestNeverSucceeds(t *testing.T) {
	f := buildEngine(t, nil)

	digest, err := password.UnusableDigest()
	if err != nil {
		t.Fatalf("UnusableDigest failed: %v", err)
	}
	f.users.put(&User{
		ID:             "oauth-only",
		Email:          "sso@example.com",
		PasswordDigest: digest,
		Role:           RoleUser,
		Active:         true,
		Verified:       true,
	})

	for _, pass := range []string{"", digest, "some password"} {
		if _, err := f.engine.Login(context.Background(), "sso@example.com", pass); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("Login(%q) err = %v, want ErrInvalidCredentials", pass, err)
		}
	}
}

func TestLoginUpgradesWeakDigest(t *testing.T) {
	f := buildEngine(t, nil)
	res := f.register(t, "alice@example.com", "correct horse battery")

	// Rewrite the digest with cheaper parameters than the engine's config.
	weakHasher, err := password.New(password.Config{
		Memory:      8192,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   16,
	})
	if err != nil {
		t.Fatalf("password.New failed: %v", err)
	}
	weak, err := weakHasher.Hash("correct horse battery")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	user := f.users.mustGet(t, res.User.ID)
	user.PasswordDigest = weak
	f.users.put(user)

	if _, err := f.engine.Login(context.Background(), "alice@example.com", "correct horse battery"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	upgraded := f.users.mustGet(t, res.User.ID)
	if upgraded.PasswordDigest == weak {
		t.Fatal("digest was not upgraded on login")
	}
	if _, err := f.engine.Login(context.Background(), "alice@example.com", "correct horse battery"); err != nil {
		t.Fatalf("Login after upgrade failed: %v", err)
	}
}
