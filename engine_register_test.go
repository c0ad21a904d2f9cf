package authcore

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestRegisterSuccess(t *testing.T) {
	f := buildEngine(t, nil)

	res, err := f.engine.Register(context.Background(), RegisterInput{
		Email:         "Alice@Example.com",
		Password:      "correct horse battery",
		Username:      "alice",
		FullName:      "Alice Liddell",
		AgreedToTerms: true,
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if res.User.ID == "" {
		t.Fatal("user ID not assigned")
	}
	if res.User.Email != "alice@example.com" {
		t.Errorf("email not normalized: %q", res.User.Email)
	}
	if res.User.Role != RoleUser {
		t.Errorf("role = %q, want %q", res.User.Role, RoleUser)
	}
	if res.User.Verified {
		t.Error("new account must start unverified")
	}
	if res.Tokens == nil {
		t.Fatal("auto-login tokens missing")
	}
	if res.User.PasswordDigest == "correct horse battery" {
		t.Fatal("password stored in the clear")
	}

	if _, ok := f.sender.lastOfKind(EmailWelcome); !ok {
		t.Error("welcome email not sent")
	}
	if _, ok := f.sender.lastOfKind(EmailVerification); !ok {
		t.Error("verification email not sent")
	}
}

func TestRegisterWithoutAutoLogin(t *testing.T) {
	f := buildEngine(t, func(cfg *Config) {
		cfg.Account.AutoLogin = false
	})

	res := f.register(t, "alice@example.com", "correct horse battery")
	if res.Tokens != nil {
		t.Fatal("tokens issued despite AutoLogin=false")
	}
}

func TestRegisterRequiresTerms(t *testing.T) {
	f := buildEngine(t, nil)

	_, err := f.engine.Register(context.Background(), RegisterInput{
		Email:    "alice@example.com",
		Password: "correct horse battery",
	})
	if !errors.Is(err, ErrTermsNotAccepted) {
		t.Fatalf("err = %v, want ErrTermsNotAccepted", err)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	f := buildEngine(t, nil)
	f.register(t, "alice@example.com", "correct horse battery")

	_, err := f.engine.Register(context.Background(), RegisterInput{
		Email:         "ALICE@example.com",
		Password:      "another password!",
		AgreedToTerms: true,
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("duplicate err = %v, want ErrConflict", err)
	}
	if got := f.engine.MetricsSnapshot().Counters[MetricRegisterDuplicate]; got != 1 {
		t.Errorf("duplicate counter = %d, want 1", got)
	}
}

func TestRegisterConcurrentSameEmailSingleWinner(t *testing.T) {
	f := buildEngine(t, nil)
	ctx := context.Background()

	const goroutines = 16
	var (
		wg     sync.WaitGroup
		wins   = make(chan string, goroutines)
		losses = make(chan error, goroutines)
	)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.engine.Register(ctx, RegisterInput{
				Email:         "alice@example.com",
				Password:      "correct horse battery",
				AgreedToTerms: true,
			})
			if err != nil {
				losses <- err
				return
			}
			wins <- res.User.ID
		}()
	}
	wg.Wait()
	close(wins)
	close(losses)

	won := 0
	for range wins {
		won++
	}
	if won != 1 {
		t.Fatalf("winners = %d, want exactly 1", won)
	}
	for err := range losses {
		if !errors.Is(err, ErrConflict) {
			t.Fatalf("loser err = %v, want ErrConflict", err)
		}
	}
}

func TestRegisterDuplicateUsername(t *testing.T) {
	f := buildEngine(t, nil)

	input := RegisterInput{
		Email:         "alice@example.com",
		Password:      "correct horse battery",
		Username:      "alice",
		AgreedToTerms: true,
	}
	if _, err := f.engine.Register(context.Background(), input); err != nil {
		t.Fatalf("first Register failed: %v", err)
	}

	input.Email = "alice2@example.com"
	if _, err := f.engine.Register(context.Background(), input); !errors.Is(err, ErrConflict) {
		t.Fatalf("duplicate username err = %v, want ErrConflict", err)
	}
}

func TestRegisterPasswordPolicy(t *testing.T) {
	f := buildEngine(t, nil)

	for _, pass := range []string{"", "short"} {
		_, err := f.engine.Register(context.Background(), RegisterInput{
			Email:         "alice@example.com",
			Password:      pass,
			AgreedToTerms: true,
		})
		if !errors.Is(err, ErrPasswordPolicy) {
			t.Errorf("Register(pass=%q) err = %v, want ErrPasswordPolicy", pass, err)
		}
	}
}

func TestRegisterInvalidEmail(t *testing.T) {
	f := buildEngine(t, nil)

	for _, email := range []string{"", "   ", "not-an-email"} {
		_, err := f.engine.Register(context.Background(), RegisterInput{
			Email:         email,
			Password:      "correct horse battery",
			AgreedToTerms: true,
		})
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("Register(email=%q) err = %v, want ErrInvalidCredentials", email, err)
		}
	}
}

func TestRegisterSurvivesEmailOutage(t *testing.T) {
	f := buildEngine(t, nil)
	f.sender.fail = true

	res, err := f.engine.Register(context.Background(), RegisterInput{
		Email:         "alice@example.com",
		Password:      "correct horse battery",
		AgreedToTerms: true,
	})
	if err != nil {
		t.Fatalf("Register failed during mail outage: %v", err)
	}
	if res.User.ID == "" {
		t.Fatal("account was not created")
	}
	if got := f.engine.MetricsSnapshot().Counters[MetricEmailDeliveryFailure]; got == 0 {
		t.Error("delivery failure not counted")
	}
}

func TestResendVerification(t *testing.T) {
	f := buildEngine(t, nil)
	f.register(t, "alice@example.com", "correct horse battery")
	ctx := context.Background()

	before := f.sender.countOfKind(EmailVerification)
	if err := f.engine.ResendVerification(ctx, "alice@example.com"); err != nil {
		t.Fatalf("ResendVerification failed: %v", err)
	}
	if got := f.sender.countOfKind(EmailVerification); got != before+1 {
		t.Fatalf("verification emails = %d, want %d", got, before+1)
	}
}

func TestResendVerificationSilentForUnknownAndVerified(t *testing.T) {
	f := buildEngine(t, nil)
	f.registerVerified(t, "alice@example.com", "correct horse battery")
	ctx := context.Background()

	before := f.sender.countOfKind(EmailVerification)

	if err := f.engine.ResendVerification(ctx, "nobody@example.com"); err != nil {
		t.Fatalf("unknown email err = %v, want nil", err)
	}
	if err := f.engine.ResendVerification(ctx, "alice@example.com"); err != nil {
		t.Fatalf("verified account err = %v, want nil", err)
	}
	if got := f.sender.countOfKind(EmailVerification); got != before {
		t.Fatalf("verification emails grew from %d to %d", before, got)
	}
}

func TestResendVerificationRateLimited(t *testing.T) {
	f := buildEngine(t, func(cfg *Config) {
		cfg.Throttle.Enabled = true
		cfg.Throttle.MaxEmailRequests = 2
	})
	f.register(t, "alice@example.com", "correct horse battery")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := f.engine.ResendVerification(ctx, "alice@example.com"); err != nil {
			t.Fatalf("request %d failed: %v", i, err)
		}
	}
	if err := f.engine.ResendVerification(ctx, "alice@example.com"); !errors.Is(err, ErrEmailRequestRateLimited) {
		t.Fatalf("throttled err = %v, want ErrEmailRequestRateLimited", err)
	}
}
