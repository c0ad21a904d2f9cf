package authcore

import (
	"context"
	"errors"
	"testing"
)

func TestRefreshTokenSuccess(t *testing.T) {
	f := buildEngine(t, nil)
	res := f.register(t, "alice@example.com", "correct horse battery")

	pair, err := f.engine.RefreshToken(context.Background(), res.Tokens.RefreshToken)
	if err != nil {
		t.Fatalf("RefreshToken failed: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("RefreshToken returned empty tokens")
	}

	// The bearer model is stateless; refreshing does not revoke the old pair.
	if _, err := f.engine.RefreshToken(context.Background(), res.Tokens.RefreshToken); err != nil {
		t.Fatalf("second RefreshToken failed: %v", err)
	}
}

func TestRefreshTokenRejectsAccessToken(t *testing.T) {
	f := buildEngine(t, nil)
	res := f.register(t, "alice@example.com", "correct horse battery")

	if _, err := f.engine.RefreshToken(context.Background(), res.Tokens.AccessToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("access-as-refresh err = %v, want ErrTokenInvalid", err)
	}
}

func TestRefreshTokenGarbage(t *testing.T) {
	f := buildEngine(t, nil)

	for _, token := range []string{"", "garbage", "a.b.c"} {
		if _, err := f.engine.RefreshToken(context.Background(), token); !errors.Is(err, ErrTokenInvalid) {
			t.Errorf("RefreshToken(%q) err = %v, want ErrTokenInvalid", token, err)
		}
	}
}

func TestRefreshTokenDeactivatedUser(t *testing.T) {
	f := buildEngine(t, nil)
	res := f.register(t, "alice@example.com", "correct horse battery")

	user := f.users.mustGet(t, res.User.ID)
	user.Active = false
	f.users.put(user)

	if _, err := f.engine.RefreshToken(context.Background(), res.Tokens.RefreshToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("deactivated refresh err = %v, want ErrTokenInvalid", err)
	}
}

func TestRefreshTokenDeletedUser(t *testing.T) {
	f := buildEngine(t, nil)
	res := f.register(t, "alice@example.com", "correct horse battery")

	f.users.mu.Lock()
	delete(f.users.byID, res.User.ID)
	f.users.mu.Unlock()

	if _, err := f.engine.RefreshToken(context.Background(), res.Tokens.RefreshToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("deleted-user refresh err = %v, want ErrTokenInvalid", err)
	}
}
