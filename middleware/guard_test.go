package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	authcore "github.com/finity-labs/authcore"
	"github.com/finity-labs/authcore/store/memory"
)

func newTestEngine(t *testing.T) *authcore.Engine {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := authcore.DefaultConfig()
	cfg.JWT.SigningSecret = []byte("0123456789abcdef0123456789abcdef")
	cfg.Account.RequireTerms = false

	engine, err := authcore.New().
		WithConfig(cfg).
		WithRedis(client).
		WithUserStore(memory.NewUserStore()).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine
}

func registerAndLogin(t *testing.T, engine *authcore.Engine) string {
	t.Helper()

	res, err := engine.Register(context.Background(), authcore.RegisterInput{
		Email:    "guard@example.com",
		Password: "correct horse battery",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if res.Tokens == nil {
		t.Fatal("expected auto-login tokens")
	}
	return res.Tokens.AccessToken
}

func okHandler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := PrincipalFromContext(r.Context()); !ok {
			t.Error("principal missing from request context")
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequireAuthAcceptsValidToken(t *testing.T) {
	engine := newTestEngine(t)
	access := registerAndLogin(t, engine)

	srv := httptest.NewServer(RequireAuth(engine)(okHandler(t)))
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	req.Header.Set("Authorization", "Bearer "+access)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestRequireAuthRejectsMissingAndBadTokens(t *testing.T) {
	engine := newTestEngine(t)

	handler := RequireAuth(engine)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler reached without credentials")
	}))

	cases := []struct {
		name   string
		header string
	}{
		{"no_header", ""},
		{"not_bearer", "Basic abc"},
		{"empty_bearer", "Bearer "},
		{"garbage_token", "Bearer not.a.jwt"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", rec.Code)
			}
		})
	}
}

func TestRequireRoleForbidsNonAdmins(t *testing.T) {
	engine := newTestEngine(t)
	access := registerAndLogin(t, engine)

	handler := RequireRole(engine, authcore.RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler reached without admin role")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+access)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestBearerToken(t *testing.T) {
	if _, ok := bearerToken("Bearer"); ok {
		t.Error("bare scheme accepted")
	}
	if tok, ok := bearerToken("Bearer abc"); !ok || tok != "abc" {
		t.Errorf("bearerToken = %q, %v", tok, ok)
	}
	if _, ok := bearerToken(strings.ToLower("bearer abc")); ok {
		t.Error("lowercase scheme accepted")
	}
}
