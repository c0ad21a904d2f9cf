package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	authcore "github.com/finity-labs/authcore"
)

type principalContextKey struct{}

// PrincipalFromContext returns the authenticated principal injected by
// [RequireAuth] or [RequireRole].
func PrincipalFromContext(ctx context.Context) (*authcore.Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(*authcore.Principal)
	return p, ok
}

// RequireAuth rejects requests without a valid bearer access token. On
// success the principal is placed on the request context.
func RequireAuth(engine *authcore.Engine) func(http.Handler) http.Handler {
	return guard(engine, "")
}

// RequireRole is RequireAuth plus a role check against live account state.
func RequireRole(engine *authcore.Engine, role authcore.Role) func(http.Handler) http.Handler {
	return guard(engine, role)
}

func guard(engine *authcore.Engine, role authcore.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := requestContext(r)
			var (
				principal *authcore.Principal
				err       error
			)
			if role == "" {
				principal, err = engine.Authenticate(ctx, token)
			} else {
				principal, err = engine.Authorize(ctx, token, role)
			}
			if err != nil {
				if errors.Is(err, authcore.ErrForbidden) {
					http.Error(w, "forbidden", http.StatusForbidden)
					return
				}
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx = context.WithValue(ctx, principalContextKey{}, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// requestContext decorates the request context with client metadata so audit
// events carry the caller's address and agent.
func requestContext(r *http.Request) context.Context {
	ctx := authcore.WithClientIP(r.Context(), clientIP(r))
	if ua := r.Header.Get("User-Agent"); ua != "" {
		ctx = authcore.WithUserAgent(ctx, ua)
	}
	return ctx
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host := r.RemoteAddr
	if i := strings.LastIndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	return host
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
