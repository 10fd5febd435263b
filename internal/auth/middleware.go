package auth

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const identityKey contextKey = "identity"

// IdentityFromContext returns the authenticated identity, if any.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

// ContextWithIdentity is used by middleware and tests to attach a caller.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// Middleware parses a Bearer token when present and attaches the identity
// to the request context. Missing or bad tokens pass through unauthenticated;
// the route layer enforces presence where it matters.
func Middleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if token, ok := strings.CutPrefix(header, "Bearer "); ok {
				if ident, err := ParseToken(strings.TrimSpace(token), secret); err == nil {
					r = r.WithContext(ContextWithIdentity(r.Context(), ident))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
