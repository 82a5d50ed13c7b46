// Package authmw provides HTTP middleware for bearer token authentication
// and actor-role attribution.
package authmw

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
)

type roleKey struct{}

// DefaultRole is attributed to operations when the caller sends no role
// header.
const DefaultRole = "clinician"

// RoleHeader carries the acting role of the authenticated user.
const RoleHeader = "X-Actor-Role"

// BearerToken returns middleware that validates the Authorization header
// contains a Bearer token matching the expected value. Comparison uses
// constant-time equality to prevent timing side-channel attacks.
func BearerToken(token string) func(http.Handler) http.Handler {
	expected := []byte(token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")

			if !strings.HasPrefix(auth, "Bearer ") {
				http.Error(w, `{"error":"missing or malformed authorization header"}`, http.StatusUnauthorized)
				return
			}

			got := []byte(auth[len("Bearer "):])

			if subtle.ConstantTimeCompare(got, expected) != 1 {
				http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ActorRole returns middleware that stashes the caller's role header into
// the request context so every operation is attributable to a role.
func ActorRole() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := strings.TrimSpace(r.Header.Get(RoleHeader))
			if role == "" {
				role = DefaultRole
			}
			next.ServeHTTP(w, r.WithContext(WithRole(r.Context(), role)))
		})
	}
}

// WithRole returns a context carrying the actor role.
func WithRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, roleKey{}, role)
}

// RoleFromContext extracts the actor role, or DefaultRole when absent.
func RoleFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(roleKey{}).(string); ok && v != "" {
		return v
	}
	return DefaultRole
}
