package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/campuskeep/campuskeep/pkg/api"
	"github.com/campuskeep/campuskeep/pkg/identity"
	"github.com/campuskeep/campuskeep/pkg/policy"
)

// publicPaths are endpoints that skip token resolution entirely.
var publicPaths = []string{
	"/health",
	"/readiness",
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}

// NewMiddleware resolves the bearer token into a policy subject and stores
// it in the request context.
//
// No Authorization header means a guest: the anonymous subject is injected
// and the policy engine decides what guests may do. A header that is present
// but malformed, expired or unresolvable is a 401; a broken credential is
// never downgraded to guest access.
func NewMiddleware(resolver identity.Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isPublicPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				ctx := WithSubject(r.Context(), policy.Anonymous)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				api.WriteUnauthorized(w, "Invalid Authorization header format (expected 'Bearer <token>')")
				return
			}

			// Fail closed if no resolver configured.
			if resolver == nil {
				api.WriteUnauthorized(w, "Authentication not configured")
				return
			}

			subject, err := resolver.Resolve(r.Context(), parts[1])
			if err != nil {
				if errors.Is(err, identity.ErrUnauthenticated) {
					api.WriteUnauthorized(w, "Invalid or expired token")
					return
				}
				api.WriteInternal(w, err)
				return
			}

			ctx := WithSubject(r.Context(), subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
