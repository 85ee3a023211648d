package identity

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/campuskeep/campuskeep/pkg/policy"
)

// ServiceClaims are the JWT claims expected on machine-to-machine tokens.
type ServiceClaims struct {
	jwt.RegisteredClaims
	Role policy.Role `json:"role"`
}

// ServiceTokenResolver validates HMAC-signed service tokens. It exists for
// trusted callers (kiosks, batch jobs) that cannot hold a browser session;
// human traffic goes through the session store.
type ServiceTokenResolver struct {
	key    []byte
	issuer string
}

// NewServiceTokenResolver creates a resolver. An empty key disables the
// resolver: every token is rejected (fail closed).
func NewServiceTokenResolver(key []byte, issuer string) *ServiceTokenResolver {
	return &ServiceTokenResolver{key: key, issuer: issuer}
}

// Resolve implements Resolver. Any parse or claim failure is
// ErrUnauthenticated; the detail is deliberately not leaked to callers.
func (v *ServiceTokenResolver) Resolve(ctx context.Context, token string) (policy.Subject, error) {
	if len(v.key) == 0 || token == "" {
		return policy.Subject{}, ErrUnauthenticated
	}

	claims := &ServiceClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.key, nil
	}, jwt.WithIssuer(v.issuer), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return policy.Subject{}, ErrUnauthenticated
	}
	if claims.Subject == "" || !claims.Role.Known() {
		return policy.Subject{}, ErrUnauthenticated
	}
	return policy.Subject{ID: claims.Subject, Role: claims.Role}, nil
}
