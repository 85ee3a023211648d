// Package identity resolves opaque session tokens and signed service tokens
// into policy subjects. Resolution is per-request; nothing is cached across
// calls, so a role change is visible on the very next request.
package identity

import (
	"context"
	"errors"
	"time"

	"github.com/campuskeep/campuskeep/pkg/policy"
)

// ErrUnauthenticated is returned when a token is missing, expired or does
// not resolve against any session store.
var ErrUnauthenticated = errors.New("unauthenticated")

// Session is the record the external session store holds per token.
type Session struct {
	SubjectID string      `json:"subject_id"`
	Role      policy.Role `json:"role"`
	ExpiresAt time.Time   `json:"expires_at"`
}

// Resolver maps a presented token to a Subject.
type Resolver interface {
	Resolve(ctx context.Context, token string) (policy.Subject, error)
}

// MultiResolver tries each resolver in order and returns the first
// authenticated subject. ErrUnauthenticated from one resolver moves on to
// the next; infrastructure errors surface immediately.
type MultiResolver []Resolver

func (m MultiResolver) Resolve(ctx context.Context, token string) (policy.Subject, error) {
	for _, r := range m {
		subject, err := r.Resolve(ctx, token)
		if err == nil {
			return subject, nil
		}
		if !errors.Is(err, ErrUnauthenticated) {
			return policy.Subject{}, err
		}
	}
	return policy.Subject{}, ErrUnauthenticated
}

// subjectFromSession applies the shared fail-closed checks.
func subjectFromSession(s Session, now time.Time) (policy.Subject, error) {
	if s.SubjectID == "" || !s.Role.Known() {
		return policy.Subject{}, ErrUnauthenticated
	}
	if !s.ExpiresAt.After(now) {
		return policy.Subject{}, ErrUnauthenticated
	}
	return policy.Subject{ID: s.SubjectID, Role: s.Role}, nil
}
