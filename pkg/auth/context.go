package auth

import (
	"context"
	"errors"

	"github.com/campuskeep/campuskeep/pkg/policy"
)

type contextKey string

const subjectKey contextKey = "subject"

// WithSubject attaches the authenticated subject to the context.
func WithSubject(ctx context.Context, s policy.Subject) context.Context {
	return context.WithValue(ctx, subjectKey, s)
}

// GetSubject retrieves the subject from the context. The middleware always
// stores one (guests included), so a miss means the handler is mounted
// outside the middleware chain.
func GetSubject(ctx context.Context) (policy.Subject, error) {
	s, ok := ctx.Value(subjectKey).(policy.Subject)
	if !ok {
		return policy.Subject{}, errors.New("no subject in context")
	}
	return s, nil
}
