package claims_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuskeep/campuskeep/pkg/claims"
	"github.com/campuskeep/campuskeep/pkg/policy"
	"github.com/campuskeep/campuskeep/pkg/store"
)

var (
	userU    = policy.Subject{ID: "u1", Role: policy.RoleUser}
	security = policy.Subject{ID: "s1", Role: policy.RoleSecurity}
	admin    = policy.Subject{ID: "a1", Role: policy.RoleAdmin}
)

func newLifecycle() (*claims.Lifecycle, *store.Memory) {
	m := store.NewMemory()
	return claims.NewLifecycle(policy.NewEngine(), m, nil, nil), m
}

func TestSubmit_RoundTrip(t *testing.T) {
	l, _ := newLifecycle()
	ctx := context.Background()

	claim, err := l.Submit(ctx, userU, "item-1", "lost at gate")
	require.NoError(t, err)
	assert.Equal(t, claims.StatusPending, claim.Status)
	assert.Equal(t, "u1", claim.ClaimantID)
	assert.Empty(t, claim.DecidedBy)
	assert.Nil(t, claim.DecidedAt)

	got, err := l.Get(ctx, userU, claim.ID)
	require.NoError(t, err)
	assert.Equal(t, claims.StatusPending, got.Status)
	assert.Empty(t, got.DecidedBy)

	// Immediately visible to staff queues.
	pending, err := l.List(ctx, security, claims.StatusPending)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestSubmit_Validation(t *testing.T) {
	l, _ := newLifecycle()
	ctx := context.Background()

	var verr *claims.ValidationError

	_, err := l.Submit(ctx, userU, "item-1", "too short")
	require.Error(t, err)
	assert.ErrorAs(t, err, &verr)

	// Nine runes after trimming.
	_, err = l.Submit(ctx, userU, "item-1", "  123456789  ")
	assert.ErrorAs(t, err, &verr)

	// Exactly ten runes passes.
	_, err = l.Submit(ctx, userU, "item-1", "1234567890")
	assert.NoError(t, err)

	_, err = l.Submit(ctx, userU, "", "lost at gate")
	assert.ErrorAs(t, err, &verr)
}

func TestSubmit_GuestDenied(t *testing.T) {
	l, _ := newLifecycle()

	_, err := l.Submit(context.Background(), policy.Anonymous, "item-1", "lost at gate")
	var denied *policy.DeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, policy.ReasonUnauthenticated, denied.Reason)
}

// TestDecide_FullScenario walks the adjudication path end to end: claimant
// denied, security approves then completes, admin bounced off the terminal
// state.
func TestDecide_FullScenario(t *testing.T) {
	l, _ := newLifecycle()
	ctx := context.Background()

	claim, err := l.Submit(ctx, userU, "item-1", "lost at gate")
	require.NoError(t, err)
	assert.Equal(t, claims.StatusPending, claim.Status)

	// Claimant may not decide their own claim.
	_, err = l.Decide(ctx, userU, claim.ID, claims.EventApprove, "")
	var denied *policy.DeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, policy.ReasonInsufficientRole, denied.Reason)

	// Security approves.
	approved, err := l.Decide(ctx, security, claim.ID, claims.EventApprove, "ID matches records")
	require.NoError(t, err)
	assert.Equal(t, claims.StatusApproved, approved.Status)
	assert.Equal(t, "s1", approved.DecidedBy)
	require.NotNil(t, approved.DecidedAt)
	assert.Equal(t, "ID matches records", approved.AdminNotes)

	// Security completes the handover.
	completed, err := l.Decide(ctx, security, claim.ID, claims.EventComplete, "")
	require.NoError(t, err)
	assert.Equal(t, claims.StatusCompleted, completed.Status)

	// Terminal: even an admin cannot reject a completed claim.
	_, err = l.Decide(ctx, admin, claim.ID, claims.EventReject, "")
	assert.ErrorIs(t, err, claims.ErrInvalidTransition)

	got, err := l.Get(ctx, admin, claim.ID)
	require.NoError(t, err)
	assert.Equal(t, claims.StatusCompleted, got.Status)
}

func TestDecide_Transitions(t *testing.T) {
	tests := []struct {
		name  string
		from  claims.Status
		event claims.Event
		to    claims.Status
		ok    bool
	}{
		{"pending approve", claims.StatusPending, claims.EventApprove, claims.StatusApproved, true},
		{"pending reject", claims.StatusPending, claims.EventReject, claims.StatusRejected, true},
		{"pending complete skips", claims.StatusPending, claims.EventComplete, "", false},
		{"approved complete", claims.StatusApproved, claims.EventComplete, claims.StatusCompleted, true},
		{"approved reject", claims.StatusApproved, claims.EventReject, claims.StatusRejected, true},
		{"approved approve repeats", claims.StatusApproved, claims.EventApprove, "", false},
		{"rejected terminal", claims.StatusRejected, claims.EventApprove, "", false},
		{"completed terminal", claims.StatusCompleted, claims.EventReject, "", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			to, ok := claims.Next(tc.from, tc.event)
			assert.Equal(t, tc.ok, ok)
			if tc.ok {
				assert.Equal(t, tc.to, to)
			}
		})
	}
}

func TestDecide_TerminalStatesIdempotent(t *testing.T) {
	l, _ := newLifecycle()
	ctx := context.Background()

	claim, err := l.Submit(ctx, userU, "item-1", "lost at gate")
	require.NoError(t, err)
	_, err = l.Decide(ctx, admin, claim.ID, claims.EventReject, "no match")
	require.NoError(t, err)

	for _, event := range []claims.Event{claims.EventApprove, claims.EventReject, claims.EventComplete} {
		_, err := l.Decide(ctx, admin, claim.ID, event, "")
		assert.ErrorIs(t, err, claims.ErrInvalidTransition)
	}

	got, err := l.Get(ctx, admin, claim.ID)
	require.NoError(t, err)
	assert.Equal(t, claims.StatusRejected, got.Status)
	assert.Equal(t, "a1", got.DecidedBy)
}

func TestDecide_NotFound(t *testing.T) {
	l, _ := newLifecycle()

	_, err := l.Decide(context.Background(), admin, "missing", claims.EventApprove, "")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// TestDecide_ConcurrentApprovals races two approvals of the same pending
// claim: exactly one wins, the other sees Conflict.
func TestDecide_ConcurrentApprovals(t *testing.T) {
	l, _ := newLifecycle()
	ctx := context.Background()

	claim, err := l.Submit(ctx, userU, "item-1", "lost at gate")
	require.NoError(t, err)

	results := make([]error, 2)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i, actor := range []policy.Subject{security, admin} {
		wg.Add(1)
		go func(i int, actor policy.Subject) {
			defer wg.Done()
			<-start
			_, results[i] = l.Decide(ctx, actor, claim.ID, claims.EventApprove, "")
		}(i, actor)
	}
	close(start)
	wg.Wait()

	var wins, conflicts int
	for _, err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, store.ErrConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, conflicts)

	got, err := l.Get(ctx, admin, claim.ID)
	require.NoError(t, err)
	assert.Equal(t, claims.StatusApproved, got.Status)
}

func TestGet_StrangerDenied(t *testing.T) {
	l, _ := newLifecycle()
	ctx := context.Background()

	claim, err := l.Submit(ctx, userU, "item-1", "lost at gate")
	require.NoError(t, err)

	other := policy.Subject{ID: "u2", Role: policy.RoleUser}
	_, err = l.Get(ctx, other, claim.ID)
	var denied *policy.DeniedError
	assert.ErrorAs(t, err, &denied)
}

func TestList_NonStaffDenied(t *testing.T) {
	l, _ := newLifecycle()

	_, err := l.List(context.Background(), userU, claims.StatusPending)
	var denied *policy.DeniedError
	assert.ErrorAs(t, err, &denied)
}
