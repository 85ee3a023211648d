package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOverlay_DenyOnly(t *testing.T) {
	o, err := NewOverlay([]OverlayRule{
		{Name: "no-security-deletes", Expr: `subject.role == "security" && action == "delete"`},
	})
	require.NoError(t, err)
	e := NewEngineWithOverlay(o)

	admin := Subject{ID: "a1", Role: RoleAdmin}
	security := Subject{ID: "s1", Role: RoleSecurity}
	post := Resource{Kind: KindForumPost, OwnerID: "u1"}

	// Admin delete is allowed by the table and not matched by the overlay.
	assert.True(t, e.Decide(admin, ActionDelete, post).Allowed)

	// Security delete would deny at the table anyway; the overlay never
	// widens, so the deny reason stays the table's.
	d := e.Decide(security, ActionDelete, post)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonNotOwnerOrRole, d.Reason)

	// A security delete of their own post is table-allowed, then the
	// overlay narrows it.
	own := Resource{Kind: KindForumPost, OwnerID: "s1"}
	d = e.Decide(security, ActionDelete, own)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonPolicyOverlay, d.Reason)
}

func TestOverlay_NeverWidens(t *testing.T) {
	// A rule that always "matches" cannot convert a table Deny into Allow.
	o, err := NewOverlay([]OverlayRule{{Name: "always", Expr: `true`}})
	require.NoError(t, err)
	e := NewEngineWithOverlay(o)

	user := Subject{ID: "u1", Role: RoleUser}
	d := e.Decide(user, ActionDecide, Resource{Kind: KindClaim, OwnerID: "u1"})
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonInsufficientRole, d.Reason)

	// And every table Allow is now denied by the overlay.
	d = e.Decide(user, ActionCreate, Resource{Kind: KindClaim, OwnerID: "u1"})
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonPolicyOverlay, d.Reason)
}

func TestOverlay_CompileError(t *testing.T) {
	_, err := NewOverlay([]OverlayRule{{Name: "broken", Expr: `subject.role ==`}})
	assert.Error(t, err)
}

func TestOverlay_NonBoolFailsClosed(t *testing.T) {
	o, err := NewOverlay([]OverlayRule{{Name: "not-bool", Expr: `subject.id`}})
	require.NoError(t, err)
	e := NewEngineWithOverlay(o)

	user := Subject{ID: "u1", Role: RoleUser}
	d := e.Decide(user, ActionCreate, Resource{Kind: KindClaim, OwnerID: "u1"})
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonPolicyOverlay, d.Reason)
}
