//go:build property
// +build property

// Package policy_test contains property-based tests for the decision engine.
package policy_test

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/campuskeep/campuskeep/pkg/policy"
)

func genRole() gopter.Gen {
	return gen.OneConstOf(
		policy.RoleGuest, policy.RoleUser, policy.RoleAdmin, policy.RoleSecurity,
		policy.Role("unknown"), policy.Role(""),
	)
}

func genKind() gopter.Gen {
	return gen.OneConstOf(
		policy.KindClaim, policy.KindForumPost, policy.KindForumComment, policy.KindProfile,
		policy.ResourceKind("inventory"),
	)
}

func genAction() gopter.Gen {
	return gen.OneConstOf(
		policy.ActionRead, policy.ActionCreate, policy.ActionDelete, policy.ActionDecide,
		policy.Action("purge"),
	)
}

// TestNonStaffNeverDecides verifies that no subject outside {admin, security}
// is ever allowed to decide a claim, claimant included.
func TestNonStaffNeverDecides(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)
	e := policy.NewEngine()

	properties.Property("non-staff cannot decide any claim", prop.ForAll(
		func(id string, role policy.Role, ownerID, state string) bool {
			if role.Staff() {
				return true
			}
			d := e.Decide(
				policy.Subject{ID: id, Role: role},
				policy.ActionDecide,
				policy.Resource{Kind: policy.KindClaim, OwnerID: ownerID, ClaimState: state},
			)
			return !d.Allowed
		},
		gen.AlphaString(),
		genRole(),
		gen.AlphaString(),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

// TestUnknownInputsAlwaysDeny verifies the fail-closed default: any triple
// containing an unknown role, action or kind denies with UnknownPolicy.
func TestUnknownInputsAlwaysDeny(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)
	e := policy.NewEngine()

	properties.Property("unknown enum members deny", prop.ForAll(
		func(id string, role policy.Role, action policy.Action, kind policy.ResourceKind, ownerID string) bool {
			d := e.Decide(
				policy.Subject{ID: id, Role: role},
				action,
				policy.Resource{Kind: kind, OwnerID: ownerID},
			)
			if role.Known() && action.Known() && kind.Known() {
				return true
			}
			return !d.Allowed && d.Reason == policy.ReasonUnknownPolicy
		},
		gen.AlphaString(),
		genRole(),
		genAction(),
		genKind(),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

// TestForumDeleteEquivalence verifies delete permission on forum content is
// exactly (owner or admin).
func TestForumDeleteEquivalence(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)
	e := policy.NewEngine()

	properties.Property("delete allowed iff owner or admin", prop.ForAll(
		func(id string, role policy.Role, ownerID string) bool {
			if !role.Known() || id == "" {
				return true
			}
			d := e.Decide(
				policy.Subject{ID: id, Role: role},
				policy.ActionDelete,
				policy.Resource{Kind: policy.KindForumPost, OwnerID: ownerID},
			)
			want := id == ownerID || role == policy.RoleAdmin
			return d.Allowed == want
		},
		gen.Identifier(),
		genRole(),
		gen.Identifier(),
	))

	properties.TestingRun(t)
}
